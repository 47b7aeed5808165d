package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"GistAPI/internal/access"
	"GistAPI/internal/config"
)

type contextKey string

const principalContextKey contextKey = "gist_principal"

// SuperuserAuthority grants every right, including reading statements in describe.
const SuperuserAuthority = "ALL"

type JWTValidator struct {
	cfg       config.JWTConfig
	key       any
	parser    *jwt.Parser
	clockFunc func() time.Time
}

func NewJWTValidator(cfg config.JWTConfig) (*JWTValidator, error) {
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("jwt issuer is required")
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("jwt audience is required")
	}
	alg := strings.ToUpper(strings.TrimSpace(cfg.ValidationType))
	if alg == "" {
		return nil, errors.New("jwt validation type is required")
	}

	v := &JWTValidator{cfg: cfg, clockFunc: time.Now}

	switch alg {
	case "HS256", "HS384", "HS512":
		if cfg.HMACSecret == "" {
			return nil, fmt.Errorf("jwt hmac secret is required for %s", alg)
		}
		v.key = []byte(cfg.HMACSecret)
	case "RS256", "RS384", "RS512":
		keyPEM, err := loadPublicKey(cfg)
		if err != nil {
			return nil, err
		}
		if v.key, err = jwt.ParseRSAPublicKeyFromPEM(keyPEM); err != nil {
			return nil, fmt.Errorf("jwt public key is not RSA: %w", err)
		}
	case "ES256", "ES384", "ES512":
		keyPEM, err := loadPublicKey(cfg)
		if err != nil {
			return nil, err
		}
		if v.key, err = jwt.ParseECPublicKeyFromPEM(keyPEM); err != nil {
			return nil, fmt.Errorf("jwt public key is not ECDSA: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported jwt validation type: %s", cfg.ValidationType)
	}

	skew := max(cfg.ClockSkewSec, 0)
	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{alg}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithLeeway(time.Duration(skew)*time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return v.clockFunc() }),
	)
	return v, nil
}

// ValidateToken checks signature, issuer, audience and time claims.
func (v *JWTValidator) ValidateToken(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid jwt: %w", err)
	}
	return claims, nil
}

// Principal maps validated claims onto the caller of a request:
// sub, username (or preferred_username), groups, authorities and locale.
func Principal(claims jwt.MapClaims) access.Principal {
	p := access.Principal{
		UID:         stringClaim(claims, "sub"),
		Username:    stringClaim(claims, "username", "preferred_username"),
		Groups:      listClaim(claims, "groups"),
		Authorities: listClaim(claims, "authorities"),
		Locale:      stringClaim(claims, "locale"),
	}
	if p.Username == "" {
		p.Username = p.UID
	}
	p.Superuser = slices.Contains(p.Authorities, SuperuserAuthority)
	return p
}

func WithPrincipal(ctx context.Context, p access.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the caller, or a guest when none is attached.
func PrincipalFromContext(ctx context.Context) access.Principal {
	if p, ok := ctx.Value(principalContextKey).(access.Principal); ok {
		return p
	}
	return access.Guest()
}

func stringClaim(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if s, ok := claims[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func listClaim(claims jwt.MapClaims, key string) []string {
	switch raw := claims[key].(type) {
	case string:
		if raw == "" {
			return nil
		}
		return strings.Fields(strings.ReplaceAll(raw, ",", " "))
	case []any:
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return raw
	}
	return nil
}

func loadPublicKey(cfg config.JWTConfig) ([]byte, error) {
	keyPEM := strings.TrimSpace(cfg.PublicKeyPEM)
	if keyPEM == "" && strings.TrimSpace(cfg.PublicKeyPath) != "" {
		data, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read jwt public key: %w", err)
		}
		keyPEM = string(data)
	}
	if keyPEM == "" {
		return nil, errors.New("jwt public key is required")
	}
	return []byte(keyPEM), nil
}
