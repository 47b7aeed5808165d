package itests

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"GistAPI/internal/db"
	"GistAPI/internal/logger"
)

// ErrUnreachable means no PostgreSQL is listening at the configured DSN.
var ErrUnreachable = errors.New("postgres unreachable")

const testDBName = "gist_test"

// testDatabase is a throwaway database next to the one POSTGRES_DSN points to.
type testDatabase struct {
	name     string
	dsn      string // подключение к gist_test
	adminDSN string // подключение к служебной БД postgres
}

// newTestDatabase accepts only local URL DSNs so a misconfigured run cannot
// drop a real database.
func newTestDatabase(baseDSN string) (*testDatabase, error) {
	if os.Getenv("APP_ENV") == "production" {
		return nil, errors.New("APP_ENV=production, aborting tests")
	}
	u, err := url.Parse(baseDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
	default:
		return nil, fmt.Errorf("unsupported DSN scheme %q, want postgres://", u.Scheme)
	}
	if host := u.Hostname(); host != "localhost" && host != "127.0.0.1" {
		return nil, fmt.Errorf("refuse non-local host for tests: %s", host)
	}

	tdb := &testDatabase{name: testDBName}
	u.Path = "/" + testDBName
	tdb.dsn = u.String()
	u.Path = "/postgres"
	tdb.adminDSN = u.String()
	return tdb, nil
}

func (t *testDatabase) admin(ctx context.Context, fn func(*pgx.Conn) error) error {
	conn, err := pgx.Connect(ctx, t.adminDSN)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer conn.Close(context.Background())
	return fn(conn)
}

func (t *testDatabase) create() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return t.admin(ctx, func(conn *pgx.Conn) error {
		var exists bool
		if err := conn.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`, t.name,
		).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return nil
		}
		_, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{t.name}.Sanitize())
		return err
	})
}

func (t *testDatabase) drop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return t.admin(ctx, func(conn *pgx.Conn) error {
		// DROP DATABASE не пройдёт, пока есть чужие сессии
		_, _ = conn.Exec(ctx,
			`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()`,
			t.name)
		_, err := conn.Exec(ctx, "DROP DATABASE IF EXISTS "+pgx.Identifier{t.name}.Sanitize())
		return err
	})
}

// SetupAndTeardownTestDB creates gist_test, applies the embedded migrations
// (schema plus demo rows) and points db.Pool / db.SQL at it.
func SetupAndTeardownTestDB(baseDSN string) (teardown func() error, err error) {
	tdb, err := newTestDatabase(baseDSN)
	if err != nil {
		return nil, err
	}
	if err := tdb.create(); err != nil {
		return nil, fmt.Errorf("create DB %q: %w (POSTGRES_DSN -> %s)", tdb.name, err, redactDSN(baseDSN))
	}
	logger.Info("test_db_created", map[string]any{"db": tdb.name})

	if err := db.Migrate(tdb.dsn, false); err != nil {
		_ = tdb.drop()
		return nil, err
	}
	if err := db.InitPostgres(tdb.dsn); err != nil {
		_ = tdb.drop()
		return nil, fmt.Errorf("InitPostgres failed: %w (POSTGRES_DSN -> %s)", err, redactDSN(baseDSN))
	}

	return func() error {
		db.ClosePostgres()
		return tdb.drop()
	}, nil
}

func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil || u.User.Username() == "" {
		return dsn
	}
	u.User = url.UserPassword(u.User.Username(), "******")
	return u.String()
}
