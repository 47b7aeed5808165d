package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestParseErrorMessage(t *testing.T) {
	err := ErrParse("fields", 7, "'", ",", "[", "]")
	want := "Illegal fields expression. Expected `,`, `[` or `]` at position 7 but found `'`"
	if err.Error() != want {
		t.Fatalf("unexpected message:\n got: %s\nwant: %s", err.Error(), want)
	}
}

func TestParseErrorSingleExpected(t *testing.T) {
	err := ErrParse("filter", 3, "x", ":")
	want := "Illegal filter expression. Expected `:` at position 3 but found `x`"
	if err.Error() != want {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrParse("order", 0, "!", "property"), http.StatusBadRequest},
		{ErrValidation("Property `x` does not exist in `user`."), http.StatusBadRequest},
		{ErrConflict("Field not supported: `:unknown`"), http.StatusConflict},
		{ErrAccessDenied("no"), http.StatusForbidden},
		{ErrNotFound("gone"), http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", ErrExecution(errors.New("boom"), "query failed")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.err); got != c.want {
			t.Fatalf("%v: got %d want %d", c.err, got, c.want)
		}
	}
}

func TestExecutionErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("fetch: %w", ErrExecution(cause, "query failed"))
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost: %v", err)
	}
	if Type(err) != "ExecutionError" {
		t.Fatalf("unexpected type %q", Type(err))
	}
}
