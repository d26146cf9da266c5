package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/Ramsey-B/clover/pkg/httpclient"
)

// UpsertError is a non-success response from the products endpoint.
type UpsertError struct {
	StatusCode int
	Body       string
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("products upsert failed: %d %s", e.StatusCode, e.Body)
}

// Retryable reports whether the failure is transient.
func (e *UpsertError) Retryable() bool {
	return httpclient.IsRetryableStatus(e.StatusCode)
}

// SchemaMismatchError means the embedding column and the payload disagree on
// vector dimensionality. Retrying cannot fix it; the run must stop so the
// operator reconciles the model and the migration.
type SchemaMismatchError struct {
	Expected int
	Actual   int
	Body     string
}

func (e *SchemaMismatchError) Error() string {
	if e.Expected > 0 || e.Actual > 0 {
		return fmt.Sprintf("embedding dimension mismatch: database expects %d dimensions, payload has %d", e.Expected, e.Actual)
	}
	return fmt.Sprintf("embedding schema mismatch: %s", e.Body)
}

// AuthError is a 401/403 from the endpoint. The key is wrong or expired, so
// every subsequent request would fail the same way.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("products endpoint rejected credentials: %d %s", e.StatusCode, e.Body)
}

var dimensionRegex = regexp.MustCompile(`expected (\d+) dimensions, not (\d+)`)

type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// classifyResponse maps a non-success PostgREST response to a typed error.
// Dimension mismatches surface as code PGRST102 or SQLSTATE 22000 with an
// "expected N dimensions, not M" message.
func classifyResponse(statusCode int, body []byte) error {
	text := string(body)

	if httpclient.IsAuthStatus(statusCode) {
		return &AuthError{StatusCode: statusCode, Body: text}
	}

	var pgErr postgrestError
	if err := json.Unmarshal(body, &pgErr); err == nil {
		message := pgErr.Message
		if message == "" {
			message = pgErr.Details
		}
		if m := dimensionRegex.FindStringSubmatch(message); m != nil {
			expected, _ := strconv.Atoi(m[1])
			actual, _ := strconv.Atoi(m[2])
			return &SchemaMismatchError{Expected: expected, Actual: actual, Body: text}
		}
		if pgErr.Code == "PGRST102" || pgErr.Code == "22000" {
			return &SchemaMismatchError{Body: text}
		}
	}

	return &UpsertError{StatusCode: statusCode, Body: text}
}

// IsRetryable reports whether the error is worth retrying with backoff.
func IsRetryable(err error) bool {
	var upsertErr *UpsertError
	if errors.As(err, &upsertErr) {
		return upsertErr.Retryable()
	}
	return false
}
