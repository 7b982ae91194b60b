package hmacauth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedRequest(t *testing.T, secret, body string, at time.Time) *http.Request {
	t.Helper()
	ts := strconv.FormatInt(at.Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", strings.NewReader(body))
	req.Header.Set(HeaderSignature, Sign(secret, ts, []byte(body)))
	req.Header.Set(HeaderTimestamp, ts)
	return req
}

func TestMiddlewareAllowsValidSignatureAndPreservesBody(t *testing.T) {
	body := `{"name":"Dusk","description":"a sunset over the sea"}`
	now := time.Unix(1_700_000_000, 0)

	v := &Verifier{Secret: "secret", MaxSkew: time.Minute, Now: func() time.Time { return now }}

	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.WriteHeader(http.StatusAccepted)
	})

	rec := httptest.NewRecorder()
	v.Middleware(handler).ServeHTTP(rec, signedRequest(t, "secret", body, now))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, body, seen)
}

func TestMiddlewareRejects(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := &Verifier{Secret: "secret", MaxSkew: time.Minute, Now: func() time.Time { return now }}

	tests := []struct {
		name string
		req  func() *http.Request
		want error
	}{
		{
			name: "wrong signature",
			req: func() *http.Request {
				r := signedRequest(t, "secret", `{}`, now)
				r.Header.Set(HeaderSignature, "deadbeef")
				return r
			},
			want: ErrInvalidSignature,
		},
		{
			name: "other secret",
			req:  func() *http.Request { return signedRequest(t, "nope", `{}`, now) },
			want: ErrInvalidSignature,
		},
		{
			name: "stale",
			req:  func() *http.Request { return signedRequest(t, "secret", `{}`, now.Add(-2*time.Minute)) },
			want: ErrStaleTimestamp,
		},
		{
			name: "future",
			req:  func() *http.Request { return signedRequest(t, "secret", `{}`, now.Add(2*time.Minute)) },
			want: ErrStaleTimestamp,
		},
		{
			name: "missing signature",
			req: func() *http.Request {
				r := signedRequest(t, "secret", `{}`, now)
				r.Header.Del(HeaderSignature)
				return r
			},
			want: ErrMissingSignature,
		},
		{
			name: "bad timestamp",
			req: func() *http.Request {
				r := signedRequest(t, "secret", `{}`, now)
				r.Header.Set(HeaderTimestamp, "yesterday")
				return r
			},
			want: ErrMissingTimestamp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			v.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatal("handler should not be called")
			})).ServeHTTP(rec, tt.req())

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want.Error())
		})
	}
}

func TestMiddlewareDisabledWithoutSecret(t *testing.T) {
	v := &Verifier{}
	assert.False(t, v.Enabled())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", strings.NewReader(`{}`))
	v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
