package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveSendsSessionCookieRegardlessOfName(t *testing.T) {
	var gotCookie *http.Cookie
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie, _ = r.Cookie("session")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":{"id":"u1","email":"a@example.com","roles":["user"]},"tenant_id":"t1","authority":"idp"}`))
	}))
	defer srv.Close()

	c := New()
	sess, _, err := c.Resolve(t.Context(), srv.URL, "token-123")
	require.NoError(t, err)
	require.Equal(t, "u1", sess.User.ID)
	require.NotNil(t, gotCookie)
	require.Equal(t, "token-123", gotCookie.Value)
}

func TestResolveNonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New()
	_, _, err := c.Resolve(t.Context(), srv.URL, "token")
	require.Error(t, err)

	var identErr *Error
	require.ErrorAs(t, err, &identErr)
	require.Equal(t, http.StatusUnauthorized, identErr.StatusCode)
}

func TestResolveMalformedBodyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New()
	_, _, err := c.Resolve(t.Context(), srv.URL, "token")
	require.Error(t, err)
}
