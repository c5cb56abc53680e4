package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func newTestVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewHMACVerifier(testSecret)
	require.NoError(t, err)
	return v
}

func TestHMACVerifier(t *testing.T) {
	v := newTestVerifier(t)

	t.Run("valid", func(t *testing.T) {
		tok := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"sub":   "alice",
			"email": "alice@example.com",
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		user, err := v.VerifyToken(tok)
		require.NoError(t, err)
		assert.Equal(t, &User{ID: "alice", Email: "alice@example.com"}, user)
	})

	t.Run("expired", func(t *testing.T) {
		tok := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"sub": "alice",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		_, err := v.VerifyToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		tok := signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "alice"})
		_, err := v.VerifyToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing sub", func(t *testing.T) {
		tok := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"email": "a@b.c"})
		_, err := v.VerifyToken(tok)
		assert.ErrorIs(t, err, ErrMissingClaims)
	})
}

func TestHMACVerifierRejectsEmptySecret(t *testing.T) {
	for _, secret := range [][]byte{nil, {}} {
		v, err := NewHMACVerifier(secret)
		assert.ErrorIs(t, err, ErrEmptySecret)
		assert.Nil(t, v)
	}

	// A token signed with an empty key must not pass a configured verifier.
	forged := signToken(t, jwt.SigningMethodHS256, []byte{}, jwt.MapClaims{"sub": "admin"})
	_, err := newTestVerifier(t).VerifyToken(forged)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireAuth(t *testing.T) {
	m := NewMiddleware(newTestVerifier(t))
	var seen *User
	h := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetUserFromRequest(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"code":"invalid_token","message":"Invalid token"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "bob"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "bob", seen.ID)
}
