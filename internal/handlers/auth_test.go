package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tubbz-alt/adsbrecorder/internal/authz"
	"github.com/Tubbz-alt/adsbrecorder/internal/models"
	"github.com/Tubbz-alt/adsbrecorder/internal/repository"
)

const testSecret = "test-secret"

func postJSON(t *testing.T, handler http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/", &buf))
	return rec
}

func TestSignUpAndLogin(t *testing.T) {
	users := repository.NewMemoryUserRepository()
	h := NewAuthHandler(users, testSecret, time.Hour, zerolog.Nop())

	rec := postJSON(t, h.SignUp, map[string]string{"username": "pilot", "password": "hunter22"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter22")

	rec = postJSON(t, h.SignUp, map[string]string{"username": "pilot", "password": "hunter22"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = postJSON(t, h.SignUp, map[string]string{"username": "pi", "password": "hunter22"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h.Login, map[string]string{"username": "pilot", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, h.Login, map[string]string{"username": "nobody", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, h.Login, map[string]string{"username": "pilot", "password": "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	var claims Claims
	_, err := jwt.ParseWithClaims(resp["token"], &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, "pilot", claims.Username)
	assert.Len(t, claims.Authorities, len(models.DefaultAuthorities))
}

func signedToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestJWTMiddleware(t *testing.T) {
	h := NewAuthHandler(repository.NewMemoryUserRepository(), testSecret, time.Hour, zerolog.Nop())

	var seen authz.Identity
	next := h.JWTMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = authz.IdentityFromRequest(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	valid := Claims{
		UserID:      7,
		Username:    "pilot",
		Authorities: []string{string(models.AuthorityViewReportMetadata)},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	expired := valid
	expired.RegisteredClaims = jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}
	badAuthority := valid
	badAuthority.Authorities = []string{"ROOT"}
	noUser := valid
	noUser.UserID = 0

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized},
		{"wrong key", "Bearer " + signedToken(t, jwt.SigningMethodHS256, []byte("other"), valid), http.StatusUnauthorized},
		{"expired", "Bearer " + signedToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired), http.StatusUnauthorized},
		{"unknown authority", "Bearer " + signedToken(t, jwt.SigningMethodHS256, []byte(testSecret), badAuthority), http.StatusUnauthorized},
		{"no user", "Bearer " + signedToken(t, jwt.SigningMethodHS256, []byte(testSecret), noUser), http.StatusUnauthorized},
		{"valid", "Bearer " + signedToken(t, jwt.SigningMethodHS256, []byte(testSecret), valid), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	assert.Equal(t, int64(7), seen.UserID)
	assert.True(t, seen.HasAuthority(models.AuthorityViewReportMetadata))
}

func TestReportHandlerRequiresIdentity(t *testing.T) {
	h := NewReportHandler(nil, zerolog.Nop())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background())
	h.ListRecent(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
