package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("gateway-key"))
	require.NoError(t, err)
	return token
}

func TestGatewayVerifiedMiddleware(t *testing.T) {
	var seenUserID string
	handler := Middleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID, _ = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{"sub": "user-1"}))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", seenUserID)
}

func TestGatewayVerifiedMiddlewareRejectsMissingHeader(t *testing.T) {
	handler := Middleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without credentials")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtractUserIDFromJWT(t *testing.T) {
	sub, err := ExtractUserIDFromJWT(signedToken(t, jwt.MapClaims{"sub": "user-42"}))
	require.NoError(t, err)
	assert.Equal(t, "user-42", sub)

	_, err = ExtractUserIDFromJWT(signedToken(t, jwt.MapClaims{"aud": "nobody"}))
	assert.Error(t, err)

	_, err = ExtractUserIDFromJWT("")
	assert.Error(t, err)

	_, err = ExtractUserIDFromJWT("not.a.token")
	assert.Error(t, err)
}

func TestExtractTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc123")

	token, err := ExtractTokenFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "abc123", token)

	req.Header.Set("Authorization", "Basic abc123")
	_, err = ExtractTokenFromRequest(req)
	assert.Error(t, err)

	req.Header.Del("Authorization")
	_, err = ExtractTokenFromRequest(req)
	assert.Error(t, err)
}
