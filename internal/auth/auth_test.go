package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var cheapParams = HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := NewPasswordHasher(cheapParams).HashPassword(password)
	require.NoError(t, err)
	return hash
}

func TestPasswordHasher(t *testing.T) {
	ph := NewPasswordHasher(cheapParams)
	hash, err := ph.HashPassword("secret-pass")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$v=19$m=1024,t=1,p=1$")

	ok, err := ph.VerifyPassword("secret-pass", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ph.VerifyPassword("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = ph.VerifyPassword("x", "$bcrypt$whatever")
	assert.ErrorIs(t, err, ErrInvalidHash)
	_, err = ph.VerifyPassword("x", "$argon2id$v=19$m=1024,t=1,p=1$!!$!!")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestJWTHandler(t *testing.T) {
	j := NewJWTHandler("a-test-secret-that-is-long-enough-32", time.Hour)
	token, expires, err := j.GenerateAccessToken("anna", "technician")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := j.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "anna", claims.Username)
	assert.Equal(t, "technician", claims.Role)
	assert.NotEmpty(t, claims.ID)

	other := NewJWTHandler("another-secret-that-is-long-enough", time.Hour)
	_, err = other.ValidateAccessToken(token)
	assert.Error(t, err)

	j.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = j.ValidateAccessToken(token)
	assert.Error(t, err, "expired")
}

func newService(t *testing.T, ops ...config.OperatorConfig) *AuthService {
	t.Helper()
	svc, err := NewAuthService(config.AuthConfig{
		JWTSecretEnv:   "RIG_TEST_JWT_SECRET",
		AccessTokenTTL: time.Hour,
		Operators:      ops,
	}, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestLogin(t *testing.T) {
	svc := newService(t, config.OperatorConfig{Username: "anna", PasswordHash: mustHash(t, "pw"), Role: "technician"})
	require.True(t, svc.Enabled())

	token, _, err := svc.Login("anna", "pw", "127.0.0.1")
	require.NoError(t, err)

	claims, perms, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "anna", claims.Username)
	assert.ElementsMatch(t, []Permission{PermOperator, PermTechnician}, perms)

	_, _, err = svc.Login("bob", "pw", "127.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginLockout(t *testing.T) {
	svc := newService(t, config.OperatorConfig{Username: "anna", PasswordHash: mustHash(t, "pw"), Role: "operator"})
	now := time.Unix(1000, 0)
	svc.now = func() time.Time { return now }

	for i := 0; i < maxFailedAttempts; i++ {
		_, _, err := svc.Login("anna", "nope", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, _, err := svc.Login("anna", "pw", "")
	assert.ErrorIs(t, err, ErrAccountLocked)

	now = now.Add(lockDuration)
	_, _, err = svc.Login("anna", "pw", "")
	assert.NoError(t, err)
}

func TestNewAuthServiceRejectsBadOperators(t *testing.T) {
	hash := mustHash(t, "pw")
	tests := []struct {
		name string
		ops  []config.OperatorConfig
	}{
		{"unknown role", []config.OperatorConfig{{Username: "a", PasswordHash: hash, Role: "root"}}},
		{"missing hash", []config.OperatorConfig{{Username: "a", Role: "admin"}}},
		{"duplicate", []config.OperatorConfig{
			{Username: "a", PasswordHash: hash, Role: "admin"},
			{Username: "a", PasswordHash: hash, Role: "operator"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAuthService(config.AuthConfig{Operators: tt.ops}, zap.NewNop())
			assert.Error(t, err)
		})
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := func(svc *AuthService) *gin.Engine {
		r := gin.New()
		r.Use(svc.AuthMiddleware())
		r.GET("/op", RequirePermission(PermOperator), func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextUsername)) })
		r.GET("/admin", RequirePermission(PermAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}
	do := func(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("disabled grants local admin", func(t *testing.T) {
		r := router(newService(t))
		w := do(r, "/admin", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "local", do(r, "/op", "").Body.String())
	})

	t.Run("enabled", func(t *testing.T) {
		svc := newService(t, config.OperatorConfig{Username: "olaf", PasswordHash: mustHash(t, "pw"), Role: "operator"})
		r := router(svc)

		assert.Equal(t, http.StatusUnauthorized, do(r, "/op", "").Code)
		assert.Equal(t, http.StatusUnauthorized, do(r, "/op", "garbage").Code)

		token, _, err := svc.Login("olaf", "pw", "")
		require.NoError(t, err)
		w := do(r, "/op", token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "olaf", w.Body.String())
		assert.Equal(t, http.StatusForbidden, do(r, "/admin", token).Code)
	})
}
