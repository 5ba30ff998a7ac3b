package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func jwtApp(secret string) (*fiber.App, *fiber.Map) {
	captured := &fiber.Map{}
	app := fiber.New()
	app.Use(JWTProtected(secret))
	app.Get("/", func(c *fiber.Ctx) error {
		(*captured)["user_id"] = c.Locals("user_id")
		(*captured)["user_role"] = c.Locals("user_role")
		return c.SendStatus(fiber.StatusOK)
	})
	return app, captured
}

func TestJWTProtectedBindsIdentity(t *testing.T) {
	app, captured := jwtApp("secret")

	token := signToken(t, "secret", jwt.MapClaims{
		"sub":  float64(42),
		"role": "Teacher",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, uint(42), (*captured)["user_id"])
	require.Equal(t, "teacher", (*captured)["user_role"])
}

func TestJWTProtectedRejectsMissingHeader(t *testing.T) {
	app, _ := jwtApp("secret")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTProtectedRejectsBadSignature(t *testing.T) {
	app, _ := jwtApp("secret")

	token := signToken(t, "another-secret", jwt.MapClaims{"sub": float64(1)})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTProtectedRejectsExpiredToken(t *testing.T) {
	app, _ := jwtApp("secret")

	token := signToken(t, "secret", jwt.MapClaims{
		"sub": float64(1),
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTProtectedAcceptsRolesList(t *testing.T) {
	app, captured := jwtApp("secret")

	token := signToken(t, "secret", jwt.MapClaims{
		"user_id": "7",
		"roles":   []string{"student"},
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, uint(7), (*captured)["user_id"])
	require.Equal(t, "student", (*captured)["user_role"])
}
