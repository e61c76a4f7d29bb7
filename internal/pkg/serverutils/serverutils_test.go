package serverutils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"exam-proctor-be/pkg/proctor/registry"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestParseToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name     string
		token    string
		wantRole string
		wantErr  bool
	}{
		{"student default role", signed(t, jwt.MapClaims{"user_id": "u1", "exp": exp}), RoleStudent, false},
		{"instructor", signed(t, jwt.MapClaims{"user_id": "u2", "role": "instructor", "exp": exp}), RoleInstructor, false},
		{"missing user", signed(t, jwt.MapClaims{"exp": exp}), "", true},
		{"expired", signed(t, jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(-time.Hour).Unix()}), "", true},
		{"garbage", "not-a-token", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseToken(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, id.Role)
		})
	}
}

func TestJwtMiddlewareAndRoles(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	app := fiber.New()
	app.Get("/any", JwtMiddleware, func(c *fiber.Ctx) error { return c.SendString(c.Locals("user_id").(string)) })
	app.Get("/sup", JwtMiddleware, RequireSupervisor, func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	student := signed(t, jwt.MapClaims{"user_id": "u1"})
	admin := signed(t, jwt.MapClaims{"user_id": "u9", "role": "admin"})

	cases := []struct {
		path, token string
		want        int
	}{
		{"/any", "", fiber.StatusUnauthorized},
		{"/any", student, fiber.StatusOK},
		{"/sup", student, fiber.StatusForbidden},
		{"/sup", admin, fiber.StatusNoContent},
	}
	for _, c := range cases {
		req := httptest.NewRequest("GET", c.path, nil)
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, c.want, resp.StatusCode, "%s with token=%t", c.path, c.token != "")
	}
}

type sampleRequest struct {
	SessionId  string   `validate:"required"`
	AudioLevel *float64 `validate:"omitempty,lte=100"`
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/validation", func(c *fiber.Ctx) error {
		level := 140.0
		return ValidateRequest(sampleRequest{AudioLevel: &level})
	})
	app.Get("/unknown", func(c *fiber.Ctx) error {
		return fmt.Errorf("lookup: %w", registry.ErrUnknownSession)
	})
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusUnprocessableEntity, "bad frame") })
	app.Get("/boom", func(c *fiber.Ctx) error { return fmt.Errorf("boom") })

	status := func(path string) (int, map[string]interface{}) {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &out))
		return resp.StatusCode, out
	}

	code, body := status("/validation")
	assert.Equal(t, fiber.StatusBadRequest, code)
	fields := body["data"].(map[string]interface{})
	assert.Equal(t, "is required", fields["session_id"])
	assert.Equal(t, "must be <= 100", fields["audio_level"])

	code, _ = status("/unknown")
	assert.Equal(t, fiber.StatusNotFound, code)
	code, body = status("/fiber")
	assert.Equal(t, fiber.StatusUnprocessableEntity, code)
	assert.Equal(t, "bad frame", body["message"])
	code, _ = status("/boom")
	assert.Equal(t, fiber.StatusInternalServerError, code)
}
