package serverutils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"daw-agent-be/pkg/agent/pipeline"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Prompt string `validate:"required"`
	Limit  int    `validate:"min=1,max=10"`
}

func TestValidateStruct(t *testing.T) {
	assert.Nil(t, ValidateStruct(sample{Prompt: "x", Limit: 3}))

	fields := ValidateStruct(sample{Limit: 20})
	assert.Equal(t, "is required", fields["Prompt"])
	assert.Equal(t, "must be at most 10", fields["Limit"])

	err := ValidateRequest(sample{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "Prompt")
}

func decode(t *testing.T, res *http.Response) map[string]interface{} {
	t.Helper()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestErrorHandlerMapsDomainErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"in progress", pipeline.ErrGenerationInProgress, fiber.StatusConflict},
		{"model missing", pipeline.ErrModelNotSet, fiber.StatusBadRequest},
		{"transport", &pipeline.TransportError{Phase: "plan", Err: errors.New("reset")}, fiber.StatusBadGateway},
		{"fiber", fiber.NewError(fiber.StatusNotFound, "nope"), fiber.StatusNotFound},
		{"validation", &ValidationError{Fields: map[string]string{"prompt": "is required"}}, fiber.StatusBadRequest},
		{"other", errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(ErrorHandlerMiddleware())
			app.Get("/", func(*fiber.Ctx) error { return tt.err })

			res, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.code, res.StatusCode)

			body := decode(t, res)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, float64(tt.code), body["code"])
		})
	}
}

func TestJwtMiddleware(t *testing.T) {
	const secret = "s3cret"
	app := fiber.New()
	app.Use(NewJwtMiddleware(secret))
	app.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.SendString(ctx.Locals("user_id").(string))
	})

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u-1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	res, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, res.StatusCode)
	body, _ := io.ReadAll(res.Body)
	assert.Equal(t, "u-1", string(body))
}

func TestJwtMiddlewareDisabled(t *testing.T) {
	app := fiber.New()
	app.Use(NewJwtMiddleware(""))
	app.Get("/", func(ctx *fiber.Ctx) error { return ctx.SendStatus(fiber.StatusNoContent) })

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, res.StatusCode)
}
