package serverutils

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"ai-intent-chat-be/pkg/apperror"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	SessionId string `validate:"omitempty,max=4"`
	Timezone  string `validate:"omitempty,timezone"`
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(sampleRequest{SessionId: "abc", Timezone: "Europe/Berlin"}))

	err := ValidateRequest(sampleRequest{SessionId: "too-long", Timezone: "Nowhere/City"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrInvalidRequest)
	assert.Contains(t, err.Error(), "SessionId failed on 'max'")
	assert.Contains(t, err.Error(), "Timezone failed on 'timezone'")
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/bad", func(*fiber.Ctx) error {
		return apperror.New(apperror.KindInvalidRequest, "op", "nope")
	})
	app.Get("/missing", func(*fiber.Ctx) error { return fiber.ErrNotFound })
	app.Get("/boom", func(*fiber.Ctx) error { return errors.New("boom") })

	tests := []struct {
		path string
		code int
	}{
		{"/bad", 400},
		{"/missing", 404},
		{"/boom", 500},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.code, resp.StatusCode)

			var body BaseResponse[any]
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}
