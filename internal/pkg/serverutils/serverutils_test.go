package serverutils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Model string `json:"model" validate:"required,max=5"`
}

type teapotError struct{}

func (teapotError) Error() string   { return "short and stout" }
func (teapotError) HTTPStatus() int { return fiber.StatusTeapot }

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     sampleRequest
		wantErr bool
		wantTag string
	}{
		{name: "valid", req: sampleRequest{Model: "llava"}},
		{name: "missing", req: sampleRequest{}, wantErr: true, wantTag: "required"},
		{name: "too long", req: sampleRequest{Model: "qwen2.5vl:7b"}, wantErr: true, wantTag: "max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var verrs *ValidationErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs.Fields, 1)
			assert.Equal(t, "Model", verrs.Fields[0].Field)
			assert.Equal(t, tt.wantTag, verrs.Fields[0].Tag)
		})
	}
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware(nil))
	app.Get("/validation", func(c *fiber.Ctx) error { return ValidateRequest(sampleRequest{}) })
	app.Get("/typed", func(c *fiber.Ctx) error { return teapotError{} })
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusBadRequest, "無效的請求體") })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })
	app.Get("/ok", func(c *fiber.Ctx) error { return c.JSON(SuccessResponse("ok", 1)) })

	tests := []struct {
		path        string
		wantStatus  int
		wantMessage string
	}{
		{"/validation", 400, "不良請求"},
		{"/typed", 418, "short and stout"},
		{"/fiber", 400, "無效的請求體"},
		{"/boom", 500, "內部伺服器錯誤"},
		{"/ok", 200, "ok"},
		{"/missing", 404, "Cannot GET /missing"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			body, _ := io.ReadAll(resp.Body)
			var env BaseResponse[any]
			require.NoError(t, json.Unmarshal(body, &env))
			assert.Equal(t, tt.wantMessage, env.Message)
			assert.Equal(t, tt.wantStatus == 200, env.Success)
		})
	}
}
