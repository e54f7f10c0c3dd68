package serverutils

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestParseToken(t *testing.T) {
	userID := uuid.New()
	valid := jwt.MapClaims{
		"user_id": userID.String(),
		"email":   "user@example.com",
		"role":    "admin",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid", sign(t, testSecret, valid), false},
		{"wrong secret", sign(t, "other", valid), true},
		{"expired", sign(t, testSecret, jwt.MapClaims{"user_id": userID.String(), "exp": time.Now().Add(-time.Minute).Unix()}), true},
		{"missing user", sign(t, testSecret, jwt.MapClaims{"email": "x@example.com"}), true},
		{"garbage", "not-a-token", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ParseToken(testSecret, tt.token)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, userID, claims.UserID)
			assert.Equal(t, "user@example.com", claims.Email)
			assert.Equal(t, "admin", claims.Role)
		})
	}
}

func TestJwtMiddlewareAndAdminOnly(t *testing.T) {
	app := fiber.New()
	app.Get("/me", JwtMiddleware(testSecret), func(ctx *fiber.Ctx) error {
		return ctx.JSON(SuccessResponse("ok", UserID(ctx).String()))
	})
	app.Get("/admin", JwtMiddleware(testSecret), AdminOnly, func(ctx *fiber.Ctx) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	})

	userID := uuid.New()
	userToken := sign(t, testSecret, jwt.MapClaims{"user_id": userID.String(), "role": "user"})
	adminToken := sign(t, testSecret, jwt.MapClaims{"user_id": userID.String(), "role": "admin"})

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"no token", "/me", "", fiber.StatusUnauthorized},
		{"bad token", "/me", "abc", fiber.StatusUnauthorized},
		{"user", "/me", userToken, fiber.StatusOK},
		{"user on admin route", "/admin", userToken, fiber.StatusForbidden},
		{"admin", "/admin", adminToken, fiber.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			if tt.status == fiber.StatusOK {
				var body BaseResponse[string]
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, userID.String(), body.Data)
			}
		})
	}
}

type createRequest struct {
	SubscriptionID string `json:"subscription_id" validate:"required,uuid"`
	Method         string `json:"method" validate:"omitempty,oneof=api webhook"`
	MaxAttempts    int    `json:"max_attempts" validate:"omitempty,min=1,max=10"`
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(createRequest{SubscriptionID: uuid.NewString()}))

	err := ValidateRequest(createRequest{Method: "fax", MaxAttempts: 50})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "is required", verr.Fields["subscription_id"])
	assert.Contains(t, verr.Fields["method"], "must be one of")
	assert.Equal(t, "must be at most 10", verr.Fields["max_attempts"])
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware(nil))
	app.Get("/validation", func(ctx *fiber.Ctx) error {
		return &ValidationError{Fields: map[string]string{"reason": "is required"}}
	})
	app.Get("/fiber", func(ctx *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusConflict, "busy")
	})
	app.Get("/boom", func(ctx *fiber.Ctx) error {
		return assert.AnError
	})

	tests := []struct {
		path    string
		status  int
		message string
	}{
		{"/validation", 400, "Validation failed"},
		{"/fiber", 409, "busy"},
		{"/boom", 500, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body BaseResponse[any]
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.message, body.Message)
		})
	}
}
