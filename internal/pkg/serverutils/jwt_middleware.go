package serverutils

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the caller identity carried by the access token.
type Claims struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// ParseToken verifies an HMAC-signed token and reads the identity claims.
func ParseToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	raw, _ := mc["user_id"].(string)
	userID, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims := &Claims{UserID: userID}
	claims.Email, _ = mc["email"].(string)
	claims.Role, _ = mc["role"].(string)
	return claims, nil
}

// BearerToken reads "Authorization: Bearer <token>".
func BearerToken(ctx *fiber.Ctx) string {
	authHeader := ctx.Get("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func JwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := BearerToken(ctx)
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(401, "Missing token"))
		}

		claims, err := ParseToken(secret, tokenStr)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(401, "Invalid token"))
		}

		ctx.Locals("user_id", claims.UserID)
		ctx.Locals("email", claims.Email)
		ctx.Locals("role", claims.Role)
		return ctx.Next()
	}
}

// AdminOnly must run after JwtMiddleware.
func AdminOnly(ctx *fiber.Ctx) error {
	role, _ := ctx.Locals("role").(string)
	if role == "" {
		return ctx.Status(fiber.StatusForbidden).JSON(ErrorResponse(403, "Access denied: Role missing"))
	}
	if role != "admin" {
		return ctx.Status(fiber.StatusForbidden).JSON(ErrorResponse(403, "Access denied: Admins only"))
	}
	return ctx.Next()
}

// UserID returns the authenticated caller set by JwtMiddleware.
func UserID(ctx *fiber.Ctx) uuid.UUID {
	id, _ := ctx.Locals("user_id").(uuid.UUID)
	return id
}

func UserEmail(ctx *fiber.Ctx) string {
	email, _ := ctx.Locals("email").(string)
	return email
}
