package serverutils

import (
	"errors"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// Identity is what the proctoring routes need from a token.
type Identity struct {
	UserID string
	Role   string
}

func (i Identity) IsSupervisor() bool {
	return i.Role == RoleInstructor || i.Role == RoleAdmin
}

// ParseToken validates an HMAC-signed token and extracts the identity claims.
func ParseToken(tokenStr string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(os.Getenv("JWT_SECRET")), nil
	})
	if err != nil || !token.Valid {
		return Identity{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid claims")
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return Identity{}, errors.New("token missing user_id")
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = RoleStudent
	}
	return Identity{UserID: userID, Role: role}, nil
}

func JwtMiddleware(ctx *fiber.Ctx) error {
	authHeader := ctx.Get("Authorization")
	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
	}

	id, err := ParseToken(authHeader[7:])
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, err.Error()))
	}

	ctx.Locals("user_id", id.UserID)
	ctx.Locals("role", id.Role)
	return ctx.Next()
}

// CurrentIdentity reads what JwtMiddleware stored on the request.
func CurrentIdentity(ctx *fiber.Ctx) Identity {
	userID, _ := ctx.Locals("user_id").(string)
	role, _ := ctx.Locals("role").(string)
	return Identity{UserID: userID, Role: role}
}

// RequireSupervisor must run after JwtMiddleware.
func RequireSupervisor(ctx *fiber.Ctx) error {
	role, _ := ctx.Locals("role").(string)
	if !(Identity{Role: role}).IsSupervisor() {
		return ctx.Status(fiber.StatusForbidden).JSON(ErrorResponse(fiber.StatusForbidden, "Supervisor role required"))
	}
	return ctx.Next()
}
