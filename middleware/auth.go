package middleware

import (
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/pepocero/gestioneducativa-sub000/security"
)

type Claims struct {
	UserID        uuid.UUID `json:"user_id"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	InstitutionID uuid.UUID `json:"institution_id"`
	jwt.RegisteredClaims
}

func getJWTSecret() string {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "gestioneducativa-default-secret-change-in-production"
	}
	return secret
}

func GenerateToken(userID uuid.UUID, email, role string, institutionID uuid.UUID) (string, error) {
	claims := Claims{
		UserID:        userID,
		Email:         email,
		Role:          role,
		InstitutionID: institutionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(getJWTSecret()))
}

func parseToken(tokenString string) (*Claims, bool) {
	if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
		tokenString = tokenString[7:]
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(getJWTSecret()), nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}
	claims, ok := token.Claims.(*Claims)
	return claims, ok
}

func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Get("Authorization")
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization token",
			})
		}

		claims, ok := parseToken(tokenString)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("email", claims.Email)
		c.Locals("role", claims.Role)
		c.Locals("institution_id", claims.InstitutionID)

		return c.Next()
	}
}

// RequireRole guards an endpoint behind a single role. Runs after
// Protected.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if r, ok := c.Locals("role").(string); !ok || r != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient permissions",
			})
		}
		return c.Next()
	}
}

func GetUserID(c *fiber.Ctx) uuid.UUID {
	userID, ok := c.Locals("user_id").(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return userID
}

func GetInstitutionID(c *fiber.Ctx) uuid.UUID {
	id, ok := c.Locals("institution_id").(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

// CallerIdentity builds the guard-layer identity for this request. It
// works for both authenticated and anonymous traffic: a valid bearer
// token keys the caller by user id, everything else by client address.
func CallerIdentity(c *fiber.Ctx) security.Identity {
	id := security.Identity{
		IPAddress: ClientIP(c),
		UserAgent: c.Get("User-Agent"),
	}
	if userID, ok := c.Locals("user_id").(uuid.UUID); ok {
		id.UserID = userID
		return id
	}
	if tokenString := c.Get("Authorization"); tokenString != "" {
		if claims, ok := parseToken(tokenString); ok {
			id.UserID = claims.UserID
		}
	}
	return id
}
