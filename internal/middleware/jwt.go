package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/officehub-api/internal/utils"
)

const identityLocal = "identity"

// ErrInvalidToken is returned when a credential cannot be verified.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated principal behind a request or socket.
type Identity struct {
	UserID      uint
	Roles       []string
	Permissions []string
}

// HasRole reports whether the identity carries the role, case-insensitively.
func (i Identity) HasRole(role string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	for _, candidate := range i.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

// TokenVerifier turns a bearer credential into an identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// JWTVerifier validates HMAC signed tokens.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier constructs a verifier for tokens signed with secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token, then maps its claims onto an Identity.
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Identity{}, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	userID := extractUserIDFromClaims(claims)
	if userID == nil || *userID == 0 {
		return Identity{}, ErrInvalidToken
	}

	return Identity{
		UserID:      *userID,
		Roles:       extractStrings(claims, "role", "roles"),
		Permissions: extractStrings(claims, "permissions", "perms"),
	}, nil
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(authorization string) string {
	const bearer = "bearer "
	if len(authorization) < len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
		return ""
	}
	return strings.TrimSpace(authorization[len(bearer):])
}

// JWTProtected returns a middleware that validates bearer tokens and binds the identity to the request.
func JWTProtected(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authorization := c.Get("Authorization")
		if authorization == "" {
			return utils.SendErrorKind(c, fiber.StatusUnauthorized, "unauthenticated", "authorization header missing")
		}

		tokenString := BearerToken(authorization)
		if tokenString == "" {
			return utils.SendErrorKind(c, fiber.StatusUnauthorized, "unauthenticated", "invalid authorization header")
		}

		identity, err := verifier.Verify(c.UserContext(), tokenString)
		if err != nil {
			return utils.SendErrorKind(c, fiber.StatusUnauthorized, "unauthenticated", "invalid token")
		}

		SetIdentity(c, identity)
		return c.Next()
	}
}

// SetIdentity binds an identity to the request locals.
func SetIdentity(c *fiber.Ctx, identity Identity) {
	c.Locals(identityLocal, identity)
	c.Locals("user_id", identity.UserID)
}

// IdentityFrom returns the identity bound by JWTProtected.
func IdentityFrom(c *fiber.Ctx) (Identity, bool) {
	identity, ok := c.Locals(identityLocal).(Identity)
	return identity, ok && identity.UserID != 0
}

func extractUserIDFromClaims(claims jwt.MapClaims) *uint {
	keys := []string{"sub", "user_id", "id"}
	for _, key := range keys {
		if value, ok := claims[key]; ok {
			if normalized, err := normalizeUserID(value); err == nil {
				return &normalized
			}
		}
	}

	return nil
}

func normalizeUserID(value interface{}) (uint, error) {
	switch v := value.(type) {
	case float64:
		if v < 0 {
			return 0, fmt.Errorf("invalid subject")
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, err
		}
		return uint(parsed), nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("invalid subject")
		}
		return uint(v), nil
	default:
		return 0, fmt.Errorf("unsupported subject type")
	}
}

func extractStrings(claims jwt.MapClaims, keys ...string) []string {
	var out []string
	for _, key := range keys {
		value, ok := claims[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			out = appendNormalized(out, strings.Split(v, ",")...)
		case []interface{}:
			for _, item := range v {
				if str, ok := item.(string); ok {
					out = appendNormalized(out, str)
				}
			}
		}
	}
	return out
}

func appendNormalized(out []string, values ...string) []string {
	for _, value := range values {
		normalized := strings.ToLower(strings.TrimSpace(value))
		if normalized != "" {
			out = append(out, normalized)
		}
	}
	return out
}
