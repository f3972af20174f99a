package util

import (
	"exam_platform_backend/internal/model"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	UserID        string         `json:"user_id"`
	Role          model.UserRole `json:"role"`
	InstitutionID string         `json:"institution_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts verified claims into the caller identity used by services.
func (c *Claims) Identity() model.Identity {
	id := model.Identity{ID: c.UserID, Role: c.Role}
	if c.InstitutionID != "" {
		inst := c.InstitutionID
		id.InstitutionID = &inst
	}
	return id
}

func GenerateJWT(identity model.Identity, secret string, expiration time.Duration) (string, error) {
	expirationTime := time.Now().Add(expiration)

	claims := &Claims{
		UserID: identity.ID,
		Role:   identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
		},
	}
	if identity.InstitutionID != nil {
		claims.InstitutionID = *identity.InstitutionID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseJWT(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrTokenInvalidClaims
}

func GetUserFromContext(c *gin.Context) *Claims {
	user, exists := c.Get("user")
	if !exists {
		return nil
	}
	claims, ok := user.(*Claims)
	if !ok {
		return nil
	}
	return claims
}
