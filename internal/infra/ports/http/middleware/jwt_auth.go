package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/qrave1/CareCall/internal/infra/appctx"
)

// IdentityClaims - токен выпускает внешний identity модуль, здесь он только проверяется
type IdentityClaims struct {
	jwt.RegisteredClaims

	// UID - идентификатор пользователя, так его подписывает identity модуль.
	// RegisteredClaims.ID занят под jti
	UID string `json:"id,omitempty"`

	// Role - роль пользователя в системе (doctor, patient, asha)
	Role string `json:"role,omitempty"`
}

// UserID возвращает id, а для токенов со стандартными claims sub
func (c *IdentityClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}

	return c.Subject
}

func JWTAuthMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := tokenFromRequest(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing or malformed jwt"})
			}

			claims, err := ParseIdentityToken(raw, secret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or expired jwt"})
			}

			userID := claims.UserID()
			if userID == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing user id"})
			}

			c.SetRequest(
				c.Request().WithContext(
					appctx.WithIdentity(c.Request().Context(), appctx.Identity{UserID: userID, Role: claims.Role}),
				),
			)

			return next(c)
		}
	}
}

func ParseIdentityToken(raw, secret string) (*IdentityClaims, error) {
	token, err := jwt.ParseWithClaims(raw, &IdentityClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}

		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// tokenFromRequest: cookie jwt как в браузере, Authorization: Bearer для headless клиентов
func tokenFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie("jwt"); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}

	return ""
}
