package middleware

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"midjourney-adapter/internal/config"
	"midjourney-adapter/internal/models"
)

const (
	UserIDKey = "user_id"

	// ServiceUser is stored under UserIDKey for static bearer token callers.
	ServiceUser = "service"
)

// AuthMiddleware checks the Authorization header when auth.type is
// service_http. The bearer token must equal the configured token or be an
// HS256 JWT signed with the configured secret.
func AuthMiddleware(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Type != config.AuthTypeServiceHTTP {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			unauthorized(c, "invalid authorization header format")
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			unauthorized(c, "empty token")
			return
		}

		// Try URL decoding in case the token was URL-encoded
		if decoded, err := url.QueryUnescape(tokenString); err == nil && decoded != tokenString {
			tokenString = decoded
		}

		if cfg.BearerToken != "" && subtle.ConstantTimeCompare([]byte(tokenString), []byte(cfg.BearerToken)) == 1 {
			c.Set(UserIDKey, ServiceUser)
			c.Next()
			return
		}

		if cfg.JWTSecret == "" || strings.Count(tokenString, ".") != 2 {
			unauthorized(c, "invalid token")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			var errorMsg string
			switch {
			case strings.Contains(err.Error(), "signature is invalid"):
				errorMsg = "token signature is invalid"
			case strings.Contains(err.Error(), "token is expired"):
				errorMsg = "token has expired"
			default:
				errorMsg = err.Error()
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid token", Message: errorMsg})
			return
		}
		if !token.Valid {
			unauthorized(c, "invalid token")
			return
		}

		userID := ServiceUser
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if sub, ok := claims["sub"].(string); ok && sub != "" {
				userID = sub
			}
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: msg})
}
