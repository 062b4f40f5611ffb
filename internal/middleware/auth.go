package middleware

import (
	"net/http"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"chowhub-be/internal/auth"
	"chowhub-be/internal/utils"
)

var jwtKey = []byte(os.Getenv("SECRET_KEY"))

// AuthMiddleware resolves the caller's identity and role from a JWT and
// stashes them on the request context. Anonymous requests pass through;
// handlers decide whether identity is required.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := auth.ExtractAccessToken(r)
		if tokenStr == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
			return jwtKey, nil
		})
		if err != nil || !token.Valid {
			next.ServeHTTP(w, r)
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			ctx := r.Context()
			if uid, ok := claims["user_id"].(string); ok {
				ctx = utils.WithUserID(ctx, uid)
			}
			if role, ok := claims["role"].(string); ok {
				ctx = utils.WithUserRole(ctx, role)
			}
			if email, ok := claims["email"].(string); ok {
				ctx = utils.WithUserEmail(ctx, email)
			}
			r = r.WithContext(ctx)
		}

		next.ServeHTTP(w, r)
	})
}
