package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/chat-ticketing/internal/utils"
)

// AdminAuthConfig lists the accepted admin credentials.  Any of them may
// be empty; with all of them empty every admin request is refused.
type AdminAuthConfig struct {
	Token     string // compared in constant time with X-Admin-Token
	TokenHash string // bcrypt hash checked against X-Admin-Token
	JWTSecret string // verifies Bearer tokens
	// Phones are admin numbers in digits-only form.  A bearer token whose
	// subject is one of them passes even without role ADMIN.
	Phones []string
}

func (cfg AdminAuthConfig) isAdminPhone(subject string) bool {
	for _, p := range cfg.Phones {
		if p != "" && p == subject {
			return true
		}
	}
	return false
}

// AdminSubjectKey is the context key holding the authenticated admin.
const AdminSubjectKey = "admin_subject"

// AdminAuth guards the event write routes.  A request passes with a valid
// X-Admin-Token header, an ADMIN bearer token or a bearer token issued to
// an allow-listed phone.
func AdminAuth(cfg AdminAuthConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if tok := strings.TrimSpace(req.Header.Get("X-Admin-Token")); tok != "" {
				if cfg.Token != "" && subtle.ConstantTimeCompare([]byte(tok), []byte(cfg.Token)) == 1 {
					c.Set(AdminSubjectKey, "token")
					return next(c)
				}
				if cfg.TokenHash != "" && utils.VerifySecret(cfg.TokenHash, tok) {
					c.Set(AdminSubjectKey, "token")
					return next(c)
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "error": "invalid admin token"})
			}

			auth := req.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "error": "missing admin credentials"})
			}
			claims, err := utils.ParseAccessToken(cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"ok": false, "error": "invalid token"})
			}
			if claims.Role != utils.RoleAdmin && !cfg.isAdminPhone(claims.Subject) {
				return c.JSON(http.StatusForbidden, echo.Map{"ok": false, "error": "forbidden"})
			}
			c.Set(AdminSubjectKey, claims.Subject)
			return next(c)
		}
	}
}
