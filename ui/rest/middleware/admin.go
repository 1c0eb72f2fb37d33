package middleware

import (
	"crypto/subtle"

	pkgError "github.com/AzielCF/az-autopost/pkg/error"
	"github.com/AzielCF/az-autopost/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
)

const AdminPasswordHeader = "X-Admin-Password"

// AdminAuth accepts the admin password as the X-Admin-Password header, the
// pw query parameter or the password of HTTP basic auth. When cronHeader is
// set, requests carrying that header are let through as platform cron
// triggers. An empty password rejects everything else.
func AdminAuth(password, cronHeader string) fiber.Handler {
	matches := func(candidate string) bool {
		return password != "" && subtle.ConstantTimeCompare([]byte(candidate), []byte(password)) == 1
	}

	return basicauth.New(basicauth.Config{
		Next: func(c *fiber.Ctx) bool {
			if c.Method() == fiber.MethodOptions {
				return true
			}
			if cronHeader != "" && c.Get(cronHeader) != "" {
				return true
			}
			if pw := c.Get(AdminPasswordHeader); pw != "" && matches(pw) {
				return true
			}
			return matches(c.Query("pw"))
		},
		Authorizer: func(_, pass string) bool {
			return matches(pass)
		},
		Unauthorized: func(c *fiber.Ctx) error {
			err := pkgError.UnauthorizedError("admin password required")
			return c.Status(err.StatusCode()).JSON(utils.ResponseData{
				Status:  err.StatusCode(),
				Code:    err.ErrCode(),
				Message: err.Error(),
			})
		},
	})
}
