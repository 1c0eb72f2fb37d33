package rest

import (
	"time"

	domainTracking "github.com/AzielCF/az-autopost/domains/tracking"
	pkgError "github.com/AzielCF/az-autopost/pkg/error"
	"github.com/AzielCF/az-autopost/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const (
	cookiePID = "af_pid"
	cookieLP  = "af_lp"
)

type Tracking struct {
	Service    domainTracking.ITrackingUsecase
	CookieDays int
}

// InitRestTracking mounts the public redirect on root and the conversion
// endpoint on api.
func InitRestTracking(root, api fiber.Router, service domainTracking.ITrackingUsecase, cookieDays int) Tracking {
	handler := Tracking{Service: service, CookieDays: cookieDays}
	root.Get("/go", handler.Click)
	api.Get("/cv", handler.Conversion)
	api.Post("/cv", handler.Conversion)
	return handler
}

func (handler *Tracking) setCookie(c *fiber.Ctx, name, value string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int((time.Duration(handler.CookieDays) * 24 * time.Hour).Seconds()),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (handler *Tracking) Click(c *fiber.Ctx) error {
	var request domainTracking.ClickRequest
	if err := c.QueryParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}
	request.UserAgent = c.Get(fiber.HeaderUserAgent)
	request.Referer = c.Get(fiber.HeaderReferer)
	request.IP = c.IP()

	response, err := handler.Service.Click(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	handler.setCookie(c, cookiePID, response.PostID)
	handler.setCookie(c, cookieLP, response.LPID)
	return c.Redirect(response.RedirectURL, fiber.StatusFound)
}

// Conversion accepts query or body parameters. A missing pid falls back to
// the cookie set by the redirect.
func (handler *Tracking) Conversion(c *fiber.Ctx) error {
	var request domainTracking.ConversionRequest
	if err := c.QueryParser(&request); err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}
	if c.Method() == fiber.MethodPost && len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
		}
	}
	if request.PostID == "" {
		request.PostID = c.Cookies(cookiePID)
	}
	if request.LP == "" {
		request.LP = c.Cookies(cookieLP)
	}
	request.UserAgent = c.Get(fiber.HeaderUserAgent)
	request.Referer = c.Get(fiber.HeaderReferer)
	request.IP = c.IP()

	err := handler.Service.Conversion(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "CV logged for post " + request.PostID,
		Results: map[string]any{"pid": request.PostID, "revenue": request.Revenue},
	})
}
