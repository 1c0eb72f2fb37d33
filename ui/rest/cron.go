package rest

import (
	domainCron "github.com/AzielCF/az-autopost/domains/cron"
	pkgError "github.com/AzielCF/az-autopost/pkg/error"
	"github.com/AzielCF/az-autopost/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type Cron struct {
	Service domainCron.IScheduler
}

type cronResult struct {
	Action domainCron.Action   `json:"action"`
	Locked bool                `json:"locked"`
	Entry  domainCron.LogEntry `json:"entry"`
}

func InitRestCron(app fiber.Router, service domainCron.IScheduler) Cron {
	handler := Cron{Service: service}
	app.Get("/cron", handler.Run)
	app.Post("/cron", handler.Run)
	return handler
}

// Run executes the requested action sequence. One action failing does not
// stop the rest of the sequence.
func (handler *Cron) Run(c *fiber.Ctx) error {
	actions, err := domainCron.Sequence(c.Query("action"))
	if err != nil {
		utils.PanicIfNeeded(pkgError.ValidationError(err.Error()))
	}

	results := make([]cronResult, 0, len(actions))
	for _, action := range actions {
		entry, locked, err := handler.Service.RunCronSequence(c.UserContext(), action)
		if err != nil {
			logrus.WithError(err).Errorf("[REST] cron %s could not start", action)
			entry = domainCron.LogEntry{Action: action, Status: domainCron.LogFatalError, Error: err.Error()}
		}
		results = append(results, cronResult{Action: action, Locked: locked, Entry: entry})
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cron action(s) completed",
		Results: results,
	})
}
