package utils

import (
	pkgError "github.com/AzielCF/az-autopost/pkg/error"
	"github.com/sirupsen/logrus"
)

type ResponseData struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

// PanicIfNeeded panics with err so the Recovery middleware can turn it into a response.
// Errors that are not GenericError are wrapped as InternalServerError.
func PanicIfNeeded(err any) {
	if err == nil {
		return
	}
	switch e := err.(type) {
	case pkgError.GenericError:
		panic(e)
	case error:
		logrus.WithError(e).Debug("[REST] request failed")
		panic(pkgError.InternalServerError(e.Error()))
	default:
		panic(err)
	}
}
