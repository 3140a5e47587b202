package identity

import (
	"errors"
	"net/http"

	"github.com/hitoshi/portfolio/internal/model"
)

// ClassifyFailure はIdPのエラーをAuthFailureに分類する。
// 既に分類済みのAuthFailureはそのまま返す。
func ClassifyFailure(err error) *model.AuthFailure {
	var failure *model.AuthFailure
	if errors.As(err, &failure) {
		return failure
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		return model.NewAuthFailure(model.AuthFailureUnknown, err)
	}

	switch pe.Code {
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "INVALID_EMAIL", "MISSING_PASSWORD":
		return model.NewAuthFailure(model.AuthFailureInvalidCredentials, err)
	case "EMAIL_NOT_FOUND":
		return model.NewAuthFailure(model.AuthFailureUserNotFound, err)
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return model.NewAuthFailure(model.AuthFailureTooManyRequests, err)
	}

	if pe.Code == "" && pe.StatusCode == http.StatusTooManyRequests {
		return model.NewAuthFailure(model.AuthFailureTooManyRequests, err)
	}
	return model.NewAuthFailure(model.AuthFailureUnknown, err)
}
