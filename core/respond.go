package core

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// All responses share the envelope {"code", "message", "data"}. Code mirrors
// the HTTP status so clients can branch on the body alone.

// respondOK sends a success envelope with data.
func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

// respondError sends a failure envelope with a public message and no data.
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

// respondFailure maps a pipeline error onto the envelope. Wrapped internal
// causes (store errors, crypto errors) are reduced to a fixed public message.
func respondFailure(c *gin.Context, err error) {
	status, message := failureStatus(err)
	respondError(c, status, message)
}

func failureStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized, "token expired, please log in again"
	case errors.Is(err, ErrTokenSignature):
		return http.StatusUnauthorized, "token signature invalid"
	case errors.Is(err, ErrTokenMalformed):
		return http.StatusUnauthorized, "token malformed"
	case errors.Is(err, ErrIdentityNotFound):
		return http.StatusUnauthorized, "account no longer exists"
	case errors.Is(err, ErrAccountDisabled):
		return http.StatusUnauthorized, "account is disabled"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "insufficient privileges"
	case errors.Is(err, ErrTooFrequent):
		return http.StatusTooManyRequests, "requested too frequently, try again later"
	case errors.Is(err, ErrChallengeExpired):
		return http.StatusBadRequest, "captcha expired, request a new one"
	case errors.Is(err, ErrChallengeMismatch):
		return http.StatusBadRequest, "captcha incorrect, request a new one"
	case errors.Is(err, ErrUnknownBusinessType):
		return http.StatusBadRequest, "unknown business type"
	case errors.Is(err, ErrRecipientNotRegistered):
		return http.StatusBadRequest, "email address is not registered"
	case errors.Is(err, ErrDispatchFailed):
		return http.StatusInternalServerError, "failed to send mail, try again later"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
