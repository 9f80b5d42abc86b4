package response

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	CodeOK              = 0
	CodeBadRequest      = 40000
	CodeUnauthorized    = 40100
	CodeTierForbidden   = 40300
	CodeSourceNotFound  = 40401
	CodeJobNotFound     = 40402
	CodeTooManyRequests = 42900
	CodeQuotaExceeded   = 42901
	CodeInternalServer  = 50000
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// TooManyRequests reports a rate-limited request with a human-readable
// retry hint built from the window remainder.
func TooManyRequests(c *gin.Context, retryAfterHours, retryAfterMinutes int) {
	c.JSON(429, APIResponse{
		Code:    CodeTooManyRequests,
		Message: retryMessage(retryAfterHours, retryAfterMinutes),
	})
}

func retryMessage(hours, minutes int) string {
	msg := "too many requests, please retry in "
	if hours > 0 {
		msg += plural(hours, "hour")
		if minutes > 0 {
			msg += " " + plural(minutes, "minute")
		}
		return msg
	}
	return msg + plural(minutes, "minute")
}

func plural(n int, unit string) string {
	s := strconv.Itoa(n) + " " + unit
	if n != 1 {
		s += "s"
	}
	return s
}
