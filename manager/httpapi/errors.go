package httpapi

import (
	"net/http"

	"github.com/meshkit/meshkit/api"
)

var statusByCode = map[api.Code]int{
	api.CodeInvalidArgument:    http.StatusBadRequest,
	api.CodeUnauthenticated:    http.StatusUnauthorized,
	api.CodeNotFound:           http.StatusNotFound,
	api.CodeAlreadyExists:      http.StatusConflict,
	api.CodeFailedPrecondition: http.StatusConflict,
	api.CodeResourceExhausted:  http.StatusConflict,
	api.CodeAlreadyConsumed:    http.StatusConflict,
	api.CodeExpired:            http.StatusGone,
	api.CodeRateLimited:        http.StatusTooManyRequests,
	api.CodeUnavailable:        http.StatusServiceUnavailable,
	api.CodeInternal:           http.StatusInternalServerError,
}

// HTTPStatus returns the HTTP status for an error code.
func HTTPStatus(code api.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// codeForStatus is the reverse mapping used by clients when a response has
// no structured body.
func codeForStatus(status int) api.Code {
	switch status {
	case http.StatusBadRequest:
		return api.CodeInvalidArgument
	case http.StatusUnauthorized:
		return api.CodeUnauthenticated
	case http.StatusNotFound:
		return api.CodeNotFound
	case http.StatusConflict:
		return api.CodeFailedPrecondition
	case http.StatusGone:
		return api.CodeExpired
	case http.StatusTooManyRequests:
		return api.CodeRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return api.CodeUnavailable
	}
	return api.CodeInternal
}

// apiError turns any error into the structured form sent to callers.
// Errors without a code are internal and their text is not exposed.
func apiError(err error) *api.Error {
	code := api.CodeOf(err)
	if code == api.CodeUnknown {
		return &api.Error{Code: api.CodeInternal, Message: "internal error"}
	}
	return &api.Error{Code: code, Message: api.MessageOf(err)}
}
