package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes.
const (
	CodeRouteNotFound           = "ROUTE_NOT_FOUND"
	CodeDispatchNotFound        = "DISPATCH_NOT_FOUND"
	CodeStopNotFound            = "STOP_NOT_FOUND"
	CodeDuplicateDispatch       = "DUPLICATE_DISPATCH"
	CodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"
	CodeDriverUnavailable       = "DRIVER_UNAVAILABLE"
	CodeValidation              = "VALIDATION_ERROR"
	CodeConcurrentUpdate        = "CONCURRENT_UPDATE"
)

// Error is an expected, caller-recoverable lifecycle failure. No state has
// been changed when one is returned.
type Error struct {
	Code    string   `json:"code"`
	Status  int      `json:"-"`
	Message string   `json:"message"`
	Allowed []string `json:"allowed,omitempty"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// IsCode reports whether err is a lifecycle error with the given code.
func IsCode(err error, code string) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == code
}

// HTTPStatus maps err to a response status; unknown errors are 500.
func HTTPStatus(err error) int {
	var de *Error
	if errors.As(err, &de) {
		return de.Status
	}
	return http.StatusInternalServerError
}

func errRouteNotFound(id int64) *Error {
	return &Error{Code: CodeRouteNotFound, Status: http.StatusNotFound, Message: fmt.Sprintf("route %d not found", id)}
}

func errDispatchNotFound(id int64) *Error {
	return &Error{Code: CodeDispatchNotFound, Status: http.StatusNotFound, Message: fmt.Sprintf("dispatch event %d not found", id)}
}

func errStopNotFound(dispatchID, stopID int64) *Error {
	return &Error{Code: CodeStopNotFound, Status: http.StatusNotFound,
		Message: fmt.Sprintf("stop %d not found on dispatch event %d", stopID, dispatchID)}
}

func errDuplicate(routeID int64, date string) *Error {
	return &Error{Code: CodeDuplicateDispatch, Status: http.StatusConflict,
		Message: fmt.Sprintf("route %d already has a dispatch event on %s", routeID, date)}
}

func errDriverUnavailable(driverID int64, date string) *Error {
	return &Error{Code: CodeDriverUnavailable, Status: http.StatusBadRequest,
		Message: fmt.Sprintf("driver %d is not available on %s", driverID, date)}
}

func errValidation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func errConcurrentUpdate(id int64) *Error {
	return &Error{Code: CodeConcurrentUpdate, Status: http.StatusConflict,
		Message: fmt.Sprintf("dispatch event %d kept changing; retry", id)}
}

func errTransition(from, to string) *Error {
	allowed := AllowedTransitions(from)
	msg := fmt.Sprintf("cannot change status from %s to %s; allowed: %s", from, to, strings.Join(allowed, ", "))
	if len(allowed) == 0 {
		msg = fmt.Sprintf("dispatch event is %s and cannot change status", from)
	}
	return &Error{Code: CodeInvalidStatusTransition, Status: http.StatusBadRequest, Message: msg, Allowed: allowed}
}
