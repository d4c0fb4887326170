package errors

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ToHTTPStatus converts an error code to an HTTP status.
func ToHTTPStatus(code string) int {
	httpStatus, _ := GetCodeMapping(code)
	return httpStatus
}

// ToHTTPError converts err into an echo HTTP error. Client errors keep the
// full error text; server errors carry only the generic status text so
// wrapped causes never reach the response.
func ToHTTPError(err error) *echo.HTTPError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if !As(err, &appErr) {
		var echoErr *echo.HTTPError
		if As(err, &echoErr) {
			return echoErr
		}
	}

	status := ToHTTPStatus(CodeOf(err))
	if status >= http.StatusInternalServerError {
		return echo.NewHTTPError(status, http.StatusText(status))
	}
	return echo.NewHTTPError(status, err.Error())
}
