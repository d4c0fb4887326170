package http

import (
	"github.com/labstack/echo/v4"

	pkgerrors "github.com/fullmeo/aimastery-billing/pkg/errors"
)

// errorResponse answers {"error", "code"} from pkgerrors.ToHTTPError. 5xx
// answers carry only the generic status text.
func errorResponse(c echo.Context, err error) error {
	he := pkgerrors.ToHTTPError(err)

	body := echo.Map{"error": he.Message}
	if code := pkgerrors.CodeOf(err); code != pkgerrors.ErrInternal {
		body["code"] = code
	}
	return c.JSON(he.Code, body)
}
