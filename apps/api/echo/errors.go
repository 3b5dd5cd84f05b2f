package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/roster"
)

var (
	errImageRequired    = echo.NewHTTPError(http.StatusBadRequest, "image is required")
	errNoClassifier     = echo.NewHTTPError(http.StatusServiceUnavailable, "face recognition is not configured")
	errDuplicateRollNum = echo.NewHTTPError(http.StatusConflict, "course roster has duplicate roll numbers")
)

// domainHTTPError maps domain sentinel errors to their HTTP error, nil when err is not one of them.
func domainHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, roster.ErrCourseNotFound):
		return echo.NewHTTPError(http.StatusNotFound, roster.ErrCourseNotFound.Error())
	case errors.Is(err, roster.ErrStudentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, roster.ErrStudentNotFound.Error())
	case errors.Is(err, attendance.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, attendance.ErrNotFound.Error())
	case errors.Is(err, roster.ErrDuplicateRollNumber):
		return errDuplicateRollNum
	case errors.Is(err, attendance.ErrNoClassifier):
		return errNoClassifier
	}
	return nil
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		if herr := domainHTTPError(err); herr != nil {
			err = herr
		}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			message = core.TranslateErrors(origErr, translator)
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			logger.Error(msg, errors.Wrap(err, ctx.Request().Method+" "+ctx.Path()))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
