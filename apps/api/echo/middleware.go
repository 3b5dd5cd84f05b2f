package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core/roster"
)

const ctxCourseKey = "course"

var errCourseNotInCtx = errors.New("course not found in echo.Context")

// courseMiddleware loads the course named by the :courseID path param.
func courseMiddleware(svc *roster.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			course, err := svc.GetCourse(ctx.Request().Context(), ctx.Param("courseID"))
			if err != nil {
				return errors.Wrap(err, "loading course")
			}
			ctx.Set(ctxCourseKey, course)
			return next(ctx)
		}
	}
}

func getContextCourse(ctx echo.Context) (roster.Course, error) {
	course, ok := ctx.Get(ctxCourseKey).(roster.Course)
	if !ok {
		return roster.Course{}, errCourseNotInCtx
	}
	return course, nil
}
