package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/roster"
)

type attendanceApi struct {
	rosterSvc *roster.Service
	svc       *attendance.Service
}

func registerAttendanceAPI(g *echo.Group, rosterSvc *roster.Service, svc *attendance.Service) {
	api := attendanceApi{
		rosterSvc: rosterSvc,
		svc:       svc,
	}

	cg := g.Group("/courses/:courseID", courseMiddleware(rosterSvc))
	cg.GET("/roster", api.roster)

	ag := cg.Group("/attendance")
	ag.GET("", api.list)
	ag.POST("", api.take)
	ag.PUT("", api.update)
	ag.POST("/photo", api.takeFromPhoto, middleware.BodyLimit(maxPhotoSize))
	ag.GET("/summary", api.history)

	cg.GET("/students/:studentID/attendance/summary", api.studentSummary)
}

// writeTakeResult answers 207 Multi-Status when part of the batch could not be stored.
func writeTakeResult(ctx echo.Context, res attendance.TakeResult) error {
	if !res.Result.OK() {
		return ctx.JSON(http.StatusMultiStatus, res)
	}
	return ctx.JSON(http.StatusOK, res)
}

// Handlers

func (api *attendanceApi) roster(ctx echo.Context) error {
	course, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	entries, err := api.rosterSvc.Get(ctx.Request().Context(), course.ID)
	if err != nil {
		return errors.Wrap(err, "getting roster")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"course": course, "students": entries})
}

func (api *attendanceApi) take(ctx echo.Context) error {
	course, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	var data attendance.TakeRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to TakeRequest")
	}
	data.CourseID = course.ID

	res, err := api.svc.TakeAttendance(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "taking attendance")
	}
	return writeTakeResult(ctx, res)
}

func (api *attendanceApi) takeFromPhoto(ctx echo.Context) error {
	course, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	file, err := ctx.FormFile("image")
	if err != nil {
		return errImageRequired
	}
	src, err := file.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded image")
	}
	defer src.Close()

	data := attendance.TakeRequest{
		CourseID:    course.ID,
		Date:        ctx.FormValue("date"),
		NotifyEmail: ctx.FormValue("notify_email"),
	}
	res, err := api.svc.RecognizeAndTake(ctx.Request().Context(), data, src, file.Filename)
	if err != nil {
		return errors.Wrap(err, "taking attendance from photo")
	}
	return writeTakeResult(ctx, res)
}

func (api *attendanceApi) update(ctx echo.Context) error {
	course, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	var data attendance.UpdateRecord
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRecord")
	}
	data.CourseID = course.ID

	rec, err := api.svc.UpdateStatus(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "updating attendance")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) list(ctx echo.Context) error {
	course, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	var dr DateRange
	if err = dr.Bind(ctx); err != nil {
		return err
	}

	views, err := api.svc.ListByDate(ctx.Request().Context(), course.ID, dr.From, dr.To)
	if err != nil {
		return errors.Wrap(err, "listing attendance")
	}
	return ctx.JSON(http.StatusOK, views)
}

func (api *attendanceApi) history(ctx echo.Context) error {
	course, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	var asOf AsOf
	if err = asOf.Bind(ctx); err != nil {
		return err
	}

	views, err := api.svc.History(ctx.Request().Context(), course.ID, asOf.Date)
	if err != nil {
		return errors.Wrap(err, "summarizing attendance")
	}
	return ctx.JSON(http.StatusOK, views)
}

func (api *attendanceApi) studentSummary(ctx echo.Context) error {
	course, err := getContextCourse(ctx)
	if err != nil {
		return err
	}
	var asOf AsOf
	if err = asOf.Bind(ctx); err != nil {
		return err
	}

	sum, err := api.svc.StudentSummary(ctx.Request().Context(), course.ID, ctx.Param("studentID"), asOf.Date)
	if err != nil {
		return errors.Wrap(err, "summarizing student attendance")
	}
	return ctx.JSON(http.StatusOK, sum)
}
