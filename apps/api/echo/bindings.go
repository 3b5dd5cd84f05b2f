package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
)

var (
	fromParam = "from"
	toParam   = "to"
	asOfParam = "as_of"
)

// DateRange is the [from, to) window of a listing; zero bounds are open.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (dr *DateRange) Bind(ctx echo.Context) error {
	var err error
	if dr.From, err = dateParam(ctx, fromParam); err != nil {
		return err
	}
	if dr.To, err = dateParam(ctx, toParam); err != nil {
		return err
	}
	if !dr.From.IsZero() && !dr.To.IsZero() && !dr.From.Before(dr.To) {
		return core.NewValidationError(nil, core.FieldError{Field: toParam, Error: "to must be after from"})
	}
	return nil
}

// AsOf is the inclusive cut-off day of a summary; zero means today.
type AsOf struct {
	Date time.Time
}

func (a *AsOf) Bind(ctx echo.Context) error {
	var err error
	a.Date, err = dateParam(ctx, asOfParam)
	return err
}

func dateParam(ctx echo.Context, name string) (time.Time, error) {
	val := core.CleanString(ctx.QueryParam(name))
	if val == "" {
		return time.Time{}, nil
	}
	date, err := attendance.ParseDate(val)
	if err != nil {
		return time.Time{}, core.NewValidationError(err, core.FieldError{Field: name, Error: err.Error()})
	}
	return date, nil
}
