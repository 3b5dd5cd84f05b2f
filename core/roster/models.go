package roster

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/rollcall/core"
)

type Course struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type Student struct {
	ID         string    `json:"id"`
	RollNumber string    `json:"roll_number"`
	Name       string    `json:"name"`
	Department string    `json:"department"`
	Semester   int       `json:"semester"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

// Entry is one enrolled student of a course.
type Entry struct {
	StudentID   string `json:"student_id"`
	RollNumber  string `json:"roll_number"`
	DisplayName string `json:"display_name"`
	Department  string `json:"department"`
	Semester    int    `json:"semester"`
}

// NewEnrollment contains information needed to enroll a (possibly new) Student into a Course.
type NewEnrollment struct {
	RollNumber string `json:"roll_number" validate:"required,rollnumber"`
	Name       string `json:"name" validate:"required"`
	Department string `json:"department"`
	Semester   int    `json:"semester" validate:"gte=0"`
}

func (ne *NewEnrollment) Validate(validate *validator.Validate) error {
	ne.RollNumber = core.CleanString(ne.RollNumber)
	ne.Name = core.CleanString(ne.Name)
	ne.Department = core.CleanString(ne.Department)
	return validate.Struct(ne)
}
