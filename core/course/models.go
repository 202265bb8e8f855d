package course

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/classroom/core"
)

type EnrollmentStatus string

// Enrollment statuses
const (
	StatusActive    EnrollmentStatus = "active"
	StatusCompleted EnrollmentStatus = "completed"
	StatusDropped   EnrollmentStatus = "dropped"
)

// Course is owned by exactly one teacher.
type Course struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	TeacherID   string    `json:"teacher_id"`
	StartDate   null.Time `json:"start_date"`
	EndDate     null.Time `json:"end_date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func courseFromRecord(rec core.Record) Course {
	return Course{
		ID:          rec.String("id"),
		Title:       rec.String("title"),
		Description: rec.String("description"),
		TeacherID:   rec.String("teacher_id"),
		StartDate:   rec.NullTime("start_date"),
		EndDate:     rec.NullTime("end_date"),
		CreatedAt:   rec.Time("created_at"),
		UpdatedAt:   rec.Time("updated_at"),
	}
}

// Enrollment of a student in a Course. Course is the joined course record.
type Enrollment struct {
	ID         string           `json:"id"`
	StudentID  string           `json:"student_id"`
	CourseID   string           `json:"course_id"`
	EnrolledAt time.Time        `json:"enrolled_at"`
	Progress   int              `json:"progress"`
	Status     EnrollmentStatus `json:"status"`
	Course     Course           `json:"course"`
}

func enrollmentFromRecord(rec core.Record) Enrollment {
	return Enrollment{
		ID:         rec.String("id"),
		StudentID:  rec.String("student_id"),
		CourseID:   rec.String("course_id"),
		EnrolledAt: rec.Time("enrolled_at"),
		Progress:   rec.Int("progress"),
		Status:     EnrollmentStatus(rec.String("status")),
	}
}

// Draft contains information needed to create a new Course.
type Draft struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=5000"`
	TeacherID   string    `json:"teacher_id" validate:"required"`
	StartDate   null.Time `json:"start_date"`
	EndDate     null.Time `json:"end_date"`
}

func (d *Draft) Validate(validate *validator.Validate) error {
	d.Title = core.CleanString(d.Title)
	d.Description = core.CleanString(d.Description)
	d.TeacherID = core.CleanString(d.TeacherID)
	return validate.Struct(d)
}

func (d Draft) record() core.Record {
	rec := core.Record{
		"title":       d.Title,
		"description": d.Description,
		"teacher_id":  d.TeacherID,
	}
	if d.StartDate.Valid {
		rec["start_date"] = d.StartDate.Time.UTC()
	}
	if d.EndDate.Valid {
		rec["end_date"] = d.EndDate.Time.UTC()
	}
	return rec
}

type progressUpdate struct {
	Progress int `json:"progress" validate:"min=0,max=100"`
}
