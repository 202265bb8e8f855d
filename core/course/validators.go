package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/classroom/core"
)

var (
	endDateTag  = "enddate"
	endDateText = "end date cannot be before the start date"
)

// InitValidators registers the course validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(draftStructValidation, Draft{})
	core.RegisterCustomTranslation(validate, translator, endDateTag, endDateText)
}

// draftStructValidation checks that a Course does not end before it starts
func draftStructValidation(sl validator.StructLevel) {
	if d, ok := sl.Current().Interface().(Draft); ok {
		if d.StartDate.Valid && d.EndDate.Valid && d.EndDate.Time.Before(d.StartDate.Time) {
			sl.ReportError(d.EndDate, "end_date", "EndDate", endDateTag, "")
		}
	}
}
