// forms/forms.go
package forms

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gewnthar/registers/models"
	"github.com/gewnthar/registers/reconcile"
)

// Kind selects how a field is rendered.
type Kind string

const (
	KindText      Kind = "text"
	KindTextarea  Kind = "textarea"
	KindURL       Kind = "url"
	KindNumber    Kind = "number"
	KindDate      Kind = "date"
	KindDateParts Kind = "date-parts" // separate day, month and year inputs
)

const (
	msgRequired = "This field is required."
	msgURL      = "Invalid URL."
	msgInteger  = "Not a valid integer value."
	msgDate     = "Not a valid date value."
)

// Validator returns an error message for a bad value, or "".
type Validator func(f *Field, value string) string

type descriptor struct {
	kind       Kind
	validators []Validator
}

var datatypes = map[string]descriptor{
	models.DatatypeCurie:    {kind: KindText, validators: []Validator{curie}},
	models.DatatypeString:   {kind: KindText},
	models.DatatypeText:     {kind: KindTextarea},
	models.DatatypeURL:      {kind: KindURL, validators: []Validator{validURL}},
	models.DatatypeDatetime: {kind: KindDate, validators: []Validator{validDate}},
	models.DatatypeInteger:  {kind: KindNumber, validators: []Validator{integer}},
}

// Fields that are set by the system rather than typed in.
var skipped = map[string]bool{
	"entity":     true,
	"end-date":   true,
	"entry-date": true,
	"prefix":     true,
}

// Options tune a form for its page.
type Options struct {
	EditNotes       bool // require edit notes, used when editing
	SkipReference   bool // reference is optional
	ReferenceLocked bool // render reference read only
	EndDateOnly     bool // archive form
}

// Field is one rendered input.
type Field struct {
	Name        string
	Label       string
	Datatype    string
	Description string
	Kind        Kind
	Required    bool
	ReadOnly    bool
	Value       string
	Parts       reconcile.DateParts
	Errors      []string

	validators []Validator
}

// Form is the per-request list of inputs built from a dataset schema.
type Form struct {
	Fields    []*Field
	EditNotes *Field
}

// Build creates the inputs for fields in display order.
func Build(fields []models.Field, opts Options) *Form {
	form := &Form{}
	for _, mf := range models.SortFields(fields) {
		if opts.EndDateOnly {
			if mf.Field == "end-date" {
				form.Fields = append(form.Fields, newField(mf, opts))
			}
			continue
		}
		if skipped[mf.Field] {
			continue
		}
		form.Fields = append(form.Fields, newField(mf, opts))
	}
	if opts.EditNotes {
		form.EditNotes = &Field{
			Name:       "edit_notes",
			Label:      "Edit notes",
			Kind:       KindTextarea,
			Required:   true,
			validators: []Validator{required},
		}
	}
	return form
}

func newField(mf models.Field, opts Options) *Field {
	d, ok := datatypes[mf.Datatype]
	if !ok {
		d = datatypes[models.DatatypeString]
	}
	f := &Field{
		Name:        mf.Field,
		Label:       mf.Name,
		Datatype:    mf.Datatype,
		Description: mf.Description,
		Kind:        d.kind,
	}
	if f.Label == "" {
		f.Label = mf.Field
	}
	if mf.Field == "start-date" {
		f.Kind = KindDateParts
	}

	switch {
	case mf.Datatype == models.DatatypeCurie:
	case mf.Field == "name" || (mf.Field == "reference" && !opts.SkipReference):
		f.Required = true
	case strings.Contains(mf.Field, "url") && mf.Datatype != models.DatatypeURL:
		f.Kind = KindURL
		f.validators = append(f.validators, validURL)
	}
	if f.Required {
		f.validators = append(f.validators, required)
	}
	f.validators = append(f.validators, d.validators...)

	if mf.Field == "reference" && opts.ReferenceLocked {
		f.ReadOnly = true
		f.Required = false
		f.validators = nil
	}
	return f
}

// Field returns the named input, or nil.
func (f *Form) Field(name string) *Field {
	for _, field := range f.Fields {
		if field.Name == name {
			return field
		}
	}
	return nil
}

// Bind copies posted values into the form.
func (f *Form) Bind(values url.Values) {
	for _, field := range f.Fields {
		if field.Kind == KindDateParts {
			field.Parts = reconcile.DateParts{
				Day:   strings.TrimSpace(values.Get(field.Name + "-day")),
				Month: strings.TrimSpace(values.Get(field.Name + "-month")),
				Year:  strings.TrimSpace(values.Get(field.Name + "-year")),
			}
			continue
		}
		field.Value = strings.TrimSpace(values.Get(field.Name))
	}
	if f.EditNotes != nil {
		f.EditNotes.Value = strings.TrimSpace(values.Get(f.EditNotes.Name))
	}
}

// Populate fills the form from an existing record.
func (f *Form) Populate(r *models.Record) {
	values := r.ToDict()
	for _, field := range f.Fields {
		if field.Kind == KindDateParts {
			if d := r.StartDate; d != nil && field.Name == "start-date" {
				field.Parts = reconcile.DateParts{
					Year:  strconv.Itoa(d.Year()),
					Month: strconv.Itoa(int(d.Month())),
					Day:   strconv.Itoa(d.Day()),
				}
			}
			continue
		}
		field.Value = values[field.Name]
	}
}

// Validate runs every validator and records the messages on the fields.
func (f *Form) Validate() bool {
	ok := true
	for _, field := range f.all() {
		field.Errors = nil
		value := field.Value
		if field.Kind == KindDateParts {
			if _, err := field.Parts.Date(); err != nil {
				field.Errors = append(field.Errors, msgDate)
			}
			if field.Required && field.Parts.Year == "" {
				field.Errors = append(field.Errors, msgRequired)
			}
		} else {
			for _, v := range field.validators {
				if msg := v(field, value); msg != "" {
					field.Errors = append(field.Errors, msg)
				}
			}
		}
		if len(field.Errors) > 0 {
			ok = false
		}
	}
	return ok
}

// Errors maps field names to their messages.
func (f *Form) Errors() map[string][]string {
	errs := map[string][]string{}
	for _, field := range f.all() {
		if len(field.Errors) > 0 {
			errs[field.Name] = field.Errors
		}
	}
	return errs
}

// Values returns the submitted data in the shape reconcile.NewPayload reads.
func (f *Form) Values() map[string]string {
	values := map[string]string{}
	for _, field := range f.Fields {
		if field.ReadOnly {
			continue
		}
		if field.Kind == KindDateParts {
			values["year"] = field.Parts.Year
			values["month"] = field.Parts.Month
			values["day"] = field.Parts.Day
			continue
		}
		values[field.Name] = field.Value
	}
	if f.EditNotes != nil {
		values["edit_notes"] = f.EditNotes.Value
	}
	return values
}

func (f *Form) all() []*Field {
	if f.EditNotes == nil {
		return f.Fields
	}
	return append(append([]*Field(nil), f.Fields...), f.EditNotes)
}

func required(_ *Field, value string) string {
	if value == "" {
		return msgRequired
	}
	return ""
}

func curie(f *Field, value string) string {
	if value == "" {
		return ""
	}
	if len(strings.Split(value, ":")) != 2 {
		return fmt.Sprintf("%s is a curie and should be in the format 'namespace:identifier'", f.Name)
	}
	return ""
}

func validURL(_ *Field, value string) string {
	if value == "" {
		return ""
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return msgURL
	}
	return ""
}

func validDate(_ *Field, value string) string {
	if _, err := models.ParseDate(value); err != nil {
		return msgDate
	}
	return ""
}

func integer(_ *Field, value string) string {
	if value == "" {
		return ""
	}
	if _, err := strconv.ParseInt(value, 10, 64); err != nil {
		return msgInteger
	}
	return ""
}
