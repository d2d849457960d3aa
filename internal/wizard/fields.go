// internal/wizard/fields.go
package wizard

import (
	"math"
	"strconv"
	"strings"

	apperrors "loan-origination/internal/common/errors"
	"loan-origination/internal/models"
)

// FieldPath is the dotted wire name of a form field, e.g. "co_borrower_info.employer_name".
type FieldPath string

// PathHasCoBorrower is the co-borrower toggle. It is not a Field because flipping it
// changes the shape of the form.
const PathHasCoBorrower FieldPath = "has_co_borrower"

func hasPrefix(p FieldPath, prefix string) bool {
	return strings.HasPrefix(string(p), prefix)
}

// Field is a typed accessor for one form value. ref returns nil when the
// owning section is absent.
type Field[T any] struct {
	Path  FieldPath
	ref   func(*models.FormData) *T
	parse func(string) (T, error)
}

// Get reads the value; ok is false when the section is absent.
func (f Field[T]) Get(v *models.FormData) (val T, ok bool) {
	p := f.ref(v)
	if p == nil {
		return val, false
	}
	return *p, true
}

// Set writes the value and refreshes derived fields.
func (f Field[T]) Set(v *models.FormData, val T) error {
	p := f.ref(v)
	if p == nil {
		return apperrors.NewFieldUnavailableError(string(f.Path))
	}
	*p = val
	v.Recompute()
	return nil
}

// binding erases T so the raw-string change handler can look fields up by path.
type binding interface {
	path() FieldPath
	setRaw(v *models.FormData, raw string) (parseErr string, err error)
}

func (f Field[T]) path() FieldPath { return f.Path }

func (f Field[T]) setRaw(v *models.FormData, raw string) (string, error) {
	if f.ref(v) == nil {
		return "", apperrors.NewFieldUnavailableError(string(f.Path))
	}
	val, err := f.parse(raw)
	if err != nil {
		return err.Error(), nil
	}
	return "", f.Set(v, val)
}

type parseError string

func (e parseError) Error() string { return string(e) }

func parseString(raw string) (string, error) { return raw, nil }

func parseAmount(raw string) (float64, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	raw = strings.TrimPrefix(raw, "$")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, parseError("Must be a number")
	}
	return n, nil
}

func parseInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, parseError("Must be a whole number")
	}
	return n, nil
}

var registry = map[FieldPath]binding{}

func register[T any](f Field[T]) Field[T] {
	registry[f.Path] = f
	return f
}

func text(path FieldPath, ref func(*models.FormData) *string) Field[string] {
	return register(Field[string]{Path: path, ref: ref, parse: parseString})
}

func amount(path FieldPath, ref func(*models.FormData) *float64) Field[float64] {
	return register(Field[float64]{Path: path, ref: ref, parse: parseAmount})
}

func coText(path FieldPath, ref func(*models.CoBorrowerInfo) *string) Field[string] {
	return text(path, func(v *models.FormData) *string {
		if c := v.CoBorrowerInfo(); c != nil {
			return ref(c)
		}
		return nil
	})
}

// Borrower fields.
var (
	BorrowerFirstName  = text("borrower_info.first_name", func(v *models.FormData) *string { return &v.BorrowerInfo.FirstName })
	BorrowerMiddleName = text("borrower_info.middle_name", func(v *models.FormData) *string { return &v.BorrowerInfo.MiddleName })
	BorrowerLastName   = text("borrower_info.last_name", func(v *models.FormData) *string { return &v.BorrowerInfo.LastName })
	BorrowerEmail      = text("borrower_info.email", func(v *models.FormData) *string { return &v.BorrowerInfo.Email })
	BorrowerPhone      = text("borrower_info.phone", func(v *models.FormData) *string { return &v.BorrowerInfo.Phone })
	BorrowerBirthDate  = text("borrower_info.date_of_birth", func(v *models.FormData) *string { return &v.BorrowerInfo.DateOfBirth })
	BorrowerStreet     = text("borrower_info.address.street", func(v *models.FormData) *string { return &v.BorrowerInfo.Address.Street })
	BorrowerCity       = text("borrower_info.address.city", func(v *models.FormData) *string { return &v.BorrowerInfo.Address.City })
	BorrowerState      = text("borrower_info.address.state", func(v *models.FormData) *string { return &v.BorrowerInfo.Address.State })
	BorrowerZipCode    = text("borrower_info.address.zip_code", func(v *models.FormData) *string { return &v.BorrowerInfo.Address.ZipCode })
)

// Employment fields.
var (
	EmploymentType         = text("employment_info.employment_type", func(v *models.FormData) *string { return &v.EmploymentInfo.EmploymentType })
	EmploymentEmployerName = text("employment_info.employer_name", func(v *models.FormData) *string { return &v.EmploymentInfo.EmployerName })
	EmploymentJobTitle     = text("employment_info.job_title", func(v *models.FormData) *string { return &v.EmploymentInfo.JobTitle })
	EmploymentAnnualIncome = amount("employment_info.annual_income", func(v *models.FormData) *float64 { return &v.EmploymentInfo.AnnualIncome })
	EmploymentYears        = register(Field[int]{
		Path:  "employment_info.years_employed",
		ref:   func(v *models.FormData) *int { return &v.EmploymentInfo.YearsEmployed },
		parse: parseInt,
	})
)

// Co-borrower fields. Writes fail with FIELD_UNAVAILABLE while has_co_borrower is false.
var (
	CoBorrowerFirstName      = coText("co_borrower_info.first_name", func(c *models.CoBorrowerInfo) *string { return &c.FirstName })
	CoBorrowerLastName       = coText("co_borrower_info.last_name", func(c *models.CoBorrowerInfo) *string { return &c.LastName })
	CoBorrowerEmail          = coText("co_borrower_info.email", func(c *models.CoBorrowerInfo) *string { return &c.Email })
	CoBorrowerPhone          = coText("co_borrower_info.phone", func(c *models.CoBorrowerInfo) *string { return &c.Phone })
	CoBorrowerRelationship   = coText("co_borrower_info.relationship", func(c *models.CoBorrowerInfo) *string { return &c.Relationship })
	CoBorrowerEmploymentType = coText("co_borrower_info.employment_type", func(c *models.CoBorrowerInfo) *string { return &c.EmploymentType })
	CoBorrowerEmployerName   = coText("co_borrower_info.employer_name", func(c *models.CoBorrowerInfo) *string { return &c.EmployerName })
	CoBorrowerAnnualIncome   = amount("co_borrower_info.annual_income", func(v *models.FormData) *float64 {
		if c := v.CoBorrowerInfo(); c != nil {
			return &c.AnnualIncome
		}
		return nil
	})
)

// Loan detail fields. requested_amount is derived and has no setter.
var (
	LoanSchoolID         = text("loan_details.school_id", func(v *models.FormData) *string { return &v.LoanDetails.SchoolID })
	LoanSchoolName       = text("loan_details.school_name", func(v *models.FormData) *string { return &v.LoanDetails.SchoolName })
	LoanProgramID        = text("loan_details.program_id", func(v *models.FormData) *string { return &v.LoanDetails.ProgramID })
	LoanProgramName      = text("loan_details.program_name", func(v *models.FormData) *string { return &v.LoanDetails.ProgramName })
	LoanProgramStartDate = text("loan_details.program_start_date", func(v *models.FormData) *string { return &v.LoanDetails.ProgramStartDate })
	LoanTuitionAmount    = amount("loan_details.tuition_amount", func(v *models.FormData) *float64 { return &v.LoanDetails.TuitionAmount })
	LoanDepositAmount    = amount("loan_details.deposit_amount", func(v *models.FormData) *float64 { return &v.LoanDetails.DepositAmount })
	LoanOtherFunding     = amount("loan_details.other_funding", func(v *models.FormData) *float64 { return &v.LoanDetails.OtherFunding })
)

// KnownField reports whether path names a settable field.
func KnownField(path FieldPath) bool {
	if path == PathHasCoBorrower {
		return true
	}
	_, ok := registry[path]
	return ok
}
