// internal/wizard/validation.go
package wizard

import (
	"math"
	"regexp"
	"slices"
	"strings"

	"loan-origination/internal/models"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneRegex = regexp.MustCompile(`^[\+]?[1-9][\d]{6,14}$`)
	zipRegex   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
)

// FieldErrors maps a field path to its display message.
type FieldErrors map[FieldPath]string

func (e FieldErrors) require(path FieldPath, value, message string) bool {
	if strings.TrimSpace(value) == "" {
		e[path] = message
		return false
	}
	return true
}

func (e FieldErrors) email(path FieldPath, value, label string) {
	if e.require(path, value, label+" is required") && !emailRegex.MatchString(strings.TrimSpace(value)) {
		e[path] = "Invalid email format"
	}
}

func (e FieldErrors) optionalPhone(path FieldPath, value string) {
	if value == "" {
		return
	}
	if !phoneRegex.MatchString(normalizePhone(value)) {
		e[path] = "Invalid phone format (E.164 recommended)"
	}
}

func (e FieldErrors) nonNegative(path FieldPath, value float64, label string) {
	if value < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		e[path] = label + " must be a non-negative number"
	}
}

// normalizePhone strips common separators before matching.
func normalizePhone(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(s)
}

func knownEmploymentType(t string) bool {
	return slices.Contains(models.EmploymentTypes, t)
}

// employerRequired is false only for applicants without an employer.
func employerRequired(employmentType string) bool {
	return employmentType != models.EmploymentUnemployed &&
		employmentType != models.EmploymentStudent &&
		employmentType != models.EmploymentRetired
}

func validateBorrower(v *models.FormData, errs FieldErrors) {
	b := v.BorrowerInfo
	errs.require(BorrowerFirstName.Path, b.FirstName, "First name is required")
	errs.require(BorrowerLastName.Path, b.LastName, "Last name is required")
	errs.email(BorrowerEmail.Path, b.Email, "Email")
	errs.optionalPhone(BorrowerPhone.Path, b.Phone)
	if zip := strings.TrimSpace(b.Address.ZipCode); zip != "" && !zipRegex.MatchString(zip) {
		errs[BorrowerZipCode.Path] = "Invalid ZIP code"
	}
}

func validateEmployment(v *models.FormData, errs FieldErrors) {
	e := v.EmploymentInfo
	if !errs.require(EmploymentType.Path, e.EmploymentType, "Employment type is required") {
		return
	}
	if !knownEmploymentType(e.EmploymentType) {
		errs[EmploymentType.Path] = "Unknown employment type"
		return
	}
	if employerRequired(e.EmploymentType) {
		errs.require(EmploymentEmployerName.Path, e.EmployerName, "Employer name is required")
		errs.require(EmploymentJobTitle.Path, e.JobTitle, "Job title is required")
	}
	errs.nonNegative(EmploymentAnnualIncome.Path, e.AnnualIncome, "Annual income")
	if e.YearsEmployed < 0 {
		errs[EmploymentYears.Path] = "Years employed must be a non-negative number"
	}
}

func validateCoBorrower(v *models.FormData, errs FieldErrors) {
	c := v.CoBorrowerInfo()
	if c == nil {
		return
	}
	errs.require(CoBorrowerFirstName.Path, c.FirstName, "First name is required")
	errs.require(CoBorrowerLastName.Path, c.LastName, "Last name is required")
	errs.email(CoBorrowerEmail.Path, c.Email, "Email")
	errs.optionalPhone(CoBorrowerPhone.Path, c.Phone)
	errs.require(CoBorrowerRelationship.Path, c.Relationship, "Relationship is required")
	if c.EmploymentType != "" && !knownEmploymentType(c.EmploymentType) {
		errs[CoBorrowerEmploymentType.Path] = "Unknown employment type"
	} else if c.EmploymentType != "" && employerRequired(c.EmploymentType) {
		errs.require(CoBorrowerEmployerName.Path, c.EmployerName, "Employer name is required")
	}
	errs.nonNegative(CoBorrowerAnnualIncome.Path, c.AnnualIncome, "Annual income")
}

func validateLoan(v *models.FormData, errs FieldErrors) {
	l := v.LoanDetails
	errs.require(LoanSchoolID.Path, l.SchoolID, "Please select a school")
	errs.require(LoanProgramID.Path, l.ProgramID, "Please select a program")
	errs.nonNegative(LoanTuitionAmount.Path, l.TuitionAmount, "Tuition amount")
	errs.nonNegative(LoanDepositAmount.Path, l.DepositAmount, "Deposit amount")
	errs.nonNegative(LoanOtherFunding.Path, l.OtherFunding, "Other funding")
}

var validators = map[StepID]func(*models.FormData, FieldErrors){
	StepBorrowerInfo:   validateBorrower,
	StepEmploymentInfo: validateEmployment,
	StepCoBorrowerInfo: validateCoBorrower,
	StepLoanDetails:    validateLoan,
}

// ValidateStep runs the predicates for one step. The review step validates
// every applicable data step.
func ValidateStep(step StepID, v *models.FormData) FieldErrors {
	errs := FieldErrors{}
	if step == StepReviewSubmit {
		for _, s := range applicableSteps(v.HasCoBorrower()) {
			validators[s](v, errs)
		}
		return errs
	}
	if fn, ok := validators[step]; ok {
		fn(v, errs)
	}
	return errs
}

// ValidateAll is ValidateStep(StepReviewSubmit, v).
func ValidateAll(v *models.FormData) FieldErrors {
	return ValidateStep(StepReviewSubmit, v)
}

// FirstInvalidStep returns the earliest applicable step with errors.
func FirstInvalidStep(v *models.FormData) (StepID, bool) {
	for _, s := range applicableSteps(v.HasCoBorrower()) {
		if len(ValidateStep(s, v)) > 0 {
			return s, true
		}
	}
	return StepReviewSubmit, false
}
