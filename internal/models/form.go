// internal/models/form.go
package models

import (
	"encoding/json"
	"math"
)

// Employment types accepted by the intake form.
const (
	EmploymentFullTime     = "FULL_TIME"
	EmploymentPartTime     = "PART_TIME"
	EmploymentSelfEmployed = "SELF_EMPLOYED"
	EmploymentUnemployed   = "UNEMPLOYED"
	EmploymentStudent      = "STUDENT"
	EmploymentRetired      = "RETIRED"
)

// EmploymentTypes lists every accepted employment type.
var EmploymentTypes = []string{
	EmploymentFullTime,
	EmploymentPartTime,
	EmploymentSelfEmployed,
	EmploymentUnemployed,
	EmploymentStudent,
	EmploymentRetired,
}

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
}

type BorrowerInfo struct {
	FirstName   string  `json:"first_name"`
	MiddleName  string  `json:"middle_name,omitempty"`
	LastName    string  `json:"last_name"`
	Email       string  `json:"email"`
	Phone       string  `json:"phone,omitempty"`
	DateOfBirth string  `json:"date_of_birth,omitempty"`
	Address     Address `json:"address"`
}

type EmploymentInfo struct {
	EmploymentType string  `json:"employment_type"`
	EmployerName   string  `json:"employer_name,omitempty"`
	JobTitle       string  `json:"job_title,omitempty"`
	AnnualIncome   float64 `json:"annual_income"`
	YearsEmployed  int     `json:"years_employed"`
}

type CoBorrowerInfo struct {
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Email          string  `json:"email"`
	Phone          string  `json:"phone,omitempty"`
	Relationship   string  `json:"relationship"`
	EmploymentType string  `json:"employment_type"`
	EmployerName   string  `json:"employer_name,omitempty"`
	AnnualIncome   float64 `json:"annual_income"`
}

type LoanDetails struct {
	SchoolID         string  `json:"school_id"`
	SchoolName       string  `json:"school_name,omitempty"`
	ProgramID        string  `json:"program_id"`
	ProgramName      string  `json:"program_name,omitempty"`
	ProgramStartDate string  `json:"program_start_date,omitempty"`
	TuitionAmount    float64 `json:"tuition_amount"`
	DepositAmount    float64 `json:"deposit_amount"`
	OtherFunding     float64 `json:"other_funding"`
	RequestedAmount  float64 `json:"requested_amount"`
}

// RequestedAmountFor computes max(0, tuition - deposit - otherFunding). A
// non-finite result is reported as 0.
func RequestedAmountFor(tuition, deposit, otherFunding float64) float64 {
	n := tuition - deposit - otherFunding
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return math.Max(0, n)
}

// CoBorrower is either NoCoBorrower or *WithCoBorrower. A nil value means none.
type CoBorrower interface {
	isCoBorrower()
}

// NoCoBorrower marks an application without a second applicant.
type NoCoBorrower struct{}

func (NoCoBorrower) isCoBorrower() {}

// WithCoBorrower carries the second applicant's details.
type WithCoBorrower struct {
	Info CoBorrowerInfo
}

func (*WithCoBorrower) isCoBorrower() {}

// FormData is the aggregate accumulated across wizard steps.
type FormData struct {
	BorrowerInfo   BorrowerInfo
	EmploymentInfo EmploymentInfo
	CoBorrower     CoBorrower
	LoanDetails    LoanDetails
}

// HasCoBorrower reports whether a co-borrower section is present.
func (f *FormData) HasCoBorrower() bool {
	_, ok := f.CoBorrower.(*WithCoBorrower)
	return ok
}

// CoBorrowerInfo returns the co-borrower section, or nil when absent.
func (f *FormData) CoBorrowerInfo() *CoBorrowerInfo {
	if w, ok := f.CoBorrower.(*WithCoBorrower); ok {
		return &w.Info
	}
	return nil
}

// SetHasCoBorrower switches the co-borrower variant. Turning it off drops the data,
// turning it on keeps existing data or starts empty.
func (f *FormData) SetHasCoBorrower(has bool) {
	switch {
	case !has:
		f.CoBorrower = NoCoBorrower{}
	case !f.HasCoBorrower():
		f.CoBorrower = &WithCoBorrower{}
	}
}

// Recompute refreshes derived fields.
func (f *FormData) Recompute() {
	l := &f.LoanDetails
	l.RequestedAmount = RequestedAmountFor(l.TuitionAmount, l.DepositAmount, l.OtherFunding)
}

// Clone returns a deep copy.
func (f FormData) Clone() FormData {
	out := f
	if info := f.CoBorrowerInfo(); info != nil {
		out.CoBorrower = &WithCoBorrower{Info: *info}
	} else {
		out.CoBorrower = NoCoBorrower{}
	}
	return out
}

type formDataWire struct {
	BorrowerInfo   BorrowerInfo    `json:"borrower_info"`
	EmploymentInfo EmploymentInfo  `json:"employment_info"`
	HasCoBorrower  bool            `json:"has_co_borrower"`
	CoBorrowerInfo *CoBorrowerInfo `json:"co_borrower_info"`
	LoanDetails    LoanDetails     `json:"loan_details"`
}

// MarshalJSON writes the has_co_borrower / co_borrower_info pair the backend expects.
func (f FormData) MarshalJSON() ([]byte, error) {
	w := formDataWire{
		BorrowerInfo:   f.BorrowerInfo,
		EmploymentInfo: f.EmploymentInfo,
		HasCoBorrower:  f.HasCoBorrower(),
		CoBorrowerInfo: f.CoBorrowerInfo(),
		LoanDetails:    f.LoanDetails,
	}
	w.LoanDetails.RequestedAmount = RequestedAmountFor(w.LoanDetails.TuitionAmount, w.LoanDetails.DepositAmount, w.LoanDetails.OtherFunding)
	return json.Marshal(w)
}

// UnmarshalJSON ignores co_borrower_info unless has_co_borrower is true and
// recomputes requested_amount rather than trusting the payload.
func (f *FormData) UnmarshalJSON(data []byte) error {
	var w formDataWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	f.BorrowerInfo = w.BorrowerInfo
	f.EmploymentInfo = w.EmploymentInfo
	f.LoanDetails = w.LoanDetails
	f.CoBorrower = NoCoBorrower{}
	if w.HasCoBorrower {
		info := CoBorrowerInfo{}
		if w.CoBorrowerInfo != nil {
			info = *w.CoBorrowerInfo
		}
		f.CoBorrower = &WithCoBorrower{Info: info}
	}
	f.Recompute()
	return nil
}
