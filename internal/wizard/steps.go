// internal/wizard/steps.go
package wizard

// StepID addresses a wizard step by its fixed position.
type StepID int

const (
	StepBorrowerInfo StepID = iota
	StepEmploymentInfo
	StepCoBorrowerInfo
	StepLoanDetails
	StepReviewSubmit
)

// Steps is the fixed step order. StepCoBorrowerInfo is skipped when there is no co-borrower.
var Steps = []StepID{
	StepBorrowerInfo,
	StepEmploymentInfo,
	StepCoBorrowerInfo,
	StepLoanDetails,
	StepReviewSubmit,
}

var stepLabels = map[StepID]string{
	StepBorrowerInfo:   "Borrower Information",
	StepEmploymentInfo: "Employment Information",
	StepCoBorrowerInfo: "Co-Borrower Information",
	StepLoanDetails:    "Loan Details",
	StepReviewSubmit:   "Review & Submit",
}

// field path prefix owned by each data step
var stepPrefixes = map[StepID]string{
	StepBorrowerInfo:   "borrower_info.",
	StepEmploymentInfo: "employment_info.",
	StepCoBorrowerInfo: "co_borrower_info.",
	StepLoanDetails:    "loan_details.",
}

func (s StepID) Label() string {
	if l, ok := stepLabels[s]; ok {
		return l
	}
	return "Unknown"
}

func (s StepID) String() string { return s.Label() }

// Valid reports whether s is one of the five steps.
func (s StepID) Valid() bool {
	return s >= StepBorrowerInfo && s <= StepReviewSubmit
}

// Owns reports whether the field at path belongs to step s.
func (s StepID) Owns(path FieldPath) bool {
	prefix, ok := stepPrefixes[s]
	return ok && hasPrefix(path, prefix)
}

// StepLabels returns the display label of every step in order.
func StepLabels() []string {
	out := make([]string, len(Steps))
	for i, s := range Steps {
		out[i] = s.Label()
	}
	return out
}

// next returns the step after from, skipping the co-borrower step when absent.
func next(from StepID, hasCoBorrower bool) StepID {
	to := from + 1
	if to == StepCoBorrowerInfo && !hasCoBorrower {
		to = StepLoanDetails
	}
	return to
}

// prev mirrors next.
func prev(from StepID, hasCoBorrower bool) StepID {
	to := from - 1
	if to == StepCoBorrowerInfo && !hasCoBorrower {
		to = StepEmploymentInfo
	}
	return to
}

// applicableSteps lists the data steps that must validate before submission.
func applicableSteps(hasCoBorrower bool) []StepID {
	out := []StepID{StepBorrowerInfo, StepEmploymentInfo}
	if hasCoBorrower {
		out = append(out, StepCoBorrowerInfo)
	}
	return append(out, StepLoanDetails)
}
