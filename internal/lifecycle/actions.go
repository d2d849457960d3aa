package lifecycle

// Action is something a borrower or staff member can still do for an application.
type Action string

const (
	ActionEditDraft           Action = "edit_draft"
	ActionResubmit            Action = "resubmit"
	ActionUnderwritingDecide  Action = "underwriting_decision"
	ActionRespondCounterOffer Action = "respond_counter_offer"
	ActionQCVerdict           Action = "qc_verdict"
	ActionRecordExecution     Action = "record_execution"
	ActionRecordFunding       Action = "record_funding"
	ActionWithdraw            Action = "withdraw"
)

var actionsByStatus = map[Status][]Action{
	StatusDraft:             {ActionEditDraft, ActionWithdraw},
	StatusSubmitted:         {ActionWithdraw},
	StatusInReview:          {ActionUnderwritingDecide, ActionWithdraw},
	StatusCommitmentSent:    {ActionWithdraw},
	StatusDocumentsSent:     {ActionRecordExecution},
	StatusPartiallyExecuted: {ActionRecordExecution},
	StatusQCReview:          {ActionQCVerdict},
	StatusRevisionRequested: {ActionResubmit, ActionWithdraw},
	StatusIncomplete:        {ActionResubmit, ActionWithdraw},
	StatusCounterOfferMade:  {ActionRespondCounterOffer, ActionWithdraw},
	StatusQCRejected:        {ActionQCVerdict},
	StatusReadyToFund:       {ActionRecordFunding},
}

// StaffActions lists the actions still available in status s.
// Terminal statuses other than ready_to_fund offer none.
func StaffActions(s Status) []Action {
	acts := actionsByStatus[s]
	out := make([]Action, len(acts))
	copy(out, acts)
	return out
}
