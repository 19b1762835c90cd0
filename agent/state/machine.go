package state

// ConversationState is the qualification progress of a lead conversation.
type ConversationState string

const (
	StateGreeting               ConversationState = "GREETING"
	StateInterestCheck          ConversationState = "INTEREST_CHECK"
	StateDataCollection         ConversationState = "DATA_COLLECTION"
	StateFinancialQualification ConversationState = "FINANCIAL_QUALIFICATION"
	StateScheduling             ConversationState = "SCHEDULING"
	StateCompleted              ConversationState = "COMPLETED"
	StateLost                   ConversationState = "LOST"
)

// Terminal reports whether no further progress triggers apply
// (LOST still accepts reopen).
func (s ConversationState) Terminal() bool {
	return s == StateCompleted || s == StateLost
}

// Valid reports whether s is a known conversation state.
func (s ConversationState) Valid() bool {
	switch s {
	case StateGreeting, StateInterestCheck, StateDataCollection,
		StateFinancialQualification, StateScheduling, StateCompleted, StateLost:
		return true
	}
	return false
}

type Trigger string

const (
	TriggerEngage             Trigger = "engage"
	TriggerShowInterest       Trigger = "show_interest"
	TriggerDataComplete       Trigger = "data_complete"
	TriggerQualify            Trigger = "qualify"
	TriggerConfirmAppointment Trigger = "confirm_appointment"
	TriggerFastTrack          Trigger = "fast_track"
	TriggerDisqualify         Trigger = "disqualify"
	TriggerReopen             Trigger = "reopen"
)

type transition struct {
	trigger Trigger
	sources []ConversationState
	dest    ConversationState
}

// transitionTable is the full state machine. A trigger whose source set does
// not include the current state is a no-op, never an error: a misclassified
// signal from the model must not break the conversation.
var transitionTable = []transition{
	{TriggerEngage, []ConversationState{StateGreeting}, StateInterestCheck},
	{TriggerShowInterest, []ConversationState{StateInterestCheck}, StateDataCollection},
	{TriggerDataComplete, []ConversationState{StateDataCollection}, StateFinancialQualification},
	{TriggerQualify, []ConversationState{StateFinancialQualification}, StateScheduling},
	{TriggerConfirmAppointment, []ConversationState{StateScheduling}, StateCompleted},
	{TriggerFastTrack, []ConversationState{StateFinancialQualification}, StateCompleted},
	{TriggerDisqualify, []ConversationState{
		StateGreeting, StateInterestCheck, StateDataCollection,
		StateFinancialQualification, StateScheduling,
	}, StateLost},
	{TriggerReopen, []ConversationState{StateLost}, StateInterestCheck},
}

// Fire applies a trigger to the current state. It returns the resulting state
// and whether the trigger actually fired.
func Fire(current ConversationState, trigger Trigger) (ConversationState, bool) {
	for i := range transitionTable {
		t := &transitionTable[i]
		if t.trigger != trigger {
			continue
		}
		for _, src := range t.sources {
			if src == current {
				return t.dest, true
			}
		}
	}
	return current, false
}

// Signals is the structured qualification output of a single turn.
type Signals struct {
	DataComplete         bool
	Disqualified         bool
	AppointmentConfirmed bool
	PreQualified         bool
}

// Advance fires at most one trigger per turn, in priority order:
// explicit disqualification, confirmed appointment, financial-stage
// qualification, then soft incremental progression.
func Advance(current ConversationState, sig Signals) (ConversationState, Trigger, bool) {
	switch {
	case sig.Disqualified:
		next, ok := Fire(current, TriggerDisqualify)
		return next, TriggerDisqualify, ok

	case sig.AppointmentConfirmed:
		next, ok := Fire(current, TriggerConfirmAppointment)
		return next, TriggerConfirmAppointment, ok

	case sig.PreQualified && current == StateFinancialQualification:
		next, ok := Fire(current, TriggerFastTrack)
		return next, TriggerFastTrack, ok

	case sig.DataComplete && current == StateFinancialQualification:
		next, ok := Fire(current, TriggerQualify)
		return next, TriggerQualify, ok
	}

	// Soft progression: a lead that keeps replying moves along the early
	// states one step per turn; data collection only advances once the
	// required fields are in.
	switch current {
	case StateGreeting:
		next, ok := Fire(current, TriggerEngage)
		return next, TriggerEngage, ok
	case StateInterestCheck:
		next, ok := Fire(current, TriggerShowInterest)
		return next, TriggerShowInterest, ok
	case StateDataCollection:
		if sig.DataComplete {
			next, ok := Fire(current, TriggerDataComplete)
			return next, TriggerDataComplete, ok
		}
	}

	return current, "", false
}
