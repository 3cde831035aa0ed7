// Package flow drives one visitor through access choice, identifier
// verification, summary and registration.
package flow

import (
	dErrors "github.com/genialityco/gen-live-web-sub000/pkg/domain-errors"
)

// State is the current step of a visit.
type State string

const (
	StateLoading            State = "loading"
	StateAccessOptions      State = "access_options"
	StateQuickLogin         State = "quick_login"
	StateSummary            State = "summary"
	StateFullRegistration   State = "full_registration"
	StateUpdateRegistration State = "update_registration"
	StateCompleted          State = "completed"
)

func (s State) String() string { return string(s) }

func (s State) IsValid() bool {
	switch s {
	case StateLoading, StateAccessOptions, StateQuickLogin, StateSummary,
		StateFullRegistration, StateUpdateRegistration, StateCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether no further event other than Reset applies.
func (s State) IsTerminal() bool { return s == StateCompleted }

// Event is a user action or a backend outcome that moves the flow.
type Event string

const (
	EventSchemaLoaded              Event = "schema_loaded"
	EventSchemaLoadedNoIdentifiers Event = "schema_loaded_no_identifiers"
	EventChooseExisting            Event = "choose_existing"
	EventChooseNew                 Event = "choose_new"
	EventBack                      Event = "back"
	EventMatchNotFound             Event = "match_not_found"
	EventMatchMismatch             Event = "match_mismatch"
	EventMatchOrgOnly              Event = "match_org_only"
	EventMatchEventRegistered      Event = "match_event_registered"
	EventUpdateInfo                Event = "update_info"
	EventContinue                  Event = "continue"
	EventSubmitted                 Event = "submitted"
	EventReset                     Event = "reset"
)

func (e Event) String() string { return string(e) }

type transitionKey struct {
	from  State
	event Event
}

var transitions = map[transitionKey]State{
	{StateLoading, EventSchemaLoaded}:              StateAccessOptions,
	{StateLoading, EventSchemaLoadedNoIdentifiers}: StateFullRegistration,
	{StateAccessOptions, EventChooseExisting}:      StateQuickLogin,
	{StateAccessOptions, EventChooseNew}:           StateFullRegistration,
	{StateQuickLogin, EventBack}:                   StateAccessOptions,
	{StateQuickLogin, EventMatchNotFound}:          StateFullRegistration,
	{StateQuickLogin, EventMatchMismatch}:          StateQuickLogin,
	{StateQuickLogin, EventMatchOrgOnly}:           StateSummary,
	{StateQuickLogin, EventMatchEventRegistered}:   StateCompleted,
	{StateSummary, EventUpdateInfo}:                StateUpdateRegistration,
	{StateSummary, EventContinue}:                  StateCompleted,
	{StateFullRegistration, EventSubmitted}:        StateCompleted,
	{StateUpdateRegistration, EventSubmitted}:      StateCompleted,
}

// Next returns the state event leads to from state. Reset leads to Loading
// from anywhere; any pair missing from the table is a CodeInvalidState error.
func Next(state State, event Event) (State, error) {
	if event == EventReset {
		return StateLoading, nil
	}
	next, ok := transitions[transitionKey{state, event}]
	if !ok {
		return state, dErrors.Newf(dErrors.CodeInvalidState, "%s is not allowed in %s", event, state)
	}
	return next, nil
}
