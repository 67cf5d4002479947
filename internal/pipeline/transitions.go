package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/model"
)

// Outcome is the result class of one stage run.
type Outcome string

const (
	OutcomeFound    Outcome = "found"
	OutcomeNotFound Outcome = "not-found"
)

// Action is what happens to a lead after a stage outcome: either the lead is
// completed, or the Next stage is enqueued.
type Action struct {
	Next     model.JobType
	Terminal bool
}

type transition struct {
	stage   model.JobType
	outcome Outcome
}

// Table maps (stage, outcome) to the next action. Errors are not outcomes:
// the queue retries them and marks the lead failed once attempts run out.
type Table map[transition]Action

// NewTable builds the transition table for the enabled stages. Stages run
// one after another (domain, then executive, then email), so a lead never
// has more than one job in flight.
func NewTable(findExecutive, findEmail bool) Table {
	done := Action{Terminal: true}

	afterExecutive := done
	if findEmail {
		afterExecutive = Action{Next: model.JobFindEmail}
	}
	afterDomain := afterExecutive
	if findExecutive {
		afterDomain = Action{Next: model.JobFindExecutive}
	}

	t := Table{
		{model.JobFindDomain, OutcomeFound}:    afterDomain,
		{model.JobFindDomain, OutcomeNotFound}: done,
	}
	if findExecutive {
		t[transition{model.JobFindExecutive, OutcomeFound}] = afterExecutive
		// Without an executive there is nobody to address, so the lead is done.
		t[transition{model.JobFindExecutive, OutcomeNotFound}] = done
	}
	if findEmail {
		t[transition{model.JobFindEmail, OutcomeFound}] = done
		t[transition{model.JobFindEmail, OutcomeNotFound}] = done
	}
	return t
}

// Next returns the action for a stage outcome.
func (t Table) Next(stage model.JobType, outcome Outcome) (Action, error) {
	act, ok := t[transition{stage, outcome}]
	if !ok {
		return Action{}, eris.Errorf("pipeline: no transition for %s/%s", stage, outcome)
	}
	return act, nil
}

// Enabled reports whether the stage appears in the table.
func (t Table) Enabled(stage model.JobType) bool {
	_, ok := t[transition{stage, OutcomeFound}]
	return ok
}
