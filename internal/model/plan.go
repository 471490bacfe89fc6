package model

import "time"

// Plan is the purchased lease duration class.
type Plan string

const (
	PlanOneDay  Plan = "1d"
	PlanFiveDay Plan = "5d"
	// PlanTest carries an operator-supplied duration and is never purchasable.
	PlanTest Plan = "test"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanOneDay, PlanFiveDay, PlanTest:
		return true
	}
	return false
}

// Purchasable reports whether the plan can be bought through checkout.
func (p Plan) Purchasable() bool {
	return p == PlanOneDay || p == PlanFiveDay
}

// Duration maps the plan to its fixed lease length. The test plan has no
// fixed duration; callers supply one through the operator override path.
func (p Plan) Duration() time.Duration {
	switch p {
	case PlanOneDay:
		return 24 * time.Hour
	case PlanFiveDay:
		return 5 * 24 * time.Hour
	}
	return 0
}

// AmountCents is the checkout price of the plan.
func (p Plan) AmountCents() int64 {
	switch p {
	case PlanOneDay:
		return 100
	case PlanFiveDay:
		return 300
	}
	return 0
}

// Label is the line-item description shown at checkout.
func (p Plan) Label() string {
	switch p {
	case PlanOneDay:
		return "xCommand 24h n8n workspace"
	case PlanFiveDay:
		return "xCommand 5-day n8n workspace"
	}
	return "xCommand n8n workspace"
}
