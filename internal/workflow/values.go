// Package workflow implements the three-field story state model: stage
// (workflow position), status (active hold) and terminus (exit classification).
package workflow

import "fmt"

// Category identifies which of the three fields a target state belongs to.
type Category int

const (
	CategoryStage Category = iota + 1
	CategoryStatus
	CategoryTerminus
)

func (c Category) String() string {
	switch c {
	case CategoryStage:
		return "stage"
	case CategoryStatus:
		return "status"
	case CategoryTerminus:
		return "terminus"
	default:
		return "unknown"
	}
}

// Stage values.
const (
	StageEpic         = "epic"
	StageConcept      = "concept"
	StagePlanning     = "planning"
	StageImplementing = "implementing"
	StageTesting      = "testing"
	StageReleasing    = "releasing"
)

// Status values. StatusReady is the neutral value meaning no active hold.
const (
	StatusReady      = "ready"
	StatusBroken     = "broken"
	StatusConflicted = "conflicted"
	StatusBlocked    = "blocked"
	StatusEscalated  = "escalated"
	StatusPaused     = "paused"
	StatusPolish     = "polish"
	StatusQueued     = "queued"
	StatusWishlisted = "wishlisted"
)

// Terminus values.
const (
	TerminusShipped     = "shipped"
	TerminusInfeasible  = "infeasible"
	TerminusRejected    = "rejected"
	TerminusDuplicative = "duplicative"
	TerminusDeprecated  = "deprecated"
	TerminusLegacy      = "legacy"
	TerminusArchived    = "archived"
)

// Stages lists stage values in workflow order. Epic is a container marker
// and sits outside the forward workflow.
var Stages = []string{
	StageEpic, StageConcept, StagePlanning, StageImplementing, StageTesting, StageReleasing,
}

// Holds lists the non-neutral status values in urgency order.
var Holds = []string{
	StatusBroken, StatusConflicted, StatusBlocked, StatusEscalated,
	StatusPaused, StatusPolish, StatusQueued, StatusWishlisted,
}

// Statuses lists every status value, ready first.
var Statuses = append([]string{StatusReady}, Holds...)

// Termini lists terminus values, positive exit first then harshest to mildest.
var Termini = []string{
	TerminusShipped, TerminusInfeasible, TerminusRejected, TerminusDuplicative,
	TerminusDeprecated, TerminusLegacy, TerminusArchived,
}

// categories is the static classification table. It is built once and
// checked at init so that no value belongs to two fields.
var categories = buildCategories()

func buildCategories() map[string]Category {
	m := make(map[string]Category, len(Stages)+len(Statuses)+len(Termini))
	add := func(values []string, c Category) {
		for _, v := range values {
			if prev, dup := m[v]; dup {
				panic(fmt.Sprintf("workflow: %q classified as both %s and %s", v, prev, c))
			}
			m[v] = c
		}
	}
	add(Stages, CategoryStage)
	add(Statuses, CategoryStatus)
	add(Termini, CategoryTerminus)
	return m
}

// Classify returns the category of a target state.
func Classify(target string) (Category, error) {
	c, ok := categories[target]
	if !ok {
		return 0, &ValidationError{Value: target, Err: ErrUnknownTarget}
	}
	return c, nil
}

// IsStage reports whether v is a stage value.
func IsStage(v string) bool { return categories[v] == CategoryStage }

// IsStatus reports whether v is a status value, including ready.
func IsStatus(v string) bool { return categories[v] == CategoryStatus }

// IsTerminus reports whether v is a terminus value.
func IsTerminus(v string) bool { return categories[v] == CategoryTerminus }

// Targets returns every valid target state: stages, then statuses, then termini.
func Targets() []string {
	out := make([]string, 0, len(categories))
	out = append(out, Stages...)
	out = append(out, Statuses...)
	out = append(out, Termini...)
	return out
}
