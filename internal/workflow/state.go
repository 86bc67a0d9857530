package workflow

import (
	"strings"
	"time"
)

// State is the three-field condition of a story.
type State struct {
	Stage    string
	Status   string
	Terminus *string
}

// Effective returns the single display label for the state.
func (s State) Effective() string {
	return EffectiveStatus(s.Stage, s.Status, s.Terminus)
}

// TerminusValue returns the terminus or "" when the story is still active.
func (s State) TerminusValue() string {
	if s.Terminus == nil {
		return ""
	}
	return *s.Terminus
}

// Equal compares field values, not terminus pointers.
func (s State) Equal(o State) bool {
	return s.Stage == o.Stage && s.Status == o.Status && s.TerminusValue() == o.TerminusValue()
}

// EffectiveStatus applies the priority terminus > non-ready status > stage.
// An empty status is treated as ready.
func EffectiveStatus(stage, status string, terminus *string) string {
	if terminus != nil && *terminus != "" {
		return *terminus
	}
	if status != "" && status != StatusReady {
		return status
	}
	return stage
}

// Apply computes the state that results from aiming at target. Only one field
// becomes the primary target; the others are reset per category:
//
//	terminus: terminus=target, status=ready, stage kept
//	status:   status=target, terminus=nil, stage kept
//	stage:    stage=target, status=ready, terminus=nil
func Apply(s State, target string) (State, Category, error) {
	c, err := Classify(target)
	if err != nil {
		return s, 0, err
	}
	next := State{Stage: s.Stage}
	switch c {
	case CategoryTerminus:
		t := target
		next.Terminus = &t
		next.Status = StatusReady
	case CategoryStatus:
		next.Status = target
	case CategoryStage:
		next.Stage = target
		next.Status = StatusReady
	}
	return next, c, nil
}

// noteRequired lists target states that cannot be applied without a note.
var noteRequired = map[string]bool{
	StatusPolish: true,
}

// NoteRequired reports whether target demands a non-empty note.
func NoteRequired(target string) bool { return noteRequired[target] }

// CheckNote validates the note policy for target.
func CheckNote(target, note string) error {
	if NoteRequired(target) && strings.TrimSpace(note) == "" {
		return &ValidationError{Value: target, Err: ErrNoteRequired}
	}
	return nil
}

// NoteTimeLayout is the timestamp format used in the notes log.
const NoteTimeLayout = "2006-01-02 15:04"

// FormatNote renders one audit entry for a transition.
func FormatNote(at time.Time, target, note string) string {
	entry := "[" + at.Format(NoteTimeLayout) + "] Status changed to '" + target + "'"
	if note = strings.TrimSpace(note); note != "" {
		entry += ": " + note
	}
	return entry
}

// AppendNote appends entry to an existing notes log, one entry per line.
func AppendNote(existing, entry string) string {
	if existing == "" {
		return entry
	}
	return existing + "\n" + entry
}
