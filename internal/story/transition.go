package story

import (
	"strings"

	"github.com/zulandar/storytree/internal/models"
	"github.com/zulandar/storytree/internal/workflow"
	"gorm.io/gorm"
)

// Change reports a transition: the fields before and after, and the note
// entry appended to the log.
type Change struct {
	ID       string
	Target   string
	Category workflow.Category
	From     workflow.State
	To       workflow.State
	Entry    string
}

// Transition moves id to target, resetting the other fields as the target's
// category demands, and appends a timestamped note. Unknown targets and a
// missing mandatory note are rejected before the row is read.
func Transition(db *gorm.DB, id, target, note string) (*Change, error) {
	if _, err := workflow.Classify(target); err != nil {
		return nil, err
	}
	if err := workflow.CheckNote(target, note); err != nil {
		return nil, err
	}

	var change *Change
	err := db.Transaction(func(tx *gorm.DB) error {
		n, err := Get(tx, id)
		if err != nil {
			return err
		}
		from := nodeState(n)
		to, cat, err := workflow.Apply(from, target)
		if err != nil {
			return err
		}
		ts := now()
		entry := workflow.FormatNote(ts, target, note)
		updates := map[string]interface{}{
			"stage":      to.Stage,
			"status":     to.Status,
			"terminus":   to.Terminus,
			"notes":      workflow.AppendNote(n.Notes, entry),
			"updated_at": ts,
		}
		if err := updateNode(tx, id, updates); err != nil {
			return err
		}
		change = &Change{ID: id, Target: target, Category: cat, From: from, To: to, Entry: entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

func nodeState(n *models.StoryNode) workflow.State {
	return workflow.State{Stage: n.Stage, Status: n.Status, Terminus: n.Terminus}
}

func updateNode(tx *gorm.DB, id string, updates map[string]interface{}) error {
	if err := tx.Model(&models.StoryNode{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return storeErr("update "+id, err)
	}
	return nil
}

// VerifyResult reports the outcome of Verify.
type VerifyResult struct {
	ID         string `json:"story_id"`
	OldStage   string `json:"old_stage"`
	NewStage   string `json:"new_stage"`
	HoldSet    bool   `json:"hold_set"`
	NotesAdded bool   `json:"notes_added"`
}

// Verify records a verification outcome. With hold the stage is kept and the
// story is escalated for human review; otherwise it advances to stage with
// status ready and review cleared. Notes are appended as
// "[Verification YYYY-MM-DD HH:MM] <notes>".
func Verify(db *gorm.DB, id, stage, notes string, hold bool) (*VerifyResult, error) {
	if !workflow.IsStage(stage) {
		return nil, &workflow.ValidationError{Value: stage, Err: workflow.ErrInvalidStage}
	}
	notes = strings.TrimSpace(notes)

	var res *VerifyResult
	err := db.Transaction(func(tx *gorm.DB) error {
		n, err := Get(tx, id)
		if err != nil {
			return err
		}
		target := stage
		if hold {
			target = workflow.StatusEscalated
		}
		to, _, err := workflow.Apply(nodeState(n), target)
		if err != nil {
			return err
		}
		ts := now()
		log := n.Notes
		if notes != "" {
			log = workflow.AppendNote(log, "[Verification "+ts.Format(workflow.NoteTimeLayout)+"] "+notes)
		}
		updates := map[string]interface{}{
			"stage":        to.Stage,
			"status":       to.Status,
			"terminus":     to.Terminus,
			"human_review": hold,
			"notes":        log,
			"updated_at":   ts,
		}
		if err := updateNode(tx, id, updates); err != nil {
			return err
		}
		res = &VerifyResult{ID: id, OldStage: n.Stage, NewStage: to.Stage, HoldSet: hold, NotesAdded: notes != ""}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
