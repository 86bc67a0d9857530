// Package story is the durable story tree: node and closure-table reads,
// creation, workflow transitions and integrity checks on top of gorm.
package story

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zulandar/storytree/internal/models"
	"github.com/zulandar/storytree/internal/tree"
	"github.com/zulandar/storytree/internal/workflow"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// now is the clock for notes and updated_at; tests replace it.
var now = time.Now

// CreateOpts holds parameters for creating a new story.
type CreateOpts struct {
	ID              string // optional; next child segment under ParentID when empty
	ParentID        string // defaults to root
	Feature         string
	Description     string
	Story           string
	SuccessCriteria string
	Capacity        *int
	Stage           string // defaults to concept
	ProjectPath     string
}

// ListFilters holds optional filters for listing stories. Terminus "active"
// selects stories without a terminus.
type ListFilters struct {
	Stage       string
	Status      string
	Terminus    string
	HumanReview *bool
}

func sortNodes(nodes []models.StoryNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return tree.CompareIDs(nodes[i].ID, nodes[j].ID) < 0
	})
}

// Get retrieves a story by ID.
func Get(db *gorm.DB, id string) (*models.StoryNode, error) {
	var n models.StoryNode
	if err := db.Where("id = ?", id).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(id)
		}
		return nil, storeErr("get "+id, err)
	}
	return &n, nil
}

// List returns stories matching filters in lineage order.
func List(db *gorm.DB, filters ListFilters) ([]models.StoryNode, error) {
	q := db.Model(&models.StoryNode{})
	if filters.Stage != "" {
		q = q.Where("stage = ?", filters.Stage)
	}
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	switch filters.Terminus {
	case "":
	case tree.KeyActive:
		q = q.Where("terminus IS NULL")
	default:
		q = q.Where("terminus = ?", filters.Terminus)
	}
	if filters.HumanReview != nil {
		q = q.Where("human_review = ?", *filters.HumanReview)
	}

	var nodes []models.StoryNode
	if err := q.Find(&nodes).Error; err != nil {
		return nil, storeErr("list", err)
	}
	sortNodes(nodes)
	return nodes, nil
}

// Children returns the direct children of id in lineage order.
func Children(db *gorm.DB, id string) ([]models.StoryNode, error) {
	if _, err := Get(db, id); err != nil {
		return nil, err
	}
	var nodes []models.StoryNode
	err := db.Joins("JOIN story_paths ON story_paths.descendant_id = story_nodes.id").
		Where("story_paths.ancestor_id = ? AND story_paths.depth = 1", id).
		Find(&nodes).Error
	if err != nil {
		return nil, storeErr("children of "+id, err)
	}
	sortNodes(nodes)
	return nodes, nil
}

// Ancestors returns every ancestor id of id, excluding id, in lineage order.
func Ancestors(db *gorm.DB, id string) ([]string, error) {
	if _, err := Get(db, id); err != nil {
		return nil, err
	}
	var ids []string
	err := db.Model(&models.StoryPath{}).
		Where("descendant_id = ? AND ancestor_id <> ?", id, id).
		Pluck("ancestor_id", &ids).Error
	if err != nil {
		return nil, storeErr("ancestors of "+id, err)
	}
	tree.SortIDs(ids)
	return ids, nil
}

// DescendantCount returns how many stories sit below id.
func DescendantCount(db *gorm.DB, id string) (int, error) {
	if _, err := Get(db, id); err != nil {
		return 0, err
	}
	var n int64
	err := db.Model(&models.StoryPath{}).
		Where("ancestor_id = ? AND descendant_id <> ?", id, id).
		Count(&n).Error
	if err != nil {
		return 0, storeErr("count descendants of "+id, err)
	}
	return int(n), nil
}

// Snapshot reads every node and closure row.
func Snapshot(db *gorm.DB) ([]models.StoryNode, []models.StoryPath, error) {
	var nodes []models.StoryNode
	if err := db.Find(&nodes).Error; err != nil {
		return nil, nil, storeErr("load nodes", err)
	}
	var paths []models.StoryPath
	if err := db.Find(&paths).Error; err != nil {
		return nil, nil, storeErr("load paths", err)
	}
	sortNodes(nodes)
	return nodes, paths, nil
}

// Load reads the whole tree into an in-memory snapshot.
func Load(db *gorm.DB) (*tree.Tree, error) {
	nodes, paths, err := Snapshot(db)
	if err != nil {
		return nil, err
	}
	return tree.Build(nodes, paths), nil
}

// Create inserts a story under its parent together with its closure rows.
func Create(db *gorm.DB, opts CreateOpts) (*models.StoryNode, error) {
	if strings.TrimSpace(opts.Feature) == "" {
		return nil, invalid("feature is required")
	}
	if opts.Stage == "" {
		opts.Stage = workflow.StageConcept
	}
	if !workflow.IsStage(opts.Stage) {
		return nil, &workflow.ValidationError{Value: opts.Stage, Err: workflow.ErrInvalidStage}
	}
	if opts.ParentID == "" {
		opts.ParentID = tree.RootID
	}
	if opts.Capacity != nil && *opts.Capacity < 0 {
		return nil, invalid("capacity must not be negative")
	}

	var created models.StoryNode
	err := db.Transaction(func(tx *gorm.DB) error {
		parent, err := Get(tx, opts.ParentID)
		if err != nil {
			return err
		}

		var siblings []string
		if err := tx.Model(&models.StoryPath{}).
			Where("ancestor_id = ? AND depth = 1", parent.ID).
			Pluck("descendant_id", &siblings).Error; err != nil {
			return storeErr("list siblings", err)
		}
		if parent.Capacity != nil && len(siblings) >= *parent.Capacity {
			return fmt.Errorf("%w: %s", ErrAtCapacity, parent.ID)
		}

		id := opts.ID
		if id == "" {
			id = tree.NextChildID(parent.ID, siblings)
		}
		var exists int64
		if err := tx.Model(&models.StoryNode{}).Where("id = ?", id).Count(&exists).Error; err != nil {
			return storeErr("check id "+id, err)
		}
		if exists > 0 {
			return fmt.Errorf("%w: %s", ErrExists, id)
		}

		var parentPaths []models.StoryPath
		if err := tx.Where("descendant_id = ?", parent.ID).Find(&parentPaths).Error; err != nil {
			return storeErr("load parent paths", err)
		}

		ts := now()
		created = models.StoryNode{
			ID:              id,
			Feature:         opts.Feature,
			Description:     opts.Description,
			Story:           opts.Story,
			SuccessCriteria: opts.SuccessCriteria,
			Capacity:        opts.Capacity,
			Stage:           opts.Stage,
			Status:          workflow.StatusReady,
			ProjectPath:     opts.ProjectPath,
			CreatedAt:       ts,
			UpdatedAt:       ts,
		}
		if err := tx.Create(&created).Error; err != nil {
			return storeErr("create "+id, err)
		}

		rows := closureRows(id, parent.ID, parentPaths)
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return storeErr("create paths for "+id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// closureRows links id below parent: a self row plus one row per ancestor of
// the parent, the parent itself included even when its self row is missing.
func closureRows(id, parentID string, parentPaths []models.StoryPath) []models.StoryPath {
	rows := []models.StoryPath{
		{AncestorID: id, DescendantID: id, Depth: 0},
		{AncestorID: parentID, DescendantID: id, Depth: 1},
	}
	for _, p := range parentPaths {
		if p.AncestorID == parentID {
			continue
		}
		rows = append(rows, models.StoryPath{AncestorID: p.AncestorID, DescendantID: id, Depth: p.Depth + 1})
	}
	return rows
}
