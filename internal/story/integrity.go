package story

import (
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/storytree/internal/models"
	"github.com/zulandar/storytree/internal/tree"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FindOrphans returns the non-root stories with no ancestor path, in lineage order.
func FindOrphans(db *gorm.DB) ([]models.StoryNode, error) {
	nodes, paths, err := Snapshot(db)
	if err != nil {
		return nil, err
	}
	ids := tree.FindOrphans(nodes, paths)
	byID := make(map[string]models.StoryNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	out := make([]models.StoryNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out, nil
}

// ValidateTree scans the stored tree for structural problems without
// changing anything.
func ValidateTree(db *gorm.DB) (tree.Report, error) {
	nodes, paths, err := Snapshot(db)
	if err != nil {
		return tree.Report{}, err
	}
	return tree.Validate(nodes, paths), nil
}

// Health statuses.
const (
	HealthOK     = "healthy"
	HealthIssues = "issues_found"
)

// HealthReport combines statistics with the integrity report.
type HealthReport struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Stats       tree.Stats  `json:"statistics"`
	Issues      tree.Report `json:"issues"`
	TotalIssues int         `json:"total_issues"`
	Status      string      `json:"health_status"`
}

// Healthy reports whether no issues were found.
func (h *HealthReport) Healthy() bool { return h.TotalIssues == 0 }

// Health builds the tree health report.
func Health(db *gorm.DB) (*HealthReport, error) {
	nodes, paths, err := Snapshot(db)
	if err != nil {
		return nil, err
	}
	r := &HealthReport{
		GeneratedAt: now(),
		Stats:       tree.ComputeStats(nodes, paths),
		Issues:      tree.Validate(nodes, paths),
	}
	r.TotalIssues = r.Issues.Total()
	r.Status = HealthOK
	if r.TotalIssues > 0 {
		r.Status = HealthIssues
	}
	return r, nil
}

// RepairOrphan reattaches id (and whatever subtree still hangs below it)
// under parentID. id must have no depth-1 parent row: either an orphan, or a
// node left with stray rows to higher ancestors. Stray rows are replaced by
// the full set derived from parentID. It writes a RepairLog entry and returns
// the number of rows inserted.
func RepairOrphan(db *gorm.DB, id, parentID, reason string) (int, error) {
	if strings.TrimSpace(reason) == "" {
		return 0, invalid("a repair reason is required")
	}
	if id == parentID {
		return 0, invalid("cannot attach %s below itself", id)
	}
	if id == tree.RootID {
		return 0, invalid("the root cannot be reattached")
	}

	var inserted int
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := Get(tx, id); err != nil {
			return err
		}
		if _, err := Get(tx, parentID); err != nil {
			return err
		}

		var up int64
		if err := tx.Model(&models.StoryPath{}).
			Where("descendant_id = ? AND ancestor_id <> ? AND depth = 1", id, id).
			Count(&up).Error; err != nil {
			return storeErr("check parent of "+id, err)
		}
		if up > 0 {
			return invalid("%s already has a parent", id)
		}

		var below []models.StoryPath
		if err := tx.Where("ancestor_id = ?", id).Find(&below).Error; err != nil {
			return storeErr("load subtree of "+id, err)
		}
		if !hasDescendant(below, id) {
			below = append(below, models.StoryPath{AncestorID: id, DescendantID: id})
		}
		for _, b := range below {
			if b.DescendantID == parentID {
				return invalid("%s is below %s; attaching would create a cycle", parentID, id)
			}
		}

		subtree := make([]string, 0, len(below))
		for _, b := range below {
			subtree = append(subtree, b.DescendantID)
		}
		stale := tx.Where("descendant_id IN ? AND ancestor_id NOT IN ?", subtree, subtree).
			Delete(&models.StoryPath{})
		if stale.Error != nil {
			return storeErr("clear stray paths of "+id, stale.Error)
		}

		var above []models.StoryPath
		if err := tx.Where("descendant_id = ?", parentID).Find(&above).Error; err != nil {
			return storeErr("load ancestors of "+parentID, err)
		}
		if !hasAncestor(above, parentID) {
			above = append(above, models.StoryPath{AncestorID: parentID, DescendantID: parentID})
		}

		rows := []models.StoryPath{{AncestorID: id, DescendantID: id}}
		for _, a := range above {
			for _, b := range below {
				rows = append(rows, models.StoryPath{
					AncestorID:   a.AncestorID,
					DescendantID: b.DescendantID,
					Depth:        a.Depth + b.Depth + 1,
				})
			}
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
		if result.Error != nil {
			return storeErr("insert repair paths for "+id, result.Error)
		}
		inserted = int(result.RowsAffected)

		entry := models.RepairLog{
			StoryID:   id,
			Action:    "reattach",
			Detail:    fmt.Sprintf("parent=%s rows=%d cleared=%d", parentID, inserted, stale.RowsAffected),
			Reason:    reason,
			CreatedAt: now(),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return storeErr("record repair of "+id, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func hasDescendant(paths []models.StoryPath, id string) bool {
	for _, p := range paths {
		if p.DescendantID == id {
			return true
		}
	}
	return false
}

func hasAncestor(paths []models.StoryPath, id string) bool {
	for _, p := range paths {
		if p.AncestorID == id {
			return true
		}
	}
	return false
}

// RepairHistory returns the repair log, newest first.
func RepairHistory(db *gorm.DB, id string) ([]models.RepairLog, error) {
	q := db.Order("created_at DESC, id DESC")
	if id != "" {
		q = q.Where("story_id = ?", id)
	}
	var logs []models.RepairLog
	if err := q.Find(&logs).Error; err != nil {
		return nil, storeErr("repair history", err)
	}
	return logs, nil
}
