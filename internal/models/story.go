package models

import "time"

// StoryNode is one work item in the story tree. Ancestry lives in StoryPath;
// the dotted ID is a display hint only.
type StoryNode struct {
	ID              string  `gorm:"primaryKey;size:64"`
	Feature         string  `gorm:"not null"`
	Description     string  `gorm:"type:text"`
	Story           string  `gorm:"type:text"`
	SuccessCriteria string  `gorm:"type:text"`
	Notes           string  `gorm:"type:text"`
	Capacity        *int
	Stage           string  `gorm:"size:16;not null;default:concept;index;check:chk_story_nodes_stage,stage IN ('epic','concept','planning','implementing','testing','releasing')"`
	Status          string  `gorm:"size:16;not null;default:ready;index;check:chk_story_nodes_status,status IN ('ready','broken','conflicted','blocked','escalated','paused','polish','queued','wishlisted')"`
	Terminus        *string `gorm:"size:16;index;check:chk_story_nodes_terminus,terminus IS NULL OR terminus IN ('shipped','infeasible','rejected','duplicative','deprecated','legacy','archived')"`
	HumanReview     bool    `gorm:"default:false"`
	ProjectPath     string  `gorm:"size:255"`
	LastImplemented *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StoryPath is one closure-table row: ancestor reaches descendant at depth.
// Every node has a depth-0 row to itself.
type StoryPath struct {
	AncestorID   string `gorm:"primaryKey;size:64"`
	DescendantID string `gorm:"primaryKey;size:64;index"`
	Depth        int    `gorm:"not null;index"`
}

// Metadata is a key/value row recording schema version and migration history.
type Metadata struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName keeps the table singular.
func (Metadata) TableName() string { return "metadata" }

// RepairLog records an explicit maintenance repair of the tree.
type RepairLog struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	StoryID   string `gorm:"size:64;index"`
	Action    string `gorm:"size:32"`
	Detail    string `gorm:"type:text"`
	Reason    string `gorm:"type:text"`
	CreatedAt time.Time
}
