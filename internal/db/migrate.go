package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/storytree/internal/models"
	"github.com/zulandar/storytree/internal/tree"
	"github.com/zulandar/storytree/internal/workflow"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SchemaVersion is recorded in metadata by Init.
const SchemaVersion = "4.3.0"

// Metadata keys.
const (
	KeySchemaVersion = "schema_version"
	KeyLastMigration = "last_migration"
	KeyMigrationNote = "migration_note"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.StoryNode{},
		&models.StoryPath{},
		&models.Metadata{},
		&models.RepairLog{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// Init migrates the schema, seeds the root node and records the schema
// version. It is safe to run repeatedly; the migration keys are only
// written when schema_version is missing or differs from SchemaVersion.
func Init(db *gorm.DB, now time.Time) error {
	if err := AutoMigrate(db); err != nil {
		return err
	}
	if err := SeedRoot(db); err != nil {
		return err
	}
	meta, err := Metadata(db)
	if err != nil {
		return err
	}
	if meta[KeySchemaVersion] == SchemaVersion {
		return nil
	}
	return RecordMigration(db, SchemaVersion, "Created canonical three-field schema", now)
}

// SeedRoot inserts the root node and its self path unless they exist.
func SeedRoot(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		root := models.StoryNode{
			ID:          tree.RootID,
			Feature:     "Root",
			Description: "Root of the story tree",
			Stage:       workflow.StageEpic,
			Status:      workflow.StatusReady,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&root).Error; err != nil {
			return fmt.Errorf("db: seed root: %w", err)
		}
		self := models.StoryPath{AncestorID: tree.RootID, DescendantID: tree.RootID, Depth: 0}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&self).Error; err != nil {
			return fmt.Errorf("db: seed root path: %w", err)
		}
		return nil
	})
}

// SetMetadata upserts one metadata key.
func SetMetadata(db *gorm.DB, key, value string, now time.Time) error {
	row := models.Metadata{Key: key, Value: value, UpdatedAt: now}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("db: set metadata %q: %w", key, result.Error)
	}
	return nil
}

// RecordMigration writes schema_version, last_migration and migration_note.
func RecordMigration(db *gorm.DB, version, note string, now time.Time) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, kv := range [][2]string{
			{KeySchemaVersion, version},
			{KeyLastMigration, now.Format(time.RFC3339)},
			{KeyMigrationNote, note},
		} {
			if err := SetMetadata(tx, kv[0], kv[1], now); err != nil {
				return err
			}
		}
		return nil
	})
}

// Metadata returns every metadata key and value.
func Metadata(db *gorm.DB) (map[string]string, error) {
	var rows []models.Metadata
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("db: read metadata: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// RootReport describes the root node and the closure rows hanging off it.
type RootReport struct {
	Found bool
	Node  models.StoryNode
	Paths []models.StoryPath
}

// VerifyRoot loads the root node and every closure row where it is the ancestor.
func VerifyRoot(db *gorm.DB) (*RootReport, error) {
	r := &RootReport{}
	err := db.Where("id = ?", tree.RootID).First(&r.Node).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, fmt.Errorf("db: verify root: %w", err)
	default:
		r.Found = true
	}
	if err := db.Where("ancestor_id = ?", tree.RootID).Order("depth, descendant_id").Find(&r.Paths).Error; err != nil {
		return nil, fmt.Errorf("db: verify root paths: %w", err)
	}
	return r, nil
}
