//go:build integration

package db

import (
	"net"
	"os"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/zulandar/storytree/internal/config"
	"github.com/zulandar/storytree/internal/models"
	"gorm.io/gorm"
)

// doltStore starts a throwaway dolt sql-server and returns the connection
// settings for it. Dolt keeps its global config under a temp
// DOLT_ROOT_PATH so the caller's identity is never touched.
func doltStore(t *testing.T) config.DatabaseConfig {
	t.Helper()
	if _, err := exec.LookPath("dolt"); err != nil {
		t.Skip("dolt not on PATH")
	}

	home, data := t.TempDir(), t.TempDir()
	dolt := func(args ...string) *exec.Cmd {
		c := exec.Command("dolt", args...)
		c.Dir = data
		c.Env = append(os.Environ(), "DOLT_ROOT_PATH="+home)
		return c
	}
	for _, args := range [][]string{
		{"config", "--global", "--add", "user.name", "storytree"},
		{"config", "--global", "--add", "user.email", "storytree@localhost"},
		{"init"},
	} {
		if out, err := dolt(args...).CombinedOutput(); err != nil {
			t.Fatalf("dolt %v: %v\n%s", args, err, out)
		}
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	server := dolt("sql-server", "--host", "127.0.0.1", "--port", strconv.Itoa(port))
	if err := server.Start(); err != nil {
		t.Fatalf("start dolt sql-server: %v", err)
	}
	t.Cleanup(func() {
		server.Process.Kill()
		server.Wait()
	})

	cfg := config.DatabaseConfig{Driver: "mysql", Host: "127.0.0.1", Port: port, User: "root"}
	awaitAdmin(t, cfg, 15*time.Second)
	return cfg
}

// awaitAdmin retries ConnectAdmin until the server answers a ping.
func awaitAdmin(t *testing.T, cfg config.DatabaseConfig, within time.Duration) {
	t.Helper()
	var lastErr error
	for deadline := time.Now().Add(within); time.Now().Before(deadline); time.Sleep(200 * time.Millisecond) {
		admin, err := ConnectAdmin(cfg)
		if err == nil {
			sqlDB, _ := admin.DB()
			err = sqlDB.Ping()
			sqlDB.Close()
			if err == nil {
				return
			}
		}
		lastErr = err
	}
	t.Fatalf("dolt sql-server on port %d not ready: %v", cfg.Port, lastErr)
}

// migratedDB creates database name and runs Init against it.
func migratedDB(t *testing.T, cfg config.DatabaseConfig, name string) *gorm.DB {
	t.Helper()
	cfg.Name = name
	adminDB, err := ConnectAdmin(cfg)
	if err != nil {
		t.Fatalf("ConnectAdmin: %v", err)
	}
	if err := CreateDatabase(adminDB, name); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	db, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := Init(db, time.Now()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return db
}

func TestIntegration_Init(t *testing.T) {
	db := migratedDB(t, doltStore(t), "storytree_init")

	var tables []string
	if err := db.Raw("SHOW TABLES").Scan(&tables).Error; err != nil {
		t.Fatalf("SHOW TABLES: %v", err)
	}
	tableSet := make(map[string]bool)
	for _, tbl := range tables {
		tableSet[tbl] = true
	}
	for _, expected := range []string{"story_nodes", "story_paths", "metadata", "repair_logs"} {
		if !tableSet[expected] {
			t.Errorf("expected table %q not found; got tables: %v", expected, tables)
		}
	}

	r, err := VerifyRoot(db)
	if err != nil {
		t.Fatalf("VerifyRoot: %v", err)
	}
	if !r.Found || len(r.Paths) != 1 {
		t.Errorf("root = %+v", r)
	}
}

func TestIntegration_StoryNodeColumns(t *testing.T) {
	db := migratedDB(t, doltStore(t), "storytree_cols")

	type columnInfo struct {
		Field string `gorm:"column:Field"`
	}
	var cols []columnInfo
	if err := db.Raw("DESCRIBE story_nodes").Scan(&cols).Error; err != nil {
		t.Fatalf("DESCRIBE story_nodes: %v", err)
	}
	colSet := make(map[string]bool)
	for _, c := range cols {
		colSet[c.Field] = true
	}
	for _, col := range []string{"id", "feature", "stage", "status", "terminus", "human_review", "notes", "capacity"} {
		if !colSet[col] {
			t.Errorf("story_nodes table missing column %q", col)
		}
	}
}

func TestIntegration_CheckConstraint(t *testing.T) {
	db := migratedDB(t, doltStore(t), "storytree_check")

	bad := models.StoryNode{ID: "1", Feature: "x", Stage: "done", Status: "ready"}
	if err := db.Create(&bad).Error; err == nil {
		t.Error("insert with unknown stage succeeded, want CHECK failure")
	}
}

func TestIntegration_Idempotent(t *testing.T) {
	db := migratedDB(t, doltStore(t), "storytree_idem")
	if err := Init(db, time.Now()); err != nil {
		t.Fatalf("Init (2nd): %v", err)
	}
	var count int64
	db.Model(&models.StoryNode{}).Count(&count)
	if count != 1 {
		t.Errorf("story_nodes = %d, want 1", count)
	}
}
