package dashboard

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/storytree/internal/db"
	"github.com/zulandar/storytree/internal/logging"
	"github.com/zulandar/storytree/internal/models"
	"github.com/zulandar/storytree/internal/notify"
	"github.com/zulandar/storytree/internal/story"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// testDB returns a migrated store holding root -> 1 -> 1.1 (implementing)
// and root -> 2.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "story-tree.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	if err := db.Init(gdb, time.Now()); err != nil {
		t.Fatal(err)
	}
	for _, o := range []story.CreateOpts{
		{Feature: "Tree browser"},
		{ParentID: "1", Feature: "Filter panel", Stage: "implementing"},
		{Feature: "Subtree sync"},
	} {
		if _, err := story.Create(gdb, o); err != nil {
			t.Fatal(err)
		}
	}
	return gdb
}

func newTestHandler(t *testing.T) (http.Handler, *gorm.DB, *recordingNotifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb := testDB(t)
	n := &recordingNotifier{}
	return NewHandler(gdb, logging.NewNop(), n), gdb, n
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

type treeResponse struct {
	Filters []string  `json:"filters"`
	Rows    []RowView `json:"rows"`
}

func TestStart_NilDB(t *testing.T) {
	err := Start(context.Background(), StartOpts{DB: nil})
	if err == nil {
		t.Fatal("expected error for nil db")
	}
	if !strings.Contains(err.Error(), "db is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db is required")
	}
}

func TestTree_Default(t *testing.T) {
	h, _, _ := newTestHandler(t)
	w := do(t, h, http.MethodGet, "/api/tree", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[treeResponse](t, w)
	var ids []string
	for _, r := range resp.Rows {
		ids = append(ids, r.ID)
		if r.Faded {
			t.Errorf("%s faded with every filter checked", r.ID)
		}
	}
	if got := strings.Join(ids, " "); got != "root 1 1.1 2" {
		t.Errorf("rows = %s", got)
	}
}

func TestTree_StageFilterFadesAncestors(t *testing.T) {
	h, _, _ := newTestHandler(t)
	w := do(t, h, http.MethodGet, "/api/tree?stage=implementing", "")
	resp := decode[treeResponse](t, w)
	if len(resp.Rows) != 3 {
		t.Fatalf("rows = %+v", resp.Rows)
	}
	want := []struct {
		id    string
		level int
		faded bool
	}{{"root", 0, true}, {"1", 1, true}, {"1.1", 2, false}}
	for i, wr := range want {
		r := resp.Rows[i]
		if r.ID != wr.id || r.Level != wr.level || r.Faded != wr.faded {
			t.Errorf("row %d = %s level %d faded %v, want %+v", i, r.ID, r.Level, r.Faded, wr)
		}
	}
}

func TestTree_UnknownFilter(t *testing.T) {
	h, _, _ := newTestHandler(t)
	w := do(t, h, http.MethodGet, "/api/tree?status=done", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTree_RespondPreset(t *testing.T) {
	h, gdb, _ := newTestHandler(t)
	if _, err := story.Transition(gdb, "1.1", "escalated", ""); err != nil {
		t.Fatal(err)
	}
	resp := decode[treeResponse](t, do(t, h, http.MethodGet, "/api/tree?respond=true", ""))
	matching := map[string]bool{}
	for _, r := range resp.Rows {
		if !r.Faded {
			matching[r.ID] = true
		}
	}
	if !matching["1.1"] || matching["2"] || len(matching) != 1 {
		t.Errorf("matching = %v", matching)
	}
}

func TestNode_Detail(t *testing.T) {
	h, _, _ := newTestHandler(t)
	w := do(t, h, http.MethodGet, "/api/nodes/1.1?posture=respond", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	d := decode[NodeDetail](t, w)
	if d.Feature != "Filter panel" || d.Effective != "implementing" || d.ParentID != "1" {
		t.Errorf("detail = %+v", d)
	}
	if strings.Join(d.Ancestors, ",") != "root,1" {
		t.Errorf("ancestors = %v", d.Ancestors)
	}
	if d.Posture != "respond" || len(d.Menu) == 0 {
		t.Errorf("posture %q menu %v", d.Posture, d.Menu)
	}

	parent := decode[NodeDetail](t, do(t, h, http.MethodGet, "/api/nodes/1", ""))
	if len(parent.Children) != 1 || parent.Children[0].ID != "1.1" || parent.Posture != "filter" {
		t.Errorf("parent = %+v", parent)
	}
}

func TestNode_NotFound(t *testing.T) {
	h, _, _ := newTestHandler(t)
	if w := do(t, h, http.MethodGet, "/api/nodes/9", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestTransition(t *testing.T) {
	h, gdb, n := newTestHandler(t)
	w := do(t, h, http.MethodPost, "/api/nodes/1.1/transition", `{"target":"shipped","note":"v1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	body := decode[map[string]any](t, w)
	if body["effective_status"] != "shipped" || body["stage"] != "implementing" || body["category"] != "terminus" {
		t.Errorf("body = %v", body)
	}
	stored, _ := story.Get(gdb, "1.1")
	if stored.Terminus == nil || *stored.Terminus != "shipped" || stored.Status != "ready" {
		t.Errorf("stored = %+v", stored)
	}
	if n.count() != 1 || n.events[0].Severity != notify.SeveritySuccess {
		t.Errorf("events = %+v", n.events)
	}
}

func TestTransition_Errors(t *testing.T) {
	tests := []struct {
		name, path, body string
		want             int
	}{
		{"polish without note", "/api/nodes/1/transition", `{"target":"polish"}`, http.StatusBadRequest},
		{"unknown target", "/api/nodes/1/transition", `{"target":"done"}`, http.StatusBadRequest},
		{"missing target", "/api/nodes/1/transition", `{}`, http.StatusBadRequest},
		{"unknown story", "/api/nodes/9/transition", `{"target":"planning"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, n := newTestHandler(t)
			w := do(t, h, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			if n.count() != 0 {
				t.Error("failed transition should not notify")
			}
		})
	}
}

func TestViews(t *testing.T) {
	h, _, _ := newTestHandler(t)

	kanban := decode[struct {
		Columns []ColumnView `json:"columns"`
	}](t, do(t, h, http.MethodGet, "/api/views/kanban", ""))
	cards := map[string]int{}
	for _, c := range kanban.Columns {
		cards[c.Name] = len(c.Cards)
	}
	if cards["concept"] != 2 || cards["implementing"] != 1 {
		t.Errorf("kanban = %v", cards)
	}

	heat := decode[map[string]any](t, do(t, h, http.MethodGet, "/api/views/heatmap", ""))
	if heat["total"] != float64(3) {
		t.Errorf("heatmap total = %v", heat["total"])
	}

	if w := do(t, h, http.MethodGet, "/api/views/swimlanes", ""); w.Code != http.StatusOK {
		t.Errorf("swimlanes status = %d", w.Code)
	}
}

func TestHealthAndOrphans(t *testing.T) {
	h, gdb, _ := newTestHandler(t)
	health := decode[map[string]any](t, do(t, h, http.MethodGet, "/api/health", ""))
	if health["health_status"] != story.HealthOK {
		t.Errorf("health = %v", health)
	}

	gdb.Where("descendant_id = ? AND ancestor_id <> ?", "2", "2").Delete(&models.StoryPath{})
	orphans := decode[struct {
		Count   int        `json:"count"`
		Orphans []NodeView `json:"orphans"`
	}](t, do(t, h, http.MethodGet, "/api/orphans", ""))
	if orphans.Count != 1 || orphans.Orphans[0].ID != "2" {
		t.Errorf("orphans = %+v", orphans)
	}
	health = decode[map[string]any](t, do(t, h, http.MethodGet, "/api/health", ""))
	if health["health_status"] != story.HealthIssues {
		t.Errorf("health = %v", health)
	}
}

func TestHealthMonitor_NotifiesOnIssuesAndRecovery(t *testing.T) {
	gdb := testDB(t)
	n := &recordingNotifier{}
	m := NewHealthMonitor(gdb, n, logging.NewNop(), nil)
	ctx := context.Background()

	if _, err := m.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if n.count() != 0 {
		t.Fatalf("healthy scan notified %d times", n.count())
	}

	gdb.Where("descendant_id = ? AND ancestor_id = ?", "2", "root").Delete(&models.StoryPath{})
	r, _ := m.Run(ctx)
	if r.Healthy() || n.count() != 1 {
		t.Fatalf("broken scan: healthy=%v notified=%d", r.Healthy(), n.count())
	}

	if _, err := story.RepairOrphan(gdb, "2", "root", "test"); err != nil {
		t.Fatal(err)
	}
	m.Run(ctx)
	if n.count() != 2 {
		t.Errorf("recovery should notify once, got %d events", n.count())
	}
	m.Run(ctx)
	if n.count() != 2 {
		t.Errorf("steady healthy tree notified again")
	}
	if m.Last() == nil || !m.Last().Healthy() {
		t.Errorf("Last = %+v", m.Last())
	}
}

func TestHealthMonitor_ScheduleRejectsBadSpec(t *testing.T) {
	m := NewHealthMonitor(nil, nil, logging.NewNop(), nil)
	if _, err := m.Schedule("every hour"); err == nil {
		t.Fatal("expected error")
	}
	c, err := m.Schedule("0 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	c.Stop()
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	writeSSE(&buf, "transition", map[string]string{"id": "1"})
	if got := buf.String(); got != "event: transition\ndata: {\"id\":\"1\"}\n\n" {
		t.Errorf("writeSSE = %q", got)
	}
}

func TestEvents_StreamsTransitions(t *testing.T) {
	h, _, _ := newTestHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if l := lines.Text(); strings.HasPrefix(l, "event: ") {
				return strings.TrimPrefix(l, "event: ")
			}
		}
		return ""
	}
	if ev := next(); ev != "connected" {
		t.Fatalf("first event = %q", ev)
	}

	post, err := http.Post(srv.URL+"/api/nodes/2/transition", "application/json", strings.NewReader(`{"target":"planning"}`))
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()

	if ev := next(); ev != "transition" {
		t.Errorf("event = %q, want transition", ev)
	}
}
