package tree

import (
	"reflect"
	"testing"
)

func TestDefaultViewConfig_ShowsEverything(t *testing.T) {
	f := sample()
	f.node("1").Status = "blocked"
	f.node("2").Terminus = strPtr("archived")
	tr := Build(f.nodes, f.paths)

	v := Filter(tr, DefaultViewConfig())
	if len(v.Matching) != tr.Len() || len(v.Faded) != 0 {
		t.Errorf("matching = %d, faded = %d, want %d and 0", len(v.Matching), len(v.Faded), tr.Len())
	}
}

func TestViewConfig_StageAndStatusOrTerminus(t *testing.T) {
	cfg := NewViewConfig("concept", "blocked")
	f := sample()
	f.node("1").Status = "blocked"
	f.node("2").Stage = "planning"
	f.node("2").Status = "blocked"
	tr := Build(f.nodes, f.paths)

	n1, _ := tr.Get("1")
	n2, _ := tr.Get("2")
	n10, _ := tr.Get("10")
	if !cfg.Matches(n1) {
		t.Error("concept+blocked should match")
	}
	if cfg.Matches(n2) {
		t.Error("planning stage is unchecked")
	}
	if cfg.Matches(n10) {
		t.Error("ready and active are unchecked")
	}
	if !cfg.With(KeyActive, true).Matches(n10) {
		t.Error("active should match a node without terminus")
	}
	if !cfg.With(KeyReady, true).Matches(n10) {
		t.Error("ready should match a ready node")
	}
}

func TestViewConfig_WithIsCopy(t *testing.T) {
	base := NewViewConfig("concept")
	changed := base.With("planning", true).With("concept", false)
	if !base.Checked("concept") || base.Checked("planning") {
		t.Error("With mutated the receiver")
	}
	if changed.Checked("concept") || !changed.Checked("planning") {
		t.Errorf("changed keys = %v", changed.Keys())
	}
}

func TestRespondPreset(t *testing.T) {
	f := sample()
	f.node("1").Status = "escalated"
	f.node("10.1").Stage = "releasing"
	f.node("10.1").Terminus = strPtr("shipped")
	f.node("10.2").Terminus = strPtr("archived")
	tr := Build(f.nodes, f.paths)

	v := Filter(tr, RespondPreset())
	var matching []string
	for id := range v.Matching {
		matching = append(matching, id)
	}
	SortIDs(matching)
	if want := []string{"1", "10.1"}; !reflect.DeepEqual(matching, want) {
		t.Errorf("matching = %v, want %v", matching, want)
	}
	for _, id := range []string{"root", "10"} {
		if !v.IsFaded(id) {
			t.Errorf("%s should be a faded ancestor", id)
		}
	}
	if v.Visible("2") || v.Visible("10.1.1") {
		t.Error("unmatched leaves should be hidden")
	}
}

func TestRows(t *testing.T) {
	f := sample()
	for i := range f.nodes {
		f.nodes[i].Stage = "planning"
	}
	f.node("10.1.1").Stage = "concept"
	tr := Build(f.nodes, f.paths)

	rows := Rows(tr, Filter(tr, NewViewConfig("concept", KeyReady)))
	var got []string
	var levels []int
	for _, r := range rows {
		got = append(got, r.Node.ID)
		levels = append(levels, r.Level)
	}
	if want := []string{"root", "10", "10.1", "10.1.1"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("rows = %v, want %v", got, want)
	}
	if want := []int{0, 1, 2, 3}; !reflect.DeepEqual(levels, want) {
		t.Errorf("levels = %v, want %v", levels, want)
	}
	if !rows[0].Faded || rows[3].Faded {
		t.Error("ancestors should be faded, the match should not")
	}
}

func TestFilterKeys_Unique(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range FilterKeys() {
		if seen[k] {
			t.Errorf("duplicate key %q", k)
		}
		seen[k] = true
	}
	if !seen[KeyActive] || !seen[KeyReady] {
		t.Error("special keys missing")
	}
}

func TestParseViewConfig(t *testing.T) {
	params := func(m map[string]string) func(string) (string, bool) {
		return func(k string) (string, bool) {
			v, ok := m[k]
			return v, ok
		}
	}

	cfg, err := ParseViewConfig(false, params(nil))
	if err != nil {
		t.Fatalf("ParseViewConfig: %v", err)
	}
	if !reflect.DeepEqual(cfg.Keys(), FilterKeys()) {
		t.Errorf("no params keys = %v, want every key", cfg.Keys())
	}

	cfg, err = ParseViewConfig(false, params(map[string]string{"stage": "planning, testing", "terminus": "shipped"}))
	if err != nil {
		t.Fatalf("ParseViewConfig: %v", err)
	}
	if cfg.Checked("concept") || !cfg.Checked("planning") || !cfg.Checked("testing") {
		t.Errorf("stage keys = %v", cfg.Keys())
	}
	if cfg.Checked(KeyActive) || !cfg.Checked("shipped") {
		t.Errorf("terminus keys = %v", cfg.Keys())
	}
	if !cfg.Checked("blocked") {
		t.Error("status category should stay fully checked")
	}

	cfg, err = ParseViewConfig(true, params(map[string]string{"stage": "planning"}))
	if err != nil {
		t.Fatalf("ParseViewConfig respond: %v", err)
	}
	if !reflect.DeepEqual(cfg.Keys(), RespondPreset().Keys()) {
		t.Errorf("respond keys = %v", cfg.Keys())
	}

	if _, err := ParseViewConfig(false, params(map[string]string{"status": "shipped"})); err == nil {
		t.Error("expected error for terminus named as status")
	}
}
