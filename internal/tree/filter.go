package tree

import (
	"fmt"
	"strings"

	"github.com/zulandar/storytree/internal/workflow"
)

// Filter keys that are not plain field values.
const (
	// KeyReady matches nodes whose status is ready.
	KeyReady = workflow.StatusReady
	// KeyActive matches nodes with no terminus.
	KeyActive = "active"
)

// ViewConfig is the set of checked filter keys. It is a value type: the
// With methods return modified copies and never touch the receiver.
type ViewConfig struct {
	checked map[string]bool
}

// FilterKeys lists every filter key in display order: stages, statuses
// (ready first), then active followed by the termini.
func FilterKeys() []string {
	keys := append([]string(nil), workflow.Stages...)
	keys = append(keys, workflow.Statuses...)
	keys = append(keys, KeyActive)
	return append(keys, workflow.Termini...)
}

// NewViewConfig returns a config with exactly keys checked.
func NewViewConfig(keys ...string) ViewConfig {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return ViewConfig{checked: m}
}

// DefaultViewConfig has every key checked, so every node matches.
func DefaultViewConfig() ViewConfig { return NewViewConfig(FilterKeys()...) }

// RespondPreset shows escalated work and shipped results across all stages.
func RespondPreset() ViewConfig {
	keys := append([]string(nil), workflow.Stages...)
	return NewViewConfig(append(keys, workflow.StatusEscalated, workflow.TerminusShipped)...)
}

// Checked reports whether key is checked.
func (c ViewConfig) Checked(key string) bool { return c.checked[key] }

// Keys returns the checked keys in display order.
func (c ViewConfig) Keys() []string {
	var out []string
	for _, k := range FilterKeys() {
		if c.checked[k] {
			out = append(out, k)
		}
	}
	return out
}

// With returns a copy of c with key set to on.
func (c ViewConfig) With(key string, on bool) ViewConfig {
	return c.WithCategory([]string{key}, on)
}

// WithCategory returns a copy of c with every key in keys set to on.
func (c ViewConfig) WithCategory(keys []string, on bool) ViewConfig {
	m := make(map[string]bool, len(c.checked)+len(keys))
	for k, v := range c.checked {
		if v {
			m[k] = true
		}
	}
	for _, k := range keys {
		if on {
			m[k] = true
		} else {
			delete(m, k)
		}
	}
	return ViewConfig{checked: m}
}

// Matches applies (Stage) AND (Status OR Terminus) to one node.
func (c ViewConfig) Matches(n *Node) bool {
	if !c.checked[n.Stage] {
		return false
	}
	ready := n.Status == "" || n.Status == workflow.StatusReady
	statusOK := (!ready && c.checked[n.Status]) || (ready && c.checked[KeyReady])
	active := n.Terminus == nil || *n.Terminus == ""
	terminusOK := (!active && c.checked[*n.Terminus]) || (active && c.checked[KeyActive])
	return statusOK || terminusOK
}

// Visibility is the result of filtering a tree.
type Visibility struct {
	Matching map[string]bool
	Faded    map[string]bool
}

// Visible reports whether id is shown, either matching or as a faded ancestor.
func (v Visibility) Visible(id string) bool { return v.Matching[id] || v.Faded[id] }

// IsFaded reports whether id is shown only because a descendant matched.
func (v Visibility) IsFaded(id string) bool { return v.Faded[id] }

// Filter computes which nodes match cfg. Ancestors of matching nodes that do
// not match themselves are returned as faded so the path stays visible.
func Filter(t *Tree, cfg ViewConfig) Visibility {
	v := Visibility{Matching: make(map[string]bool), Faded: make(map[string]bool)}
	for i := range t.nodes {
		if cfg.Matches(&t.nodes[i]) {
			v.Matching[t.nodes[i].ID] = true
		}
	}
	for id := range v.Matching {
		n, _ := t.Get(id)
		for _, a := range n.ancestors {
			if !v.Matching[a] {
				v.Faded[a] = true
			}
		}
	}
	return v
}

// Row is one line of the rendered tree.
type Row struct {
	Node  *Node
	Level int
	Faded bool
}

// Rows renders the visible part of t in display order. Hidden nodes prune
// their subtree.
func Rows(t *Tree, v Visibility) []Row {
	var rows []Row
	t.Walk(func(n *Node, level int) bool {
		if !v.Visible(n.ID) {
			return false
		}
		rows = append(rows, Row{Node: n, Level: level, Faded: v.IsFaded(n.ID)})
		return true
	})
	return rows
}

// filterParams maps each filter parameter name to the keys it may list.
var filterParams = []struct {
	name string
	keys []string
}{
	{"stage", workflow.Stages},
	{"status", workflow.Statuses},
	{"terminus", append([]string{KeyActive}, workflow.Termini...)},
}

// ParseViewConfig builds a filter from named comma-separated parameters
// (stage, status, terminus). respond selects RespondPreset. Otherwise every
// key starts checked and each parameter present narrows its category to the
// keys it lists.
func ParseViewConfig(respond bool, get func(name string) (string, bool)) (ViewConfig, error) {
	if respond {
		return RespondPreset(), nil
	}
	cfg := DefaultViewConfig()
	for _, p := range filterParams {
		raw, ok := get(p.name)
		if !ok {
			continue
		}
		var keys []string
		for _, k := range strings.Split(raw, ",") {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			if !contains(p.keys, k) {
				return ViewConfig{}, fmt.Errorf("unknown %s filter %q", p.name, k)
			}
			keys = append(keys, k)
		}
		cfg = cfg.WithCategory(p.keys, false).WithCategory(keys, true)
	}
	return cfg, nil
}
