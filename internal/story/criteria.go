package story

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

var checkboxRe = regexp.MustCompile(`-\s*\[([ xX])\]`)

var errNoCriteria = errors.New("no success criteria found")

// CriteriaResult reports which checkboxes MarkCriteria ticked.
type CriteriaResult struct {
	ID     string `json:"story_id"`
	Marked []int  `json:"criteria_marked"`
	Total  int    `json:"total_criteria"`
}

// MarkCriteria ticks the 1-based checkbox indices in success_criteria.
// Out-of-range and already checked indices are ignored.
func MarkCriteria(db *gorm.DB, id string, indices []int) (*CriteriaResult, error) {
	var res *CriteriaResult
	err := db.Transaction(func(tx *gorm.DB) error {
		n, err := Get(tx, id)
		if err != nil {
			return err
		}
		text := n.SuccessCriteria
		boxes := checkboxRe.FindAllStringSubmatchIndex(text, -1)
		if len(boxes) == 0 {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, id, errNoCriteria)
		}

		buf := []byte(text)
		marked := []int{}
		seen := make(map[int]bool)
		for _, idx := range indices {
			if idx < 1 || idx > len(boxes) || seen[idx] {
				continue
			}
			seen[idx] = true
			pos := boxes[idx-1][2]
			if buf[pos] == ' ' {
				buf[pos] = 'x'
				marked = append(marked, idx)
			}
		}
		sort.Ints(marked)

		if len(marked) > 0 {
			updates := map[string]interface{}{"success_criteria": string(buf), "updated_at": now()}
			if err := updateNode(tx, id, updates); err != nil {
				return err
			}
		}
		res = &CriteriaResult{ID: id, Marked: marked, Total: len(boxes)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ParseIndices parses a comma-separated list such as "1,2,3".
func ParseIndices(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, invalid("criterion index %q is not a number", part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, invalid("no criterion indices given")
	}
	return out, nil
}

// VerificationSummary counts the checkboxes of a story.
type VerificationSummary struct {
	ID          string  `json:"story_id"`
	Feature     string  `json:"title"`
	Stage       string  `json:"stage"`
	Status      string  `json:"status"`
	Terminus    *string `json:"terminus"`
	HumanReview bool    `json:"human_review"`
	Total       int     `json:"criteria_total"`
	Checked     int     `json:"criteria_checked"`
	Unchecked   int     `json:"criteria_unchecked"`
	Complete    bool    `json:"verification_complete"`
}

// Summary reports checkbox progress for id. A story with no checkboxes is
// never complete.
func Summary(db *gorm.DB, id string) (*VerificationSummary, error) {
	n, err := Get(db, id)
	if err != nil {
		return nil, err
	}
	s := &VerificationSummary{
		ID: n.ID, Feature: n.Feature, Stage: n.Stage, Status: n.Status,
		Terminus: n.Terminus, HumanReview: n.HumanReview,
	}
	for _, m := range checkboxRe.FindAllStringSubmatch(n.SuccessCriteria, -1) {
		s.Total++
		if strings.EqualFold(m[1], "x") {
			s.Checked++
		}
	}
	s.Unchecked = s.Total - s.Checked
	s.Complete = s.Total > 0 && s.Unchecked == 0
	return s, nil
}
