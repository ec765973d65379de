package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Feed names accepted by Scenario.Feed.
const (
	FeedComments      = "comments"
	FeedNotifications = "notifications"
)

// Scenario is a scripted reconciliation run.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Feed selects the payload type: comments or notifications.
	Feed string `yaml:"feed"`

	// Parent is the thread or inbox key. Defaults to "parent".
	Parent string `yaml:"parent,omitempty"`

	// MatchWindow overrides the dedup window, as a Go duration.
	MatchWindow string `yaml:"match_window,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Row describes one record. Which fields matter depends on the feed.
type Row struct {
	ID         string `yaml:"id,omitempty"`
	Author     string `yaml:"author,omitempty"`
	AuthorName string `yaml:"author_name,omitempty"`
	Body       string `yaml:"body,omitempty"`
	Type       string `yaml:"type,omitempty"`
	Slug       string `yaml:"slug,omitempty"`
	Read       *bool  `yaml:"read,omitempty"`

	// At is the row's creation time as an offset from the epoch.
	At string `yaml:"at,omitempty"`
}

// Step is one operation.
type Step struct {
	Op      string   `yaml:"op"`
	LocalID string   `yaml:"local_id,omitempty"`
	Kind    string   `yaml:"kind,omitempty"`
	Row     *Row     `yaml:"row,omitempty"`
	Rows    []Row    `yaml:"rows,omitempty"`
	IDs     []string `yaml:"ids,omitempty"`
	By      string   `yaml:"by,omitempty"`

	// Expect is the outcome the step must produce, if set.
	Expect string `yaml:"expect,omitempty"`
}

// Assertion validates the final list.
type Assertion struct {
	Type  string       `yaml:"type"`
	Items []ItemExpect `yaml:"items,omitempty"`
	Count int          `yaml:"count,omitempty"`
	IDs   []string     `yaml:"ids,omitempty"`
}

// ItemExpect matches one item. Empty fields are not compared.
type ItemExpect struct {
	ID         string `yaml:"id"`
	Origin     string `yaml:"origin,omitempty"`
	Body       string `yaml:"body,omitempty"`
	AuthorName string `yaml:"author_name,omitempty"`
	ReadState  string `yaml:"read_state,omitempty"`
}

// Operation names.
const (
	OpSeed          = "seed"
	OpResync        = "resync"
	OpAdvance       = "advance"
	OpOptimistic    = "optimistic"
	OpAck           = "ack"
	OpWriteFailed   = "write_failed"
	OpEvent         = "event"
	OpDetail        = "detail"
	OpDetailMissing = "detail_missing"
	OpMarkRead      = "mark_read"
	OpRevertRead    = "revert_read"
)

// Assertion type constants.
const (
	AssertItems  = "items"
	AssertLen    = "len"
	AssertUnread = "unread"
	AssertAbsent = "absent"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields so typos like "assertion:" fail loudly.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if scenario.Parent == "" {
		scenario.Parent = "parent"
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Feed != FeedComments && s.Feed != FeedNotifications {
		return fmt.Errorf("feed must be %q or %q, got %q", FeedComments, FeedNotifications, s.Feed)
	}
	if s.MatchWindow != "" {
		if _, err := time.ParseDuration(s.MatchWindow); err != nil {
			return fmt.Errorf("match_window: %w", err)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	if step.Row != nil && step.Row.At != "" {
		if _, err := time.ParseDuration(step.Row.At); err != nil {
			return fmt.Errorf("row.at: %w", err)
		}
	}
	for _, r := range step.Rows {
		if r.ID == "" {
			return fmt.Errorf("%s: every row needs an id", step.Op)
		}
		if r.At != "" {
			if _, err := time.ParseDuration(r.At); err != nil {
				return fmt.Errorf("rows[%s].at: %w", r.ID, err)
			}
		}
	}

	switch step.Op {
	case OpSeed, OpResync:
	case OpAdvance:
		if _, err := time.ParseDuration(step.By); err != nil {
			return fmt.Errorf("advance: by: %w", err)
		}
	case OpOptimistic:
		if step.LocalID == "" || step.Row == nil {
			return fmt.Errorf("optimistic: local_id and row are required")
		}
	case OpAck:
		if step.LocalID == "" || step.Row == nil || step.Row.ID == "" {
			return fmt.Errorf("ack: local_id and row.id are required")
		}
	case OpWriteFailed:
		if step.LocalID == "" {
			return fmt.Errorf("write_failed: local_id is required")
		}
	case OpEvent:
		switch step.Kind {
		case "inserted", "updated", "deleted":
		default:
			return fmt.Errorf("event: unknown kind %q", step.Kind)
		}
		if step.Row == nil || step.Row.ID == "" {
			return fmt.Errorf("event: row.id is required")
		}
	case OpDetail:
		if step.Row == nil || step.Row.ID == "" {
			return fmt.Errorf("detail: row.id is required")
		}
	case OpDetailMissing, OpMarkRead, OpRevertRead:
		if len(step.IDs) == 0 {
			return fmt.Errorf("%s: ids are required", step.Op)
		}
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	switch step.Expect {
	case "", "applied", "ignored", "buffered", "needs_detail":
	default:
		return fmt.Errorf("%s: unknown expected outcome %q", step.Op, step.Expect)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertItems:
		for i, it := range a.Items {
			if it.ID == "" {
				return fmt.Errorf("items[%d]: id is required", i)
			}
		}
	case AssertLen, AssertUnread:
		if a.Count < 0 {
			return fmt.Errorf("%s: count must be non-negative", a.Type)
		}
	case AssertAbsent:
		if len(a.IDs) == 0 {
			return fmt.Errorf("absent: ids are required")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
