package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/danielolaszy/pulse/pkg/models"
	"gopkg.in/yaml.v3"
)

// ValidationError aggregates every problem found in a pulse definition.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid pulse definition: %s", strings.Join(e.Problems, "; "))
}

// pulseFile is the on-disk shape of a pulse definition.
type pulseFile struct {
	Backlog           string      `yaml:"backlog"`
	BoardID           *int        `yaml:"board_id"`
	PulseName         string      `yaml:"pulse_name"`
	PulseGoal         *string     `yaml:"pulse_goal"`
	StartDate         string      `yaml:"start_date"`
	DurationDays      *int        `yaml:"duration_days"`
	Issues            []issueFile `yaml:"issues"`
	ExistingIssues    []string    `yaml:"existing_issues"`
	SharedComponents  []string    `yaml:"shared_components"`
	SharedLabels      []string    `yaml:"shared_labels"`
	SharedFixVersions []string    `yaml:"shared_fix_versions"`
}

type issueFile struct {
	Title       string   `yaml:"title"`
	Parent      string   `yaml:"parent"`
	StoryPoints *int     `yaml:"story_points"`
	Description *string  `yaml:"description"`
	IssueType   string   `yaml:"issue_type"`
	Labels      []string `yaml:"labels"`
	Components  []string `yaml:"components"`
	FixVersions []string `yaml:"fix_versions"`
}

// startDateLayouts are the ISO-8601 forms accepted for start_date.
var startDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// LoadPulse reads and validates the pulse definition at path.
func LoadPulse(path string) (*models.Pulse, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("pulse definition %s not found", path)
		}
		return nil, err
	}
	return PulseFromYAML(data)
}

// PulseFromYAML decodes a pulse definition, rejecting unknown keys.
func PulseFromYAML(data []byte) (*models.Pulse, error) {
	var raw pulseFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var typeErrs []string
	if err := dec.Decode(&raw); err != nil {
		var te *yaml.TypeError
		switch {
		case errors.Is(err, io.EOF):
			return nil, &ValidationError{Problems: []string{"pulse definition is empty"}}
		case errors.As(err, &te):
			// Decoding continues past type errors, so the rest is still validated.
			typeErrs = te.Errors
		default:
			return nil, fmt.Errorf("failed to parse pulse definition: %w", err)
		}
	}
	return raw.toPulse(typeErrs)
}

func (f *pulseFile) toPulse(typeErrs []string) (*models.Pulse, error) {
	problems := append([]string(nil), typeErrs...)
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	p := &models.Pulse{
		Backlog:           strings.TrimSpace(f.Backlog),
		Name:              f.PulseName,
		ExistingIssues:    f.ExistingIssues,
		SharedComponents:  f.SharedComponents,
		SharedLabels:      f.SharedLabels,
		SharedFixVersions: f.SharedFixVersions,
	}

	if p.Backlog == "" {
		fail("backlog is required")
	}
	if f.BoardID == nil {
		fail("board_id is required")
	} else {
		p.BoardID = *f.BoardID
	}
	if strings.TrimSpace(p.Name) == "" {
		fail("pulse_name is required")
	}
	if f.PulseGoal == nil {
		fail("pulse_goal is required")
	} else {
		p.Goal = *f.PulseGoal
	}
	if f.DurationDays == nil {
		fail("duration_days is required")
	} else if *f.DurationDays < 0 {
		fail("duration_days must not be negative, got %d", *f.DurationDays)
	} else {
		p.DurationDays = *f.DurationDays
	}

	if strings.TrimSpace(f.StartDate) == "" {
		fail("start_date is required")
	} else if start, err := parseStartDate(f.StartDate); err != nil {
		fail("start_date %q is not an ISO-8601 date", f.StartDate)
	} else {
		p.StartDate = start
	}

	// An empty list is fine when the pulse only gathers existing issues.
	if f.Issues == nil {
		fail("issues is required")
	}
	for n, raw := range f.Issues {
		if strings.TrimSpace(raw.Title) == "" {
			fail("issues[%d]: title is required", n)
		}
		if strings.TrimSpace(raw.Parent) == "" {
			fail("issues[%d]: parent is required", n)
		}
		if raw.StoryPoints == nil {
			fail("issues[%d]: story_points is required", n)
		} else if *raw.StoryPoints < 0 {
			fail("issues[%d]: story_points must not be negative, got %d", n, *raw.StoryPoints)
		}
		if raw.Description == nil {
			fail("issues[%d]: description is required", n)
		}
		issue, err := models.NewIssue(raw.Title, raw.Parent, deref(raw.StoryPoints), deref(raw.Description), raw.IssueType)
		if err != nil {
			fail("issues[%d]: %v", n, err)
			continue
		}
		issue.Labels = raw.Labels
		issue.Components = raw.Components
		issue.FixVersions = raw.FixVersions
		p.Issues = append(p.Issues, issue)
	}

	for n, key := range f.ExistingIssues {
		if strings.TrimSpace(key) == "" {
			fail("existing_issues[%d] is empty", n)
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return p, nil
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

func parseStartDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range startDateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
