// Package models defines data structures shared across the application.
package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidIssueType is returned when an issue type is not one of Story, Task or Bug.
var ErrInvalidIssueType = errors.New("unknown issue type")

// Credentials holds the JIRA account used for basic authentication.
type Credentials struct {
	// User is the account's canonical email address
	User string

	// Token is a JIRA API token
	Token string
}

// IssueType is the JIRA issue type of an issue created by a pulse.
type IssueType string

const (
	// IssueTypeStory is a user story.
	IssueTypeStory IssueType = "Story"
	// IssueTypeTask is a task.
	IssueTypeTask IssueType = "Task"
	// IssueTypeBug is a bug.
	IssueTypeBug IssueType = "Bug"
)

// ParseIssueType validates s as one of the supported issue types.
func ParseIssueType(s string) (IssueType, error) {
	switch t := IssueType(s); t {
	case IssueTypeStory, IssueTypeTask, IssueTypeBug:
		return t, nil
	}
	return "", fmt.Errorf("%w '%s': expected Story, Task or Bug", ErrInvalidIssueType, s)
}

// Issue represents a JIRA issue to be created as part of a pulse.
type Issue struct {
	// Title is the issue's summary field
	Title string

	// Parent is the key of the epic the issue belongs to (e.g., "PROJ-12")
	Parent string

	// StoryPoints is the estimate stored in the story points custom field
	StoryPoints int

	// Description is the full body text of the issue
	Description string

	// Type is the JIRA issue type
	Type IssueType

	Labels      []string
	Components  []string
	FixVersions []string
}

// NewIssue builds an Issue, rejecting issue types other than Story, Task or Bug.
func NewIssue(title, parent string, storyPoints int, description, issueType string) (*Issue, error) {
	t, err := ParseIssueType(issueType)
	if err != nil {
		return nil, err
	}
	return &Issue{
		Title:       title,
		Parent:      parent,
		StoryPoints: storyPoints,
		Description: description,
		Type:        t,
	}, nil
}

// ApplyShared appends the pulse wide labels, components and fix versions to
// the issue's own lists. Values already present are appended again.
func (i *Issue) ApplyShared(labels, components, fixVersions []string) {
	i.Labels = append(i.Labels, labels...)
	i.Components = append(i.Components, components...)
	i.FixVersions = append(i.FixVersions, fixVersions...)
}

// Pulse represents a JIRA sprint together with the issues to seed it with.
type Pulse struct {
	// Backlog is the JIRA project key the issues are created in
	Backlog string

	// BoardID is the agile board owning the sprint
	BoardID int

	// Name is the sprint name, also used to look up an existing sprint
	Name string

	// Goal is the sprint goal
	Goal string

	// StartDate is when the sprint starts
	StartDate time.Time

	// DurationDays is the sprint length; the end date is derived from it
	DurationDays int

	// Issues are created in order and added to the sprint
	Issues []*Issue

	// ExistingIssues are keys of issues that already exist and are added to the sprint as-is
	ExistingIssues []string

	SharedComponents  []string
	SharedLabels      []string
	SharedFixVersions []string
}

// EndDate returns the start date plus the pulse duration.
func (p *Pulse) EndDate() time.Time {
	return p.StartDate.AddDate(0, 0, p.DurationDays)
}

// PulseResult records how far a pulse workflow got.
type PulseResult struct {
	// PulseID is the sprint id, zero until it has been created or found
	PulseID int

	// Created holds the keys of issues created so far, in creation order
	Created []string

	// Added holds the keys added to the sprint, empty until the final step succeeds
	Added []string
}
