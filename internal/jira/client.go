// Package jira provides the JIRA API client used to list epics and build pulses.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"github.com/danielolaszy/pulse/internal/config"
	"github.com/danielolaszy/pulse/internal/logging"
	"github.com/danielolaszy/pulse/pkg/models"
	"github.com/trivago/tgo/tcontainer"
)

// searchPageSize is the number of issues requested per search page.
const searchPageSize = 100

// ErrPulseNotFound is returned when no sprint on a board carries the requested name.
var ErrPulseNotFound = errors.New("unknown pulse name")

// Client handles interactions with the JIRA API.
//
// A Client holds no locks; its methods must not be called concurrently.
type Client struct {
	client           *jira.Client
	storyPointsField string
	pageSize         int

	// dump receives the raw body of every issue creation response when set.
	dump io.Writer
}

// NewClient creates a JIRA client authenticating with basic auth against cfg.URL.
// When dump is not nil, raw issue creation responses are written to it.
func NewClient(cfg config.JiraConfig, dump io.Writer) (*Client, error) {
	if err := config.ValidateJiraConfig(&config.Config{Jira: cfg}); err != nil {
		return nil, err
	}

	creds := cfg.Credentials()
	tp := jira.BasicAuthTransport{
		Username: creds.User,
		Password: creds.Token,
	}

	client, err := jira.NewClient(tp.Client(), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}

	logging.Debug("jira configuration",
		"url", cfg.URL,
		"user", creds.User,
		"token", logging.MaskSensitive(creds.Token),
		"story_points_field", cfg.StoryPointsField)

	return &Client{
		client:           client,
		storyPointsField: cfg.StoryPointsField,
		pageSize:         searchPageSize,
		dump:             dump,
	}, nil
}

type searchRequest struct {
	JQL        string   `json:"jql"`
	Fields     []string `json:"fields"`
	MaxResults int      `json:"maxResults"`
	StartAt    int      `json:"startAt"`
}

type searchResult struct {
	StartAt    int          `json:"startAt"`
	MaxResults int          `json:"maxResults"`
	Total      int          `json:"total"`
	Issues     []jira.Issue `json:"issues"`
}

type sprintRequest struct {
	Name          string `json:"name"`
	Goal          string `json:"goal"`
	OriginBoardID int    `json:"originBoardId"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
}

// ListOpenEpics returns "<key>\t<summary>" for every epic in project whose
// status category is not Done, in the order JIRA returns them.
func (c *Client) ListOpenEpics(ctx context.Context, project string) ([]string, error) {
	if strings.TrimSpace(project) == "" {
		return nil, fmt.Errorf("project key is required")
	}

	jql := fmt.Sprintf("project=%s AND issuetype=Epic AND statusCategory!=Done", project)
	logging.Info("pulling epic details", "project", project)

	var epics []string
	start := 0
	for {
		payload := searchRequest{
			JQL:        jql,
			Fields:     []string{"summary"},
			MaxResults: c.pageSize,
			StartAt:    start,
		}

		var page searchResult
		if err := c.post(ctx, "rest/api/2/search", payload, &page); err != nil {
			return nil, fmt.Errorf("failed to search epics in %s: %w", project, err)
		}

		logging.Debug("fetched epic page",
			"project", project,
			"start_at", start,
			"count", len(page.Issues),
			"total", page.Total)

		if len(page.Issues) == 0 {
			return epics, nil
		}

		for _, issue := range page.Issues {
			summary := ""
			if issue.Fields != nil {
				summary = issue.Fields.Summary
			}
			epics = append(epics, issue.Key+"\t"+summary)
		}

		start += len(page.Issues)
		if page.Total > 0 && start >= page.Total {
			return epics, nil
		}
	}
}

// FindPulseID pages through the sprints of a board and returns the id of the
// first one named name. It fails with ErrPulseNotFound once a page comes back empty.
func (c *Client) FindPulseID(ctx context.Context, boardID int, name string) (int, error) {
	start := 0
	for {
		opts := &jira.GetAllSprintsOptions{
			SearchOptions: jira.SearchOptions{StartAt: start},
		}

		list, _, err := c.client.Board.GetAllSprintsWithOptionsWithContext(ctx, boardID, opts)
		if err != nil {
			return 0, fmt.Errorf("failed to list sprints of board %d: %w", boardID, err)
		}

		if len(list.Values) == 0 {
			return 0, fmt.Errorf("%w: '%s'", ErrPulseNotFound, name)
		}

		for _, sprint := range list.Values {
			if sprint.Name == name {
				return sprint.ID, nil
			}
		}

		start += len(list.Values)
	}
}

// CreatePulse resolves the pulse's sprint, creates every issue of the pulse,
// links each one to its epic and finally adds the new and the existing issues
// to the sprint. When pulseExists is true the sprint is looked up by name
// instead of being created.
//
// The steps are not transactional: on error, whatever was created stays in
// JIRA and the returned result records how far the workflow got.
func (c *Client) CreatePulse(ctx context.Context, p *models.Pulse, pulseExists bool) (*models.PulseResult, error) {
	result := &models.PulseResult{}

	var err error
	if !pulseExists {
		logging.Info("creating new pulse", "name", p.Name, "board_id", p.BoardID)
		result.PulseID, err = c.newPulse(ctx, p)
	} else {
		logging.Info("fetching id of existing pulse", "name", p.Name, "board_id", p.BoardID)
		result.PulseID, err = c.FindPulseID(ctx, p.BoardID, p.Name)
	}
	if err != nil {
		return result, err
	}
	logging.Info("pulse id resolved", "pulse_id", result.PulseID)

	logging.Info("creating issues", "count", len(p.Issues), "backlog", p.Backlog)
	for _, issue := range p.Issues {
		issue.ApplyShared(p.SharedLabels, p.SharedComponents, p.SharedFixVersions)

		key, err := c.newIssue(ctx, issue, p.Backlog)
		if err != nil {
			return result, err
		}
		result.Created = append(result.Created, key)
	}

	keys := make([]string, 0, len(result.Created)+len(p.ExistingIssues))
	keys = append(keys, result.Created...)
	keys = append(keys, p.ExistingIssues...)

	logging.Info("adding issues to pulse", "pulse_id", result.PulseID, "count", len(keys))
	if err := c.AddIssuesToPulse(ctx, result.PulseID, keys); err != nil {
		return result, err
	}
	result.Added = keys

	logging.Info("done", "pulse_id", result.PulseID, "created", len(result.Created))
	return result, nil
}

// AddIssuesToPulse moves the given issues into the sprint.
func (c *Client) AddIssuesToPulse(ctx context.Context, pulseID int, keys []string) error {
	resp, err := c.client.Sprint.MoveIssuesToSprintWithContext(ctx, pulseID, keys)
	if err != nil {
		return fmt.Errorf("failed to add issues to pulse %d: %w", pulseID, err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) newPulse(ctx context.Context, p *models.Pulse) (int, error) {
	payload := sprintRequest{
		Name:          p.Name,
		Goal:          p.Goal,
		OriginBoardID: p.BoardID,
		StartDate:     p.StartDate.Format(time.RFC3339),
		EndDate:       p.EndDate().Format(time.RFC3339),
	}

	var sprint jira.Sprint
	if err := c.post(ctx, "rest/agile/1.0/sprint", payload, &sprint); err != nil {
		return 0, fmt.Errorf("failed to create pulse '%s': %w", p.Name, err)
	}
	return sprint.ID, nil
}

// newIssue creates the issue in backlog and links it to its parent epic.
// Creation and the epic link are separate calls because JIRA ignores the
// parent epic on creation.
func (c *Client) newIssue(ctx context.Context, issue *models.Issue, backlog string) (string, error) {
	fields := &jira.IssueFields{
		Project:     jira.Project{Key: backlog},
		Summary:     issue.Title,
		Description: issue.Description,
		Type:        jira.IssueType{Name: string(issue.Type)},
		Labels:      issue.Labels,
		Components:  components(issue.Components),
		FixVersions: fixVersions(issue.FixVersions),
		Unknowns: tcontainer.MarshalMap{
			c.storyPointsField: issue.StoryPoints,
		},
	}

	raw, err := c.postRaw(ctx, "rest/api/2/issue", &jira.Issue{Fields: fields})
	if c.dump != nil && len(raw) > 0 {
		fmt.Fprintln(c.dump, string(bytes.TrimSpace(raw)))
	}
	if err != nil {
		return "", fmt.Errorf("failed to create issue '%s': %w", issue.Title, err)
	}

	var created jira.Issue
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", fmt.Errorf("failed to decode created issue '%s': %w", issue.Title, err)
	}
	if created.Key == "" {
		return "", fmt.Errorf("jira returned no key for issue '%s'", issue.Title)
	}

	endpoint := fmt.Sprintf("rest/agile/1.0/epic/%s/issue", issue.Parent)
	if err := c.post(ctx, endpoint, jira.IssuesWrapper{Issues: []string{created.Key}}, nil); err != nil {
		return "", fmt.Errorf("failed to move %s into epic %s: %w", created.Key, issue.Parent, err)
	}

	logging.Info("issue created", "key", created.Key, "epic", issue.Parent, "type", issue.Type)
	return created.Key, nil
}

// post sends body as JSON and decodes the response into v when v is not nil.
func (c *Client) post(ctx context.Context, endpoint string, body, v interface{}) error {
	req, err := c.client.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req, v)
	if err != nil {
		return jira.NewJiraError(resp, err)
	}
	if v == nil {
		// Do only drains the body when it has something to decode into.
		resp.Body.Close()
	}
	return nil
}

// postRaw sends body as JSON and returns the response body as is, also when
// JIRA answers with an error status.
func (c *Client) postRaw(ctx context.Context, endpoint string, body interface{}) ([]byte, error) {
	req, err := c.client.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req, nil)
	if resp == nil {
		return nil, jira.NewJiraError(resp, err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	if err != nil {
		// NewJiraError reads the error details from the body again.
		resp.Body = io.NopCloser(bytes.NewReader(raw))
		return raw, jira.NewJiraError(resp, err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read response: %w", readErr)
	}
	return raw, nil
}

func components(names []string) []*jira.Component {
	if len(names) == 0 {
		return nil
	}
	out := make([]*jira.Component, 0, len(names))
	for _, name := range names {
		out = append(out, &jira.Component{Name: name})
	}
	return out
}

func fixVersions(names []string) []*jira.FixVersion {
	if len(names) == 0 {
		return nil
	}
	out := make([]*jira.FixVersion, 0, len(names))
	for _, name := range names {
		out = append(out, &jira.FixVersion{Name: name})
	}
	return out
}
