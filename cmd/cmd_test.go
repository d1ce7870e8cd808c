package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer answers the JIRA endpoints with canned data and counts calls per route.
type fakeServer struct {
	mu         sync.Mutex
	epics      int
	calls      map[string]int
	sprintAdds [][]string
	sprintIDs  []string
	issueN     int
}

func newFakeServer(t *testing.T, epics int) (*fakeServer, *httptest.Server) {
	t.Helper()

	f := &fakeServer{epics: epics, calls: map[string]int{}}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /rest/api/2/search", func(w http.ResponseWriter, r *http.Request) {
		f.count("search")
		var req struct {
			StartAt    int `json:"startAt"`
			MaxResults int `json:"maxResults"`
		}
		json.NewDecoder(r.Body).Decode(&req) // nolint:errcheck

		issues := []map[string]any{}
		for n := req.StartAt; n < f.epics && n < req.StartAt+req.MaxResults; n++ {
			issues = append(issues, map[string]any{
				"key":    fmt.Sprintf("PROJ-%d", n+1),
				"fields": map[string]any{"summary": fmt.Sprintf("Epic %d", n+1)},
			})
		}
		reply(w, http.StatusOK, map[string]any{"total": f.epics, "issues": issues})
	})
	mux.HandleFunc("GET /rest/agile/1.0/board/{board}/sprint", func(w http.ResponseWriter, r *http.Request) {
		f.count("sprint-list")
		values := []map[string]any{}
		if r.URL.Query().Get("startAt") == "" || r.URL.Query().Get("startAt") == "0" {
			values = append(values,
				map[string]any{"id": 54, "name": "Pulse 6", "state": "closed"},
				map[string]any{"id": 55, "name": "Pulse 7", "state": "future"},
			)
		}
		reply(w, http.StatusOK, map[string]any{"startAt": 0, "isLast": len(values) == 0, "values": values})
	})
	mux.HandleFunc("POST /rest/agile/1.0/sprint", func(w http.ResponseWriter, r *http.Request) {
		f.count("sprint-create")
		reply(w, http.StatusCreated, map[string]any{"id": 31, "name": "Pulse"})
	})
	mux.HandleFunc("POST /rest/api/2/issue", func(w http.ResponseWriter, r *http.Request) {
		f.count("issue-create")
		f.mu.Lock()
		f.issueN++
		key := fmt.Sprintf("PROJ-%d", 100+f.issueN)
		f.mu.Unlock()
		reply(w, http.StatusCreated, map[string]any{"id": "1", "key": key})
	})
	mux.HandleFunc("POST /rest/agile/1.0/epic/{epic}/issue", func(w http.ResponseWriter, r *http.Request) {
		f.count("epic-attach")
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /rest/agile/1.0/sprint/{id}/issue", func(w http.ResponseWriter, r *http.Request) {
		f.count("sprint-attach")
		var req struct {
			Issues []string `json:"issues"`
		}
		json.NewDecoder(r.Body).Decode(&req) // nolint:errcheck
		f.mu.Lock()
		f.sprintAdds = append(f.sprintAdds, req.Issues)
		f.sprintIDs = append(f.sprintIDs, r.PathValue("id"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeServer) count(route string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[route]++
}

func (f *fakeServer) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) // nolint:errcheck
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func credentialsFile(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"JIRA_USER", "JIRA_TOKEN", "JIRA_URL", "JIRA_STORY_POINTS_FIELD"} {
		t.Setenv(name, "")
	}
	return writeTemp(t, "credentials.yaml", "user: me@example.com\ntoken: secret\n")
}

// run executes the command tree with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), err
}

func TestListEpics(t *testing.T) {
	fake, srv := newFakeServer(t, 250)
	creds := credentialsFile(t)

	out, err := run(t, "--credentials", creds, "--url", srv.URL, "list-epics", "--backlog=PROJ")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 250)
	assert.Equal(t, "PROJ-1\tEpic 1", lines[0])
	assert.Equal(t, "PROJ-250\tEpic 250", lines[249])
	assert.Equal(t, 3, fake.calls["search"])
}

func TestListEpicsTable(t *testing.T) {
	_, srv := newFakeServer(t, 2)
	creds := credentialsFile(t)

	out, err := run(t, "--credentials", creds, "--url", srv.URL, "list-epics", "--backlog=PROJ", "--output=table")
	require.NoError(t, err)

	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "SUMMARY")
	assert.Contains(t, out, "PROJ-2")
	assert.Contains(t, out, "Epic 2")
	assert.NotContains(t, out, "\t")
}

func TestListEpicsValidation(t *testing.T) {
	fake, srv := newFakeServer(t, 2)
	creds := credentialsFile(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "Missing backlog",
			args:    []string{"list-epics"},
			wantErr: "backlog flag is required",
		},
		{
			name:    "Unknown output format",
			args:    []string{"list-epics", "--backlog=PROJ", "--output=json"},
			wantErr: "unknown output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--credentials", creds, "--url", srv.URL}, tt.args...)
			_, err := run(t, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
	assert.Zero(t, fake.total())
}

func TestUnknownSubcommand(t *testing.T) {
	_, err := run(t, "delete-everything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestMissingSubcommand(t *testing.T) {
	_, err := run(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subcommand is required")
}

func TestMissingCredentials(t *testing.T) {
	fake, srv := newFakeServer(t, 2)
	credentialsFile(t)

	_, err := run(t, "--credentials", filepath.Join(t.TempDir(), "nope"), "--url", srv.URL, "list-epics", "--backlog=PROJ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.Zero(t, fake.total())
}

const scenarioPulse = `
backlog: PROJ
board_id: 42
pulse_name: "Pulse 7"
pulse_goal: "Ship it"
start_date: 2024-02-26
duration_days: 14
shared_labels: ["platform"]
existing_issues: ["PROJ-9"]
issues:
  - title: Add endpoint
    parent: PROJ-1
    story_points: 3
    issue_type: Story
    description: Expose the new API
  - title: Fix crash
    parent: PROJ-2
    story_points: 1
    issue_type: Bug
    description: Crash on start
`

func TestNewPulse(t *testing.T) {
	fake, srv := newFakeServer(t, 0)
	creds := credentialsFile(t)
	path := writeTemp(t, "pulse.yaml", scenarioPulse)

	out, err := run(t, "--credentials", creds, "--url", srv.URL, "new-pulse", "--path", path)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.calls["sprint-create"])
	assert.Equal(t, 2, fake.calls["issue-create"])
	assert.Equal(t, 2, fake.calls["epic-attach"])
	assert.Equal(t, 1, fake.calls["sprint-attach"])
	require.Len(t, fake.sprintAdds, 1)
	assert.Equal(t, []string{"PROJ-101", "PROJ-102", "PROJ-9"}, fake.sprintAdds[0])

	// raw creation responses are dumped to stdout
	assert.Contains(t, out, `"key":"PROJ-101"`)
	assert.Contains(t, out, `"key":"PROJ-102"`)
}

func TestNewPulseExisting(t *testing.T) {
	fake, srv := newFakeServer(t, 0)
	creds := credentialsFile(t)
	path := writeTemp(t, "pulse.yaml", scenarioPulse)

	_, err := run(t, "--credentials", creds, "--url", srv.URL, "new-pulse", "--path", path, "--pulse-exists")
	require.NoError(t, err)

	assert.Zero(t, fake.calls["sprint-create"])
	assert.Equal(t, 1, fake.calls["sprint-list"])
	assert.Equal(t, 2, fake.calls["issue-create"])
	assert.Equal(t, 2, fake.calls["epic-attach"])
	require.Len(t, fake.sprintAdds, 1)
	assert.Equal(t, []string{"55"}, fake.sprintIDs)
	assert.Equal(t, []string{"PROJ-101", "PROJ-102", "PROJ-9"}, fake.sprintAdds[0])
}

func TestNewPulseExistingNotFound(t *testing.T) {
	fake, srv := newFakeServer(t, 0)
	creds := credentialsFile(t)
	path := writeTemp(t, "pulse.yaml", strings.Replace(scenarioPulse, `"Pulse 7"`, `"Pulse 8"`, 1))

	_, err := run(t, "--credentials", creds, "--url", srv.URL, "new-pulse", "--path", path, "--pulse-exists")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown pulse name: 'Pulse 8'")
	assert.Equal(t, 2, fake.calls["sprint-list"])
	assert.Zero(t, fake.calls["issue-create"])
	assert.Zero(t, fake.calls["sprint-attach"])
}

func TestNewPulseInvalidDefinition(t *testing.T) {
	fake, srv := newFakeServer(t, 0)
	creds := credentialsFile(t)
	path := writeTemp(t, "pulse.yaml", strings.Replace(scenarioPulse, "issue_type: Bug", "issue_type: Epic", 1))

	_, err := run(t, "--credentials", creds, "--url", srv.URL, "new-pulse", "--path", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown issue type 'Epic'")
	assert.Zero(t, fake.total(), "no call may be made for an invalid definition")
}

func TestNewPulseRequiresPath(t *testing.T) {
	_, err := run(t, "new-pulse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path flag is required")
}
