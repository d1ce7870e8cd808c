// Package config provides centralized configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielolaszy/pulse/pkg/models"
	"github.com/spf13/viper"
)

const (
	// DefaultURL is the JIRA site used when no URL is configured.
	DefaultURL = "https://warthogs.atlassian.net"

	// DefaultStoryPointsField is the custom field holding story points.
	DefaultStoryPointsField = "customfield_10024"

	// DefaultCredentialsPath is where the credentials file is looked up by default.
	DefaultCredentialsPath = "~/.jira_credentials"
)

// Config holds all configuration parameters for the application.
type Config struct {
	Jira JiraConfig
}

// JiraConfig holds JIRA specific configuration.
type JiraConfig struct {
	URL              string
	Username         string
	Token            string
	StoryPointsField string
}

// Credentials returns the basic auth pair for the JIRA API.
func (c JiraConfig) Credentials() models.Credentials {
	return models.Credentials{User: c.Username, Token: c.Token}
}

// LoadCredentials reads the YAML credentials file at path. The keys user,
// token, url and story_points_field can be overridden with the JIRA_USER,
// JIRA_TOKEN, JIRA_URL and JIRA_STORY_POINTS_FIELD environment variables.
// A missing file is only an error when the environment does not supply
// the credentials either.
func LoadCredentials(path string) (*Config, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("url", DefaultURL)
	v.SetDefault("story_points_field", DefaultStoryPointsField)

	// Map specific environment variables
	v.BindEnv("user", "JIRA_USER")
	v.BindEnv("token", "JIRA_TOKEN")
	v.BindEnv("url", "JIRA_URL")
	v.BindEnv("story_points_field", "JIRA_STORY_POINTS_FIELD")

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read credentials file %s: %w", path, err)
		}
		if v.GetString("user") == "" || v.GetString("token") == "" {
			return nil, fmt.Errorf("credentials file %s not found: %w", path, err)
		}
	}

	config := &Config{
		Jira: JiraConfig{
			URL:              strings.TrimSpace(v.GetString("url")),
			Username:         strings.TrimSpace(v.GetString("user")),
			Token:            strings.TrimSpace(v.GetString("token")),
			StoryPointsField: strings.TrimSpace(v.GetString("story_points_field")),
		},
	}

	if err := ValidateJiraConfig(config); err != nil {
		return nil, fmt.Errorf("invalid credentials file %s: %w", path, err)
	}

	return config, nil
}

// ValidateJiraConfig validates JIRA-specific configuration.
func ValidateJiraConfig(config *Config) error {
	var missing []string

	if config.Jira.URL == "" {
		missing = append(missing, "url")
	}
	if config.Jira.Username == "" {
		missing = append(missing, "user")
	}
	if config.Jira.Token == "" {
		missing = append(missing, "token")
	}
	if config.Jira.StoryPointsField == "" {
		missing = append(missing, "story_points_field")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required values: %v", missing)
	}

	return nil
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
