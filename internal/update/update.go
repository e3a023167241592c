// Package update checks whether a newer inbox release is published.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

const (
	DefaultReleasesURL = "https://api.github.com/repos/socialinbox/inbox-cli/releases/latest"
	CheckTimeout       = 5 * time.Second

	// EnvReleasesURL points the check at a mirror or a test server.
	EnvReleasesURL = "INBOX_RELEASES_URL"
	// EnvNoUpdateCheck disables the check entirely.
	EnvNoUpdateCheck = "INBOX_NO_UPDATE_CHECK"
)

// Release is the subset of the releases API response the check reads.
type Release struct {
	TagName    string `json:"tag_name"`
	HTMLURL    string `json:"html_url"`
	Prerelease bool   `json:"prerelease"`
}

// Result reports the outcome of a check.
type Result struct {
	CurrentVersion  string `json:"current_version"`
	LatestVersion   string `json:"latest_version"`
	UpdateURL       string `json:"update_url,omitempty"`
	UpdateAvailable bool   `json:"update_available"`
}

// Checker queries a releases endpoint.
type Checker struct {
	URL  string
	HTTP *http.Client
}

// NewChecker returns a Checker for the configured releases endpoint.
func NewChecker() *Checker {
	url := os.Getenv(EnvReleasesURL)
	if url == "" {
		url = DefaultReleasesURL
	}
	return &Checker{URL: url, HTTP: &http.Client{Timeout: CheckTimeout}}
}

// Disabled reports whether update checks are turned off by environment.
func Disabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(EnvNoUpdateCheck)))
	return v == "1" || v == "true" || v == "yes"
}

// Check compares currentVersion against the latest published release.
// Development builds ("dev" or empty) are never reported as outdated.
func (c *Checker) Check(ctx context.Context, currentVersion string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checking for updates: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("checking for updates: unexpected status %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decoding release: %w", err)
	}

	result := &Result{
		CurrentVersion: currentVersion,
		LatestVersion:  strings.TrimPrefix(release.TagName, "v"),
		UpdateURL:      release.HTMLURL,
	}
	if release.Prerelease || isDevBuild(currentVersion) {
		return result, nil
	}

	current := Canonical(currentVersion)
	latest := Canonical(release.TagName)
	if semver.IsValid(current) && semver.IsValid(latest) {
		result.UpdateAvailable = semver.Compare(latest, current) > 0
	}
	return result, nil
}

// Canonical returns v with a leading "v" and no build metadata, the form
// semver.Compare expects.
func Canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if c := semver.Canonical(v); c != "" {
		return c
	}
	return v
}

func isDevBuild(v string) bool {
	return v == "" || v == "dev"
}
