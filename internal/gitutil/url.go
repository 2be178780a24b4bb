package gitutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	prURLRegex   = regexp.MustCompile(`github\.com/([^/]+)/([^/]+)/pull/(\d+)$`)
	repoURLRegex = regexp.MustCompile(`github\.com/([^/]+)/([^/]+?)(?:\.git)?/?$`)
)

// ParsePullRequestURL parses a GitHub Pull Request URL and extracts the owner, repo, and PR number.
// Supported format: https://github.com/{owner}/{repo}/pull/{number}
func ParsePullRequestURL(url string) (owner, repo string, prNumber int, err error) {
	url = strings.TrimSuffix(url, "/")

	matches := prURLRegex.FindStringSubmatch(url)
	if len(matches) != 4 {
		return "", "", 0, fmt.Errorf("invalid pull request URL format: %s", url)
	}

	owner = matches[1]
	repo = matches[2]
	prNumberStr := matches[3]

	prNumber, err = strconv.Atoi(prNumberStr)
	if err != nil {
		return "", "", 0, fmt.Errorf("invalid PR number '%s': %w", prNumberStr, err)
	}

	return owner, repo, prNumber, nil
}

// ParseRepoURL extracts the owner and repo name from a GitHub repository URL.
// Supported formats: https://github.com/{owner}/{repo} with an optional .git suffix.
func ParseRepoURL(url string) (owner, repo string, err error) {
	matches := repoURLRegex.FindStringSubmatch(url)
	if len(matches) != 3 {
		return "", "", fmt.Errorf("invalid repository URL format: %s", url)
	}
	return matches[1], matches[2], nil
}
