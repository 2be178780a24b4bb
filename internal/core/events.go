package core

import (
	"fmt"
	"strings"

	"github.com/google/go-github/v73/github"
)

// ReviewerPredicate decides whether a requested reviewer login should trigger
// a review. The bot's identity is configuration evaluated by the caller, not
// logic baked into the pipeline.
type ReviewerPredicate func(login string) bool

// GitHubEvent represents a simplified, internal view of a GitHub webhook event.
type GitHubEvent struct {
	// Repository details
	RepoOwner    string
	RepoName     string
	RepoFullName string
	RepoCloneURL string

	PRNumber int
	PRTitle  string
	PRBody   string
	HeadSHA  string

	Sender         string
	InstallationID int64
}

// EventFromIssueComment transforms a raw GitHub IssueCommentEvent into the
// application's internal GitHubEvent representation. It acts as an
// anti-corruption layer, ensuring that the incoming webhook payload is valid
// and contains all necessary data before it's processed by a job. It
// specifically filters for comments that are a "/review" command on a pull
// request.
func EventFromIssueComment(event *github.IssueCommentEvent) (*GitHubEvent, error) {
	if !event.GetIssue().IsPullRequest() {
		return nil, fmt.Errorf("comment is not on a pull request")
	}

	if !strings.EqualFold(strings.TrimSpace(event.GetComment().GetBody()), "/review") {
		return nil, fmt.Errorf("comment is not a review command")
	}

	if event.GetComment().GetUser() == nil || event.GetComment().GetUser().GetLogin() == "" {
		return nil, fmt.Errorf("commenter information is missing from the event")
	}

	ev, err := eventFromRepo(event.GetRepo(), event.GetInstallation())
	if err != nil {
		return nil, err
	}

	prNumber := event.GetIssue().GetNumber()
	if prNumber <= 0 {
		return nil, fmt.Errorf("invalid pull request number: %d", prNumber)
	}
	ev.PRNumber = prNumber
	ev.Sender = event.GetComment().GetUser().GetLogin()
	return ev, nil
}

// EventFromPullRequest transforms a PullRequestEvent into a GitHubEvent. Only
// "review_requested" actions whose requested reviewer satisfies the injected
// predicate produce an event; everything else is rejected.
func EventFromPullRequest(event *github.PullRequestEvent, isBotReviewer ReviewerPredicate) (*GitHubEvent, error) {
	if event.GetAction() != "review_requested" {
		return nil, fmt.Errorf("pull request action %q does not trigger a review", event.GetAction())
	}

	reviewer := event.GetRequestedReviewer().GetLogin()
	if reviewer == "" {
		return nil, fmt.Errorf("requested reviewer information is missing from the event")
	}
	if isBotReviewer == nil || !isBotReviewer(reviewer) {
		return nil, fmt.Errorf("requested reviewer %q is not the configured bot", reviewer)
	}

	ev, err := eventFromRepo(event.GetRepo(), event.GetInstallation())
	if err != nil {
		return nil, err
	}

	pr := event.GetPullRequest()
	if pr.GetNumber() <= 0 {
		return nil, fmt.Errorf("invalid pull request number: %d", pr.GetNumber())
	}
	ev.PRNumber = pr.GetNumber()
	ev.PRTitle = pr.GetTitle()
	ev.PRBody = pr.GetBody()
	ev.HeadSHA = pr.GetHead().GetSHA()
	ev.Sender = event.GetSender().GetLogin()
	return ev, nil
}

func eventFromRepo(repo *github.Repository, inst *github.Installation) (*GitHubEvent, error) {
	if repo == nil || repo.GetOwner() == nil || repo.GetOwner().GetLogin() == "" || repo.GetName() == "" {
		return nil, fmt.Errorf("repository or owner information is missing from the event")
	}
	if inst == nil || inst.GetID() == 0 {
		return nil, fmt.Errorf("installation ID is missing from the event")
	}

	return &GitHubEvent{
		RepoOwner:      repo.GetOwner().GetLogin(),
		RepoName:       repo.GetName(),
		RepoFullName:   repo.GetFullName(),
		RepoCloneURL:   repo.GetCloneURL(),
		InstallationID: inst.GetID(),
	}, nil
}
