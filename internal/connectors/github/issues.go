package github

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

// IssueContent is the record payload for an issue. Only fields that matter
// for the task are kept, so counters like reactions do not register as
// changes.
type IssueContent struct {
	ID         int64      `json:"id"`
	Repository string     `json:"repository"`
	Number     int        `json:"number"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	State      string     `json:"state"`
	Author     string     `json:"author"`
	HTMLURL    string     `json:"html_url"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	DueOn      *time.Time `json:"due_on,omitempty"`
	Labels     []string   `json:"labels"`
	Assignees  []string   `json:"assignees"`
	Milestone  string     `json:"milestone,omitempty"`
}

// buildIssueContent creates the IssueContent structure.
func buildIssueContent(issue *gh.Issue) IssueContent {
	labels := make([]string, len(issue.Labels))
	for i, l := range issue.Labels {
		labels[i] = l.GetName()
	}

	assignees := make([]string, len(issue.Assignees))
	for i, a := range issue.Assignees {
		assignees[i] = a.GetLogin()
	}

	content := IssueContent{
		ID:         issue.GetID(),
		Repository: issue.GetRepository().GetFullName(),
		Number:     issue.GetNumber(),
		Title:      issue.GetTitle(),
		Body:       issue.GetBody(),
		State:      issue.GetState(),
		Author:     issue.GetUser().GetLogin(),
		HTMLURL:    issue.GetHTMLURL(),
		CreatedAt:  issue.GetCreatedAt().Time,
		UpdatedAt:  issue.GetUpdatedAt().Time,
		Labels:     labels,
		Assignees:  assignees,
	}
	if issue.ClosedAt != nil {
		closed := issue.GetClosedAt().Time
		content.ClosedAt = &closed
	}
	if issue.Milestone != nil {
		content.Milestone = issue.Milestone.GetTitle()
		if issue.Milestone.DueOn != nil {
			due := issue.Milestone.GetDueOn().Time
			content.DueOn = &due
		}
	}
	return content
}

// toRecord wraps an issue. The update time orders the record because the
// list call filters on it. An issue without one keeps a zero timestamp and
// is still mapped. An error means the issue has no id.
func toRecord(issue *gh.Issue) (domain.ExternalRecord, error) {
	content := buildIssueContent(issue)
	if content.ID == 0 {
		return domain.ExternalRecord{}, fmt.Errorf("issue #%d: missing id", content.Number)
	}
	payload, err := json.Marshal(content)
	if err != nil {
		return domain.ExternalRecord{}, fmt.Errorf("issue %d: encode: %w", content.ID, err)
	}
	return domain.ExternalRecord{
		ExternalID: strconv.FormatInt(content.ID, 10),
		EntityType: domain.EntityTask,
		Timestamp:  content.UpdatedAt,
		Payload:    payload,
	}, nil
}

// MapToCanonical converts an issue into a task draft. The task spans from
// creation to closing; open issues have no end.
func (a *Adapter) MapToCanonical(record domain.ExternalRecord) (*domain.CanonicalDraft, error) {
	var content IssueContent
	if err := json.Unmarshal(record.Payload, &content); err != nil {
		return nil, fmt.Errorf("decode issue: %w", err)
	}
	if content.CreatedAt.IsZero() {
		return nil, fmt.Errorf("issue %d: missing created_at", content.ID)
	}

	attrs := map[string]any{
		"repository": content.Repository,
		"number":     content.Number,
		"state":      content.State,
		"html_url":   content.HTMLURL,
		"author":     content.Author,
		"labels":     content.Labels,
		"assignees":  content.Assignees,
		"done":       content.State == "closed",
	}
	if content.Body != "" {
		attrs["body"] = content.Body
	}
	if content.Milestone != "" {
		attrs["milestone"] = content.Milestone
	}
	if content.DueOn != nil {
		attrs["due_at"] = content.DueOn.UTC().Format(time.RFC3339)
	}

	draft := &domain.CanonicalDraft{
		EntityType: domain.EntityTask,
		Title:      fmt.Sprintf("%s#%d: %s", content.Repository, content.Number, content.Title),
		StartAt:    content.CreatedAt,
		Attributes: attrs,
	}
	if content.ClosedAt != nil {
		draft.EndAt = *content.ClosedAt
	}
	return draft, nil
}
