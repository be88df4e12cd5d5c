package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"ghrelay/internal/config"
	"ghrelay/pkg/tgtext"
)

const (
	maxPushCommits   = 3
	commitSummaryMax = 100
)

// Payload shapes for the events the relay formats. Only the fields the
// templates use are decoded.

type pushPayload struct {
	Ref        string `json:"ref"`
	Repository repoRef `json:"repository"`
	Pusher     struct {
		Name string `json:"name"`
	} `json:"pusher"`
	Commits []struct {
		ID      string `json:"id"`
		Message string `json:"message"`
		URL     string `json:"url"`
		Author  struct {
			Name string `json:"name"`
		} `json:"author"`
	} `json:"commits"`
}

type issuesPayload struct {
	Action     string  `json:"action"`
	Repository repoRef `json:"repository"`
	Issue      struct {
		Number  int     `json:"number"`
		Title   string  `json:"title"`
		HTMLURL string  `json:"html_url"`
		User    userRef `json:"user"`
	} `json:"issue"`
}

type pullRequestPayload struct {
	Action      string  `json:"action"`
	Repository  repoRef `json:"repository"`
	PullRequest struct {
		Number  int     `json:"number"`
		Title   string  `json:"title"`
		HTMLURL string  `json:"html_url"`
		User    userRef `json:"user"`
		Merged  bool    `json:"merged"`
		Base    branchRef `json:"base"`
		Head    branchRef `json:"head"`
	} `json:"pull_request"`
}

type releasePayload struct {
	Action     string  `json:"action"`
	Repository repoRef `json:"repository"`
	Release    struct {
		Name    string  `json:"name"`
		TagName string  `json:"tag_name"`
		HTMLURL string  `json:"html_url"`
		Author  userRef `json:"author"`
	} `json:"release"`
}

type pingPayload struct {
	Repository repoRef `json:"repository"`
}

type repoRef struct {
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
}

type userRef struct {
	Login string `json:"login"`
}

type branchRef struct {
	Ref string `json:"ref"`
}

var issueActionEmoji = map[string]string{
	"opened":   "🆕",
	"closed":   "✅",
	"reopened": "🔄",
	"edited":   "✏️",
}

var prActionEmoji = map[string]string{
	"opened":   "🆕",
	"closed":   "✅",
	"merged":   "🎉",
	"reopened": "🔄",
	"edited":   "✏️",
}

// Formatter maps a raw webhook delivery to a notification message.
// Flags is read per call so tunables reloads take effect immediately.
type Formatter struct {
	Flags func() config.NotifyFlags
}

// Format returns the notification text for a delivery, or "" when the
// event produces no notification (unrecognized type, disabled flag,
// empty push, non-published release). A decode failure of a recognized
// event type is an error so the receiver can answer 400.
func (f *Formatter) Format(eventType string, body []byte) (string, error) {
	flags := f.Flags()
	switch eventType {
	case "push":
		if !flags.Push {
			return "", nil
		}
		return formatPush(body)
	case "issues":
		if !flags.Issues {
			return "", nil
		}
		return formatIssues(body)
	case "pull_request":
		if !flags.PullRequests {
			return "", nil
		}
		return formatPullRequest(body)
	case "release":
		if !flags.Releases {
			return "", nil
		}
		return formatRelease(body)
	case "ping":
		return formatPing(body)
	}
	return "", nil
}

func formatPush(body []byte) (string, error) {
	var p pushPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", fmt.Errorf("decode push payload: %w", err)
	}
	if len(p.Commits) == 0 {
		return "", nil
	}
	repo := orUnknown(p.Repository.FullName)
	pusher := orUnknown(p.Pusher.Name)
	branch := p.Ref
	if strings.HasPrefix(p.Ref, "refs/heads/") {
		branch = strings.TrimPrefix(p.Ref, "refs/heads/")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🚀 **Push to %s**\n\n", tgtext.EscapeMarkdown(repo))
	fmt.Fprintf(&b, "🌿 **Branch:** %s\n", tgtext.EscapeMarkdown(branch))
	fmt.Fprintf(&b, "👤 **Pusher:** %s\n", tgtext.EscapeMarkdown(pusher))
	fmt.Fprintf(&b, "📝 **Commits:** %d\n\n", len(p.Commits))

	shown := p.Commits
	if len(shown) > maxPushCommits {
		shown = shown[:maxPushCommits]
	}
	for _, c := range shown {
		msg := tgtext.Truncate(tgtext.FirstLine(c.Message), commitSummaryMax)
		if msg == "" {
			msg = "No message"
		}
		author := orUnknown(c.Author.Name)
		sha := c.ID
		if len(sha) > 7 {
			sha = sha[:7]
		}
		fmt.Fprintf(&b, "🔸 **%s**\n", tgtext.EscapeMarkdown(msg))
		fmt.Fprintf(&b, "👤 %s • [`%s`](%s)\n\n", tgtext.EscapeMarkdown(author), sha, c.URL)
	}
	if n := len(p.Commits) - maxPushCommits; n > 0 {
		fmt.Fprintf(&b, "... and %d more commits\n\n", n)
	}
	if p.Repository.HTMLURL != "" {
		fmt.Fprintf(&b, "🔗 [View Repository](%s)", p.Repository.HTMLURL)
	}
	return b.String(), nil
}

func formatIssues(body []byte) (string, error) {
	var p issuesPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", fmt.Errorf("decode issues payload: %w", err)
	}
	emoji, ok := issueActionEmoji[p.Action]
	if !ok {
		emoji = "📋"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s **Issue %s in %s**\n\n", emoji, p.Action, tgtext.EscapeMarkdown(orUnknown(p.Repository.FullName)))
	fmt.Fprintf(&b, "🐛 **#%d: %s**\n", p.Issue.Number, tgtext.EscapeMarkdown(p.Issue.Title))
	fmt.Fprintf(&b, "👤 **By:** %s\n", tgtext.EscapeMarkdown(orUnknown(p.Issue.User.Login)))
	if p.Issue.HTMLURL != "" {
		fmt.Fprintf(&b, "🔗 [View Issue](%s)", p.Issue.HTMLURL)
	}
	return b.String(), nil
}

func formatPullRequest(body []byte) (string, error) {
	var p pullRequestPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", fmt.Errorf("decode pull_request payload: %w", err)
	}
	action := p.Action
	if action == "closed" && p.PullRequest.Merged {
		action = "merged"
	}
	emoji, ok := prActionEmoji[action]
	if !ok {
		emoji = "📋"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s **Pull Request %s in %s**\n\n", emoji, action, tgtext.EscapeMarkdown(orUnknown(p.Repository.FullName)))
	fmt.Fprintf(&b, "🔀 **#%d: %s**\n", p.PullRequest.Number, tgtext.EscapeMarkdown(p.PullRequest.Title))
	fmt.Fprintf(&b, "👤 **By:** %s\n", tgtext.EscapeMarkdown(orUnknown(p.PullRequest.User.Login)))
	if p.PullRequest.Base.Ref != "" || p.PullRequest.Head.Ref != "" {
		fmt.Fprintf(&b, "🌿 **Branches:** %s ← %s\n",
			tgtext.EscapeMarkdown(p.PullRequest.Base.Ref),
			tgtext.EscapeMarkdown(p.PullRequest.Head.Ref))
	}
	if p.PullRequest.HTMLURL != "" {
		fmt.Fprintf(&b, "🔗 [View Pull Request](%s)", p.PullRequest.HTMLURL)
	}
	return b.String(), nil
}

func formatRelease(body []byte) (string, error) {
	var p releasePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", fmt.Errorf("decode release payload: %w", err)
	}
	// Only published releases notify; drafts and edits are noise.
	if p.Action != "published" {
		return "", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🎉 **New Release in %s**\n\n", tgtext.EscapeMarkdown(orUnknown(p.Repository.FullName)))
	fmt.Fprintf(&b, "🏷️ **%s** (%s)\n", tgtext.EscapeMarkdown(orNoName(p.Release.Name)), tgtext.EscapeMarkdown(orUnknown(p.Release.TagName)))
	fmt.Fprintf(&b, "👤 **By:** %s\n", tgtext.EscapeMarkdown(orUnknown(p.Release.Author.Login)))
	if p.Release.HTMLURL != "" {
		fmt.Fprintf(&b, "🔗 [View Release](%s)", p.Release.HTMLURL)
	}
	return b.String(), nil
}

func formatPing(body []byte) (string, error) {
	var p pingPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", fmt.Errorf("decode ping payload: %w", err)
	}
	return fmt.Sprintf("🏓 **Webhook configured for %s**\n\nWebhook is working correctly!",
		tgtext.EscapeMarkdown(orUnknown(p.Repository.FullName))), nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func orNoName(s string) string {
	if s == "" {
		return "No name"
	}
	return s
}
