package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ghrelay/internal/github"
	"ghrelay/pkg/tgtext"
)

func (d *Dispatcher) registerCommands() {
	cmds := []command{
		{name: "start", desc: "Welcome and feature overview", handle: d.cmdStart},
		{name: "help", desc: "Command reference", handle: d.cmdHelp},
		{name: "profile", desc: "Show a GitHub profile", handle: d.cmdProfile},
		{name: "repos", desc: "List a user's repositories", handle: d.cmdRepos},
		{
			name: "repo", desc: "Show repository details", minArgs: 1,
			usage:  "❌ Please specify a repository: `/repo owner/repo`",
			handle: d.cmdRepo,
		},
		{
			name: "commits", desc: "Recent commits for a repository", minArgs: 1,
			usage:  "❌ Please specify a repository: `/commits owner/repo`",
			handle: d.cmdCommits,
		},
		{
			name: "issues", desc: "Open issues for a repository", minArgs: 1,
			usage:  "❌ Please specify a repository: `/issues owner/repo`",
			handle: d.cmdIssues,
		},
		{
			name: "search", desc: "Search repositories", minArgs: 1,
			usage:  "❌ Please specify a search query: `/search <query>`",
			handle: d.cmdSearch,
		},
		{name: "status", desc: "Bot and API status", handle: d.cmdStatus},
		{
			name: "watch", desc: "Get notified about a repository", minArgs: 1,
			usage:  "❌ Please specify a repository: `/watch owner/repo`",
			handle: d.cmdWatch,
		},
		{
			name: "unwatch", desc: "Stop repository notifications", minArgs: 1,
			usage:  "❌ Please specify a repository: `/unwatch owner/repo`",
			handle: d.cmdUnwatch,
		},
		{name: "watching", desc: "List watched repositories", handle: d.cmdWatching},
	}

	d.table = make(map[string]command, len(cmds))
	d.ordered = make([]string, 0, len(cmds))
	for _, c := range cmds {
		d.table[c.name] = c
		d.ordered = append(d.ordered, c.name)
	}
}

// userFacing maps an upstream failure to the reply the user sees.
func userFacing(err error) string {
	if errors.Is(err, github.ErrUnavailable) {
		return "⚠️ GitHub is temporarily unavailable. Please try again later."
	}
	return "❌ An error occurred while processing your request."
}

func (d *Dispatcher) cmdStart(context.Context, *Request) (string, error) {
	return msgWelcome, nil
}

func (d *Dispatcher) cmdHelp(context.Context, *Request) (string, error) {
	rl := d.tunables.Get().RateLimit
	return fmt.Sprintf(msgHelp, rl.Requests, int(rl.Window.Seconds())), nil
}

func (d *Dispatcher) cmdProfile(ctx context.Context, req *Request) (string, error) {
	login := d.opts.Username
	if len(req.Args) > 0 {
		login = req.Args[0]
	}
	if login == "" {
		return "❌ Please specify a username: `/profile <username>`", nil
	}
	u, err := d.gh.User(ctx, login)
	if errors.Is(err, github.ErrNotFound) {
		return fmt.Sprintf("❌ User `%s` not found.", login), nil
	}
	if err != nil {
		return "", err
	}
	return github.FormatUser(u), nil
}

func (d *Dispatcher) cmdRepos(ctx context.Context, req *Request) (string, error) {
	login := d.opts.Username
	if len(req.Args) > 0 {
		login = req.Args[0]
	}
	if login == "" {
		return "❌ Please specify a username: `/repos <username>`", nil
	}
	repos, err := d.gh.Repos(ctx, login, reposListLimit)
	if errors.Is(err, github.ErrNotFound) {
		return fmt.Sprintf("❌ User `%s` not found.", login), nil
	}
	if err != nil {
		return "", err
	}
	if len(repos) == 0 {
		return fmt.Sprintf("❌ No repositories found for `%s`.", login), nil
	}
	return github.FormatRepoList(repos), nil
}

func (d *Dispatcher) cmdRepo(ctx context.Context, req *Request) (string, error) {
	path := req.Args[0]
	owner, name, ok := splitRepoPath(path)
	if !ok {
		return "❌ Invalid format. Use: `/repo owner/repo`", nil
	}
	r, err := d.gh.Repo(ctx, owner, name)
	if errors.Is(err, github.ErrNotFound) {
		return fmt.Sprintf("❌ Repository `%s` not found.", path), nil
	}
	if err != nil {
		return "", err
	}
	return github.FormatRepo(r), nil
}

func (d *Dispatcher) cmdCommits(ctx context.Context, req *Request) (string, error) {
	path := req.Args[0]
	owner, name, ok := splitRepoPath(path)
	if !ok {
		return "❌ Invalid format. Use: `/commits owner/repo`", nil
	}
	commits, err := d.gh.Commits(ctx, owner, name, commitListLimit)
	if errors.Is(err, github.ErrNotFound) {
		return fmt.Sprintf("❌ Repository `%s` not found.", path), nil
	}
	if err != nil {
		return "", err
	}
	if len(commits) == 0 {
		return fmt.Sprintf("❌ No commits found for `%s`.", path), nil
	}
	return github.FormatCommits(path, commits), nil
}

func (d *Dispatcher) cmdIssues(ctx context.Context, req *Request) (string, error) {
	path := req.Args[0]
	owner, name, ok := splitRepoPath(path)
	if !ok {
		return "❌ Invalid format. Use: `/issues owner/repo`", nil
	}
	issues, err := d.gh.Issues(ctx, owner, name, issueListLimit)
	if errors.Is(err, github.ErrNotFound) {
		return fmt.Sprintf("❌ Repository `%s` not found.", path), nil
	}
	if err != nil {
		return "", err
	}
	if len(issues) == 0 {
		return fmt.Sprintf("❌ No open issues found for `%s`.", path), nil
	}
	return github.FormatIssues(path, issues), nil
}

func (d *Dispatcher) cmdSearch(ctx context.Context, req *Request) (string, error) {
	query := strings.Join(req.Args, " ")
	repos, err := d.gh.Search(ctx, query, searchListLimit)
	if err != nil {
		return "", err
	}
	if len(repos) == 0 {
		return fmt.Sprintf("❌ No repositories found for query: `%s`", query), nil
	}
	return github.FormatSearchResults(query, repos), nil
}

func (d *Dispatcher) cmdStatus(ctx context.Context, _ *Request) (string, error) {
	tun := d.tunables.Get()
	var b strings.Builder
	b.WriteString("📊 **Bot Status**\n\n")
	b.WriteString("🤖 **Bot:** Running\n")

	quota, err := d.gh.RateLimit(ctx)
	if err != nil {
		b.WriteString("🔧 **GitHub API:** Unreachable\n")
	} else {
		b.WriteString("🔧 **GitHub API:** Connected\n")
		fmt.Fprintf(&b, "📈 **API Limits:** %d/%d remaining\n", quota.Remaining, quota.Limit)
		if !quota.ResetAt.IsZero() {
			fmt.Fprintf(&b, "🔄 **Reset:** %s\n", tgtext.FormatTime(quota.ResetAt))
		}
	}

	b.WriteString("\n⚙️ **Configuration:**\n")
	fmt.Fprintf(&b, "• Rate limit: %d req/%ds per chat\n", tun.RateLimit.Requests, int(tun.RateLimit.Window.Seconds()))
	fmt.Fprintf(&b, "• Notifications: %s\n", enabledWord(tun.Notify.Push))
	fmt.Fprintf(&b, "• Uptime: %s\n", time.Since(d.startedAt).Round(time.Second))
	return b.String(), nil
}

func (d *Dispatcher) cmdWatch(ctx context.Context, req *Request) (string, error) {
	path := req.Args[0]
	if _, _, ok := splitRepoPath(path); !ok {
		return "❌ Invalid format. Use: `/watch owner/repo`", nil
	}
	if d.store == nil {
		return msgSubscriptionsOff, nil
	}
	added, err := d.store.Subscribe(ctx, req.Msg.ChatID, path)
	if err != nil {
		return "", fmt.Errorf("subscribe %s: %w", path, err)
	}
	if !added {
		return fmt.Sprintf("ℹ️ You are already watching `%s`.", strings.ToLower(path)), nil
	}
	return fmt.Sprintf("✅ Now watching `%s` for updates.", strings.ToLower(path)), nil
}

func (d *Dispatcher) cmdUnwatch(ctx context.Context, req *Request) (string, error) {
	path := req.Args[0]
	if _, _, ok := splitRepoPath(path); !ok {
		return "❌ Invalid format. Use: `/unwatch owner/repo`", nil
	}
	if d.store == nil {
		return msgSubscriptionsOff, nil
	}
	removed, err := d.store.Unsubscribe(ctx, req.Msg.ChatID, path)
	if err != nil {
		return "", fmt.Errorf("unsubscribe %s: %w", path, err)
	}
	if !removed {
		return fmt.Sprintf("ℹ️ You are not watching `%s`.", strings.ToLower(path)), nil
	}
	return fmt.Sprintf("✅ Stopped watching `%s`.", strings.ToLower(path)), nil
}

func (d *Dispatcher) cmdWatching(ctx context.Context, req *Request) (string, error) {
	if d.store == nil {
		return msgSubscriptionsOff, nil
	}
	subs, err := d.store.Subscriptions(ctx, req.Msg.ChatID)
	if err != nil {
		return "", fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return "ℹ️ You are not watching any repositories. Use `/watch owner/repo` to start.", nil
	}
	var b strings.Builder
	b.WriteString("🔔 **Watched Repositories:**\n\n")
	for _, s := range subs {
		fmt.Fprintf(&b, "• `%s` since %s\n", s.Repo, s.CreatedAt.Format("2006-01-02"))
	}
	return b.String(), nil
}

func enabledWord(on bool) string {
	if on {
		return "Enabled"
	}
	return "Disabled"
}
