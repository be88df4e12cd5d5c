package github

import (
	"fmt"
	"strings"

	"ghrelay/pkg/tgtext"
)

// Markdown reply builders for the bot commands. Pure functions over the
// slim types so they are trivially testable.

func FormatUser(u *User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 **GitHub Profile: %s**\n\n", tgtext.EscapeMarkdown(u.Login))
	if u.Name != "" {
		fmt.Fprintf(&b, "🏷️ **Name:** %s\n", tgtext.EscapeMarkdown(u.Name))
	}
	if u.Bio != "" {
		fmt.Fprintf(&b, "📝 **Bio:** %s\n", tgtext.EscapeMarkdown(u.Bio))
	}
	b.WriteString("📊 **Stats:**\n")
	fmt.Fprintf(&b, "• 📦 Repositories: %d\n", u.PublicRepos)
	fmt.Fprintf(&b, "• 👥 Followers: %d\n", u.Followers)
	fmt.Fprintf(&b, "• 👁️ Following: %d\n", u.Following)
	if u.Location != "" {
		fmt.Fprintf(&b, "📍 **Location:** %s\n", tgtext.EscapeMarkdown(u.Location))
	}
	if u.Company != "" {
		fmt.Fprintf(&b, "🏢 **Company:** %s\n", tgtext.EscapeMarkdown(u.Company))
	}
	if u.Blog != "" {
		fmt.Fprintf(&b, "🌐 **Website:** %s\n", tgtext.EscapeMarkdown(u.Blog))
	}
	if !u.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "📅 **Joined:** %s\n", tgtext.FormatTime(u.CreatedAt))
	}
	if u.HTMLURL != "" {
		fmt.Fprintf(&b, "\n🔗 [View Profile](%s)", u.HTMLURL)
	}
	return b.String()
}

func FormatRepo(r *Repo) string {
	desc := r.Description
	if desc == "" {
		desc = "No description"
	}
	lang := r.Language
	if lang == "" {
		lang = "Unknown"
	}
	visibility := "Public"
	if r.Private {
		visibility = "Private"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📦 **Repository: %s**\n\n", tgtext.EscapeMarkdown(r.FullName))
	fmt.Fprintf(&b, "📝 **Description:** %s\n\n", tgtext.EscapeMarkdown(desc))
	b.WriteString("📊 **Statistics:**\n")
	fmt.Fprintf(&b, "• ⭐ Stars: %d\n", r.Stars)
	fmt.Fprintf(&b, "• 🍴 Forks: %d\n", r.Forks)
	fmt.Fprintf(&b, "• 👁️ Watchers: %d\n", r.Watchers)
	fmt.Fprintf(&b, "• 🐛 Open Issues: %d\n", r.OpenIssues)
	fmt.Fprintf(&b, "• 📏 Size: %d KB\n", r.SizeKB)
	b.WriteString("\n🔧 **Details:**\n")
	fmt.Fprintf(&b, "• 💻 Language: %s\n", tgtext.EscapeMarkdown(lang))
	fmt.Fprintf(&b, "• 🌿 Default Branch: %s\n", tgtext.EscapeMarkdown(r.DefaultBranch))
	fmt.Fprintf(&b, "• 🔒 Visibility: %s\n", visibility)
	if !r.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "• 📅 Created: %s\n", tgtext.FormatTime(r.CreatedAt))
	}
	if !r.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "• 🔄 Updated: %s\n", tgtext.FormatTime(r.UpdatedAt))
	}
	if r.HTMLURL != "" {
		fmt.Fprintf(&b, "\n🔗 [View Repository](%s)", r.HTMLURL)
	}
	return b.String()
}

func FormatRepoList(repos []Repo) string {
	lines := make([]string, 0, len(repos))
	for _, r := range repos {
		lines = append(lines, fmt.Sprintf("📦 **%s** - ⭐ %d stars", tgtext.EscapeMarkdown(r.Name), r.Stars))
	}
	return "📚 **Repositories:**\n\n" + strings.Join(lines, "\n")
}

func FormatCommits(repoPath string, commits []Commit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📝 **Recent Commits for %s:**\n\n", repoPath)
	for _, c := range commits {
		msg := tgtext.FirstLine(c.Message)
		if msg == "" {
			msg = "No message"
		}
		author := c.Author
		if author == "" {
			author = "Unknown"
		}
		sha := c.SHA
		if len(sha) > 7 {
			sha = sha[:7]
		}
		fmt.Fprintf(&b, "🔸 **%s**\n", tgtext.EscapeMarkdown(msg))
		fmt.Fprintf(&b, "👤 %s • 🕒 %s\n", tgtext.EscapeMarkdown(author), tgtext.FormatTime(c.Date))
		fmt.Fprintf(&b, "🔗 [`%s`](%s)\n\n", sha, c.HTMLURL)
	}
	return b.String()
}

func FormatIssues(repoPath string, issues []Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🐛 **Issues for %s:**\n\n", repoPath)
	for _, is := range issues {
		emoji := "🔴"
		if is.State == "open" {
			emoji = "🟢"
		}
		fmt.Fprintf(&b, "%s **#%d: %s**\n", emoji, is.Number, tgtext.EscapeMarkdown(is.Title))
		fmt.Fprintf(&b, "👤 %s • 📋 %s\n", tgtext.EscapeMarkdown(is.Author), is.State)
		fmt.Fprintf(&b, "🔗 [View Issue](%s)\n\n", is.HTMLURL)
	}
	return b.String()
}

func FormatSearchResults(query string, repos []Repo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 **Search Results for: %s**\n\n", tgtext.EscapeMarkdown(query))
	for _, r := range repos {
		desc := r.Description
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(&b, "📦 **%s**\n", tgtext.EscapeMarkdown(r.Name))
		fmt.Fprintf(&b, "🔗 %s\n", tgtext.EscapeMarkdown(r.FullName))
		fmt.Fprintf(&b, "📝 %s\n", tgtext.EscapeMarkdown(tgtext.Truncate(desc, 100)))
		fmt.Fprintf(&b, "⭐ %d stars • [View](%s)\n\n", r.Stars, r.HTMLURL)
	}
	return b.String()
}
