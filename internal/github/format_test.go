package github

import (
	"strings"
	"testing"
	"time"
)

func TestFormatUserOmitsEmptySections(t *testing.T) {
	u := &User{Login: "octocat", PublicRepos: 8, Followers: 100, Following: 9}
	out := FormatUser(u)
	if !strings.Contains(out, "👤 **GitHub Profile: octocat**") {
		t.Fatalf("missing header: %q", out)
	}
	for _, absent := range []string{"**Name:**", "**Bio:**", "**Location:**", "**Company:**", "**Website:**", "View Profile"} {
		if strings.Contains(out, absent) {
			t.Fatalf("unexpected section %q in %q", absent, out)
		}
	}
	if !strings.Contains(out, "• 📦 Repositories: 8") {
		t.Fatalf("missing repo count: %q", out)
	}
}

func TestFormatUserEscapesMarkdown(t *testing.T) {
	u := &User{Login: "a_user", Name: "a*b"}
	out := FormatUser(u)
	if !strings.Contains(out, `a\_user`) || !strings.Contains(out, `a\*b`) {
		t.Fatalf("markdown not escaped: %q", out)
	}
}

func TestFormatRepoDefaults(t *testing.T) {
	r := &Repo{
		FullName:      "octocat/hello",
		Stars:         42,
		DefaultBranch: "main",
		CreatedAt:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	out := FormatRepo(r)
	if !strings.Contains(out, "**Description:** No description") {
		t.Fatalf("empty description not defaulted: %q", out)
	}
	if !strings.Contains(out, "Language: Unknown") {
		t.Fatalf("empty language not defaulted: %q", out)
	}
	if !strings.Contains(out, "Visibility: Public") {
		t.Fatalf("visibility wrong: %q", out)
	}
	if !strings.Contains(out, "• ⭐ Stars: 42") {
		t.Fatalf("missing stars: %q", out)
	}
	if !strings.Contains(out, "Created: 2024-03-01 12:00 UTC") {
		t.Fatalf("created date wrong: %q", out)
	}
}

func TestFormatCommitsShortensSHAAndFirstLine(t *testing.T) {
	commits := []Commit{{
		SHA:     "abcdef1234567890",
		Message: "fix: handle nil payload\n\nlong body here",
		Author:  "alice",
		Date:    time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC),
		HTMLURL: "https://github.com/o/r/commit/abcdef1",
	}}
	out := FormatCommits("o/r", commits)
	if !strings.Contains(out, "[`abcdef1`]") {
		t.Fatalf("sha not shortened: %q", out)
	}
	if strings.Contains(out, "long body here") {
		t.Fatalf("commit body leaked into summary: %q", out)
	}
	if !strings.Contains(out, "👤 alice • 🕒 2025-06-02 09:30 UTC") {
		t.Fatalf("author line wrong: %q", out)
	}
}

func TestFormatIssuesStateEmoji(t *testing.T) {
	out := FormatIssues("o/r", []Issue{
		{Number: 1, Title: "open one", State: "open", Author: "bob"},
		{Number: 2, Title: "closed one", State: "closed", Author: "eve"},
	})
	if !strings.Contains(out, "🟢 **#1:") || !strings.Contains(out, "🔴 **#2:") {
		t.Fatalf("state emoji wrong: %q", out)
	}
}

func TestFormatSearchResultsTruncatesDescription(t *testing.T) {
	long := strings.Repeat("x", 150)
	out := FormatSearchResults("ml", []Repo{{Name: "r", FullName: "o/r", Description: long, Stars: 5}})
	if strings.Contains(out, long) {
		t.Fatalf("description not truncated")
	}
	if !strings.Contains(out, "...") {
		t.Fatalf("missing ellipsis: %q", out)
	}
}

func TestFormatRepoListOneLinePerRepo(t *testing.T) {
	out := FormatRepoList([]Repo{{Name: "a", Stars: 1}, {Name: "b", Stars: 2}})
	if !strings.Contains(out, "📦 **a** - ⭐ 1 stars") || !strings.Contains(out, "📦 **b** - ⭐ 2 stars") {
		t.Fatalf("unexpected list format: %q", out)
	}
}
