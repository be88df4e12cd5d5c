package webhook

import (
	"strings"
	"testing"

	"ghrelay/internal/config"
)

func allOn() config.NotifyFlags {
	return config.NotifyFlags{Push: true, Issues: true, PullRequests: true, Releases: true}
}

func newFormatter(flags config.NotifyFlags) *Formatter {
	return &Formatter{Flags: func() config.NotifyFlags { return flags }}
}

func TestFormatPush(t *testing.T) {
	body := []byte(`{
		"ref": "refs/heads/main",
		"repository": {"full_name": "alice/widget", "html_url": "https://github.com/alice/widget"},
		"pusher": {"name": "alice"},
		"commits": [
			{"id": "0123456789abcdef", "message": "fix bug\n\ndetails", "url": "https://github.com/alice/widget/commit/0123456", "author": {"name": "alice"}}
		]
	}`)
	out, err := newFormatter(allOn()).Format("push", body)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	for _, want := range []string{
		"🚀 **Push to alice/widget**",
		"**Branch:** main",
		"**Pusher:** alice",
		"**Commits:** 1",
		"🔸 **fix bug**",
		"[`0123456`]",
		"[View Repository](https://github.com/alice/widget)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "details") {
		t.Fatalf("commit body leaked into summary:\n%s", out)
	}
}

func TestFormatPushIsDeterministic(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/dev","repository":{"full_name":"o/r"},"pusher":{"name":"p"},"commits":[{"id":"abc","message":"m"}]}`)
	f := newFormatter(allOn())
	a, _ := f.Format("push", body)
	b, _ := f.Format("push", body)
	if a != b {
		t.Fatal("identical payloads produced different output")
	}
}

func TestFormatPushCapsCommitList(t *testing.T) {
	body := []byte(`{
		"ref": "refs/heads/main",
		"repository": {"full_name": "o/r"},
		"pusher": {"name": "p"},
		"commits": [
			{"id": "1111111aa", "message": "one"},
			{"id": "2222222aa", "message": "two"},
			{"id": "3333333aa", "message": "three"},
			{"id": "4444444aa", "message": "four"},
			{"id": "5555555aa", "message": "five"}
		]
	}`)
	out, err := newFormatter(allOn()).Format("push", body)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if !strings.Contains(out, "**Commits:** 5") {
		t.Fatalf("wrong commit count:\n%s", out)
	}
	if strings.Contains(out, "four") || strings.Contains(out, "five") {
		t.Fatalf("more than three commits listed:\n%s", out)
	}
	if !strings.Contains(out, "... and 2 more commits") {
		t.Fatalf("missing overflow line:\n%s", out)
	}
}

func TestFormatPushTruncatesLongMessages(t *testing.T) {
	long := strings.Repeat("y", 150)
	body := []byte(`{"ref":"refs/heads/main","repository":{"full_name":"o/r"},"pusher":{"name":"p"},"commits":[{"id":"abcdef012","message":"` + long + `"}]}`)
	out, err := newFormatter(allOn()).Format("push", body)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if strings.Contains(out, long) {
		t.Fatal("long commit message not truncated")
	}
	if !strings.Contains(out, "...") {
		t.Fatalf("missing ellipsis:\n%s", out)
	}
}

func TestFormatPushNoCommits(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main","repository":{"full_name":"o/r"},"pusher":{"name":"p"},"commits":[]}`)
	out, err := newFormatter(allOn()).Format("push", body)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if out != "" {
		t.Fatalf("empty push must not notify, got:\n%s", out)
	}
}

func TestFormatIssuesActions(t *testing.T) {
	mk := func(action string) []byte {
		return []byte(`{"action":"` + action + `","repository":{"full_name":"o/r"},"issue":{"number":7,"title":"crash on start","html_url":"https://github.com/o/r/issues/7","user":{"login":"bob"}}}`)
	}
	f := newFormatter(allOn())

	cases := map[string]string{
		"opened":   "🆕",
		"closed":   "✅",
		"reopened": "🔄",
		"labeled":  "📋",
	}
	for action, emoji := range cases {
		out, err := f.Format("issues", mk(action))
		if err != nil {
			t.Fatalf("Format(%s): %v", action, err)
		}
		if !strings.HasPrefix(out, emoji+" **Issue "+action+" in o/r**") {
			t.Fatalf("action %s: wrong header:\n%s", action, out)
		}
		if !strings.Contains(out, "**#7: crash on start**") || !strings.Contains(out, "**By:** bob") {
			t.Fatalf("action %s: missing detail:\n%s", action, out)
		}
	}
}

func TestFormatPullRequestMergedAndBranches(t *testing.T) {
	body := []byte(`{
		"action": "closed",
		"repository": {"full_name": "o/r"},
		"pull_request": {
			"number": 12, "title": "add cache", "html_url": "https://github.com/o/r/pull/12",
			"user": {"login": "carol"}, "merged": true,
			"base": {"ref": "main"}, "head": {"ref": "feature/cache"}
		}
	}`)
	out, err := newFormatter(allOn()).Format("pull_request", body)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if !strings.Contains(out, "🎉 **Pull Request merged in o/r**") {
		t.Fatalf("merged close not promoted:\n%s", out)
	}
	if !strings.Contains(out, "main ← feature/cache") {
		t.Fatalf("missing branch line:\n%s", out)
	}
}

func TestFormatReleasePublishedOnly(t *testing.T) {
	mk := func(action string) []byte {
		return []byte(`{"action":"` + action + `","repository":{"full_name":"o/r"},"release":{"name":"v1.0","tag_name":"v1.0.0","html_url":"https://github.com/o/r/releases/v1.0.0","author":{"login":"dan"}}}`)
	}
	f := newFormatter(allOn())

	out, err := f.Format("release", mk("published"))
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if !strings.Contains(out, "🎉 **New Release in o/r**") || !strings.Contains(out, "**v1.0** (v1.0.0)") {
		t.Fatalf("wrong release message:\n%s", out)
	}

	for _, action := range []string{"created", "edited", "prereleased", "deleted"} {
		out, err := f.Format("release", mk(action))
		if err != nil {
			t.Fatalf("Format(%s): %v", action, err)
		}
		if out != "" {
			t.Fatalf("action %s must not notify, got:\n%s", action, out)
		}
	}
}

func TestFormatFlagsDisableEvents(t *testing.T) {
	f := newFormatter(config.NotifyFlags{})
	body := []byte(`{"ref":"refs/heads/main","repository":{"full_name":"o/r"},"pusher":{"name":"p"},"commits":[{"id":"a","message":"m"}]}`)
	out, err := f.Format("push", body)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if out != "" {
		t.Fatalf("disabled flag still notified:\n%s", out)
	}
}

func TestFormatUnknownEventIgnored(t *testing.T) {
	out, err := newFormatter(allOn()).Format("workflow_run", []byte(`{"action":"completed"}`))
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if out != "" {
		t.Fatalf("unknown event produced output:\n%s", out)
	}
}

func TestFormatPing(t *testing.T) {
	out, err := newFormatter(config.NotifyFlags{}).Format("ping", []byte(`{"repository":{"full_name":"o/r"}}`))
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if !strings.Contains(out, "🏓 **Webhook configured for o/r**") {
		t.Fatalf("wrong ping message:\n%s", out)
	}
}
