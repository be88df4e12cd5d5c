package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"ghrelay/internal/config"
	"ghrelay/internal/eventbus"
	"ghrelay/internal/github"
	"ghrelay/internal/ratelimit"
	kit "ghrelay/internal/transport"
	logx "ghrelay/pkg/logx"
)

type replyRecorder struct {
	mu      sync.Mutex
	replies []string
}

func (r *replyRecorder) Start(context.Context, chan<- kit.Update) error { return nil }
func (r *replyRecorder) Stop(context.Context) error                     { return nil }

func (r *replyRecorder) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	r.replies = append(r.replies, text)
	r.mu.Unlock()
	return kit.MessageRef{}, nil
}

func (r *replyRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.replies...)
}

func (r *replyRecorder) last(t *testing.T) string {
	t.Helper()
	all := r.all()
	if len(all) == 0 {
		t.Fatal("no reply sent")
	}
	return all[len(all)-1]
}

// stubGitHub counts calls so tests can assert that rejected requests
// never reach the API.
type stubGitHub struct {
	mu    sync.Mutex
	calls int

	user    *github.User
	repo    *github.Repo
	repos   []github.Repo
	commits []github.Commit
	issues  []github.Issue
	quota   *github.RateQuota
	err     error
}

func (s *stubGitHub) bump() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *stubGitHub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubGitHub) User(context.Context, string) (*github.User, error) {
	s.bump()
	return s.user, s.err
}

func (s *stubGitHub) Repos(context.Context, string, int) ([]github.Repo, error) {
	s.bump()
	return s.repos, s.err
}

func (s *stubGitHub) Repo(context.Context, string, string) (*github.Repo, error) {
	s.bump()
	return s.repo, s.err
}

func (s *stubGitHub) Commits(context.Context, string, string, int) ([]github.Commit, error) {
	s.bump()
	return s.commits, s.err
}

func (s *stubGitHub) Issues(context.Context, string, string, int) ([]github.Issue, error) {
	s.bump()
	return s.issues, s.err
}

func (s *stubGitHub) Search(context.Context, string, int) ([]github.Repo, error) {
	s.bump()
	return s.repos, s.err
}

func (s *stubGitHub) RateLimit(context.Context) (*github.RateQuota, error) {
	s.bump()
	return s.quota, s.err
}

func testTunables() *config.Manager {
	base := config.Tunables{
		RateLimit: config.RateLimitConfig{Requests: 10, Window: 60 * time.Second},
		Notify:    config.NotifyFlags{Push: true},
	}
	return config.NewManager("", base, logx.Nop())
}

func newTestDispatcher(gh github.Service, whitelist config.Whitelist) (*Dispatcher, *replyRecorder) {
	rec := &replyRecorder{}
	d := NewDispatcher(
		Options{Username: "defaultuser", BotName: "ghrelaybot"},
		rec, gh, nil,
		ratelimit.New(10, 60*time.Second),
		whitelist,
		testTunables(),
		eventbus.New(),
		logx.Nop(),
	)
	return d, rec
}

func send(d *Dispatcher, chatID int64, text string) {
	d.dispatch(context.Background(), kit.Update{Message: &kit.Message{ChatID: chatID, FromID: chatID, Text: text}})
}

func TestNonWhitelistedChatRejectedWithoutAPICall(t *testing.T) {
	gh := &stubGitHub{}
	d, rec := newTestDispatcher(gh, config.Whitelist{100})

	send(d, 999, "/repo microsoft/vscode")

	if got := rec.last(t); got != msgUnauthorized {
		t.Fatalf("reply = %q, want unauthorized message", got)
	}
	if gh.callCount() != 0 {
		t.Fatalf("rejected chat still reached the API %d times", gh.callCount())
	}
}

func TestEmptyWhitelistAllowsEveryone(t *testing.T) {
	gh := &stubGitHub{repo: &github.Repo{FullName: "o/r", Name: "r", Description: "demo", DefaultBranch: "main"}}
	d, rec := newTestDispatcher(gh, nil)

	send(d, 42, "/repo o/r")

	if got := rec.last(t); !strings.Contains(got, "o/r") || !strings.Contains(got, "demo") {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestRepoCommandRepliesWithDetails(t *testing.T) {
	gh := &stubGitHub{repo: &github.Repo{
		FullName: "octocat/hello", Name: "hello",
		Description: "My first repository", Stars: 3, DefaultBranch: "main",
	}}
	d, rec := newTestDispatcher(gh, config.Whitelist{1})

	send(d, 1, "/repo octocat/hello")

	got := rec.last(t)
	if !strings.Contains(got, "octocat/hello") {
		t.Fatalf("reply missing repo name: %q", got)
	}
	if !strings.Contains(got, "My first repository") {
		t.Fatalf("reply missing description: %q", got)
	}
}

func TestEleventhRequestIsRateLimited(t *testing.T) {
	gh := &stubGitHub{user: &github.User{Login: "defaultuser"}}
	d, rec := newTestDispatcher(gh, config.Whitelist{1})

	for i := 0; i < 10; i++ {
		send(d, 1, "/profile")
	}
	send(d, 1, "/profile")

	if got := rec.last(t); got != msgRateLimited {
		t.Fatalf("reply = %q, want rate limit message", got)
	}
	if gh.callCount() != 10 {
		t.Fatalf("API called %d times, want 10", gh.callCount())
	}
}

func TestRateLimitIsPerChat(t *testing.T) {
	gh := &stubGitHub{user: &github.User{Login: "defaultuser"}}
	d, rec := newTestDispatcher(gh, nil)

	for i := 0; i < 10; i++ {
		send(d, 1, "/profile")
	}
	send(d, 2, "/profile")

	if got := rec.last(t); got == msgRateLimited {
		t.Fatal("independent chat hit the other chat's limit")
	}
}

func TestPlainTextIgnored(t *testing.T) {
	d, rec := newTestDispatcher(&stubGitHub{}, nil)
	send(d, 1, "good morning everyone")
	if n := len(rec.all()); n != 0 {
		t.Fatalf("non-command text produced %d replies", n)
	}
	// and it must not consume rate-limit budget
	if !d.limiter.Allow(1, time.Now()) {
		t.Fatal("non-command text consumed the rate limit")
	}
}

func TestUnknownCommand(t *testing.T) {
	d, rec := newTestDispatcher(&stubGitHub{}, nil)
	send(d, 1, "/frobnicate")
	if got := rec.last(t); got != msgUnknownCommand {
		t.Fatalf("reply = %q, want unknown command message", got)
	}
}

func TestCommandsAreCaseInsensitiveAndMentionStripped(t *testing.T) {
	gh := &stubGitHub{user: &github.User{Login: "torvalds"}}
	d, rec := newTestDispatcher(gh, nil)

	send(d, 1, "/Profile@ghrelaybot torvalds")

	if got := rec.last(t); !strings.Contains(got, "torvalds") {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestMentionForOtherBotIsSilentlyIgnored(t *testing.T) {
	d, rec := newTestDispatcher(&stubGitHub{}, nil)
	send(d, 1, "/profile@someotherbot torvalds")
	if n := len(rec.all()); n != 0 {
		t.Fatalf("foreign mention produced %d replies", n)
	}
}

func TestMissingArgumentUsageMessage(t *testing.T) {
	gh := &stubGitHub{}
	d, rec := newTestDispatcher(gh, nil)

	send(d, 1, "/repo")

	if got := rec.last(t); !strings.Contains(got, "/repo owner/repo") {
		t.Fatalf("reply = %q, want usage message", got)
	}
	if gh.callCount() != 0 {
		t.Fatal("usage error still reached the API")
	}
}

func TestInvalidRepoPath(t *testing.T) {
	gh := &stubGitHub{}
	d, rec := newTestDispatcher(gh, nil)

	send(d, 1, "/repo not-a-path")

	if got := rec.last(t); !strings.Contains(got, "Invalid format") {
		t.Fatalf("reply = %q, want invalid format message", got)
	}
	if gh.callCount() != 0 {
		t.Fatal("invalid path still reached the API")
	}
}

func TestNotFoundVersusUnavailable(t *testing.T) {
	notFound := &stubGitHub{err: github.ErrNotFound}
	d, rec := newTestDispatcher(notFound, nil)
	send(d, 1, "/repo ghost/nothere")
	if got := rec.last(t); !strings.Contains(got, "not found") {
		t.Fatalf("reply = %q, want not-found message", got)
	}

	down := &stubGitHub{err: github.ErrUnavailable}
	d2, rec2 := newTestDispatcher(down, nil)
	send(d2, 1, "/repo o/r")
	if got := rec2.last(t); !strings.Contains(got, "temporarily unavailable") {
		t.Fatalf("reply = %q, want unavailable message", got)
	}
}

func TestSearchJoinsArguments(t *testing.T) {
	gh := &stubGitHub{repos: []github.Repo{{Name: "ml", FullName: "o/ml", Stars: 1}}}
	d, rec := newTestDispatcher(gh, nil)

	send(d, 1, "/search machine learning python")

	if got := rec.last(t); !strings.Contains(got, "machine learning python") {
		t.Fatalf("query not joined: %q", got)
	}
}

func TestHelpIncludesRateLimitParameters(t *testing.T) {
	d, rec := newTestDispatcher(&stubGitHub{}, nil)
	send(d, 1, "/help")
	if got := rec.last(t); !strings.Contains(got, "10 requests per 60 seconds") {
		t.Fatalf("help missing rate limit parameters: %q", got)
	}
}

func TestWatchWithoutStorage(t *testing.T) {
	d, rec := newTestDispatcher(&stubGitHub{}, nil)
	send(d, 1, "/watch microsoft/vscode")
	if got := rec.last(t); got != msgSubscriptionsOff {
		t.Fatalf("reply = %q, want subscriptions-off message", got)
	}
}

func TestRunStopsWhenUpdatesClose(t *testing.T) {
	d, _ := newTestDispatcher(&stubGitHub{}, nil)
	updates := make(chan kit.Update)
	done := make(chan struct{})
	go func() {
		_ = d.Run(context.Background(), updates)
		close(done)
	}()
	close(updates)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after updates channel closed")
	}
}
