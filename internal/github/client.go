// Package github wraps the GitHub REST API behind a small service
// interface that returns slim domain types and classified errors.
package github

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"

	logx "ghrelay/pkg/logx"
)

// Classified API failures. Callers branch on these to pick a user-facing
// reply instead of inspecting HTTP status codes themselves.
var (
	ErrNotFound    = errors.New("github: not found")
	ErrUnavailable = errors.New("github: service unavailable")
)

// Service is the surface the command dispatcher depends on.
type Service interface {
	User(ctx context.Context, login string) (*User, error)
	Repos(ctx context.Context, login string, limit int) ([]Repo, error)
	Repo(ctx context.Context, owner, name string) (*Repo, error)
	Commits(ctx context.Context, owner, name string, limit int) ([]Commit, error)
	Issues(ctx context.Context, owner, name string, limit int) ([]Issue, error)
	Search(ctx context.Context, query string, limit int) ([]Repo, error)
	RateLimit(ctx context.Context) (*RateQuota, error)
}

type Options struct {
	Token          string
	RequestTimeout time.Duration
	MaxRetries     int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
}

func (o *Options) withDefaults() {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 15 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
}

// Client implements Service on top of go-github.
type Client struct {
	api  *gh.Client
	opts Options
	log  logx.Logger
}

func NewClient(opts Options, log logx.Logger) *Client {
	opts.withDefaults()
	api := gh.NewClient(nil)
	if opts.Token != "" {
		api = api.WithAuthToken(opts.Token)
	}
	return &Client{api: api, opts: opts, log: log}
}

func (c *Client) User(ctx context.Context, login string) (*User, error) {
	var u *gh.User
	err := c.execute(ctx, "users.get", func(ctx context.Context) (*gh.Response, error) {
		var resp *gh.Response
		var err error
		u, resp, err = c.api.Users.Get(ctx, login)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return convertUser(u), nil
}

func (c *Client) Repos(ctx context.Context, login string, limit int) ([]Repo, error) {
	var list []*gh.Repository
	err := c.execute(ctx, "repos.list", func(ctx context.Context) (*gh.Response, error) {
		var resp *gh.Response
		var err error
		list, resp, err = c.api.Repositories.ListByUser(ctx, login, &gh.RepositoryListByUserOptions{
			Sort:        "updated",
			ListOptions: gh.ListOptions{PerPage: limit},
		})
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	out := make([]Repo, 0, len(list))
	for _, r := range list {
		out = append(out, *convertRepo(r))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (c *Client) Repo(ctx context.Context, owner, name string) (*Repo, error) {
	var r *gh.Repository
	err := c.execute(ctx, "repos.get", func(ctx context.Context) (*gh.Response, error) {
		var resp *gh.Response
		var err error
		r, resp, err = c.api.Repositories.Get(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return convertRepo(r), nil
}

func (c *Client) Commits(ctx context.Context, owner, name string, limit int) ([]Commit, error) {
	var list []*gh.RepositoryCommit
	err := c.execute(ctx, "repos.commits", func(ctx context.Context) (*gh.Response, error) {
		var resp *gh.Response
		var err error
		list, resp, err = c.api.Repositories.ListCommits(ctx, owner, name, &gh.CommitsListOptions{
			ListOptions: gh.ListOptions{PerPage: limit},
		})
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	out := make([]Commit, 0, len(list))
	for _, rc := range list {
		out = append(out, convertCommit(rc))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (c *Client) Issues(ctx context.Context, owner, name string, limit int) ([]Issue, error) {
	var list []*gh.Issue
	err := c.execute(ctx, "issues.list", func(ctx context.Context) (*gh.Response, error) {
		var resp *gh.Response
		var err error
		list, resp, err = c.api.Issues.ListByRepo(ctx, owner, name, &gh.IssueListByRepoOptions{
			State:       "open",
			ListOptions: gh.ListOptions{PerPage: limit + 10},
		})
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	out := make([]Issue, 0, limit)
	for _, is := range list {
		// The issues endpoint also returns pull requests.
		if is.IsPullRequest() {
			continue
		}
		out = append(out, convertIssue(is))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]Repo, error) {
	var result *gh.RepositoriesSearchResult
	err := c.execute(ctx, "search.repos", func(ctx context.Context) (*gh.Response, error) {
		var resp *gh.Response
		var err error
		result, resp, err = c.api.Search.Repositories(ctx, query, &gh.SearchOptions{
			Sort:        "stars",
			Order:       "desc",
			ListOptions: gh.ListOptions{PerPage: limit},
		})
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	out := make([]Repo, 0, limit)
	for _, r := range result.Repositories {
		out = append(out, *convertRepo(r))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (c *Client) RateLimit(ctx context.Context) (*RateQuota, error) {
	var limits *gh.RateLimits
	err := c.execute(ctx, "rate_limit.get", func(ctx context.Context) (*gh.Response, error) {
		var resp *gh.Response
		var err error
		limits, resp, err = c.api.RateLimit.Get(ctx)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	core := limits.GetCore()
	if core == nil {
		return nil, ErrUnavailable
	}
	return &RateQuota{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		ResetAt:   core.Reset.Time,
	}, nil
}

// execute runs one API call with a bounded timeout, retrying transient
// failures with exponential backoff, and classifies the final error.
func (c *Client) execute(ctx context.Context, op string, call func(context.Context) (*gh.Response, error)) error {
	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.log.Debug("github retry",
				logx.String("op", op),
				logx.Int("attempt", attempt),
				logx.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
		resp, err := call(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(resp, err) {
			break
		}
	}
	return c.classify(op, lastErr)
}

func (c *Client) backoff(attempt int) time.Duration {
	d := time.Duration(float64(c.opts.BaseBackoff) * math.Pow(2, float64(attempt-1)))
	if d > c.opts.MaxBackoff {
		d = c.opts.MaxBackoff
	}
	// +-20% jitter so synchronized clients do not retry in lockstep.
	jitter := time.Duration(rand.Float64()*0.4*float64(d)) - time.Duration(0.2*float64(d))
	return d + jitter
}

func isRetryable(resp *gh.Response, err error) bool {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return false // respecting the reset is the caller's job, not a quick retry
	}
	if resp == nil {
		// Transport-level failure, likely transient.
		return !errors.Is(err, context.Canceled)
	}
	switch resp.StatusCode {
	case 429, 502, 503, 504:
		return true
	case 403:
		return strings.Contains(err.Error(), "secondary rate limit")
	}
	return false
}

func (c *Client) classify(op string, err error) error {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		c.log.Warn("github rate limited",
			logx.String("op", op),
			logx.Time("reset", rateErr.Rate.Reset.Time))
		return fmt.Errorf("%w: rate limited until %s", ErrUnavailable, rateErr.Rate.Reset.Format(time.RFC3339))
	}
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case 404:
			return ErrNotFound
		case 403, 429, 502, 503, 504:
			return fmt.Errorf("%w: %s", ErrUnavailable, ghErr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: request timed out", ErrUnavailable)
	}
	c.log.Error("github request failed", logx.String("op", op), logx.Err(err))
	return fmt.Errorf("%s: %w", op, err)
}

func convertUser(u *gh.User) *User {
	return &User{
		Login:       u.GetLogin(),
		Name:        u.GetName(),
		Bio:         u.GetBio(),
		Location:    u.GetLocation(),
		Company:     u.GetCompany(),
		Blog:        u.GetBlog(),
		PublicRepos: u.GetPublicRepos(),
		Followers:   u.GetFollowers(),
		Following:   u.GetFollowing(),
		CreatedAt:   u.GetCreatedAt().Time,
		HTMLURL:     u.GetHTMLURL(),
	}
}

func convertRepo(r *gh.Repository) *Repo {
	return &Repo{
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Description:   r.GetDescription(),
		Language:      r.GetLanguage(),
		Stars:         r.GetStargazersCount(),
		Forks:         r.GetForksCount(),
		Watchers:      r.GetSubscribersCount(),
		OpenIssues:    r.GetOpenIssuesCount(),
		SizeKB:        r.GetSize(),
		DefaultBranch: r.GetDefaultBranch(),
		Private:       r.GetPrivate(),
		CreatedAt:     r.GetCreatedAt().Time,
		UpdatedAt:     r.GetUpdatedAt().Time,
		HTMLURL:       r.GetHTMLURL(),
	}
}

func convertCommit(rc *gh.RepositoryCommit) Commit {
	c := Commit{
		SHA:     rc.GetSHA(),
		HTMLURL: rc.GetHTMLURL(),
	}
	if gc := rc.GetCommit(); gc != nil {
		c.Message = gc.GetMessage()
		if a := gc.GetAuthor(); a != nil {
			c.Author = a.GetName()
			c.Date = a.GetDate().Time
		}
	}
	if c.Author == "" {
		c.Author = rc.GetAuthor().GetLogin()
	}
	return c
}

func convertIssue(is *gh.Issue) Issue {
	return Issue{
		Number:  is.GetNumber(),
		Title:   is.GetTitle(),
		State:   is.GetState(),
		Author:  is.GetUser().GetLogin(),
		HTMLURL: is.GetHTMLURL(),
	}
}
