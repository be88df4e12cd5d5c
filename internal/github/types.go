package github

import "time"

// Slim views of the GitHub REST resources the bot displays. Converting
// away from the go-github types keeps the reply formatter pure and the
// dispatcher testable with hand-built fixtures.

type User struct {
	Login       string
	Name        string
	Bio         string
	Location    string
	Company     string
	Blog        string
	PublicRepos int
	Followers   int
	Following   int
	CreatedAt   time.Time
	HTMLURL     string
}

type Repo struct {
	Name          string
	FullName      string
	Description   string
	Language      string
	Stars         int
	Forks         int
	Watchers      int
	OpenIssues    int
	SizeKB        int
	DefaultBranch string
	Private       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	HTMLURL       string
}

type Commit struct {
	SHA     string
	Message string
	Author  string
	Date    time.Time
	HTMLURL string
}

type Issue struct {
	Number  int
	Title   string
	State   string
	Author  string
	HTMLURL string
}

// RateQuota is the core API rate limit snapshot.
type RateQuota struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}
