package domain

import "time"

type SourceItem struct {
	Title      string
	Author     string
	RawContent string
	SourceURL  string
	FetchedAt  time.Time
}

type Summary struct {
	Text      string
	Attempts  int
	SourceURL string
	Cached    bool
}

type Record struct {
	ID        int64
	Title     string
	Author    string
	Content   string
	Summary   string
	SourceURL string
	CreatedAt time.Time
}

type ErrorKind string

const (
	KindFetch            ErrorKind = "fetch"
	KindTransient        ErrorKind = "transient"
	KindPermanent        ErrorKind = "permanent"
	KindRateLimitTimeout ErrorKind = "rate_limit_timeout"
	KindPersist          ErrorKind = "persist"
	KindCancelled        ErrorKind = "cancelled"
)

type Failure struct {
	Item SourceItem
	Kind ErrorKind
	Err  error
}

// BatchReport lists outcomes in completion order.
type BatchReport struct {
	Succeeded []int64
	Failed    []Failure
}

func (r BatchReport) OK() bool {
	return len(r.Failed) == 0
}

func (r BatchReport) Total() int {
	return len(r.Succeeded) + len(r.Failed)
}

// FailuresByKind counts failures per error kind.
func (r BatchReport) FailuresByKind() map[ErrorKind]int {
	counts := make(map[ErrorKind]int)
	for _, f := range r.Failed {
		counts[f.Kind]++
	}

	return counts
}
