package domain

import "time"

// SearchMode reports which engine produced a result set.
type SearchMode string

const (
	SearchModeNone    SearchMode = "none"
	SearchModeKeyword SearchMode = "keyword"
	SearchModeVector  SearchMode = "vector"
	SearchModeError   SearchMode = "error"
)

// SearchSort orders keyword results.
type SearchSort string

const (
	SortRelevance SearchSort = "relevance"
	SortNewest    SearchSort = "newest"
	SortOldest    SearchSort = "oldest"
	SortVotes     SearchSort = "votes"
	SortActivity  SearchSort = "activity"
)

// NormalizeSort maps arbitrary input to a supported sort, defaulting to
// relevance.
func NormalizeSort(s string) SearchSort {
	switch SearchSort(s) {
	case SortNewest, SortOldest, SortVotes, SortActivity, SortRelevance:
		return SearchSort(s)
	default:
		return SortRelevance
	}
}

// SearchHit is the uniform result envelope for both engines. Fields are
// denormalized from the document snapshot so the forum app can render a
// result row without further lookups.
type SearchHit struct {
	Ref            DocumentRef
	SpaceID        string
	SpaceSlug      string
	Slug           string
	Title          string
	Snippet        string
	AuthorID       string
	AuthorName     string
	Tags           []string
	VoteScore      int
	Score          float64
	LastActivityAt time.Time
	UpdatedAt      time.Time
}

// Suggestion is a typeahead entry.
type Suggestion struct {
	Ref       DocumentRef
	Title     string
	Slug      string
	SpaceSlug string
}
