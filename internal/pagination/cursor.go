package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

// Cursor is a decoded search pagination cursor. Search results rank by a
// score that shifts as content is reindexed, so the cursor carries a plain
// offset plus the query it belongs to; a cursor replayed against a different
// query is rejected rather than silently misapplied.
type Cursor struct {
	Offset int
	Query  string
}

var ErrInvalidCursor = errors.New("invalid cursor format")

// Encode creates a base64-encoded cursor for the next page.
func Encode(offset int, query string) string {
	if offset <= 0 {
		return ""
	}
	raw := strconv.Itoa(offset) + "|" + query
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// Decode parses a cursor produced by Encode. An empty cursor decodes to nil.
func Decode(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return nil, ErrInvalidCursor
	}

	offset, err := strconv.Atoi(parts[0])
	if err != nil || offset < 0 {
		return nil, ErrInvalidCursor
	}

	return &Cursor{Offset: offset, Query: parts[1]}, nil
}
