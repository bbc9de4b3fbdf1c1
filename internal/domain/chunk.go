package domain

import "time"

// ChunkPosition labels where a chunk sits within its parent's text.
type ChunkPosition string

const (
	ChunkPositionOnly   ChunkPosition = "only"
	ChunkPositionStart  ChunkPosition = "start"
	ChunkPositionMiddle ChunkPosition = "middle"
	ChunkPositionEnd    ChunkPosition = "end"
)

// Chunk is an embeddable slice of a document's text. A document's chunks are
// always replaced as a whole generation; chunk_index is contiguous and
// zero-based within the parent.
type Chunk struct {
	ID         string
	Parent     DocumentRef
	ChunkIndex int
	Content    string
	TokenCount int
	Embedding  []float32
	ProviderID string // embedding provider that produced the vector
	EmbeddedAt *time.Time

	// Provenance of the text inside an aggregate document, e.g. the
	// accepted answer embedded under its question.
	SourceType string
	SourceID   string
	Position   ChunkPosition

	CreatedAt time.Time
}

// ChunkMatch is a nearest-neighbor hit before grouping: one chunk plus the
// cosine distance reported by the index and the parent snapshot columns
// needed for filtering and display.
type ChunkMatch struct {
	ChunkID    string
	Parent     DocumentRef
	ChunkIndex int
	Content    string
	Distance   float64

	SpaceID        string
	SpaceSlug      string
	Slug           string
	Title          string
	AuthorID       string
	AuthorName     string
	Tags           []string
	VoteScore      int
	LastActivityAt time.Time
	UpdatedAt      time.Time
}

// Similarity converts the match distance into the 1-distance similarity used
// for thresholding and ranking.
func (m *ChunkMatch) Similarity() float64 {
	return 1 - m.Distance
}
