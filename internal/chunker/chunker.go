// Package chunker splits document text into overlapping, token-bounded
// segments suitable for embedding. Token counts are estimated from character
// length with a fixed chars-per-token ratio; exact tokenization is not a goal.
package chunker

import (
	"strings"

	"github.com/colloquyhq/retrieval/internal/domain"
)

// Config controls chunk sizing and boundary selection.
type Config struct {
	ChunkSizeTokens int
	Overlap         float64 // fraction of a chunk shared with its successor
	CharsPerToken   int

	// Boundary tuning. A sentence break is searched in the trailing
	// BoundaryWindow fraction of the window and accepted only past the
	// MinBoundary fraction, so chunks never collapse below half size.
	// Empirically tuned values, nothing more.
	BoundaryWindow float64
	MinBoundary    float64
}

// DefaultConfig provides sane defaults for chunking.
func DefaultConfig() Config {
	return Config{
		ChunkSizeTokens: 400,
		Overlap:         0.1,
		CharsPerToken:   4,
		BoundaryWindow:  0.2,
		MinBoundary:     0.5,
	}
}

// Chunk is one emitted segment.
type Chunk struct {
	Index      int
	Content    string
	TokenCount int
	Position   domain.ChunkPosition
}

var sentenceEnders = map[rune]struct{}{
	'.': {}, '!': {}, '?': {},
	'。': {}, '！': {}, '？': {},
}

// Split chunks text according to cfg. Blank input produces no chunks; input
// that fits the target size produces a single chunk labeled "only".
func Split(text string, cfg Config) []Chunk {
	clean := normalize(text)
	if clean == "" {
		return nil
	}
	if cfg.ChunkSizeTokens <= 0 || cfg.CharsPerToken <= 0 {
		def := DefaultConfig()
		if cfg.ChunkSizeTokens <= 0 {
			cfg.ChunkSizeTokens = def.ChunkSizeTokens
		}
		if cfg.CharsPerToken <= 0 {
			cfg.CharsPerToken = def.CharsPerToken
		}
	}
	if cfg.Overlap < 0 || cfg.Overlap >= 1 {
		cfg.Overlap = DefaultConfig().Overlap
	}
	if cfg.BoundaryWindow <= 0 || cfg.BoundaryWindow > 1 {
		cfg.BoundaryWindow = DefaultConfig().BoundaryWindow
	}
	if cfg.MinBoundary <= 0 || cfg.MinBoundary >= 1 {
		cfg.MinBoundary = DefaultConfig().MinBoundary
	}

	runes := []rune(clean)
	targetChars := cfg.ChunkSizeTokens * cfg.CharsPerToken

	if len(runes) <= targetChars {
		return []Chunk{{
			Index:      0,
			Content:    clean,
			TokenCount: estimateTokens(len(runes), cfg.CharsPerToken),
			Position:   domain.ChunkPositionOnly,
		}}
	}

	overlapChars := int(float64(targetChars) * cfg.Overlap)
	chunks := make([]Chunk, 0, 8)
	start := 0

	for start < len(runes) {
		end := start + targetChars
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			end = cutPoint(runes, start, end, cfg)
		}
		if end <= start {
			break
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			chunks = append(chunks, Chunk{
				Index:      len(chunks),
				Content:    content,
				TokenCount: estimateTokens(end-start, cfg.CharsPerToken),
			})
		}

		if end >= len(runes) {
			break
		}

		nextStart := end - overlapChars
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	for i := range chunks {
		switch {
		case i == 0:
			chunks[i].Position = domain.ChunkPositionStart
		case i == len(chunks)-1:
			chunks[i].Position = domain.ChunkPositionEnd
		default:
			chunks[i].Position = domain.ChunkPositionMiddle
		}
	}
	if len(chunks) == 1 {
		chunks[0].Position = domain.ChunkPositionOnly
	}

	return chunks
}

// cutPoint picks where the window [start,end) actually ends: a sentence break
// in the trailing search window if it falls past the minimum position, else
// the nearest preceding word boundary, else the hard window edge.
func cutPoint(runes []rune, start, end int, cfg Config) int {
	window := end - start
	searchFrom := end - int(float64(window)*cfg.BoundaryWindow)
	minCut := start + int(float64(window)*cfg.MinBoundary)

	for i := end; i > searchFrom && i > start+1; i-- {
		if _, ok := sentenceEnders[runes[i-1]]; !ok {
			continue
		}
		if i < len(runes) && runes[i] != ' ' {
			continue
		}
		if i > minCut {
			return i
		}
		break
	}

	for i := end; i > minCut; i-- {
		if runes[i-1] == ' ' {
			return i
		}
	}

	return end
}

func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func estimateTokens(chars, charsPerToken int) int {
	if chars <= 0 {
		return 0
	}
	n := (chars + charsPerToken - 1) / charsPerToken
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateTokens estimates the token count of text using cfg's ratio.
func EstimateTokens(text string, cfg Config) int {
	if cfg.CharsPerToken <= 0 {
		cfg.CharsPerToken = DefaultConfig().CharsPerToken
	}
	return estimateTokens(len([]rune(normalize(text))), cfg.CharsPerToken)
}
