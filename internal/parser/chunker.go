package parser

import (
	"fmt"

	"resume-agent-go/internal/constants"
)

// TextChunk is one window of a chunked document. Offset and the text are
// measured in runes so multi-byte content chunks cleanly.
type TextChunk struct {
	Index  int
	Offset int
	Text   string
}

// Chunker splits text into fixed-size overlapping windows. Window starts
// advance by Window-Overlap runes, so every chunk except possibly the last
// shares exactly Overlap runes with its predecessor.
type Chunker struct {
	Window  int
	Overlap int
}

// NewChunker validates the window geometry. Zero values fall back to the
// defaults (window 1000, overlap 200).
func NewChunker(window, overlap int) (*Chunker, error) {
	if window == 0 {
		window = constants.DefaultChunkWindow
		if overlap == 0 {
			overlap = constants.DefaultChunkOverlap
		}
	}
	if window <= 0 {
		return nil, fmt.Errorf("chunker: window must be positive, got %d", window)
	}
	if overlap < 0 || overlap >= window {
		return nil, fmt.Errorf("chunker: overlap must be in [0, window), got %d", overlap)
	}
	return &Chunker{Window: window, Overlap: overlap}, nil
}

// Chunk produces the ordered windows of text. Window starts are
// 0, W-O, 2(W-O), ... until a start reaches the text length; the final
// window may be shorter than W. Empty text yields no chunks.
func (c *Chunker) Chunk(text string) []TextChunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.Window - c.Overlap
	chunks := make([]TextChunk, 0, (len(runes)+step-1)/step)
	for offset := 0; offset < len(runes); offset += step {
		end := offset + c.Window
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, TextChunk{
			Index:  len(chunks),
			Offset: offset,
			Text:   string(runes[offset:end]),
		})
	}
	return chunks
}
