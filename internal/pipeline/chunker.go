// Package pipeline provides document chunking and the retrieval pipeline.
package pipeline

import (
	"strings"
	"unicode/utf8"

	"github.com/Tarrun1506/starrag-bot/internal/models"
)

// Chunker splits text into overlapping fixed-size passages. Sizes are in
// characters, so a cut can never land inside a multibyte sequence. Each chunk
// is an exact substring of the input and consecutive chunks overlap by exactly
// the configured overlap, so the original text can be reconstructed by
// concatenating chunks with the overlap stripped.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap.
// The overlap is clamped below the size so every step makes progress.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Split cuts text into chunks carrying metadata.source = source. Cuts prefer
// a paragraph break, then a sentence end, then a word break within a bounded
// back-off window before falling back to a hard cut. Empty input returns nil.
func (c *Chunker) Split(text, source string) []models.Chunk {
	if text == "" {
		return nil
	}
	meta := models.ChunkMetadata{Source: source}
	runes := []rune(text)
	if len(runes) <= c.chunkSize {
		return []models.Chunk{{Text: text, Metadata: meta}}
	}
	var chunks []models.Chunk
	start := 0
	for {
		end := start + c.chunkSize
		if end >= len(runes) {
			chunks = append(chunks, models.Chunk{Text: string(runes[start:]), Metadata: meta})
			break
		}
		cut := c.boundaryCut(runes, start, end)
		chunks = append(chunks, models.Chunk{Text: string(runes[start:cut]), Metadata: meta})
		start = cut - c.chunkOverlap
	}
	return chunks
}

// boundaryCut returns a cut position in (start, end] ending the chunk at the
// most natural boundary found within the back-off window, or end when none is
// found. The cut keeps the boundary characters in the current chunk.
func (c *Chunker) boundaryCut(runes []rune, start, end int) int {
	window := c.chunkOverlap
	if window == 0 || window > end-start-c.chunkOverlap-1 {
		// Window must leave the next start strictly after the current one.
		window = (end - start - c.chunkOverlap - 1) / 2
	}
	if window <= 0 {
		return end
	}
	region := string(runes[end-window : end])
	for _, sep := range []string{"\n\n", "\n", ". ", " "} {
		if i := strings.LastIndex(region, sep); i >= 0 {
			// i is a byte offset into region; the cut is in characters.
			return end - window + utf8.RuneCountInString(region[:i]) + len(sep)
		}
	}
	return end
}

// Reassemble joins chunks back into the original text by stripping the
// configured overlap from every chunk after the first. Inverse of Split for
// any input.
func (c *Chunker) Reassemble(chunks []models.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(chunks[0].Text)
	for _, ch := range chunks[1:] {
		runes := []rune(ch.Text)
		b.WriteString(string(runes[c.chunkOverlap:]))
	}
	return b.String()
}
