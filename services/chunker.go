package services

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/itish2003/ragkb/models"
	"github.com/tmc/langchaingo/textsplitter"
)

// Chunking parameters of the two ingestion paths. Crawled text carries less
// signal per character, so it gets larger chunks and a larger overlap.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	CrawlChunkSize      = 2500
	CrawlChunkOverlap   = 300
)

// RecursiveChunker splits text on paragraph boundaries first, then on
// sentence (or line) boundaries, then words, then single characters, going
// finer only for pieces that still exceed the chunk size.
//
// Each output chunk is an overlap prefix followed by a body. Bodies partition
// the input exactly, and the prefix is always a suffix of the previous body.
type RecursiveChunker struct {
	size    int
	overlap int
}

var _ textsplitter.TextSplitter = (*RecursiveChunker)(nil)

// NewRecursiveChunker validates the parameters; sizes are counted in runes.
func NewRecursiveChunker(size, overlap int) (*RecursiveChunker, error) {
	if size <= 0 || overlap <= 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk_size=%d chunk_overlap=%d, need 0 < chunk_overlap < chunk_size",
			ErrConfiguration, size, overlap)
	}
	return &RecursiveChunker{size: size, overlap: overlap}, nil
}

type granularity int

const (
	byParagraph granularity = iota
	bySentence
	byWord
	byCharacter
)

// span is a half-open rune range [lo, hi).
type span struct{ lo, hi int }

func (s span) len() int { return s.hi - s.lo }

// Split returns the ordered chunks of text. Blank text has no chunks.
func (c *RecursiveChunker) Split(text string) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	units := c.units(runes, span{0, len(runes)}, byParagraph)
	bodies := c.pack(units)

	chunks := make([]models.Chunk, 0, len(bodies))
	for i, body := range bodies {
		start := body.lo
		if i > 0 {
			start = c.overlapStart(runes, bodies[i-1], body)
		}
		chunks = append(chunks, models.Chunk{
			Index:   i,
			Text:    string(runes[start:body.hi]),
			Overlap: body.lo - start,
		})
	}
	return chunks
}

// SplitText lets the chunker serve as a langchaingo text splitter.
func (c *RecursiveChunker) SplitText(text string) ([]string, error) {
	chunks := c.Split(text)
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Text
	}
	return out, nil
}

func (c *RecursiveChunker) units(runes []rune, s span, g granularity) []span {
	if s.len() <= c.size {
		return []span{s}
	}
	if g == byCharacter {
		out := make([]span, 0, s.len())
		for i := s.lo; i < s.hi; i++ {
			out = append(out, span{i, i + 1})
		}
		return out
	}
	var out []span
	for _, piece := range splitSpan(runes, s, g) {
		out = append(out, c.units(runes, piece, g+1)...)
	}
	return out
}

// pack greedily merges consecutive units into chunk bodies. The first body may
// use the whole chunk size; later ones leave room for the overlap prefix. A
// unit that does not fit the reduced budget but fits the chunk size starts a
// body of its own and the prefix shrinks instead.
func (c *RecursiveChunker) pack(units []span) []span {
	var bodies []span
	cur := span{units[0].lo, units[0].lo}
	budget := c.size
	for _, u := range units {
		if cur.len() > 0 && cur.len()+u.len() > budget {
			bodies = append(bodies, cur)
			cur = span{u.lo, u.lo}
			budget = c.size - c.overlap
		}
		cur.hi = u.hi
	}
	return append(bodies, cur)
}

func (c *RecursiveChunker) overlapStart(runes []rune, prev, body span) int {
	n := min(c.overlap, c.size-body.len(), prev.len())
	if n <= 0 {
		return body.lo
	}
	start := body.lo - n
	for p := start; p < body.lo; p++ {
		if p == prev.lo || (unicode.IsSpace(runes[p-1]) && !unicode.IsSpace(runes[p])) {
			return p
		}
	}
	return start
}

// splitSpan cuts s after separator runs of the given granularity. Separators
// stay with the piece they end, so the pieces cover s without gaps.
func splitSpan(runes []rune, s span, g granularity) []span {
	var pieces []span
	lo := s.lo
	for i := s.lo; i < s.hi; {
		if !unicode.IsSpace(runes[i]) {
			i++
			continue
		}
		k, newlines := i, 0
		for k < s.hi && unicode.IsSpace(runes[k]) {
			if runes[k] == '\n' {
				newlines++
			}
			k++
		}
		if k < s.hi && isBoundary(runes, s.lo, i, newlines, g) {
			pieces = append(pieces, span{lo, k})
			lo = k
		}
		i = k
	}
	return append(pieces, span{lo, s.hi})
}

// isBoundary decides whether the whitespace run starting at i ends a piece.
func isBoundary(runes []rune, lo, i, newlines int, g granularity) bool {
	switch g {
	case byParagraph:
		return newlines >= 2
	case bySentence:
		if newlines > 0 {
			return true
		}
		return i > lo && strings.ContainsRune(".!?", runes[i-1])
	default:
		return true
	}
}
