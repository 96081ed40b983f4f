package services

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/itish2003/ragkb/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecursiveChunker_InvalidParameters(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -10, 2},
		{"zero overlap", 100, 0},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecursiveChunker(tt.size, tt.overlap)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestSplit_BlankText(t *testing.T) {
	c, err := NewRecursiveChunker(20, 5)
	require.NoError(t, err)

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split(" \n\t \n"))
}

func TestSplit_ShortTextIsSingleChunk(t *testing.T) {
	c, err := NewRecursiveChunker(DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)

	chunks := c.Split("A short note.")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "A short note.", chunks[0].Text)
	assert.Zero(t, chunks[0].Overlap)
}

func TestSplit_TwoSentences(t *testing.T) {
	c, err := NewRecursiveChunker(20, 5)
	require.NoError(t, err)

	chunks := c.Split("The sky is blue. The grass is green.")
	require.Len(t, chunks, 2)

	assert.Equal(t, "The sky is blue. ", chunks[0].Text)
	assert.Equal(t, " The grass is green.", chunks[1].Text)
	assert.Equal(t, 1, chunks[1].Overlap)
	assert.Equal(t, "The grass is green.", chunks[1].Body())
}

func TestSplit_OverlapStartsOnWordWhenSizeAllows(t *testing.T) {
	c, err := NewRecursiveChunker(30, 10)
	require.NoError(t, err)

	chunks := c.Split("The sky is blue. The grass is green.")
	require.Len(t, chunks, 2)

	assert.Equal(t, "The sky is blue. ", chunks[0].Text)
	assert.Equal(t, "is blue. The grass is green.", chunks[1].Text)
	assert.Equal(t, 9, chunks[1].Overlap)
	assert.Equal(t, "The grass is green.", chunks[1].Body())
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	c, err := NewRecursiveChunker(40, 10)
	require.NoError(t, err)

	text := "First paragraph is here.\n\nSecond paragraph follows it."
	chunks := c.Split(text)
	require.Len(t, chunks, 2)
	assert.Equal(t, "First paragraph is here.\n\n", chunks[0].Text)
	assert.True(t, strings.HasSuffix(chunks[1].Text, "Second paragraph follows it."))
}

func TestSplit_UnbrokenTextFallsBackToCharacters(t *testing.T) {
	c, err := NewRecursiveChunker(10, 3)
	require.NoError(t, err)

	text := strings.Repeat("x", 35)
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 3)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), 10)
	}
	assertReconstructs(t, text, c.Split(text))
}

func TestSplit_Invariants(t *testing.T) {
	words := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta", "iota", "kappa",
		"ünïcödé", "日本語", "supercalifragilisticexpialidocious"}
	seps := []string{" ", " ", " ", ". ", "! ", "\n", "\n\n", "? "}

	params := []struct{ size, overlap int }{
		{20, 5}, {50, 10}, {100, 30}, {300, 60}, {DefaultChunkSize, DefaultChunkOverlap},
	}
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 40; round++ {
		var b strings.Builder
		n := 20 + rng.Intn(600)
		for i := 0; i < n; i++ {
			b.WriteString(words[rng.Intn(len(words))])
			b.WriteString(seps[rng.Intn(len(seps))])
		}
		text := b.String()

		for _, p := range params {
			c, err := NewRecursiveChunker(p.size, p.overlap)
			require.NoError(t, err)

			chunks := c.Split(text)
			require.NotEmpty(t, chunks)
			for i, ch := range chunks {
				assert.Equal(t, i, ch.Index)
				assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), p.size)
				assert.LessOrEqual(t, ch.Overlap, p.overlap)
				if i == 0 {
					assert.Zero(t, ch.Overlap)
					continue
				}
				prev := chunks[i-1].Body()
				prefix := string([]rune(ch.Text)[:ch.Overlap])
				assert.True(t, strings.HasSuffix(prev, prefix), "overlap must come from the previous chunk body")
			}
			assertReconstructs(t, text, chunks)
			assert.Equal(t, chunks, c.Split(text), "chunking must be deterministic")
		}
	}
}

func TestSplitText_MatchesSplit(t *testing.T) {
	c, err := NewRecursiveChunker(20, 5)
	require.NoError(t, err)

	texts, err := c.SplitText("The sky is blue. The grass is green.")
	require.NoError(t, err)
	assert.Equal(t, []string{"The sky is blue. ", " The grass is green."}, texts)
}

func assertReconstructs(t *testing.T, text string, chunks []models.Chunk) {
	t.Helper()
	var b strings.Builder
	for _, ch := range chunks {
		b.WriteString(ch.Body())
	}
	assert.Equal(t, text, b.String())
}
