package services

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCompleter replays fragments and optionally fails after them.
type scriptedCompleter struct {
	fragments []string
	err       error

	calls  int
	prompt string
	system string
	budget int
	ctx    context.Context
}

func (s *scriptedCompleter) StreamComplete(ctx context.Context, prompt, system string, budget int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.calls++
		s.ctx, s.prompt, s.system, s.budget = ctx, prompt, system, budget
		for _, f := range s.fragments {
			if !yield(f, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
}

func collect(seq iter.Seq[string]) []string {
	var out []string
	for f := range seq {
		out = append(out, f)
	}
	return out
}

func TestGenerate_PromptCarriesQueryAndPassagesInOrder(t *testing.T) {
	c := &scriptedCompleter{fragments: []string{"The sky ", "is blue."}}
	g := NewGenerator(c, DefaultReasoningBudget)

	got := collect(g.Generate(context.Background(), "What colour is the sky?",
		[]string{"The sky is blue.", "The grass is green."}, ModeFull))

	assert.Equal(t, []string{"The sky ", "is blue."}, got)
	assert.Contains(t, c.prompt, "What colour is the sky?")
	first := strings.Index(c.prompt, "[1] The sky is blue.")
	second := strings.Index(c.prompt, "[2] The grass is green.")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)

	assert.Contains(t, c.system, GeneralKnowledgePhrase)
	assert.NotContains(t, c.system, ShortAnswerInstruction)
	assert.Equal(t, DefaultReasoningBudget, c.budget)
}

func TestGenerate_ShortModeAddsSpokenInstruction(t *testing.T) {
	c := &scriptedCompleter{fragments: []string{"Blue."}}
	g := NewGenerator(c, DefaultReasoningBudget)

	collect(g.Generate(context.Background(), "sky?", nil, ModeShort))
	assert.True(t, strings.HasSuffix(c.system, ShortAnswerInstruction))
	assert.Contains(t, c.system, "text to audio")
}

func TestGenerate_IsLazyAndSingleUse(t *testing.T) {
	c := &scriptedCompleter{fragments: []string{"a", "b"}}
	g := NewGenerator(c, 0)

	seq := g.Generate(context.Background(), "q", []string{"p"}, ModeFull)
	assert.Zero(t, c.calls, "no provider call before iteration")

	assert.Equal(t, []string{"a", "b"}, collect(seq))
	assert.Empty(t, collect(seq), "a consumed sequence yields nothing")
	assert.Equal(t, 1, c.calls)
}

func TestGenerate_ProviderFailureEndsWithDiagnostic(t *testing.T) {
	c := &scriptedCompleter{fragments: []string{"partial "}, err: errors.New("quota exceeded")}
	g := NewGenerator(c, 0)

	got := collect(g.Generate(context.Background(), "q", nil, ModeFull))
	assert.Equal(t, []string{"partial ", GenerationFailedMessage}, got)
}

func TestGenerate_StopCancelsProvider(t *testing.T) {
	c := &scriptedCompleter{fragments: []string{"a", "b", "c"}}
	g := NewGenerator(c, 0)

	for f := range g.Generate(context.Background(), "q", nil, ModeFull) {
		assert.Equal(t, "a", f)
		break
	}
	require.NotNil(t, c.ctx)
	assert.ErrorIs(t, c.ctx.Err(), context.Canceled)
}
