package services

import (
	"context"
	"iter"
	"log"
	"sync/atomic"
)

// GenerationFailedMessage is the last fragment of a stream whose provider
// failed part-way.
const GenerationFailedMessage = "An error occurred while generating the response"

// DefaultReasoningBudget caps the thinking tokens spent per answer.
const DefaultReasoningBudget = 10

// Generator turns a question and its passages into a streamed answer.
type Generator struct {
	completer       CompletionProvider
	reasoningBudget int
}

func NewGenerator(completer CompletionProvider, reasoningBudget int) *Generator {
	return &Generator{completer: completer, reasoningBudget: reasoningBudget}
}

// Generate returns a lazy, single-use fragment sequence. Nothing is sent to
// the provider until the sequence is ranged over, and breaking out of the
// range cancels the request. A provider error ends the stream with
// GenerationFailedMessage.
func (g *Generator) Generate(ctx context.Context, query string, passages []string, mode AnswerMode) iter.Seq[string] {
	prompt := BuildPrompt(query, passages)
	system := SystemInstruction(mode)
	var consumed atomic.Bool

	return func(yield func(string) bool) {
		if !consumed.CompareAndSwap(false, true) {
			return
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		for fragment, err := range g.completer.StreamComplete(ctx, prompt, system, g.reasoningBudget) {
			if err != nil {
				log.Printf("SERVICE: %v (%s mode): %v", ErrGeneration, mode, err)
				yield(GenerationFailedMessage)
				return
			}
			if !yield(fragment) {
				return
			}
		}
	}
}
