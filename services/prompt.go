package services

import (
	"fmt"
	"strings"
)

// AnswerMode selects the shape of a generated answer.
type AnswerMode int

const (
	// ModeFull answers at whatever length the question needs.
	ModeFull AnswerMode = iota
	// ModeShort keeps answers to one spoken-length paragraph.
	ModeShort
)

func (m AnswerMode) String() string {
	if m == ModeShort {
		return "short"
	}
	return "full"
}

// GeneralKnowledgePhrase introduces anything the answer takes from outside
// the retrieved documents.
const GeneralKnowledgePhrase = "However, based on my general knowledge..."

const groundingInstruction = `You are an AI assistant that answers questions from a set of retrieved documents.
- Primary goal: answer using only the information found in the Retrieved Documents. Synthesize the relevant parts into a clear, concise answer. Do not invent facts or assume anything the text does not say.
- Synthesize, don't just extract: combine information from different documents into one well-written answer instead of copying passages.
- Missing information: if the documents do not contain what is needed to fully answer, say so at the very beginning of your response, for example "The provided documents do not contain information on this topic."
- General knowledge fallback: only after stating that the documents are insufficient may you answer from your own knowledge. Keep it clearly separated from the document-based part and introduce it with the phrase "` + GeneralKnowledgePhrase + `"`

// ShortAnswerInstruction is appended in ModeShort; the answer is read aloud.
const ShortAnswerInstruction = `
- IMPORTANT, keep the response very short: it will be converted from text to audio. Give a brief, conversational answer that sounds natural when spoken, no longer than one short paragraph, with simple language and short sentences.`

// SystemInstruction returns the grounding policy for the given mode.
func SystemInstruction(mode AnswerMode) string {
	if mode == ModeShort {
		return groundingInstruction + ShortAnswerInstruction
	}
	return groundingInstruction
}

// BuildPrompt embeds the literal question and the passages in rank order.
func BuildPrompt(query string, passages []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nRetrieved Documents:\n", query)
	if len(passages) == 0 {
		sb.WriteString("(none)\n")
	}
	for i, p := range passages {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, p)
	}
	return sb.String()
}
