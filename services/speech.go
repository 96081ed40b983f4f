package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// SpeechProvider backs the voice query path.
type SpeechProvider interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

const transcriptionPrompt = "Transcribe the spoken question in this audio exactly as said. Reply with the transcript only, without commentary."

// Gemini TTS returns raw 16-bit mono PCM at this rate.
const ttsSampleRate = 24000

// GeminiSpeech transcribes with a multimodal model and speaks with a TTS model.
type GeminiSpeech struct {
	client     *genai.Client
	model      string
	voiceModel string
	voice      string
}

func NewGeminiSpeech(client *genai.Client, model, voiceModel, voice string) *GeminiSpeech {
	return &GeminiSpeech{client: client, model: model, voiceModel: voiceModel, voice: voice}
}

func (s *GeminiSpeech) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: empty audio upload", ErrConfiguration)
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcriptionPrompt),
			genai.NewPartFromBytes(audio, mimeType),
		}, genai.RoleUser),
	}
	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("transcribing audio: %w", err)
	}
	return strings.TrimSpace(responseText(resp)), nil
}

// Synthesize returns a WAV file.
func (s *GeminiSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := s.client.Models.GenerateContent(ctx, s.voiceModel, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.voice},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("synthesizing speech: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("synthesizing speech: empty response")
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return pcmToWAV(p.InlineData.Data, ttsSampleRate), nil
		}
	}
	return nil, fmt.Errorf("synthesizing speech: response carried no audio")
}

// pcmToWAV prefixes 16-bit mono little-endian PCM with a RIFF header.
func pcmToWAV(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	write := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	write(uint32(36 + len(pcm)))
	buf.WriteString("WAVEfmt ")
	write(uint32(16))
	write(uint16(1)) // PCM
	write(uint16(channels))
	write(uint32(sampleRate))
	write(uint32(sampleRate * channels * bitsPerSample / 8))
	write(uint16(channels * bitsPerSample / 8))
	write(uint16(bitsPerSample))
	buf.WriteString("data")
	write(uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
