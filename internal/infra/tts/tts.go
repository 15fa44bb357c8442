// Package tts turns reminder text into spoken audio.
package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultLanguage = "en"
	DefaultPitch    = 1.0
	DefaultRate     = 0.9
)

// Voice holds synthesis parameters.
type Voice struct {
	Language string  `json:"language"`
	Pitch    float64 `json:"pitch"`
	Rate     float64 `json:"rate"`
}

// DefaultVoice returns the voice reminders are spoken with.
func DefaultVoice() Voice {
	return Voice{Language: DefaultLanguage, Pitch: DefaultPitch, Rate: DefaultRate}
}

// Request is one utterance to synthesize.
type Request struct {
	Text  string
	Voice Voice
}

// Result is synthesized audio.
type Result struct {
	Audio      []byte
	MimeType   string
	Duration   time.Duration
	SampleRate int
}

// Provider synthesizes speech.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, req Request) (Result, error)
}

// MockProvider returns silent PCM WAV audio whose length follows the text
// and speaking rate, so downstream sinks see realistic payloads.
type MockProvider struct {
	SampleRate int
	// WordsPerMinute at rate 1.0.
	WordsPerMinute float64
}

// NewMockProvider creates a MockProvider with 16 kHz mono output.
func NewMockProvider() *MockProvider {
	return &MockProvider{SampleRate: 16000, WordsPerMinute: 160}
}

func (m *MockProvider) Name() string { return "mock" }

// Synthesize implements Provider.
func (m *MockProvider) Synthesize(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Result{}, fmt.Errorf("tts: empty text")
	}
	if !utf8.ValidString(text) {
		return Result{}, fmt.Errorf("tts: text is not valid UTF-8")
	}
	rate := req.Voice.Rate
	if rate <= 0 {
		rate = DefaultRate
	}

	words := len(strings.Fields(text))
	seconds := float64(words) / (m.WordsPerMinute * rate) * 60
	duration := time.Duration(seconds * float64(time.Second))
	samples := int(seconds * float64(m.SampleRate))

	return Result{
		Audio:      silentWAV(samples, m.SampleRate),
		MimeType:   "audio/wav",
		Duration:   duration,
		SampleRate: m.SampleRate,
	}, nil
}

// silentWAV encodes samples of 16-bit mono silence.
func silentWAV(samples, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataLen := samples * channels * bitsPerSample / 8
	var buf bytes.Buffer
	buf.Grow(44 + dataLen)

	write := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }
	buf.WriteString("RIFF")
	write(uint32(36 + dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	write(uint32(16))
	write(uint16(1))
	write(uint16(channels))
	write(uint32(sampleRate))
	write(uint32(sampleRate * channels * bitsPerSample / 8))
	write(uint16(channels * bitsPerSample / 8))
	write(uint16(bitsPerSample))
	buf.WriteString("data")
	write(uint32(dataLen))
	buf.Write(make([]byte, dataLen))
	return buf.Bytes()
}
