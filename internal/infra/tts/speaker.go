package tts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"georemind/internal/infra/filestore"
	"georemind/internal/shared/logging"
	id "georemind/internal/shared/utils/id"
)

// Utterance is synthesized speech ready to play.
type Utterance struct {
	Text      string
	Voice     Voice
	Audio     Result
	SessionID string
	TaskID    string
	At        time.Time
}

// Sink plays or stores an utterance.
type Sink interface {
	Play(ctx context.Context, u Utterance) error
}

// Speaker synthesizes text and hands the audio to a sink.
type Speaker struct {
	provider Provider
	sink     Sink
	voice    Voice
	logger   logging.Logger
	now      func() time.Time
}

// SpeakerOption customizes a Speaker.
type SpeakerOption func(*Speaker)

// WithVoice overrides the default voice.
func WithVoice(v Voice) SpeakerOption {
	return func(s *Speaker) { s.voice = v }
}

// WithSpeakerLogger sets the speaker logger.
func WithSpeakerLogger(logger logging.Logger) SpeakerOption {
	return func(s *Speaker) { s.logger = logging.OrNop(logger) }
}

// NewSpeaker creates a Speaker.
func NewSpeaker(provider Provider, sink Sink, opts ...SpeakerOption) *Speaker {
	s := &Speaker{
		provider: provider,
		sink:     sink,
		voice:    DefaultVoice(),
		logger:   logging.NewComponentLogger("Speaker"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Speak synthesizes text and plays it.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	result, err := s.provider.Synthesize(ctx, Request{Text: text, Voice: s.voice})
	if err != nil {
		return fmt.Errorf("synthesize with %s: %w", s.provider.Name(), err)
	}
	u := Utterance{
		Text:      text,
		Voice:     s.voice,
		Audio:     result,
		SessionID: id.SessionIDFromContext(ctx),
		TaskID:    id.TaskIDFromContext(ctx),
		At:        s.now(),
	}
	if err := s.sink.Play(ctx, u); err != nil {
		return fmt.Errorf("play utterance: %w", err)
	}
	s.logger.Debug("Spoke %q (%s, %s)", text, result.Duration.Round(time.Millisecond), s.voice.Language)
	return nil
}

// WriterSink prints each utterance as a line of text.
type WriterSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriterSink creates a WriterSink.
func NewWriterSink(out io.Writer) *WriterSink {
	return &WriterSink{out: out}
}

// Play implements Sink.
func (w *WriterSink) Play(_ context.Context, u Utterance) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.out, "[speech %s] %s\n", u.Voice.Language, u.Text)
	return err
}

// LoggerSink logs each utterance.
type LoggerSink struct {
	logger logging.Logger
}

// NewLoggerSink creates a LoggerSink.
func NewLoggerSink(logger logging.Logger) *LoggerSink {
	return &LoggerSink{logger: logging.OrNop(logger)}
}

// Play implements Sink.
func (l *LoggerSink) Play(_ context.Context, u Utterance) error {
	l.logger.Info("Speech for task %s: %s", u.TaskID, u.Text)
	return nil
}

// DirSink writes each utterance's audio as a .wav file under a directory.
type DirSink struct {
	dir string
}

// NewDirSink creates a DirSink rooted at dir.
func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

// Play implements Sink. Files are grouped per task.
func (d *DirSink) Play(_ context.Context, u Utterance) error {
	group := u.TaskID
	if group == "" {
		group = "untagged"
	}
	name := fmt.Sprintf("%s-%s.wav", u.At.UTC().Format("20060102T150405"), id.NewNotificationID())
	path := filepath.Join(d.dir, group, name)
	return filestore.AtomicWrite(path, u.Audio.Audio, 0o644)
}

// Files lists the audio files written for taskID.
func (d *DirSink) Files(taskID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(d.dir, taskID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".wav" {
			out = append(out, filepath.Join(d.dir, taskID, e.Name()))
		}
	}
	return out, nil
}
