package speech

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"

	"github.com/khushidubeyokok/AMD/internal/logger"
	"github.com/khushidubeyokok/AMD/internal/voice"
)

// DefaultDeepgramModel is the voice used when none is configured.
const DefaultDeepgramModel = "aura-2-thalia-en"

// PCMSink receives synthesized audio chunks. Implementations must not retain
// the slice past the call.
type PCMSink func(pcm []byte)

// Deepgram is a voice.Synthesizer over the Deepgram speak websocket. Speak
// blocks until playback audio stops arriving, matching the channel contract
// that synthesis holds the speaking state until it finishes.
type Deepgram struct {
	apiKey     string
	model      string
	sampleRate int
	encoding   string
	sink       PCMSink
	log        *logger.Logger
}

// NewDeepgram builds the synthesizer. The sink receives 48 kHz linear16 PCM
// as it streams in.
func NewDeepgram(apiKey, model string, sink PCMSink, log *logger.Logger) (*Deepgram, error) {
	if apiKey == "" || sink == nil {
		return nil, fmt.Errorf("deepgram: %w", voice.ErrUnsupported)
	}
	if model == "" {
		model = DefaultDeepgramModel
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Deepgram{
		apiKey:     apiKey,
		model:      model,
		sampleRate: 48000,
		encoding:   "linear16",
		sink:       sink,
		log:        log,
	}, nil
}

// Speak synthesizes text and streams the audio into the sink. It returns when
// the audio stream goes idle, the deadline passes, or ctx is cancelled.
func (d *Deepgram) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.model,
		Encoding:   d.encoding,
		SampleRate: d.sampleRate,
	}

	var lastRecvUnix int64
	var seenAudio int32
	cb := &speakCallback{onBinary: func(data []byte) error {
		if len(data) == 0 {
			return nil
		}
		atomic.StoreInt64(&lastRecvUnix, time.Now().UnixNano())
		atomic.StoreInt32(&seenAudio, 1)
		d.sink(data)
		return nil
	}}

	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return fmt.Errorf("deepgram: create ws client: %w", err)
	}

	stopped := false
	stopClient := func() {
		if !stopped {
			stopped = true
			dg.Stop()
		}
	}
	defer stopClient()

	if ok := dg.Connect(); !ok {
		return fmt.Errorf("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		d.log.Warn("deepgram flush failed", "err", err)
	}

	// Completion is inferred from the audio stream going quiet. The hard
	// deadline bounds pathological cases where no audio ever arrives.
	idleWindow := 400 * time.Millisecond
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(30 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if atomic.LoadInt32(&seenAudio) == 1 {
				last := time.Unix(0, atomic.LoadInt64(&lastRecvUnix))
				if time.Since(last) > idleWindow {
					return nil
				}
			}
			if time.Now().After(deadline) {
				return nil
			}
		}
	}
}

type speakCallback struct{ onBinary func([]byte) error }

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) Error(*msginterfaces.ErrorResponse) error       { return nil }
func (s *speakCallback) UnhandledEvent([]byte) error                    { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
