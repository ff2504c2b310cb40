package httpserver

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/khushidubeyokok/AMD/internal/config"
	"github.com/khushidubeyokok/AMD/internal/content"
	"github.com/khushidubeyokok/AMD/internal/intent"
	"github.com/khushidubeyokok/AMD/internal/logger"
	"github.com/khushidubeyokok/AMD/internal/progress"
	"github.com/khushidubeyokok/AMD/internal/session"
	"github.com/khushidubeyokok/AMD/internal/speech"
	"github.com/khushidubeyokok/AMD/internal/voice"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Managed bundles one session with its voice plumbing.
type Managed struct {
	Session *session.Session

	channel   *voice.Channel
	debouncer *voice.Debouncer
	bridge    *wsBridge
	done      chan struct{}
	closeOnce sync.Once
}

// Manager owns the lifecycle of live tutoring sessions.
type Manager struct {
	cfg     config.Config
	tracker progress.Tracker
	source  content.Source
	log     *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Managed
}

// NewManager builds a session manager.
func NewManager(cfg config.Config, tracker progress.Tracker, source content.Source, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		tracker:  tracker,
		source:   source,
		log:      log,
		sessions: make(map[string]*Managed),
	}
}

// Create builds the voice channel, debouncer, and session for one chapter and
// registers it under a fresh id. The client attaches over the websocket
// endpoint afterwards.
func (m *Manager) Create(subject, chapter string) (*Managed, error) {
	bridge := newWSBridge(m.log)
	var rec voice.Recognizer = bridge
	var syn voice.Synthesizer = bridge

	if m.cfg.VoiceProvider == config.ProviderServer {
		a, err := speech.NewAssemblyAI(m.cfg.AssemblyAIKey, m.log)
		if err != nil {
			return nil, fmt.Errorf("recognizer: %w", err)
		}
		d, err := speech.NewDeepgram(m.cfg.DeepgramKey, m.cfg.DeepgramModel, bridge.WriteBinary, m.log)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("synthesizer: %w", err)
		}
		bridge.onAudio = func(pcm []byte) { _ = a.Feed(pcm) }
		rec, syn = a, d
	}

	ch, err := voice.NewChannel(rec, syn, m.log)
	if err != nil {
		return nil, err
	}
	parser := intent.NewParser(intent.Options{StrictOptions: m.cfg.StrictOptions})
	sess, err := session.New(session.Config{
		Subject:     subject,
		Chapter:     chapter,
		PacingDelay: m.cfg.PacingDelay,
	}, ch, parser, m.tracker, m.source, m.log)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	deb := voice.NewDebouncer(m.cfg.DebounceWnd, ch.State, sess.HandleUtterance)

	mg := &Managed{
		Session:   sess,
		channel:   ch,
		debouncer: deb,
		bridge:    bridge,
		done:      make(chan struct{}),
	}
	go m.pump(mg)

	m.mu.Lock()
	m.sessions[sess.ID()] = mg
	m.mu.Unlock()
	m.log.Info("session created", "id", sess.ID(), "subject", subject, "chapter", chapter)
	return mg, nil
}

// Get looks a session up by id.
func (m *Manager) Get(id string) (*Managed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mg, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return mg, nil
}

// Delete tears a session down and removes it.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	mg, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	mg.close()
	m.log.Info("session deleted", "id", id)
	return nil
}

// Attach binds a client websocket to a session, opens the listening turn, and
// triggers the welcome announcement.
func (m *Manager) Attach(id string, conn *websocket.Conn) error {
	mg, err := m.Get(id)
	if err != nil {
		return err
	}
	mg.bridge.Attach(conn)
	if err := mg.channel.StartListening(); err != nil {
		m.log.Warn("listen start failed", "id", id, "err", err)
	}
	mg.Session.Start()
	return nil
}

// Close tears down every live session, for server shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*Managed, 0, len(m.sessions))
	for id, mg := range m.sessions {
		all = append(all, mg)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, mg := range all {
		mg.close()
	}
}

// pump routes recognition fragments into the debouncer and channel events out
// to the client until the session is torn down.
func (m *Manager) pump(mg *Managed) {
	fragments := mg.channel.Fragments()
	events := mg.channel.Events()
	for {
		select {
		case <-mg.done:
			return
		case f := <-fragments:
			mg.debouncer.OnFragment(f.Text, f.Final)
		case ev := <-events:
			switch ev.Kind {
			case voice.EventState:
				if ev.State == voice.StateListening {
					// A fresh listening turn must not inherit transcript
					// still pending from the previous one.
					mg.debouncer.Reset()
				}
				mg.bridge.NotifyState(ev.State)
			case voice.EventRecognitionError:
				m.log.Warn("recognition error", "id", mg.Session.ID(), "err", ev.Err)
			case voice.EventSynthesisError:
				m.log.Warn("synthesis error", "id", mg.Session.ID(), "err", ev.Err)
			}
		}
	}
}

func (mg *Managed) close() {
	mg.closeOnce.Do(func() {
		close(mg.done)
		mg.Session.Close()
		mg.debouncer.Stop()
		_ = mg.channel.Close()
		_ = mg.bridge.Close()
	})
}
