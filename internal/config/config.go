package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Voice provider selection. In host mode the client runs recognition and
// synthesis locally and only ships transcripts; in server mode the client
// streams raw audio and the server drives AssemblyAI and Deepgram.
const (
	ProviderHost   = "host"
	ProviderServer = "server"
)

// Config holds application configuration, populated from the environment.
type Config struct {
	HTTPAddress string `env:"HTTP_ADDRESS" envDefault:":8080"`
	LogMode     string `env:"LOG_MODE" envDefault:"prod"`

	VoiceProvider string        `env:"VOICE_PROVIDER" envDefault:"host"`
	AssemblyAIKey string        `env:"ASSEMBLYAI_API_KEY"`
	DeepgramKey   string        `env:"DEEPGRAM_API_KEY"`
	DeepgramModel string        `env:"DEEPGRAM_MODEL" envDefault:"aura-2-thalia-en"`
	DebounceWnd   time.Duration `env:"DEBOUNCE_WINDOW" envDefault:"200ms"`

	PacingDelay   time.Duration `env:"PACING_DELAY" envDefault:"2s"`
	StrictOptions bool          `env:"STRICT_OPTIONS" envDefault:"false"`

	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	SupabaseTable      string `env:"SUPABASE_TABLE" envDefault:"learning_progress"`
}

// Load reads .env when present, then parses the environment.
func Load() (Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	// Set-but-empty variables bypass envDefault; fall back explicitly.
	if cfg.HTTPAddress == "" {
		cfg.HTTPAddress = ":8080"
	}
	if cfg.VoiceProvider == "" {
		cfg.VoiceProvider = ProviderHost
	}
	if cfg.DeepgramModel == "" {
		cfg.DeepgramModel = "aura-2-thalia-en"
	}
	if cfg.SupabaseTable == "" {
		cfg.SupabaseTable = "learning_progress"
	}
	if cfg.DebounceWnd <= 0 {
		cfg.DebounceWnd = 200 * time.Millisecond
	}
	if cfg.PacingDelay <= 0 {
		cfg.PacingDelay = 2 * time.Second
	}
	if cfg.VoiceProvider != ProviderHost && cfg.VoiceProvider != ProviderServer {
		return Config{}, fmt.Errorf("VOICE_PROVIDER must be %q or %q, got %q",
			ProviderHost, ProviderServer, cfg.VoiceProvider)
	}
	if cfg.VoiceProvider == ProviderServer {
		if cfg.AssemblyAIKey == "" {
			return Config{}, fmt.Errorf("VOICE_PROVIDER=server requires ASSEMBLYAI_API_KEY")
		}
		if cfg.DeepgramKey == "" {
			return Config{}, fmt.Errorf("VOICE_PROVIDER=server requires DEEPGRAM_API_KEY")
		}
	}
	return cfg, nil
}

// SupabaseEnabled reports whether progress persistence is configured. Without
// it the server falls back to in-memory tracking.
func (c Config) SupabaseEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}
