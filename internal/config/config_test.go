package config

import (
	"os"
	"testing"
	"time"
)

// unset clears a variable for the test while restoring it afterwards.
func unset(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDRESS", "VOICE_PROVIDER", "DEBOUNCE_WINDOW", "PACING_DELAY", "SUPABASE_URL", "SUPABASE_SERVICE_ROLE_KEY"} {
		unset(t, key)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("HTTPAddress = %q", cfg.HTTPAddress)
	}
	if cfg.VoiceProvider != ProviderHost {
		t.Fatalf("VoiceProvider = %q", cfg.VoiceProvider)
	}
	if cfg.DebounceWnd != 200*time.Millisecond {
		t.Fatalf("DebounceWnd = %v", cfg.DebounceWnd)
	}
	if cfg.PacingDelay != 2*time.Second {
		t.Fatalf("PacingDelay = %v", cfg.PacingDelay)
	}
	if cfg.SupabaseEnabled() {
		t.Fatal("supabase should be disabled without credentials")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("VOICE_PROVIDER", "cloud")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestServerProviderRequiresKeys(t *testing.T) {
	t.Setenv("VOICE_PROVIDER", "server")
	t.Setenv("ASSEMBLYAI_API_KEY", "")
	t.Setenv("DEEPGRAM_API_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing provider keys")
	}
	t.Setenv("ASSEMBLYAI_API_KEY", "aai")
	t.Setenv("DEEPGRAM_API_KEY", "dg")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VoiceProvider != ProviderServer {
		t.Fatalf("VoiceProvider = %q", cfg.VoiceProvider)
	}
}
