package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"cruscotto/internal/log"
)

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CRUSCOTTO_TEST_KEY=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CRUSCOTTO_TEST_KEY", "")
	os.Unsetenv("CRUSCOTTO_TEST_KEY")

	LoadEnvFile(path)
	if got := os.Getenv("CRUSCOTTO_TEST_KEY"); got != "from-file" {
		t.Fatalf("CRUSCOTTO_TEST_KEY = %q", got)
	}

	// Missing files are ignored.
	LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
}

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := SetupLogger("debug", "json", log.ComponentSeed)
	if logger.Component() != log.ComponentSeed {
		t.Fatalf("component = %q", logger.Component())
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug level should be enabled")
	}

	fallback := SetupLogger("loud", "xml", "")
	if fallback.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("unknown level should fall back to info")
	}
	if fallback.Component() != log.ComponentApp {
		t.Fatalf("empty component should default to app, got %q", fallback.Component())
	}
}
