package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	storefront "beat-publish-pipeline/05_storefront"
)

func TestSetupReadsConfigAndEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	envPath := filepath.Join(dir, ".env")
	os.WriteFile(cfgPath, []byte("storefront:\n  attempts: 5\n  attempt_delay: 2s\nlogging:\n  level: debug\n"), 0o644)
	os.WriteFile(envPath, []byte("GROQ_API_KEY=from-dotenv\n"), 0o600)
	t.Setenv("GROQ_API_KEY", "")
	os.Unsetenv("GROQ_API_KEY")

	a := &app{configPath: cfgPath, envPath: envPath}
	if err := a.setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if a.cfg.Secrets.LLMAPIKey != "from-dotenv" {
		t.Fatalf("secret = %q", a.cfg.Secrets.LLMAPIKey)
	}

	sc := storefrontConfig(a.cfg)
	if sc.Retry.MaxAttempts != 5 || sc.Retry.Delay != 2*time.Second || sc.Limits.TagMax != 3 {
		t.Fatalf("storefront config = %+v", sc)
	}
	bc, err := browserConfig(a.cfg)
	if err != nil || bc.Origin != "https://studio.beatstars.com" {
		t.Fatalf("browser config = %+v, %v", bc, err)
	}
}

func TestStorefrontTimingsOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	os.WriteFile(cfgPath, []byte("storefront:\n  timings:\n    upload_complete: 20m\n    share_panel: 90s\n"), 0o644)

	a := &app{configPath: cfgPath, envPath: filepath.Join(dir, ".env")}
	if err := a.setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	got := storefrontTimings(a.cfg)
	if got.UploadComplete != 20*time.Minute || got.SharePanel != 90*time.Second {
		t.Fatalf("overrides not applied: %+v", got)
	}
	def := storefront.DefaultTimings()
	if got.DraftURL != def.DraftURL || got.Poll != def.Poll || got.PanelGone != def.PanelGone {
		t.Fatalf("unset timings changed: %+v", got)
	}
}

func TestSetupWithoutEnvFile(t *testing.T) {
	a := &app{configPath: filepath.Join(t.TempDir(), "none.yaml"), envPath: filepath.Join(t.TempDir(), ".env")}
	if err := a.setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
}
