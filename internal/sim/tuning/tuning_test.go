package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadRepoConfig(t *testing.T) {
	tu, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.TickDuration() != 100*time.Millisecond {
		t.Fatalf("tick: %s", tu.TickDuration())
	}
	if tu.ReplanCooldown() != 500*time.Millisecond || tu.SensoryTTL() != 2*time.Second {
		t.Fatalf("durations: %+v", tu)
	}
	if tu.Sandbox.HungerEvery() != 5*time.Second {
		t.Fatalf("hunger: %s", tu.Sandbox.HungerEvery())
	}
}

func TestMissingKeysKeepDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("vision_radius: 4\nsandbox:\n  width: 8\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tu, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Defaults()
	if tu.VisionRadius != 4 || tu.Sandbox.Width != 8 {
		t.Fatalf("overrides lost: %+v", tu)
	}
	if tu.BlackboardTTLMs != def.BlackboardTTLMs || tu.Sandbox.Height != def.Sandbox.Height {
		t.Fatalf("defaults lost: %+v", tu)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name, body, want string
	}{
		{"syntax", "tick_rate_hz: [", "tuning.yaml:"},
		{"zero tick", "tick_rate_hz: 0", "tick_rate_hz must be > 0"},
		{"hungry above max", "sandbox:\n  hungry_at: 50", "sandbox.hungry_at"},
		{"crowded", "sandbox:\n  width: 2\n  height: 2", "do not fit"},
	}
	for _, tc := range cases {
		path := filepath.Join(dir, strings.ReplaceAll(tc.name, " ", "_")+".yaml")
		if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: got %v want %q", tc.name, err, tc.want)
		}
	}
}

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
}
