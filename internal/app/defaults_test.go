package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv(ConfigPathEnv, "/custom/romba.toml")
		t.Setenv(HomeEnv, "/custom/romba")

		d, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if d.ConfigPath != "/custom/romba.toml" {
			t.Errorf("ConfigPath = %q, want %q", d.ConfigPath, "/custom/romba.toml")
		}
		if d.BaseDir != "/custom/romba" {
			t.Errorf("BaseDir = %q, want %q", d.BaseDir, "/custom/romba")
		}
		if d.LogDir != "/custom/romba/log" {
			t.Errorf("LogDir = %q, want %q", d.LogDir, "/custom/romba/log")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv(ConfigPathEnv, "")
		t.Setenv(HomeEnv, "")

		d, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		if want := filepath.Join(homeDir, ".config", "romba.toml"); d.ConfigPath != want {
			t.Errorf("ConfigPath = %q, want %q", d.ConfigPath, want)
		}
		wantBase := filepath.Join(homeDir, ".local", "share", "romba")
		if d.BaseDir != wantBase {
			t.Errorf("BaseDir = %q, want %q", d.BaseDir, wantBase)
		}
		if want := filepath.Join(wantBase, "log"); d.LogDir != want {
			t.Errorf("LogDir = %q, want %q", d.LogDir, want)
		}
	})
}
