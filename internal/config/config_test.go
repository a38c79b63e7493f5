package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsAndFile(t *testing.T) {
	path := writeFile(t, `
signal_url: ws://relay.local/ws
room_token: standup
username: ana
speaking:
  threshold: 30
`)
	cfg, err := load(nil, path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != "release" || cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if cfg.ConnectTimeout != 30*time.Second {
		t.Errorf("connect timeout = %v", cfg.ConnectTimeout)
	}
	if cfg.Speaking.Threshold != 30 || cfg.Speaking.Window != 32 || cfg.Speaking.Interval != 50*time.Millisecond {
		t.Errorf("speaking = %+v", cfg.Speaking)
	}
	if cfg.Chat.Limit != 5 || cfg.Chat.Interval != 10*time.Second {
		t.Errorf("chat = %+v", cfg.Chat)
	}
	if len(cfg.ICEServers) != 1 {
		t.Errorf("ice servers = %v", cfg.ICEServers)
	}
}

func TestEnvAndFlagsOverrideFile(t *testing.T) {
	path := writeFile(t, `
signal_url: ws://relay.local/ws
room_token: standup
username: ana
`)
	t.Setenv("MEET_USERNAME", "bo")
	t.Setenv("MEET_SPEAKING_WINDOW", "9")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("room", "", "")
	flags.String("listen", "", "")
	if err := flags.Parse([]string{"--room", "retro"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := load(flags, path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Username != "bo" {
		t.Errorf("username = %q, want env value", cfg.Username)
	}
	if cfg.Speaking.Window != 9 {
		t.Errorf("window = %d", cfg.Speaking.Window)
	}
	if cfg.RoomToken != "retro" {
		t.Errorf("room = %q, want flag value", cfg.RoomToken)
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("unset flag overrode default: %q", cfg.Listen)
	}
}

func TestValidation(t *testing.T) {
	cases := map[string]string{
		"missing room": "signal_url: ws://relay.local/ws\nusername: ana\n",
		"bad url":      "signal_url: nope\nroom_token: r\nusername: ana\n",
		"bad mode":     "signal_url: ws://relay.local/ws\nroom_token: r\nusername: ana\nmode: loud\n",
		"long name":    "signal_url: ws://relay.local/ws\nroom_token: r\nusername: aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\n",
		"zero window":  "signal_url: ws://relay.local/ws\nroom_token: r\nusername: ana\nspeaking:\n  window: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := load(nil, writeFile(t, body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLevel(t *testing.T) {
	for in, want := range map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"WARN":  zerolog.WarnLevel,
		"":      zerolog.InfoLevel,
		"noise": zerolog.InfoLevel,
	} {
		if got := (&Config{LogLevel: in}).Level(); got != want {
			t.Errorf("Level(%q) = %v, want %v", in, got, want)
		}
	}
}
