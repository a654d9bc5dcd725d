package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func clientFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("sharelink", pflag.ContinueOnError)
	BindClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return fs
}

func TestLoadClientDefaults(t *testing.T) {
	cfg, err := LoadClient(clientFlags(t, "--username", "alice"))
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}

	want := DefaultClient()
	want.Username = "alice"
	if cfg.Bus != want.Bus || cfg.URL != want.URL || cfg.ReconnectDelay != 5*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if !slices.Equal(cfg.STUNServers, want.STUNServers) {
		t.Errorf("stun = %v, want %v", cfg.STUNServers, want.STUNServers)
	}
	if !cfg.Video || !cfg.Audio || !cfg.AskPermission {
		t.Errorf("media defaults lost: %+v", cfg)
	}
}

func TestLoadClientFlags(t *testing.T) {
	cfg, err := LoadClient(clientFlags(t,
		"-u", "bob",
		"--bus", "wamp",
		"--url", "ws://relay.example:9000/ws",
		"--stun", "stun:a.example:3478,stun:b.example:3478",
		"--reconnect-delay", "250ms",
		"--audio=false",
	))
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}

	if cfg.Username != "bob" || cfg.Bus != BusWAMP || cfg.URL != "ws://relay.example:9000/ws" {
		t.Errorf("cfg = %+v", cfg)
	}
	if !slices.Equal(cfg.STUNServers, []string{"stun:a.example:3478", "stun:b.example:3478"}) {
		t.Errorf("stun = %v", cfg.STUNServers)
	}
	if cfg.ReconnectDelay != 250*time.Millisecond {
		t.Errorf("reconnect delay = %v", cfg.ReconnectDelay)
	}
	if cfg.Audio || !cfg.Video {
		t.Errorf("video=%v audio=%v", cfg.Video, cfg.Audio)
	}
}

func TestLoadClientEnv(t *testing.T) {
	t.Setenv("SHARELINK_USERNAME", "carol")
	t.Setenv("SHARELINK_RECONNECT_DELAY", "2s")

	cfg, err := LoadClient(clientFlags(t))
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.Username != "carol" || cfg.ReconnectDelay != 2*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadClientFileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sharelink.yaml")
	content := "username: dave\nbus: wamp\nrealm: office\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadClient(clientFlags(t, "--config", path, "--realm", "lab"))
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.Username != "dave" || cfg.Bus != BusWAMP {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Realm != "lab" {
		t.Errorf("realm = %q, flag should win over file", cfg.Realm)
	}
}

func TestReadClientSkipsValidation(t *testing.T) {
	cfg, err := ReadClient(clientFlags(t))
	if err != nil {
		t.Fatalf("ReadClient: %v", err)
	}
	if cfg.Username != "" || cfg.Bus != BusRelay {
		t.Errorf("cfg = %+v", cfg)
	}
	if _, err := LoadClient(clientFlags(t)); err == nil || !strings.Contains(err.Error(), "username") {
		t.Errorf("LoadClient err = %v, want username error", err)
	}
}

func TestReadClientMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")
	_, err := ReadClient(clientFlags(t, "--config", path))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("err = %v, want a read config error", err)
	}
}

func TestClientValidate(t *testing.T) {
	cfg := DefaultClient()
	cfg.Bus = "carrier-pigeon"
	cfg.ReconnectDelay = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted a broken config")
	}
	for _, want := range []string{"username", "unknown bus", "reconnect delay"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoadServer(t *testing.T) {
	fs := pflag.NewFlagSet("sharelink-relay", pflag.ContinueOnError)
	BindServerFlags(fs)
	if err := fs.Parse([]string{"--mode", "wamp", "-l", ":9999"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadServer(fs)
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.Mode != BusWAMP || cfg.Listen != ":9999" || cfg.Realm != "sharelink" {
		t.Errorf("cfg = %+v", cfg)
	}

	cfg.Mode = "smtp"
	if cfg.Validate() == nil {
		t.Error("Validate accepted mode smtp")
	}
}
