package config

import (
	"L4STestbed/api"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"SIDE", "UPLINK", "LOCK_DIR", "NETWORK_RESTART_CMD", "LOG_FORMAT", "VERBOSE", "COMMAND_TIMEOUT"} {
		t.Setenv(EnvPrefix+"_"+k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("L4S_SIDE", "a")

	v := New("")
	if err := Read(v, false); err != nil {
		t.Fatal(err)
	}
	c, err := Load(v)
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		Side:              api.SideA,
		Uplink:            "eth1",
		LockDir:           "/run/l4stestbed",
		NetworkRestartCmd: "systemctl restart NetworkManager",
		LogFormat:         "text",
		CommandTimeout:    60 * time.Second,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Fatal(diff)
	}
}

func TestLoadRequiresSide(t *testing.T) {
	clearEnv(t)
	v := New("")
	if _, err := Load(v); err == nil {
		t.Fatal("expected an error without a side")
	}
	t.Setenv("L4S_SIDE", "C")
	if _, err := Load(New("")); err == nil {
		t.Fatal("expected an error for an unknown side")
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	file := filepath.Join(t.TempDir(), "l4stestbed.yaml")
	data := []byte("side: B\nuplink: enp1s0\ncommand_timeout: 5s\nnetwork_restart_cmd: \"\"\n")
	if err := os.WriteFile(file, data, 0o644); err != nil {
		t.Fatal(err)
	}
	// the environment wins over the file
	t.Setenv("L4S_UPLINK", "enp2s0")

	v := New(file)
	if err := Read(v, true); err != nil {
		t.Fatal(err)
	}
	c, err := Load(v)
	if err != nil {
		t.Fatal(err)
	}
	if c.Side != api.SideB || c.Uplink != "enp2s0" || c.CommandTimeout != 5*time.Second || c.NetworkRestartCmd != "" {
		t.Fatalf("unexpected config %+v", c)
	}

	side, err := c.ResolveSide()
	if err != nil {
		t.Fatal(err)
	}
	if side.Uplink != "enp2s0" || side.Namespace != "router-b" {
		t.Fatalf("unexpected side %+v", side)
	}
}

func TestReadExplicitMissingFile(t *testing.T) {
	v := New(filepath.Join(t.TempDir(), "absent.yaml"))
	if err := Read(v, true); err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
}
