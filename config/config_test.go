package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadParsesDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.toml")
	doc := `
local_eid = "dtn://node1/mail"
key_dir = "/etc/bpagent/keys"

[daemon]
data_timeout = "30s"
keepalive_interval = "15s"

[cl_defaults.stream]
mtu = 65536
min_retry_interval = "1s"
max_retry_interval = "60s"
idle_close_time = "30s"
cost = 100

[[policy.outgoing]]
source = "*"
destination = "*"
csnums = [1]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.LocalEID != "dtn://node1/mail" {
		t.Fatalf("LocalEID = %q", c.LocalEID)
	}
	stream, ok := c.CLDefaults["stream"]
	if !ok || stream.MTU != 65536 {
		t.Fatalf("CLDefaults[stream] = %+v, %v", stream, ok)
	}
	if len(c.Policy.Outgoing) != 1 || c.Policy.Outgoing[0].CSNums[0] != 1 {
		t.Fatalf("Policy.Outgoing = %+v", c.Policy.Outgoing)
	}

	p := ParseLinkParams(stream)
	if p.MinRetryInterval != time.Second || p.MaxRetryInterval != 60*time.Second {
		t.Fatalf("ParseLinkParams = %+v", p)
	}
}

func TestLoadRequiresLocalEID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.toml")
	os.WriteFile(path, []byte("key_dir = \"/tmp\"\n"), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing local_eid")
	}
}
