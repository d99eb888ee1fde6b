// Package config loads the agent's daemon, link, and ciphersuite-policy
// defaults from a TOML file, mirroring the teacher's TCPConfig.check()
// "zero means default, out-of-range panics" convention. Grounded on
// dtn7-dtn7-go's use of github.com/BurntSushi/toml for agent
// configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dtnd/bpagent/link"
)

// LinkDefaults holds per-convergence-layer default link parameters,
// applied by `link set_cl_defaults` (§6) before any per-link override.
type LinkDefaults struct {
	MTU               int    `toml:"mtu"`
	MinRetryInterval  string `toml:"min_retry_interval"`
	MaxRetryInterval  string `toml:"max_retry_interval"`
	IdleCloseTime     string `toml:"idle_close_time"`
	PotentialDowntime string `toml:"potential_downtime"`
	Cost              int    `toml:"cost"`
}

// CiphersuiteRule mirrors one bsp.Rule row in TOML form: patterns are
// plain strings ("*" wildcard scheme/SSP, parsed by the caller into
// bpblock.Pattern) rather than structured tables, matching the compact
// style of the stream-CL contact-plan CSV rows elsewhere in this
// configuration surface.
type CiphersuiteRule struct {
	Source      string `toml:"source"`
	Destination string `toml:"destination"`
	SecSource   string `toml:"sec_source"`
	SecDest     string `toml:"sec_dest"`
	CSNums      []int  `toml:"csnums"`
}

// Config is the root TOML document.
type Config struct {
	LocalEID string `toml:"local_eid"`

	Daemon struct {
		DataTimeout       string `toml:"data_timeout"`
		KeepaliveInterval string `toml:"keepalive_interval"`
	} `toml:"daemon"`

	CLDefaults map[string]LinkDefaults `toml:"cl_defaults"`

	Policy struct {
		Outgoing []CiphersuiteRule `toml:"outgoing"`
		Incoming []CiphersuiteRule `toml:"incoming"`
	} `toml:"policy"`

	KeyDir string `toml:"key_dir"`
}

// Load decodes path into a Config, applying defaults the way the
// teacher's TCPConfig.check() does: absent TOML keys keep their Go zero
// value, which the rest of this package's constructors interpret as
// "use the built-in default."
func Load(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if c.LocalEID == "" {
		return nil, fmt.Errorf("config: local_eid is required")
	}
	return &c, nil
}

// Save writes c back to path as TOML, used by `link set_cl_defaults` to
// persist a convergence-layer default across invocations since this CLI
// has no resident daemon to hold it in memory.
func Save(path string, c *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	return nil
}

// ParseLinkParams converts a LinkDefaults TOML fragment into
// link.Params, parsing duration strings with time.ParseDuration and
// panicking the way link.Params.check() does on a malformed value —
// this is a configuration-load-time check, not a runtime data-path
// error.
func ParseLinkParams(d LinkDefaults) link.Params {
	p := link.Params{MTU: d.MTU, Cost: d.Cost}
	p.MinRetryInterval = mustParseDuration(d.MinRetryInterval)
	p.MaxRetryInterval = mustParseDuration(d.MaxRetryInterval)
	p.IdleCloseTime = mustParseDuration(d.IdleCloseTime)
	p.PotentialDowntime = mustParseDuration(d.PotentialDowntime)
	return p
}

func mustParseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("config: invalid duration %q: %v", s, err))
	}
	return d
}
