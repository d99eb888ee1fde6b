// Command bpactl is the illustrative link-control CLI of §6, grounded
// on cmd/iecat/main.go's flag-parsing-plus-subcommand-dispatch shape.
// Unlike iecat (one connection, fixed at startup), bpactl dispatches a
// single verb against an agent configuration file and exits — there is
// no long-lived daemon process in this repo's scope, so each invocation
// starts with an empty link manager; only set_cl_defaults persists
// anything, by rewriting the configuration file.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dtnd/bpagent/config"
	"github.com/dtnd/bpagent/link"
)

const (
	exitOK      = 0
	exitUsage   = 1
	exitRuntime = 2
)

var configFlag = flag.String("config", "/etc/bpagent/agent.toml", "Agent configuration `file`.")

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 || args[0] != "link" {
		usage()
		os.Exit(exitUsage)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bpactl:", err)
		os.Exit(exitRuntime)
	}

	mgr := link.NewManager(nil)
	defer mgr.Stop()

	os.Exit(runLinkVerb(mgr, cfg, args[1], args[2:]))
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: bpactl [-config file] link <verb> [args...]")
	fmt.Fprintln(os.Stderr, "verbs: add open close delete set_available reconfigure set_cl_defaults names dump state stats")
}

func runLinkVerb(mgr *link.Manager, cfg *config.Config, verb string, args []string) int {
	switch verb {
	case "add":
		return cmdAdd(mgr, cfg, args)
	case "open":
		return cmdOpen(mgr, args)
	case "close", "delete":
		return cmdDelete(mgr, args, verb == "close")
	case "set_available":
		return cmdSetAvailable(mgr, args)
	case "reconfigure":
		return cmdReconfigure(mgr, cfg, args)
	case "set_cl_defaults":
		return cmdSetCLDefaults(cfg, args)
	case "names":
		return cmdNames(mgr)
	case "dump":
		return cmdDump(mgr, args)
	case "state":
		return cmdState(mgr, args)
	case "stats":
		return cmdStats(mgr, args)
	default:
		fmt.Fprintf(os.Stderr, "bpactl: unknown verb %q\n", verb)
		return exitUsage
	}
}

// parseLinkType maps a §6 CLI type token to link.Type.
func parseLinkType(s string) (link.Type, error) {
	switch strings.ToUpper(s) {
	case "ALWAYSON":
		return link.AlwaysOn, nil
	case "ONDEMAND":
		return link.OnDemand, nil
	case "SCHEDULED":
		return link.Scheduled, nil
	case "OPPORTUNISTIC":
		return link.Opportunistic, nil
	default:
		return 0, fmt.Errorf("unknown link type %q", s)
	}
}

// parseOpts parses "key=val" pairs into a link.Params, per §6's
// recognized option set.
func parseOpts(opts []string) (link.Params, error) {
	var p link.Params
	for _, o := range opts {
		kv := strings.SplitN(o, "=", 2)
		if len(kv) != 2 {
			return p, fmt.Errorf("bad option %q, want key=val", o)
		}
		key, val := kv[0], kv[1]
		var err error
		switch key {
		case "mtu":
			p.MTU, err = strconv.Atoi(val)
		case "min_retry_interval":
			p.MinRetryInterval, err = parseSecs(val)
		case "max_retry_interval":
			p.MaxRetryInterval, err = parseSecs(val)
		case "idle_close_time":
			p.IdleCloseTime, err = parseSecs(val)
		case "potential_downtime":
			p.PotentialDowntime, err = parseSecs(val)
		case "prevhop_hdr":
			p.PrevHopHdr, err = strconv.ParseBool(val)
		case "cost":
			p.Cost, err = strconv.Atoi(val)
		case "qlimit_bundles_high":
			p.QlimitBundlesHigh, err = strconv.Atoi(val)
		case "qlimit_bytes_high":
			p.QlimitBytesHigh, err = strconv.Atoi(val)
		case "qlimit_bundles_low":
			p.QlimitBundlesLow, err = strconv.Atoi(val)
		case "qlimit_bytes_low":
			p.QlimitBytesLow, err = strconv.Atoi(val)
		case "retry_interval":
			p.RetryInterval, err = parseSecs(val)
		default:
			return p, fmt.Errorf("unrecognized link option %q", key)
		}
		if err != nil {
			return p, fmt.Errorf("option %q: %w", key, err)
		}
	}
	return p, nil
}

func parseSecs(s string) (time.Duration, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func cmdAdd(mgr *link.Manager, cfg *config.Config, args []string) int {
	if len(args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: link add <name> <nexthop> <type> <cl> [opt=val ...]")
		return exitUsage
	}
	name, nextHop, typStr := args[0], args[1], args[2]
	cl := "stream"
	rest := args[3:]
	if len(rest) > 0 && !strings.Contains(rest[0], "=") {
		cl = rest[0]
		rest = rest[1:]
	}
	typ, err := parseLinkType(typStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bpactl:", err)
		return exitUsage
	}

	params := config.ParseLinkParams(cfg.CLDefaults[cl])
	overrides, err := parseOpts(rest)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bpactl:", err)
		return exitUsage
	}
	mergeParams(&params, overrides, rest)

	l := link.NewLink(name, typ, cl, nextHop, params)
	if err := mgr.AddNewLink(l); err != nil {
		fmt.Fprintln(os.Stderr, "bpactl:", err)
		return exitRuntime
	}
	return exitOK
}

// mergeParams overlays only the options the user actually named in
// rest onto base, since parseOpts returns a Params built from a blank
// base and zero is ambiguous with "not set".
func mergeParams(base *link.Params, overrides link.Params, rest []string) {
	for _, o := range rest {
		key := strings.SplitN(o, "=", 2)[0]
		switch key {
		case "mtu":
			base.MTU = overrides.MTU
		case "min_retry_interval":
			base.MinRetryInterval = overrides.MinRetryInterval
		case "max_retry_interval":
			base.MaxRetryInterval = overrides.MaxRetryInterval
		case "idle_close_time":
			base.IdleCloseTime = overrides.IdleCloseTime
		case "potential_downtime":
			base.PotentialDowntime = overrides.PotentialDowntime
		case "prevhop_hdr":
			base.PrevHopHdr = overrides.PrevHopHdr
		case "cost":
			base.Cost = overrides.Cost
		case "qlimit_bundles_high":
			base.QlimitBundlesHigh = overrides.QlimitBundlesHigh
		case "qlimit_bytes_high":
			base.QlimitBytesHigh = overrides.QlimitBytesHigh
		case "qlimit_bundles_low":
			base.QlimitBundlesLow = overrides.QlimitBundlesLow
		case "qlimit_bytes_low":
			base.QlimitBytesLow = overrides.QlimitBytesLow
		case "retry_interval":
			base.RetryInterval = overrides.RetryInterval
		}
	}
}

func cmdOpen(mgr *link.Manager, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: link open <name>")
		return exitUsage
	}
	if err := mgr.ReopenLink(args[0]); err != nil {
		fmt.Fprintln(os.Stderr, "bpactl:", err)
		return exitRuntime
	}
	return exitOK
}

func cmdDelete(mgr *link.Manager, args []string, waitForIdle bool) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: link close|delete <name>")
		return exitUsage
	}
	if err := mgr.DelLink(args[0], waitForIdle); err != nil {
		fmt.Fprintln(os.Stderr, "bpactl:", err)
		return exitRuntime
	}
	return exitOK
}

func cmdSetAvailable(mgr *link.Manager, args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: link set_available <name> true|false")
		return exitUsage
	}
	avail, err := strconv.ParseBool(args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "bpactl:", err)
		return exitUsage
	}
	if err := mgr.SetAvailable(args[0], avail, link.ReasonUser); err != nil {
		fmt.Fprintln(os.Stderr, "bpactl:", err)
		return exitRuntime
	}
	return exitOK
}

func cmdReconfigure(mgr *link.Manager, cfg *config.Config, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: link reconfigure <name> [opt=val ...]")
		return exitUsage
	}
	l := mgr.FindLink(args[0])
	if l == nil {
		fmt.Fprintf(os.Stderr, "bpactl: no such link %q\n", args[0])
		return exitRuntime
	}
	params := l.Params
	overrides, err := parseOpts(args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "bpactl:", err)
		return exitUsage
	}
	mergeParams(&params, overrides, args[1:])
	if err := mgr.Reconfigure(args[0], params); err != nil {
		fmt.Fprintln(os.Stderr, "bpactl:", err)
		return exitRuntime
	}
	return exitOK
}

// cmdSetCLDefaults updates the named convergence-layer's default link
// parameters and persists the config file, since set_cl_defaults must
// survive across the one-shot invocations this CLI makes.
func cmdSetCLDefaults(cfg *config.Config, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: link set_cl_defaults <cl> key=val [key=val ...]")
		return exitUsage
	}
	cl := args[0]
	d := cfg.CLDefaults[cl]
	for _, o := range args[1:] {
		kv := strings.SplitN(o, "=", 2)
		if len(kv) != 2 {
			fmt.Fprintf(os.Stderr, "bpactl: bad option %q, want key=val\n", o)
			return exitUsage
		}
		key, val := kv[0], kv[1]
		var err error
		switch key {
		case "mtu":
			d.MTU, err = strconv.Atoi(val)
		case "min_retry_interval":
			d.MinRetryInterval = val
		case "max_retry_interval":
			d.MaxRetryInterval = val
		case "idle_close_time":
			d.IdleCloseTime = val
		case "potential_downtime":
			d.PotentialDowntime = val
		case "cost":
			d.Cost, err = strconv.Atoi(val)
		default:
			fmt.Fprintf(os.Stderr, "bpactl: unrecognized cl_defaults option %q\n", key)
			return exitUsage
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "bpactl: option %q: %v\n", key, err)
			return exitUsage
		}
	}
	if cfg.CLDefaults == nil {
		cfg.CLDefaults = make(map[string]config.LinkDefaults)
	}
	cfg.CLDefaults[cl] = d
	if err := config.Save(*configFlag, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "bpactl:", err)
		return exitRuntime
	}
	return exitOK
}

func cmdNames(mgr *link.Manager) int {
	for _, name := range mgr.Names() {
		fmt.Println(name)
	}
	return exitOK
}

func cmdDump(mgr *link.Manager, args []string) int {
	if len(args) == 1 {
		l := mgr.FindLink(args[0])
		if l == nil {
			fmt.Fprintf(os.Stderr, "bpactl: no such link %q\n", args[0])
			return exitRuntime
		}
		fmt.Println(l)
		return exitOK
	}
	for _, name := range mgr.Names() {
		fmt.Println(mgr.FindLink(name))
	}
	return exitOK
}

func cmdState(mgr *link.Manager, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: link state <name>")
		return exitUsage
	}
	l := mgr.FindLink(args[0])
	if l == nil {
		fmt.Fprintf(os.Stderr, "bpactl: no such link %q\n", args[0])
		return exitRuntime
	}
	fmt.Println(l.State)
	return exitOK
}

func cmdStats(mgr *link.Manager, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: link stats <name>")
		return exitUsage
	}
	l := mgr.FindLink(args[0])
	if l == nil {
		fmt.Fprintf(os.Stderr, "bpactl: no such link %q\n", args[0])
		return exitRuntime
	}
	fmt.Printf("%+v\n", l.Stats)
	return exitOK
}
