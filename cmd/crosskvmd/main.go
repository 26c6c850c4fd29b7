// crosskvmd is the daemon entrypoint: flag parsing, wiring every package
// into a running session.Supervisor, and signal handling, following the
// teacher's cmd/main.go shape (flag-driven mode selection, config loaded
// once at startup, graceful shutdown on SIGINT/SIGTERM).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"crosskvm/internal/capture"
	"crosskvm/internal/clipboard"
	"crosskvm/internal/config"
	"crosskvm/internal/discovery"
	"crosskvm/internal/emulation"
	"crosskvm/internal/identity"
	"crosskvm/internal/kvmerr"
	"crosskvm/internal/pki"
	"crosskvm/internal/session"
	"crosskvm/internal/topology"
	"crosskvm/internal/transport"
	"crosskvm/internal/trust"
	"crosskvm/internal/types"
)

var (
	version = "0.1.0"
	showVer = flag.Bool("version", false, "Show version")
	pairWith = flag.String("pair", "", "Pair with peer NAME:ADDRESS, pinning its current certificate fingerprint and exiting")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("crosskvmd version %s\n", version)
		return
	}

	dir, err := config.UserConfigDir()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	cfgMgr, err := config.NewManager()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfgMgr.Load(); err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg := cfgMgr.Get()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	if *pairWith != "" {
		if err := runPair(dir, cfg, *pairWith); err != nil {
			log.Fatalf("pair: %v", err)
		}
		return
	}

	if err := run(dir, cfg); err != nil {
		log.Fatalf("crosskvmd: %v", err)
	}
}

func run(dir string, cfg *config.Config) error {
	machineId, err := identity.Load(dir)
	if err != nil {
		return err
	}
	cert, fingerprint, err := pki.LoadOrGenerate(dir, cfg.Identity.Name)
	if err != nil {
		return err
	}
	log.Printf("this machine's fingerprint: %s", fingerprint)

	trustStore, err := trust.Load(dir)
	if err != nil {
		return err
	}

	topo, screenOf, err := buildTopology(cfg)
	if err != nil {
		return err
	}

	localScreen := types.Screen{Name: cfg.Identity.Name, Width: cfg.Daemon.ScreenWidth, Height: cfg.Daemon.ScreenHeight}
	listenAddr := fmt.Sprintf(":%d", cfg.Port)

	sup, err := session.NewSupervisor(
		machineId, cfg.Identity.Name, localScreen,
		cert, trustStore, topo, screenOf, listenAddr,
		capture.NewEvdevSource(), emulation.NewUinputEmulator(), clipboard.StubProvider{}, nil,
	)
	if err != nil {
		return &kvmerr.FatalSubsystemError{Subsystem: "session", Err: err}
	}

	for _, peer := range cfg.Peers {
		sup.Connect(session.PeerConfig{Name: peer.Name, Address: peer.Address})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Discovery {
		runDiscovery(ctx, machineId, cfg.Identity.Name, cfg.Port)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Print("shutting down...")
		cancel()
	}()

	log.Printf("crosskvmd running as %q, listening on %s", cfg.Identity.Name, listenAddr)
	return sup.Run(ctx)
}

// buildTopology turns the configured peers and adjacency entries into a
// topology.Topology plus the screen-name -> peer-name map
// session.NewSupervisor needs to translate a crossing target into a Peer
// to dial. Each configured peer occupies exactly one screen, named
// identically to the peer itself (the common single-screen-per-machine
// case); additional multi-hop screens come from ScreenAdjacency.
func buildTopology(cfg *config.Config) (*topology.Topology, map[string]string, error) {
	screens := []types.Screen{{Name: cfg.Identity.Name, Width: cfg.Daemon.ScreenWidth, Height: cfg.Daemon.ScreenHeight}}
	screenOf := make(map[string]string, len(cfg.Peers))
	var edges []topology.Edge

	for _, p := range cfg.Peers {
		pos, err := parsePosition(p.Position)
		if err != nil {
			return nil, nil, &kvmerr.ConfigError{Reason: err.Error()}
		}
		screens = append(screens, types.Screen{Name: p.Name})
		screenOf[p.Name] = p.Name
		edges = append(edges, topology.Edge{From: cfg.Identity.Name, Position: pos, To: p.Name})
		edges = append(edges, topology.Edge{From: p.Name, Position: pos.Opposite(), To: cfg.Identity.Name})
	}
	for _, a := range cfg.ScreenAdjacency {
		pos, err := parsePosition(a.Position)
		if err != nil {
			return nil, nil, &kvmerr.ConfigError{Reason: err.Error()}
		}
		edges = append(edges, topology.Edge{From: a.Screen, Position: pos, To: a.Neighbour})
	}

	topo, err := topology.New(screens, edges)
	if err != nil {
		return nil, nil, err
	}
	if err := topo.SetLocal(cfg.Identity.Name); err != nil {
		return nil, nil, err
	}
	return topo, screenOf, nil
}

func parsePosition(s string) (types.Position, error) {
	switch s {
	case "Left":
		return types.Left, nil
	case "Right":
		return types.Right, nil
	case "Up":
		return types.Up, nil
	case "Down":
		return types.Down, nil
	default:
		return 0, fmt.Errorf("invalid position %q", s)
	}
}

func runDiscovery(ctx context.Context, machineId types.MachineId, name string, port uint16) {
	disc, err := discovery.New()
	if err != nil {
		log.Printf("discovery: %v", err)
		return
	}
	go func() {
		<-ctx.Done()
		_ = disc.Close()
	}()
	disc.Advertise(machineId, name, port)
	events := disc.Browse()
	go func() {
		for ev := range events {
			if ev.Lost {
				log.Printf("discovery: peer %s no longer seen", ev.Peer.MachineId)
				continue
			}
			log.Printf("discovery: found peer %q at %s (id=%s) — add it to peers and --pair to use it",
				ev.Peer.Name, ev.Peer.Address, ev.Peer.MachineId)
		}
	}()
}

// runPair dials a not-yet-trusted peer once, over an unverified connection,
// to learn and pin its certificate fingerprint (§4.5's explicit manual
// pairing step — TOFU by operator action, never automatic).
func runPair(dir string, cfg *config.Config, spec string) error {
	name, address, err := splitPairSpec(spec)
	if err != nil {
		return err
	}
	cert, _, err := pki.LoadOrGenerate(dir, cfg.Identity.Name)
	if err != nil {
		return err
	}

	var fingerprint string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn, err := transport.Dial(ctx, address, name, cert, func(peerName string, leafDER []byte) error {
		fingerprint = pki.Fingerprint(leafDER)
		return nil // trust-on-first-use: accept whatever this dial sees
	})
	if err != nil {
		return err
	}
	_ = conn.Close()

	trustStore, err := trust.Load(dir)
	if err != nil {
		return err
	}
	if err := trustStore.Pair(name, fingerprint); err != nil {
		return err
	}
	log.Printf("paired %q (%s) with fingerprint %s", name, address, fingerprint)
	return nil
}

func splitPairSpec(spec string) (name, address string, err error) {
	for i := 0; i < len(spec); i++ {
		if spec[i] == ':' {
			return spec[:i], spec[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("expected NAME:ADDRESS, got %q", spec)
}
