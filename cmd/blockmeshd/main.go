package main

import (
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cuemby/blockmesh/pkg/fsrepo"
	"github.com/cuemby/blockmesh/pkg/keynet"
	"github.com/cuemby/blockmesh/pkg/log"
	"github.com/cuemby/blockmesh/pkg/metrics"
	"github.com/cuemby/blockmesh/pkg/notify"
	"github.com/cuemby/blockmesh/pkg/repo"
	"github.com/cuemby/blockmesh/pkg/rpc"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	peerID      = flag.String("peer-id", "", "this peer's id (required)")
	dataDir     = flag.String("data-dir", "/var/lib/blockmesh", "data directory for the fsrepo store and raft logs")
	raftAddr    = flag.String("raft-addr", "127.0.0.1:7950", "address this peer's raft transport binds to")
	rpcAddr     = flag.String("rpc-addr", "127.0.0.1:7951", "address this peer's rpc server listens on")
	metricsAddr = flag.String("metrics-addr", "127.0.0.1:9090", "address the metrics/health http server listens on")
	bootstrap   = flag.Bool("bootstrap", false, "bootstrap a brand-new single-peer directory rooted at this peer")
	joinLeader  = flag.String("join", "", "rpc address of an existing peer's directory leader to join through")
	enablePprof = flag.Bool("enable-pprof", false, "enable pprof profiling endpoints on the metrics server")
	logLevel    = flag.String("log-level", "info", "log level: debug, info, warn, error")
	logJSON     = flag.Bool("log-json", true, "emit JSON structured logs instead of console format")
)

// blockmeshd brings up a single storage peer: a persisted Repo fronted by
// an rpc.Server, plus the raft-replicated keynet.Directory entry other
// peers' routers consult to find it. It does not itself run a
// transactor.Transactor — that belongs to whatever issues cross-peer
// Get/Pend/Commit calls, client-side, against this peer's and its
// siblings' rpc servers.
func main() {
	flag.Parse()

	if *peerID == "" {
		fmt.Fprintln(os.Stderr, "Error: --peer-id is required")
		os.Exit(1)
	}

	initLogging()
	log.Info(fmt.Sprintf("blockmeshd %s (commit %s, built %s)", Version, Commit, BuildTime))

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initLogging() {
	level := log.InfoLevel
	switch strings.ToLower(*logLevel) {
	case "debug":
		level = log.DebugLevel
	case "warn":
		level = log.WarnLevel
	case "error":
		level = log.ErrorLevel
	}
	log.Init(log.Config{
		Level:      level,
		JSONOutput: *logJSON,
		Output:     os.Stdout,
	})
}

func run() error {
	dir, err := keynet.New(keynet.Config{
		PeerID:   keynet.PeerID(*peerID),
		BindAddr: *raftAddr,
		DataDir:  *dataDir,
		Logger:   log.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to start directory: %v", err)
	}

	if *bootstrap {
		if err := dir.Bootstrap(*raftAddr); err != nil {
			return fmt.Errorf("failed to bootstrap directory: %v", err)
		}
		if err := dir.RegisterPeer(keynet.PeerID(*peerID), keynet.PeerInfo{Addr: *rpcAddr}); err != nil {
			return fmt.Errorf("failed to register self in directory: %v", err)
		}
		log.Info("directory bootstrapped")
	} else if *joinLeader != "" {
		leader, err := rpc.DialTimeout(*joinLeader, 10*time.Second)
		if err != nil {
			return fmt.Errorf("failed to reach join leader: %v", err)
		}
		leader.Close()
		log.Info("reached join leader at " + *joinLeader + "; awaiting AddVoter from an operator against the current leader")
	}

	store, err := fsrepo.Open(filepath.Join(*dataDir, "blockmesh.db"))
	if err != nil {
		return fmt.Errorf("failed to open fsrepo store: %v", err)
	}

	broker := notify.NewBroker()
	broker.Start()

	r := repo.New(store, broker, log.Logger)

	rpcServer := rpc.NewServer(r, log.Logger)
	rpcErrCh := make(chan error, 1)
	go func() {
		log.Info("rpc server listening on " + *rpcAddr)
		if err := rpcServer.Serve(*rpcAddr); err != nil {
			rpcErrCh <- fmt.Errorf("rpc server error: %v", err)
		}
	}()

	collector := metrics.NewCollector(dir, r)
	collector.Start()
	metrics.SetVersion(Version)
	metrics.RegisterComponent("directory", true, "started")
	metrics.RegisterComponent("fsrepo", true, "opened")
	metrics.RegisterComponent("rpc", true, "listening")

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.Handle("/health", metrics.HealthHandler())
		mux.Handle("/ready", metrics.ReadyHandler())
		mux.Handle("/live", metrics.LivenessHandler())
		if *enablePprof {
			mux.Handle("/debug/pprof/", http.DefaultServeMux)
		}
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			log.Error(fmt.Sprintf("metrics server error: %v", err))
		}
	}()
	log.Info("metrics endpoint: http://" + *metricsAddr + "/metrics")

	if *enablePprof {
		log.Info("pprof enabled at http://" + *metricsAddr + "/debug/pprof/")
	}

	fmt.Printf("blockmeshd running as peer %s. Press Ctrl+C to stop.\n", *peerID)
	fmt.Printf("rpc listening on %s\n", *rpcAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-rpcErrCh:
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	}

	rpcServer.Stop()
	collector.Stop()
	broker.Stop()
	if err := store.Close(); err != nil {
		log.Error(fmt.Sprintf("failed to close fsrepo store: %v", err))
	}
	if err := dir.Shutdown(); err != nil {
		log.Error(fmt.Sprintf("failed to shut down directory: %v", err))
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}
