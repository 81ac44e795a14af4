// Command storagenode is a gaiakv storage node: it loads a per-node YAML
// config, opens its on-disk store and write-ahead log, and serves the RPC
// surface described in spec §6.1 over TCP, plus an admin console on stdin
// and a Prometheus /metrics endpoint.
//
// Usage:
//
//	storagenode -config node.yaml
//
// Flags:
//
//	-config      Path to the node's YAML configuration file (required)
//	-node-id     Numeric node id, used to tag RPC responses (default: 0)
//	-worker-idx  Worker index folded into this node's timestamp UniqueID (default: 0)
//	-metrics     Address to serve /metrics on (default: disabled)
//	-version     Print version and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yesquel/gaiakv/internal/config"
	"github.com/yesquel/gaiakv/pkg/coid"
	"github.com/yesquel/gaiakv/pkg/diskstore"
	"github.com/yesquel/gaiakv/pkg/keyinfo"
	"github.com/yesquel/gaiakv/pkg/log"
	"github.com/yesquel/gaiakv/pkg/looim"
	"github.com/yesquel/gaiakv/pkg/metrics"
	"github.com/yesquel/gaiakv/pkg/server"
	"github.com/yesquel/gaiakv/pkg/splitter"
	"github.com/yesquel/gaiakv/pkg/transport"
	"github.com/yesquel/gaiakv/pkg/ts"
	"github.com/yesquel/gaiakv/pkg/txlog"
	"github.com/yesquel/gaiakv/pkg/wal"
)

var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning a process exit code. Taking args
// explicitly rather than reading os.Args lets it run under test.
func run(args []string) int {
	cfgPath, nodeID, workerIdx, metricsAddr, showVersion, exit, code := parseFlags(args)
	if exit {
		return code
	}
	if showVersion {
		fmt.Printf("storagenode %s (commit %s)\n", version, commit)
		return 0
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "storagenode: %v\n", err)
		return 1
	}

	logger := log.NewRotating(log.RotatingConfig{
		Path:       cfg.LogFilePath,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 14,
		Compress:   true,
		Level:      slog.LevelInfo,
	}).With("component", "storagenode", "node_id", nodeID)

	logger.Info("starting", "addr", cfg.Addr(), "store_dir", cfg.StoreDir, "version", version)

	disk, err := diskstore.Open(cfg.StoreDir)
	if err != nil {
		logger.Error("opening store", "error", err)
		return 1
	}
	defer disk.Close()

	walWriter, err := wal.Open(wal.Config{Path: cfg.LogFilePath + ".wal"})
	if err != nil {
		logger.Error("opening wal", "error", err)
		return 1
	}
	defer walWriter.Close()

	lt := looim.NewTable(disk)
	pt := txlog.NewTable()
	clock := ts.NewClock(ts.NewUniqueID(uint32(nodeID), workerIdx))

	splitFn := func(c coid.COid, splitCell keyinfo.Key) splitter.Stats {
		metrics.SplitRequests.Inc()
		logger.Warn("split requested but not implemented by this node", "coid", c, "split_cell", splitCell)
		return splitter.Stats{}
	}
	sp := splitter.NewClient(30*time.Second, 1000, splitFn, logger)
	defer sp.Close()

	srv := server.New(nodeID, lt, pt, walWriter, clock, sp, logger)

	sysMetrics := metrics.NewSystemMetrics()
	sysMetrics.SetPendingTxCountFunc(pt.Len)
	sysMetrics.SetObjectCountFunc(func() uint64 { return uint64(len(lt.All())) })
	sysMetrics.SetWALBacklogFunc(walWriter.QueueDepth)
	sysMetrics.SetDiskUsageFunc(diskUsage)

	dispatcher := transport.NewDispatcher()
	srv.Register(dispatcher)

	tsrv, err := transport.Listen(cfg.Addr(), dispatcher, logger)
	if err != nil {
		logger.Error("listening", "error", err)
		return 1
	}

	console := server.NewConsole(srv, logger)

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		if err := tsrv.Serve(); err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("transport: %w", err)
			}
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sysMetrics.Collect()
			case <-ctx.Done():
				return nil
			}
		}
	})

	if metricsAddr != "" {
		exporter := metrics.NewPrometheusExporter(metrics.DefaultRegistry, metrics.DefaultPrometheusConfig())
		metricsSrv := &http.Server{Addr: metricsAddr, Handler: exporter.Handler()}
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return metricsSrv.Close()
		})
	}

	// The console reads stdin, which has no reliable way to be interrupted
	// once a Scan is in flight; it runs outside the errgroup so a pending
	// read never blocks shutdown. Its own "quit" (or EOF) instead closes
	// consoleDone, which the shutdown watcher below treats the same as a
	// signal or a Shutdown RPC.
	consoleDone := make(chan struct{})
	go func() {
		defer close(consoleDone)
		console.Run(os.Stdin, os.Stdout)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
		case <-srv.ShutdownCh():
			logger.Info("shutdown requested via console or RPC")
		case <-consoleDone:
			logger.Info("console exited, shutting down")
		case <-ctx.Done():
		}
		return tsrv.Close()
	})

	if err := g.Wait(); err != nil {
		logger.Error("shutdown with error", "error", err)
		return 1
	}

	logger.Info("shutdown complete")
	return 0
}

// diskUsage reports usage for the filesystem backing path via statfs. No
// third-party dependency in the node's stack covers this; it's a thin
// wrapper around the syscall the standard library already exposes.
func diskUsage(path string) metrics.DiskStats {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return metrics.DiskStats{}
	}
	total := st.Blocks * uint64(st.Bsize)
	free := st.Bfree * uint64(st.Bsize)
	return metrics.DiskStats{Total: total, Used: total - free, Free: free}
}

// parseFlags parses CLI arguments. Returns whatever flag values run needs,
// plus whether the caller should exit immediately and with what code.
func parseFlags(args []string) (cfgPath string, nodeID uint64, workerIdx uint16, metricsAddr string, showVersion, exit bool, code int) {
	fs := flag.NewFlagSet("storagenode", flag.ContinueOnError)
	fs.StringVar(&cfgPath, "config", "", "path to node YAML config")
	var nid, widx uint
	fs.UintVar(&nid, "node-id", 0, "numeric node id")
	fs.UintVar(&widx, "worker-idx", 0, "worker index folded into this node's timestamp UniqueID")
	fs.StringVar(&metricsAddr, "metrics", "", "address to serve /metrics on (empty disables)")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return "", 0, 0, "", false, true, 2
	}
	if !showVersion && cfgPath == "" {
		fmt.Fprintln(os.Stderr, "storagenode: -config is required")
		return "", 0, 0, "", false, true, 2
	}
	return cfgPath, uint64(nid), uint16(widx), metricsAddr, showVersion, false, 0
}
