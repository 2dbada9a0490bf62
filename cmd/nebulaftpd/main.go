// Command nebulaftpd runs the FTP front-end over a chunked blob store:
// it wires the metadata store, upload pipeline, blob backend and FTP
// command dispatcher into one process, grounded on rclone's cmd/ root
// command conventions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nebulaftp/nebulaftp/internal/blob"
	"github.com/nebulaftp/nebulaftp/internal/config"
	"github.com/nebulaftp/nebulaftp/internal/ftpserver"
	"github.com/nebulaftp/nebulaftp/internal/gc"
	"github.com/nebulaftp/nebulaftp/internal/logging"
	"github.com/nebulaftp/nebulaftp/internal/metrics"
	"github.com/nebulaftp/nebulaftp/internal/recovery"
	"github.com/nebulaftp/nebulaftp/internal/store"
	"github.com/nebulaftp/nebulaftp/internal/upload"
	"github.com/nebulaftp/nebulaftp/internal/users"
	"github.com/nebulaftp/nebulaftp/internal/vfs"
	"github.com/nebulaftp/nebulaftp/internal/vfscache"
)

func main() {
	root := &cobra.Command{
		Use:   "nebulaftpd",
		Short: "FTP front-end over a chunked blob store",
		// config.Load owns flag parsing with its own pflag.FlagSet; cobra
		// is used here purely for command/help/version scaffolding, the
		// way rclone's subcommands each own a slice of the same flag set.
		DisableFlagParsing: true,
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args)
		},
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	log := logging.Component(logger, "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := st.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("store indexes: %w", err)
	}

	primary := blob.NewHTTPClient(cfg.BlobBaseURL, cfg.BlobAPIKey, cfg.BlobTarget, cfg.MaxRetries, logging.Component(logger, "blob"))
	blobPool, err := blob.NewPool(primary, []blob.Client{primary})
	if err != nil {
		return fmt.Errorf("blob pool: %w", err)
	}
	if err := blobPool.Ping(ctx); err != nil {
		log.WithError(err).Warn("blob backend unreachable at startup, continuing anyway")
	}

	cache := vfscache.New(st)
	queue := upload.NewQueue(4096)
	v := vfs.New(cache, st, queue)

	dir := users.NewDirectory(loadUsers())

	metricsReg := metrics.New()
	go func() {
		if err := metricsReg.Serve(ctx, cfg.MetricsAddr); err != nil {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()

	if n, err := recovery.Run(ctx, st, queue, log); err != nil {
		log.WithError(err).Warn("restart recovery failed")
	} else if n > 0 {
		log.WithField("count", n).Info("recovered pending uploads")
	}

	workerPool := upload.NewPool(queue, st, blobPool, cfg.BlobTarget, cfg.BlobBackupTarget,
		int64(cfg.ChunkSizeMB)<<20, cfg.MaxRetries, logging.Component(logger, "upload"), metricsReg)
	// Workers get their own context so a shutdown signal lets them drain
	// the closed queue; it is cancelled only once the drain timeout elapses.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	workerPool.Start(workerCtx, cfg.WorkerCount)

	collector := &gc.Collector{
		StagingDir: cfg.StagingDir,
		MaxAge:     time.Duration(cfg.MaxStagingAge) * time.Second,
		Interval:   time.Minute,
		Log:        logging.Component(logger, "gc"),
	}
	go collector.Run(ctx)

	srv := ftpserver.New(cfg, v, dir, queue, logging.Component(logger, "ftp"), metricsReg, blob.Reader{Client: blobPool})

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(ctx) }()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.WithError(err).Error("control channel listener exited")
		}
	}

	srv.Shutdown()
	queue.Close()

	drained := make(chan struct{})
	go func() {
		workerPool.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(time.Duration(cfg.ShutdownDrainTimeout) * time.Second):
		log.Warn("shutdown drain timeout elapsed with uploads still in flight")
		cancelWorkers()
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return st.Close(closeCtx)
}

// loadUsers builds the user directory from NEBULA_USERS, a
// "login:password,login2:password2" list. Credential sourcing is an
// external concern (spec §6); this is the minimal seam a deployment
// overrides with its own backend.
func loadUsers() []*users.User {
	raw := os.Getenv("NEBULA_USERS")
	if raw == "" {
		return nil
	}
	var out []*users.User
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			continue
		}
		out = append(out, users.NewUser(parts[0], parts[1], nil))
	}
	return out
}
