package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"voting-workflow/api"
	"voting-workflow/config"
	"voting-workflow/events"
	"voting-workflow/identity"
	"voting-workflow/logger"
	"voting-workflow/models"
	"voting-workflow/registry"
	"voting-workflow/service"
	"voting-workflow/storage"
)

const journalWriteTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "voting-workflow: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// A missing .env file is fine; the environment may be set otherwise.
	_ = godotenv.Load()

	fs := config.Flags()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log, cfg.GetLogLevel(), cfg.IsDevelopment())
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer log.Sync()

	keyPath := cfg.Storage.AdminKeyFile
	if keyPath == "" {
		keyPath = filepath.Join(cfg.Storage.DataDir, "admin_credentials.json")
	}
	adminKey, err := identity.LoadOrGenerateKey(keyPath)
	if err != nil {
		return fmt.Errorf("failed to set up admin key: %w", err)
	}
	admin := identity.AddressOf(adminKey)
	log.Info("administrator ready", zap.String("address", admin.Hex()), zap.String("key_file", keyPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	journal, writers, err := openJournal(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer journal.Close()

	metrics := service.NewMetricsCollector(prometheus.DefaultRegisterer)
	election, err := restoreElection(ctx, admin, journal, writers, metrics, log)
	if err != nil {
		return err
	}

	writer, dispatcher := startJournalling(election, journal, cfg.Storage.QueueSize, log)

	if cfg.Storage.VotersFile != "" {
		if err := seedVoters(election, admin, cfg.Storage.VotersFile, log); err != nil {
			dispatcher.Stop()
			return err
		}
	}

	checkpointer := storage.NewCheckpointer(election, log.Named("checkpoint"), writers...)
	checkpointer.FollowJournal(writer)
	if err := checkpointer.Start(cfg.Storage.CheckpointSchedule); err != nil {
		dispatcher.Stop()
		return err
	}

	secret, err := tokenSecret(cfg, log)
	if err != nil {
		dispatcher.Stop()
		return err
	}
	auth := identity.NewAuthenticator(identity.NewTokenIssuer(secret, cfg.Auth.TokenTTL))

	server := api.NewServer(election, auth, api.Options{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		Journal:        writer,
		Logger:         log.Named("api"),
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case err = <-serverErr:
		log.Error("server stopped", zap.Error(err))
	case <-writer.Failed():
		err = writer.Err()
		log.Error("journal failed, shutting down", zap.Error(err))
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if serr := server.Shutdown(shutdownCtx); serr != nil {
		log.Error("failed to shut down HTTP server", zap.Error(serr))
	}
	dispatcher.Stop()
	if cerr := checkpointer.Stop(shutdownCtx); cerr != nil {
		log.Error("final checkpoint failed", zap.Error(cerr))
	}
	log.Info("shutdown completed",
		zap.Stringer("phase", election.Phase()),
		zap.Uint64("journaled_entries", writer.Committed()),
		zap.Uint64("dropped_entries", dispatcher.Dropped()))
	return err
}

// openJournal opens the configured journal and the snapshot writers that go
// with it. Snapshots are always archived under the data directory as well.
func openJournal(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Journal, []storage.SnapshotWriter, error) {
	archive, err := storage.NewSnapshotArchive(filepath.Join(cfg.Storage.DataDir, "snapshots"), cfg.Storage.SnapshotsToKeep, log.Named("snapshots"))
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Storage.Driver {
	case "postgres":
		pg, err := storage.NewPostgresJournal(ctx, cfg.Storage.PostgresURL, log.Named("postgres"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres journal: %w", err)
		}
		return pg, []storage.SnapshotWriter{archive, pg}, nil
	default:
		store, err := storage.NewJSONStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open json journal: %w", err)
		}
		return store, []storage.SnapshotWriter{archive}, nil
	}
}

type latestSnapshotLoader interface {
	LoadLatest(ctx context.Context) (models.Snapshot, bool, error)
}

// restoreElection replays the journal into a new election. A journal that
// holds fewer entries than the latest snapshot lost acknowledged operations
// and is refused.
func restoreElection(ctx context.Context, admin common.Address, journal storage.Journal, writers []storage.SnapshotWriter, metrics *service.MetricsCollector, log *zap.Logger) (*service.Election, error) {
	entries, err := journal.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load journal: %w", err)
	}

	election, err := service.Replay(admin, entries,
		service.WithLogger(log.Named("election")),
		service.WithMetrics(metrics))
	if err != nil {
		return nil, err
	}

	for _, w := range writers {
		loader, ok := w.(latestSnapshotLoader)
		if !ok {
			continue
		}
		snapshot, found, err := loader.LoadLatest(ctx)
		if err != nil {
			log.Warn("failed to read latest snapshot", zap.Error(err))
			continue
		}
		if found && snapshot.EntryCount > uint64(len(entries)) {
			return nil, fmt.Errorf("journal holds %d entries but the snapshot taken at %s has %d",
				len(entries), snapshot.TakenAt.Format(time.RFC3339), snapshot.EntryCount)
		}
	}

	log.Info("election restored",
		zap.Int("entries", len(entries)),
		zap.Stringer("phase", election.Phase()),
		zap.String("head", election.Log().Head().Hex()))
	return election, nil
}

// startJournalling forwards every new log entry to the journal through a
// dispatcher, so that election operations never wait on storage. An entry
// the dispatcher has to drop stops the writer.
func startJournalling(election *service.Election, journal storage.Journal, queueSize int, log *zap.Logger) (*storage.JournalWriter, *events.Dispatcher) {
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "election",
		Name:      "journal_dropped_entries_total",
		Help:      "Log entries that could not be queued for the journal.",
	})
	prometheus.MustRegister(dropped)

	writer := storage.NewJournalWriter(journal, uint64(election.Log().Len()), journalWriteTimeout, log.Named("journal"))

	dispatcher := events.NewDispatcher(queueSize, log.Named("dispatcher"))
	dispatcher.OnDrop(func(entry events.Entry) {
		dropped.Inc()
		writer.Missed(entry)
	})
	dispatcher.Subscribe(writer.Write)
	dispatcher.Start()

	election.Log().Subscribe(func(entry events.Entry) {
		dispatcher.Publish(entry)
	})
	return writer, dispatcher
}

// seedVoters registers the addresses listed in path. Addresses that are
// already registered are skipped, and nothing happens once voter
// registration has closed.
func seedVoters(election *service.Election, admin common.Address, path string, log *zap.Logger) error {
	addrs, err := registry.LoadVoterList(path)
	if err != nil {
		return err
	}

	added := 0
	for _, addr := range addrs {
		err := election.RegisterVoter(admin, addr)
		switch {
		case err == nil:
			added++
		case errors.Is(err, service.ErrAlreadyRegistered):
		case errors.Is(err, service.ErrPhase):
			log.Info("voter registration closed, voters file ignored", zap.String("file", path))
			return nil
		default:
			return fmt.Errorf("failed to register voter %s: %w", addr.Hex(), err)
		}
	}
	log.Info("voters loaded", zap.String("file", path), zap.Int("listed", len(addrs)), zap.Int("added", added))
	return nil
}

// tokenSecret returns the configured signing secret, or a random one that
// lives only as long as the process.
func tokenSecret(cfg *config.Config, log *zap.Logger) ([]byte, error) {
	if cfg.Auth.TokenSecret != "" {
		return []byte(cfg.Auth.TokenSecret), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate token secret: %w", err)
	}
	log.Warn("no auth.token_secret configured, sessions will not survive a restart")
	return secret, nil
}
