package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
	"github.com/moshelati/knesset-data-vote-sub001/internal/ingest"
	"github.com/moshelati/knesset-data-vote-sub001/internal/mapping"
	"github.com/moshelati/knesset-data-vote-sub001/internal/odata"
	"github.com/moshelati/knesset-data-vote-sub001/internal/platform/cache"
	"github.com/moshelati/knesset-data-vote-sub001/internal/platform/env"
	platformstore "github.com/moshelati/knesset-data-vote-sub001/internal/platform/objectstore"
	"github.com/moshelati/knesset-data-vote-sub001/internal/platform/outbound"
	"github.com/moshelati/knesset-data-vote-sub001/internal/platform/postgres"
	"github.com/moshelati/knesset-data-vote-sub001/internal/repo"
	"github.com/moshelati/knesset-data-vote-sub001/internal/repo/memory"
	pgrepo "github.com/moshelati/knesset-data-vote-sub001/internal/repo/postgres"
	"github.com/moshelati/knesset-data-vote-sub001/internal/snapshot"
	"github.com/moshelati/knesset-data-vote-sub001/internal/storage/objectstore"
)

const (
	modeSync     = "sync"
	modeBackfill = "backfill"
)

// stores groups the repositories a run writes to.
type stores struct {
	entities  repo.EntityStore
	index     repo.ExternalIDIndex
	runs      repo.RunRepository
	snapshots repo.SnapshotRepository
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	var (
		mode      = flag.String("mode", env.String("KNESSET_SYNC_MODE", modeSync), "sync or backfill")
		replayRun = flag.String("replay-run", env.String("KNESSET_REPLAY_RUN", ""), "run id whose snapshots a backfill replays")
		dryRun    = flag.Bool("dry-run", false, "write to an in-memory store instead of Postgres")
	)
	flag.Parse()

	switch *mode {
	case modeSync:
	case modeBackfill:
		if strings.TrimSpace(*replayRun) == "" {
			logger.Error("backfill requires a run to replay", "flag", "replay-run")
			os.Exit(2)
		}
		if *dryRun {
			logger.Error("backfill reads persisted snapshots and cannot run dry")
			os.Exit(2)
		}
	default:
		logger.Error("unsupported mode", "mode", *mode)
		os.Exit(2)
	}

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	syncCfg, err := ingest.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid sync config", "error", err)
		os.Exit(2)
	}
	odataCfg, err := odata.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid odata config", "error", err)
		os.Exit(2)
	}
	plan := ingest.DefaultPlan()
	if path := strings.TrimSpace(syncCfg.CollectionsFile); path != "" {
		catalog, err := ingest.LoadCatalog(path)
		if err != nil {
			logger.Error("invalid collections file", "path", path, "error", err)
			os.Exit(2)
		}
		if plan, err = catalog.Apply(plan); err != nil {
			logger.Error("invalid collections file", "path", path, "error", err)
			os.Exit(2)
		}
	}

	var st stores
	var db *sql.DB
	if *dryRun {
		mem := memory.New()
		st = stores{entities: mem, index: mem, runs: mem, snapshots: mem}
	} else {
		dbCfg, err := postgres.ConfigFromEnv()
		if err != nil {
			logger.Error("invalid database config", "error", err)
			os.Exit(2)
		}
		db, err = postgres.Open(ctx, dbCfg)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		entities := pgrepo.NewEntityStore(db)
		st = stores{
			entities:  entities,
			index:     entities,
			runs:      pgrepo.NewRunStore(db),
			snapshots: pgrepo.NewSnapshotStore(db),
		}
	}

	snapOpts, err := mirrorOptions(ctx, logger, syncCfg)
	if err != nil {
		logger.Error("snapshot mirror unavailable", "error", err)
		os.Exit(1)
	}
	snapshots := snapshot.New(logger, st.snapshots, snapOpts...)

	var source ingest.Source
	switch *mode {
	case modeBackfill:
		source = ingest.NewReplaySource(snapshots, *replayRun, odataCfg.PageSize, plan)
	default:
		src, closeCache, err := liveSource(logger, odataCfg)
		if err != nil {
			logger.Error("odata source unavailable", "error", err)
			os.Exit(2)
		}
		defer closeCache()
		source = src
	}

	deps := ingest.Deps{
		Logger:   logger,
		Source:   source,
		Mapper:   mapping.New(odataCfg.BaseURL),
		Entities: st.entities,
		Index:    st.index,
		Runs:     st.runs,
	}
	// A replay must not write snapshots for payloads it already holds.
	if *mode == modeSync {
		deps.Snapshots = snapshots
	}

	pipeline, err := ingest.NewPipeline(syncCfg, plan, deps)
	if err != nil {
		logger.Error("invalid pipeline", "error", err)
		os.Exit(2)
	}

	run, err := pipeline.Run(ctx)
	if err != nil {
		logger.Error("sync run failed", "run_id", run.ID, "error", err)
		os.Exit(1)
	}
	logger.Info("sync run summary",
		"run_id", run.ID,
		"source", run.Source,
		"status", run.Status,
		"latency_ms", run.LatencyMs,
		"errors", len(run.Errors),
	)
	if run.Status == domain.RunStatusFailed {
		os.Exit(1)
	}
}

func liveSource(logger *slog.Logger, cfg odata.Config) (ingest.Source, func(), error) {
	outCfg, err := outbound.ConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	guard, err := outbound.New(outCfg)
	if err != nil {
		return nil, nil, err
	}
	// Blocked URLs fail at dispatch and are recorded on the run.
	for _, u := range []string{cfg.BaseURL, cfg.ResolvedMetadataURL()} {
		if err := guard.AssertAllowed(u); err != nil {
			logger.Warn("odata url is not allowed", "url", u, "error", err)
		}
	}
	client, err := odata.NewClient(guard, cfg)
	if err != nil {
		return nil, nil, err
	}

	cacheCfg, err := cache.ConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	redisCache, err := cache.NewRedisCache(cacheCfg)
	if err != nil {
		return nil, nil, err
	}
	var metadataCache cache.Cache
	if redisCache != nil {
		metadataCache = redisCache
	}
	closeCache := func() {
		if err := redisCache.Close(); err != nil {
			logger.Warn("redis close failed", "error", err)
		}
	}

	discovery := odata.NewDiscovery(logger, guard, metadataCache, cfg.MetadataCacheTTL)
	return ingest.NewLiveSource(client, discovery, cfg.ResolvedMetadataURL()), closeCache, nil
}

func mirrorOptions(ctx context.Context, logger *slog.Logger, cfg ingest.Config) ([]snapshot.Option, error) {
	if !cfg.SnapshotMirror {
		return nil, nil
	}
	storeCfg, err := platformstore.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("minio config: %w", err)
	}
	client, err := platformstore.NewMinIOClient(storeCfg)
	if err != nil {
		return nil, err
	}
	if err := platformstore.EnsureBucket(ctx, client, storeCfg); err != nil {
		return nil, err
	}
	store, err := objectstore.NewMinioStoreWithClient(client)
	if err != nil {
		return nil, err
	}
	logger.Info("snapshot mirror enabled", "bucket", storeCfg.BucketSnapshots)
	return []snapshot.Option{snapshot.WithMirror(store, storeCfg.BucketSnapshots)}, nil
}
