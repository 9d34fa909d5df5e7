package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
	"github.com/moshelati/knesset-data-vote-sub001/internal/mapping"
	"github.com/moshelati/knesset-data-vote-sub001/internal/odata"
	"github.com/moshelati/knesset-data-vote-sub001/internal/repo"
	"github.com/moshelati/knesset-data-vote-sub001/internal/snapshot"
)

// Deps are the collaborators of a pipeline. Index and Snapshots are optional.
type Deps struct {
	Logger    *slog.Logger
	Source    Source
	Mapper    *mapping.Mapper
	Entities  repo.EntityStore
	Index     repo.ExternalIDIndex
	Runs      repo.RunRepository
	Snapshots *snapshot.Store
}

// Pipeline runs discovery and every stage of a plan once per Run call.
type Pipeline struct {
	cfg       Config
	plan      []Stage
	logger    *slog.Logger
	source    Source
	mapper    *mapping.Mapper
	entities  repo.EntityStore
	index     repo.ExternalIDIndex
	runs      repo.RunRepository
	snapshots *snapshot.Store
}

func NewPipeline(cfg Config, plan []Stage, deps Deps) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}
	switch {
	case deps.Source == nil:
		return nil, errors.New("source is required")
	case deps.Mapper == nil:
		return nil, errors.New("mapper is required")
	case deps.Entities == nil:
		return nil, errors.New("entity store is required")
	case deps.Runs == nil:
		return nil, errors.New("run repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Pipeline{
		cfg:       cfg,
		plan:      append([]Stage(nil), plan...),
		logger:    logger,
		source:    deps.Source,
		mapper:    deps.Mapper,
		entities:  deps.Entities,
		index:     deps.Index,
		runs:      deps.Runs,
		snapshots: deps.Snapshots,
	}, nil
}

// panicError carries a panic out of a record worker.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// Run executes one sync. The returned error is non-nil only when the run row
// itself could not be created or finalized; per-stage failures are reported
// through the run's status and error log.
func (p *Pipeline) Run(ctx context.Context) (run domain.Run, err error) {
	tracker := NewTracker(p.logger, p.runs, p.cfg.MaxRunErrors)
	runID, err := tracker.Start(ctx, p.source.Label())
	if err != nil {
		return domain.Run{}, err
	}
	logger := p.logger.With("run_id", runID, "source", p.source.Label())
	logger.Info("run started", "stages", len(p.plan))

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		var stack []byte
		if pe, ok := r.(*panicError); ok {
			stack = pe.stack
		} else {
			stack = debug.Stack()
		}
		logger.Error("run aborted", "panic", fmt.Sprint(r), "stack", string(stack))
		tracker.AddError(fmt.Sprintf("run aborted: %v", r))
		run, err = tracker.Complete(context.WithoutCancel(ctx), domain.RunStatusFailed)
	}()

	discoveryFailed := false
	schema, derr := p.source.Discover(ctx)
	if derr != nil {
		discoveryFailed = true
		tracker.AddError(fmt.Sprintf("discovery: %v", derr))
		logger.Error("metadata discovery failed", "error", derr)
	} else {
		tracker.SetDiscovered(schema.EntitySets)
		ids := newIDIndex()
		for _, stage := range p.plan {
			p.runStage(ctx, logger, tracker, ids, schema, stage, runID)
		}
	}

	state := tracker.Run()
	status := DeriveStatus(discoveryFailed, state.TotalFetched(), tracker.ErrorCount())
	// The terminal write must land even after a shutdown signal.
	return tracker.Complete(context.WithoutCancel(ctx), status)
}

func (p *Pipeline) runStage(ctx context.Context, logger *slog.Logger, tracker *Tracker, ids *idIndex, schema odata.Schema, stage Stage, runID string) {
	kind := stage.Kind
	tracker.InitEntity(kind)
	log := logger.With("entity_kind", kind)

	// Seed first so later stages can resolve rows from earlier runs even when
	// this stage cannot fetch.
	if referencedKinds[kind] && p.index != nil {
		existing, err := p.index.ExternalIDs(ctx, kind, domain.ExternalSourceKnesset)
		if err != nil {
			tracker.AddError(fmt.Sprintf("%s: load existing ids: %v", kind, err))
			log.Warn("id index seed failed", "error", err)
		} else {
			ids.seed(kind, existing)
		}
	}

	collection, ok := odata.ResolveCollection(schema, stage.Candidates)
	if !ok {
		tracker.AddError(fmt.Sprintf("%s: no live collection among %v", kind, stage.Candidates))
		log.Warn("stage skipped", "candidates", stage.Candidates)
		return
	}

	log.Info("stage started", "collection", collection)
	for page, err := range p.source.Pages(ctx, stage, collection) {
		if err != nil {
			tracker.AddError(fmt.Sprintf("%s: fetch %s: %v", kind, collection, err))
			log.Error("page fetch failed", "collection", collection, "error", err)
			break
		}
		tracker.Add(kind, FieldFetched, len(page))

		var g errgroup.Group
		g.SetLimit(p.cfg.Concurrency)
		for _, rec := range page {
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = &panicError{value: r, stack: debug.Stack()}
					}
				}()
				p.processRecord(ctx, log, tracker, ids, kind, collection, runID, rec)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			panic(err)
		}
	}

	c := tracker.Counters(kind)
	log.Info("stage finished",
		"collection", collection,
		"fetched", c.Fetched,
		"created", c.Created,
		"updated", c.Updated,
		"failed", c.Failed,
		"skipped", c.Skipped,
	)
}

func (p *Pipeline) processRecord(ctx context.Context, log *slog.Logger, tracker *Tracker, ids *idIndex, kind domain.EntityKind, collection, runID string, rec odata.Record) {
	out := p.apply(ctx, ids, kind, rec)
	switch {
	case out.err != nil:
		tracker.Increment(kind, FieldFailed)
		tracker.AddError(fmt.Sprintf("%s %s: %v", kind, displayID(out.externalID), out.err))
		log.Warn("record failed", "external_id", out.externalID, "error", out.err)
	case out.unresolved != "":
		tracker.Increment(kind, FieldSkipped)
		log.Debug("record skipped", "external_id", out.externalID, "unresolved", out.unresolved)
	case out.created:
		tracker.Increment(kind, FieldCreated)
	default:
		tracker.Increment(kind, FieldUpdated)
	}

	if p.snapshots != nil {
		p.snapshots.Save(ctx, kind, out.entityID, snapshot.ExternalKey{
			ID:         out.externalID,
			Source:     domain.ExternalSourceKnesset,
			Collection: collection,
		}, runID, rec)
	}
}

func displayID(externalID string) string {
	if externalID == "" {
		return "(no id)"
	}
	return externalID
}
