package ingest

import (
	"context"
	"iter"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
	"github.com/moshelati/knesset-data-vote-sub001/internal/odata"
)

// Source supplies the metadata and pages a run reads.
type Source interface {
	Label() string
	Discover(ctx context.Context) (odata.Schema, error)
	Pages(ctx context.Context, stage Stage, collection string) iter.Seq2[[]odata.Record, error]
}

// LiveSource reads the remote OData service.
type LiveSource struct {
	client      *odata.Client
	discovery   *odata.Discovery
	metadataURL string
}

func NewLiveSource(client *odata.Client, discovery *odata.Discovery, metadataURL string) *LiveSource {
	return &LiveSource{client: client, discovery: discovery, metadataURL: metadataURL}
}

func (s *LiveSource) Label() string {
	return domain.ExternalSourceKnesset
}

func (s *LiveSource) Discover(ctx context.Context) (odata.Schema, error) {
	return s.discovery.Discover(ctx, s.metadataURL)
}

func (s *LiveSource) Pages(ctx context.Context, stage Stage, collection string) iter.Seq2[[]odata.Record, error] {
	return s.client.Pages(ctx, collection, stage.Query)
}

// SnapshotLoader returns the stored records of a run for one kind.
type SnapshotLoader interface {
	Load(ctx context.Context, runID string, kind domain.EntityKind) ([]odata.Record, error)
}

// ReplaySource serves the snapshots of a previous run instead of the network.
// Every candidate is reported as live; a kind without snapshots yields no
// pages.
type ReplaySource struct {
	loader   SnapshotLoader
	runID    string
	pageSize int
	sets     []string
}

func NewReplaySource(loader SnapshotLoader, runID string, pageSize int, plan []Stage) *ReplaySource {
	if pageSize < 1 {
		pageSize = 100
	}
	seen := map[string]bool{}
	var sets []string
	for _, st := range plan {
		for _, c := range st.Candidates {
			if !seen[c] {
				seen[c] = true
				sets = append(sets, c)
			}
		}
	}
	return &ReplaySource{loader: loader, runID: runID, pageSize: pageSize, sets: sets}
}

func (s *ReplaySource) Label() string {
	return "snapshot-replay:" + s.runID
}

func (s *ReplaySource) Discover(ctx context.Context) (odata.Schema, error) {
	return odata.Schema{EntitySets: append([]string(nil), s.sets...)}, nil
}

func (s *ReplaySource) Pages(ctx context.Context, stage Stage, collection string) iter.Seq2[[]odata.Record, error] {
	return func(yield func([]odata.Record, error) bool) {
		records, err := s.loader.Load(ctx, s.runID, stage.Kind)
		if err != nil {
			yield(nil, err)
			return
		}
		for start := 0; start < len(records); start += s.pageSize {
			end := min(start+s.pageSize, len(records))
			if !yield(records[start:end], nil) {
				return
			}
		}
	}
}
