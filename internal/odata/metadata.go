package odata

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/moshelati/knesset-data-vote-sub001/internal/platform/cache"
)

// ErrMetadataUnavailable is returned when the metadata document cannot be
// fetched or does not describe any entity sets.
var ErrMetadataUnavailable = errors.New("odata metadata unavailable")

// Schema lists the entity sets the live service exposes.
type Schema struct {
	EntitySets []string
}

func (s Schema) Has(name string) bool {
	_, ok := ResolveCollection(s, []string{name})
	return ok
}

// ResolveCollection returns the first candidate present in the schema, using
// the service's own spelling. Exact matches win over case-insensitive ones
// for the same candidate.
func ResolveCollection(s Schema, candidates []string) (string, bool) {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		folded := ""
		for _, set := range s.EntitySets {
			if set == candidate {
				return set, true
			}
			if folded == "" && strings.EqualFold(set, candidate) {
				folded = set
			}
		}
		if folded != "" {
			return folded, true
		}
	}
	return "", false
}

// ParseMetadata extracts EntitySet names from an EDMX/CSDL document.
func ParseMetadata(doc []byte) (Schema, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	seen := map[string]struct{}{}
	var sets []string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Schema{}, fmt.Errorf("%w: parse: %v", ErrMetadataUnavailable, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "EntitySet" {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Local != "Name" {
				continue
			}
			name := strings.TrimSpace(attr.Value)
			if name == "" {
				continue
			}
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				sets = append(sets, name)
			}
		}
	}
	if len(sets) == 0 {
		return Schema{}, fmt.Errorf("%w: no entity sets declared", ErrMetadataUnavailable)
	}
	return Schema{EntitySets: sets}, nil
}

// Getter fetches a URL body. The outbound guard satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL string, accept string) ([]byte, error)
}

// Discovery fetches and parses the metadata document, optionally through an
// injected cache that stores the parsed entity-set list.
type Discovery struct {
	getter Getter
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewDiscovery(logger *slog.Logger, getter Getter, c cache.Cache, ttl time.Duration) *Discovery {
	return &Discovery{getter: getter, cache: c, ttl: ttl, logger: logger}
}

func (d *Discovery) Discover(ctx context.Context, metadataURL string) (Schema, error) {
	if d == nil || d.getter == nil {
		return Schema{}, fmt.Errorf("%w: discovery not initialized", ErrMetadataUnavailable)
	}
	fetch := func(ctx context.Context) ([]byte, error) {
		doc, err := d.getter.Get(ctx, metadataURL, "application/xml")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMetadataUnavailable, err)
		}
		schema, err := ParseMetadata(doc)
		if err != nil {
			return nil, err
		}
		return json.Marshal(schema.EntitySets)
	}

	c := d.cache
	if d.ttl <= 0 {
		c = nil
	}
	raw, err := cache.GetOrFetch(ctx, d.logger, c, "odata:entity-sets:"+metadataURL, d.ttl, fetch)
	if err != nil {
		return Schema{}, err
	}
	var sets []string
	if err := json.Unmarshal(raw, &sets); err != nil || len(sets) == 0 {
		// A corrupt cache entry falls back to a direct fetch.
		if raw, err = fetch(ctx); err != nil {
			return Schema{}, err
		}
		if err := json.Unmarshal(raw, &sets); err != nil {
			return Schema{}, fmt.Errorf("%w: %v", ErrMetadataUnavailable, err)
		}
	}
	return Schema{EntitySets: sets}, nil
}
