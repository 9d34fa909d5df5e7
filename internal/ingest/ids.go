package ingest

import (
	"sync"

	"github.com/moshelati/knesset-data-vote-sub001/internal/domain"
)

// referencedKinds are the kinds later stages resolve foreign keys against.
var referencedKinds = map[domain.EntityKind]bool{
	domain.KindParty:     true,
	domain.KindPerson:    true,
	domain.KindBill:      true,
	domain.KindCommittee: true,
	domain.KindVote:      true,
}

// idIndex maps external ids to internal ids per referenced kind. A kind's map
// is written by its own stage and only read by the stages after it.
type idIndex struct {
	mu   sync.RWMutex
	byID map[domain.EntityKind]map[string]string
}

func newIDIndex() *idIndex {
	return &idIndex{byID: map[domain.EntityKind]map[string]string{}}
}

func (x *idIndex) seed(kind domain.EntityKind, ids map[string]string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	m := x.byID[kind]
	if m == nil {
		m = make(map[string]string, len(ids))
		x.byID[kind] = m
	}
	for ext, id := range ids {
		m[ext] = id
	}
}

func (x *idIndex) put(kind domain.EntityKind, externalID, id string) {
	if !referencedKinds[kind] {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	m := x.byID[kind]
	if m == nil {
		m = map[string]string{}
		x.byID[kind] = m
	}
	m[externalID] = id
}

func (x *idIndex) get(kind domain.EntityKind, externalID string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	id, ok := x.byID[kind][externalID]
	return id, ok && id != ""
}
