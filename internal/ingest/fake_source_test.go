package ingest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/moshelati/knesset-data-vote-sub001/internal/mapping"
	"github.com/moshelati/knesset-data-vote-sub001/internal/odata"
	"github.com/moshelati/knesset-data-vote-sub001/internal/platform/outbound"
)

type row = map[string]any

// fakeService is a minimal OData endpoint: $metadata, $top/$skip paging and
// "<field> ne null" filters.
type fakeService struct {
	mu             sync.Mutex
	exposed        []string
	sets           map[string][]row
	failing        map[string]bool
	metadataStatus int
}

func newFakeService() *fakeService {
	var exposed []string
	for _, st := range DefaultPlan() {
		exposed = append(exposed, st.Candidates[0])
	}
	return &fakeService{exposed: dedupe(exposed), sets: map[string][]row{}, failing: map[string]bool{}}
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := strings.TrimPrefix(r.URL.Path, "/svc/")
	if name == "$metadata" {
		if f.metadataStatus != 0 {
			w.WriteHeader(f.metadataStatus)
			return
		}
		var b strings.Builder
		b.WriteString(`<edmx:Edmx xmlns:edmx="http://schemas.microsoft.com/ado/2007/06/edmx"><edmx:DataServices><Schema><EntityContainer>`)
		for _, set := range f.exposed {
			fmt.Fprintf(&b, `<EntitySet Name="%s" EntityType="ParliamentInfo.%s"/>`, set, set)
		}
		b.WriteString(`</EntityContainer></Schema></edmx:DataServices></edmx:Edmx>`)
		_, _ = w.Write([]byte(b.String()))
		return
	}
	if f.failing[name] {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	top, _ := strconv.Atoi(q.Get("$top"))
	skip, _ := strconv.Atoi(q.Get("$skip"))
	rows := f.sets[name]
	if filter := q.Get("$filter"); filter != "" {
		field := strings.TrimSuffix(filter, " ne null")
		var kept []row
		for _, rw := range rows {
			if rw[field] != nil {
				kept = append(kept, rw)
			}
		}
		rows = kept
	}
	page := []row{}
	for i := skip; i < len(rows) && i < skip+top; i++ {
		page = append(page, rows[i])
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"value": page})
}

func (f *fakeService) hide(set string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.exposed {
		if s != set {
			out = append(out, s)
		}
	}
	f.exposed = out
}

func liveSource(t *testing.T, f *fakeService) (*LiveSource, *mapping.Mapper) {
	t.Helper()
	return guardedLiveSource(t, f, []string{"127.0.0.1"})
}

func guardedLiveSource(t *testing.T, f *fakeService, allowed []string) (*LiveSource, *mapping.Mapper) {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	guard, err := outbound.New(outbound.Config{AllowedDomains: allowed, Production: false, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("outbound.New() err=%v", err)
	}
	base := srv.URL + "/svc"
	client, err := odata.NewClient(guard, odata.Config{BaseURL: base, PageSize: 2})
	if err != nil {
		t.Fatalf("odata.NewClient() err=%v", err)
	}
	discovery := odata.NewDiscovery(nil, guard, nil, 0)
	return NewLiveSource(client, discovery, base+"/$metadata"), mapping.New(base)
}
