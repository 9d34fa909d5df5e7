package odata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func pagedServer(t *testing.T, total int, requests *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		q := r.URL.Query()
		top, _ := strconv.Atoi(q.Get("$top"))
		skip, _ := strconv.Atoi(q.Get("$skip"))
		if q.Get("$format") != "json" {
			t.Errorf("missing $format=json in %s", r.URL.RawQuery)
		}
		rows := make([]map[string]any, 0, top)
		for i := skip; i < total && i < skip+top; i++ {
			rows = append(rows, map[string]any{"FactionID": i + 1})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"value": rows})
	}))
}

func newTestClient(t *testing.T, baseURL string, pageSize int) *Client {
	t.Helper()
	c, err := NewClient(http.DefaultClient, Config{BaseURL: baseURL, PageSize: pageSize})
	if err != nil {
		t.Fatalf("NewClient() err=%v", err)
	}
	return c
}

func TestPagesStopsOnShortPage(t *testing.T) {
	var requests int32
	srv := pagedServer(t, 237, &requests)
	defer srv.Close()

	c := newTestClient(t, srv.URL, 100)
	var sizes []int
	for page, err := range c.Pages(context.Background(), "KNS_Faction", Query{}) {
		if err != nil {
			t.Fatalf("Pages() err=%v", err)
		}
		sizes = append(sizes, len(page))
	}
	if fmt.Sprint(sizes) != "[100 100 37]" {
		t.Fatalf("page sizes=%v", sizes)
	}
	if requests != 3 {
		t.Fatalf("requests=%d, want 3", requests)
	}
}

func TestPagesExactMultipleIssuesOneEmptyRequest(t *testing.T) {
	var requests int32
	srv := pagedServer(t, 200, &requests)
	defer srv.Close()

	c := newTestClient(t, srv.URL, 100)
	pages := 0
	for _, err := range c.Pages(context.Background(), "KNS_Faction", Query{}) {
		if err != nil {
			t.Fatalf("Pages() err=%v", err)
		}
		pages++
	}
	if pages != 2 || requests != 3 {
		t.Fatalf("pages=%d requests=%d, want 2 and 3", pages, requests)
	}
}

func TestPagesEarlyBreakIssuesNoFurtherRequests(t *testing.T) {
	var requests int32
	srv := pagedServer(t, 1000, &requests)
	defer srv.Close()

	c := newTestClient(t, srv.URL, 100)
	for range c.Pages(context.Background(), "KNS_Faction", Query{}) {
		break
	}
	if requests != 1 {
		t.Fatalf("requests=%d, want 1", requests)
	}
}

func TestPagesNon2xxEndsSequence(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		if n == 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		rows := make([]map[string]any, 2)
		for i := range rows {
			rows[i] = map[string]any{"id": i}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"value": rows})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	var gotErr error
	pages := 0
	for _, err := range c.Pages(context.Background(), "KNS_Bill", Query{}) {
		if err != nil {
			gotErr = err
			continue
		}
		pages++
	}
	var httpErr *HTTPError
	if !errors.As(gotErr, &httpErr) || httpErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("err=%v, want HTTPError 502", gotErr)
	}
	if pages != 1 || requests != 2 {
		t.Fatalf("pages=%d requests=%d", pages, requests)
	}
}

func TestFetchPageMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value": [`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 100)
	if _, err := c.FetchPage(context.Background(), "KNS_Bill", Query{}, 0); err == nil {
		t.Fatalf("FetchPage() expected error for malformed json")
	}
}

func TestPageURL(t *testing.T) {
	got := PageURL("https://knesset.gov.il/Odata/ParliamentInfo.svc/", "KNS_PersonToPosition", 100, 200, Query{
		Filter:  "FactionID ne null",
		OrderBy: "PersonToPositionID asc",
	})
	want := "https://knesset.gov.il/Odata/ParliamentInfo.svc/KNS_PersonToPosition?$top=100&$skip=200&$filter=FactionID%20ne%20null&$orderby=PersonToPositionID%20asc&$format=json"
	if got != want {
		t.Fatalf("PageURL()=\n%s\nwant\n%s", got, want)
	}
	if strings.Contains(PageURL("https://x", "KNS_Bill", 10, 0, Query{}), "$filter") {
		t.Fatalf("empty filter must be omitted")
	}
}

func TestDecodePageShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		rows int
		fail bool
	}{
		{name: "v4 value", body: `{"value":[{"BillID":1},{"BillID":2}]}`, rows: 2},
		{name: "v2 results", body: `{"d":{"results":[{"BillID":1}]}}`, rows: 1},
		{name: "v2 array", body: `{"d":[{"BillID":1}]}`, rows: 1},
		{name: "empty value", body: `{"value":[]}`, rows: 0},
		{name: "no array", body: `{"error":"x"}`, fail: true},
		{name: "scalar row", body: `{"value":[1]}`, fail: true},
		{name: "not json", body: `<html/>`, fail: true},
	}
	for _, tc := range tests {
		rows, err := DecodePage([]byte(tc.body))
		if tc.fail {
			if err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: err=%v", tc.name, err)
		}
		if len(rows) != tc.rows {
			t.Fatalf("%s: rows=%d, want %d", tc.name, len(rows), tc.rows)
		}
	}
}

func TestDecodePageKeepsNumbersExact(t *testing.T) {
	rows, err := DecodePage([]byte(`{"value":[{"BillID":2200123456789}]}`))
	if err != nil {
		t.Fatalf("DecodePage() err=%v", err)
	}
	n, ok := rows[0]["BillID"].(json.Number)
	if !ok || n.String() != "2200123456789" {
		t.Fatalf("BillID=%#v", rows[0]["BillID"])
	}
}

func TestPagesWaitsDelayAfterEachResponse(t *testing.T) {
	const (
		delay   = 100 * time.Millisecond
		latency = 150 * time.Millisecond
	)
	var (
		mu     sync.Mutex
		starts []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		time.Sleep(latency)
		skip, _ := strconv.Atoi(r.URL.Query().Get("$skip"))
		rows := []map[string]any{}
		for i := skip; i < 5 && i < skip+2; i++ {
			rows = append(rows, map[string]any{"FactionID": i + 1})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"value": rows})
	}))
	defer srv.Close()

	c, err := NewClient(http.DefaultClient, Config{BaseURL: srv.URL, PageSize: 2, PageDelay: delay})
	if err != nil {
		t.Fatalf("NewClient() err=%v", err)
	}
	var ends []time.Time
	for _, err := range c.Pages(context.Background(), "KNS_Faction", Query{}) {
		if err != nil {
			t.Fatalf("Pages() err=%v", err)
		}
		ends = append(ends, time.Now())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(starts) != 3 || len(ends) != 3 {
		t.Fatalf("requests=%d pages=%d, want 3 and 3", len(starts), len(ends))
	}
	for i := 0; i+1 < len(starts); i++ {
		if gap := starts[i+1].Sub(ends[i]); gap < delay {
			t.Fatalf("gap after page %d = %v, want >= %v", i+1, gap, delay)
		}
	}
}

func TestPagesDelayHonorsCancellation(t *testing.T) {
	var requests int32
	srv := pagedServer(t, 10, &requests)
	defer srv.Close()

	c, err := NewClient(http.DefaultClient, Config{BaseURL: srv.URL, PageSize: 2, PageDelay: time.Hour})
	if err != nil {
		t.Fatalf("NewClient() err=%v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var gotErr error
	for _, err := range c.Pages(ctx, "KNS_Faction", Query{}) {
		if err != nil {
			gotErr = err
		}
	}
	if gotErr == nil {
		t.Fatalf("expected the page delay to end with an error")
	}
	if requests != 1 {
		t.Fatalf("requests=%d, want 1", requests)
	}
}
