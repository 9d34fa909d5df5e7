package outbound

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAssertAllowed(t *testing.T) {
	g, err := New(Config{AllowedDomains: []string{"knesset.gov.il", "data.gov.il"}, Production: true})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	tests := []struct {
		name    string
		url     string
		blocked bool
	}{
		{name: "exact domain", url: "https://knesset.gov.il/Odata/ParliamentInfo.svc/KNS_Faction"},
		{name: "subdomain", url: "https://main.knesset.gov.il/x"},
		{name: "second domain", url: "https://data.gov.il/api"},
		{name: "upper case host", url: "https://KNESSET.GOV.IL/x"},
		{name: "disallowed domain", url: "https://example.com/x", blocked: true},
		{name: "lookalike suffix", url: "https://evilknesset.gov.il/x", blocked: true},
		{name: "allowlisted as prefix", url: "https://knesset.gov.il.attacker.net/x", blocked: true},
		{name: "http in production", url: "http://knesset.gov.il/x", blocked: true},
		{name: "file scheme", url: "file:///etc/passwd", blocked: true},
		{name: "unparseable", url: "https://knesset.gov.il/%zz", blocked: true},
		{name: "no host", url: "https:///path", blocked: true},
	}
	for _, tc := range tests {
		err := g.AssertAllowed(tc.url)
		if tc.blocked {
			if !errors.Is(err, ErrSSRFBlocked) {
				t.Fatalf("%s: expected ErrSSRFBlocked, got %v", tc.name, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
	}
}

func TestAssertAllowedHTTPOutsideProduction(t *testing.T) {
	g, err := New(Config{AllowedDomains: []string{"knesset.gov.il"}, Production: false})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if err := g.AssertAllowed("http://knesset.gov.il/x"); err != nil {
		t.Fatalf("http outside production should pass, got %v", err)
	}
	if err := g.AssertAllowed("ftp://knesset.gov.il/x"); !errors.Is(err, ErrSSRFBlocked) {
		t.Fatalf("ftp should be blocked, got %v", err)
	}
}

func TestGetSetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	g, err := New(Config{AllowedDomains: []string{"127.0.0.1"}, Production: false})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	body, err := g.Get(context.Background(), srv.URL+"/doc", "")
	if err != nil {
		t.Fatalf("Get() err=%v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("body=%q", body)
	}
	if gotUA != UserAgent {
		t.Fatalf("User-Agent=%q, want %q", gotUA, UserAgent)
	}
}

func TestGetBlocksBeforeDispatch(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	g, err := New(Config{AllowedDomains: []string{"knesset.gov.il"}, Production: false})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if _, err := g.Get(context.Background(), srv.URL, ""); !errors.Is(err, ErrSSRFBlocked) {
		t.Fatalf("Get() err=%v, want ErrSSRFBlocked", err)
	}
	if hits != 0 {
		t.Fatalf("blocked request reached the server")
	}
}

func TestRedirectToDisallowedHostIsBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://example.com/steal", http.StatusFound)
	}))
	defer srv.Close()

	g, err := New(Config{AllowedDomains: []string{"127.0.0.1"}, Production: false})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if _, err := g.Get(context.Background(), srv.URL, ""); !errors.Is(err, ErrSSRFBlocked) {
		t.Fatalf("Get() err=%v, want ErrSSRFBlocked on redirect", err)
	}
}

func TestGetNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g, err := New(Config{AllowedDomains: []string{"127.0.0.1"}, Production: false})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if _, err := g.Get(context.Background(), srv.URL, ""); err == nil {
		t.Fatalf("Get() expected error on 503")
	}
}
