package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCache struct {
	values map[string][]byte
	getErr error
	setErr error
	sets   int
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	if f.values == nil {
		f.values = map[string][]byte{}
	}
	f.values[key] = value
	return nil
}

func countingFetch(calls *int, body string) func(context.Context) ([]byte, error) {
	return func(context.Context) ([]byte, error) {
		*calls++
		return []byte(body), nil
	}
}

func TestGetOrFetchWithoutCache(t *testing.T) {
	calls := 0
	var rc *RedisCache
	for _, c := range []Cache{nil, rc} {
		got, err := GetOrFetch(context.Background(), nil, c, "k", time.Minute, countingFetch(&calls, "doc"))
		if err != nil {
			t.Fatalf("GetOrFetch() err=%v", err)
		}
		if string(got) != "doc" {
			t.Fatalf("GetOrFetch()=%q", got)
		}
	}
	if calls != 2 {
		t.Fatalf("fetch calls=%d, want 2", calls)
	}
}

func TestGetOrFetchHitAndMiss(t *testing.T) {
	c := &fakeCache{}
	calls := 0
	for i := 0; i < 3; i++ {
		got, err := GetOrFetch(context.Background(), nil, c, "k", time.Minute, countingFetch(&calls, "doc"))
		if err != nil || string(got) != "doc" {
			t.Fatalf("GetOrFetch()=%q err=%v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("fetch calls=%d, want 1", calls)
	}
	if c.sets != 1 {
		t.Fatalf("sets=%d, want 1", c.sets)
	}
}

func TestGetOrFetchDegradesOnCacheErrors(t *testing.T) {
	c := &fakeCache{getErr: errors.New("down"), setErr: errors.New("down")}
	calls := 0
	got, err := GetOrFetch(context.Background(), nil, c, "k", time.Minute, countingFetch(&calls, "doc"))
	if err != nil {
		t.Fatalf("GetOrFetch() err=%v", err)
	}
	if string(got) != "doc" || calls != 1 {
		t.Fatalf("GetOrFetch()=%q calls=%d", got, calls)
	}
}

func TestGetOrFetchPropagatesFetchError(t *testing.T) {
	c := &fakeCache{}
	boom := errors.New("upstream")
	_, err := GetOrFetch(context.Background(), nil, c, "k", time.Minute, func(context.Context) ([]byte, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("GetOrFetch() err=%v, want upstream", err)
	}
	if c.sets != 0 {
		t.Fatalf("failed fetch must not be cached")
	}
}

func TestNewRedisCacheDisabled(t *testing.T) {
	c, err := NewRedisCache(Config{Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewRedisCache() err=%v", err)
	}
	if c != nil {
		t.Fatalf("expected nil cache when url is empty")
	}
}
