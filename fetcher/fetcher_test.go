package fetcher

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mengeric/reportfetch-go/reportjob"
	"github.com/mengeric/reportfetch-go/storage/memstore"
)

// countingFetch 记录调用次数的取数函数。
type countingFetch struct {
	calls int
	fn    func() (any, error)
}

func (c *countingFetch) fetch(ctx context.Context) (any, error) {
	c.calls++
	return c.fn()
}

func baseRequest(key string, fn FetchFn) Request {
	return Request{
		CacheKey:             key,
		Fetch:                fn,
		ForceRefresh:         true,
		FallbackStatuses:     []int{500, 503},
		FallbackOnTimeouts:   true,
		FallbackOnConnErrors: true,
		CooldownMinutes:      10,
	}
}

// statusErr 测试用的带状态码错误。
type statusErr struct{ code int }

func (e *statusErr) Error() string   { return fmt.Sprintf("HTTP %d", e.code) }
func (e *statusErr) HTTPStatus() int { return e.code }

func seed(store *memstore.Store, key string, payload any, age time.Duration, meta map[string]string) {
	store.SeedCache(reportjob.CacheEntry{
		Key:          key,
		Payload:      payload,
		UpdatedAtUTC: time.Now().UTC().Add(-age),
		Meta:         meta,
	})
}

func TestFetchLiveAndFreshness(t *testing.T) {
	ctx := context.Background()

	Convey("live success should upsert cache and tag live", t, func() {
		store := memstore.New()
		cf := &countingFetch{fn: func() (any, error) { return map[string]any{"orders": []any{"a"}}, nil }}

		payload, source, err := Fetch(ctx, store.Cache(), baseRequest("k1", cf.fetch))
		So(err, ShouldBeNil)
		So(source, ShouldEqual, SourceLive)
		So(payload, ShouldResemble, map[string]any{"orders": []any{"a"}})

		entry, err := store.Cache().Get(ctx, "k1")
		So(err, ShouldBeNil)
		So(entry.Meta[reportjob.MetaRefreshedAtSyd], ShouldNotBeEmpty)
	})

	Convey("fresh cache inside max age should short-circuit the live call", t, func() {
		store := memstore.New()
		seed(store, "k2", "cached", 14*time.Minute+59*time.Second, nil)
		cf := &countingFetch{fn: func() (any, error) { return "live", nil }}

		req := baseRequest("k2", cf.fetch)
		req.ForceRefresh = false
		req.MaxAgeMinutes = 15

		payload, source, err := Fetch(ctx, store.Cache(), req)
		So(err, ShouldBeNil)
		So(source, ShouldEqual, SourceCache)
		So(payload, ShouldEqual, "cached")
		So(cf.calls, ShouldEqual, 0)
	})

	Convey("cache older than max age should trigger a live call", t, func() {
		store := memstore.New()
		seed(store, "k3", "cached", 15*time.Minute+1*time.Second, nil)
		cf := &countingFetch{fn: func() (any, error) { return "live", nil }}

		req := baseRequest("k3", cf.fetch)
		req.ForceRefresh = false
		req.MaxAgeMinutes = 15

		payload, source, err := Fetch(ctx, store.Cache(), req)
		So(err, ShouldBeNil)
		So(source, ShouldEqual, SourceLive)
		So(payload, ShouldEqual, "live")
		So(cf.calls, ShouldEqual, 1)
	})

	Convey("force refresh should skip the freshness shortcut", t, func() {
		store := memstore.New()
		seed(store, "k4", "cached", time.Minute, nil)
		cf := &countingFetch{fn: func() (any, error) { return "live", nil }}

		req := baseRequest("k4", cf.fetch)
		req.MaxAgeMinutes = 15

		_, source, err := Fetch(ctx, store.Cache(), req)
		So(err, ShouldBeNil)
		So(source, ShouldEqual, SourceLive)
		So(cf.calls, ShouldEqual, 1)
	})
}

func TestFetchFallbacks(t *testing.T) {
	ctx := context.Background()

	Convey("503 with cache should serve cache-503 and arm the cooldown", t, func() {
		store := memstore.New()
		seed(store, "f1", map[string]any{"orders": []any{1.0}}, time.Hour, nil)
		cf := &countingFetch{fn: func() (any, error) { return nil, &statusErr{code: 503} }}

		payload, source, err := Fetch(ctx, store.Cache(), baseRequest("f1", cf.fetch))
		So(err, ShouldBeNil)
		So(source, ShouldEqual, SourceCache503)
		So(payload, ShouldResemble, map[string]any{"orders": []any{1.0}})
		So(cf.calls, ShouldEqual, 1)

		entry, _ := store.Cache().Get(ctx, "f1")
		So(entry.Meta[reportjob.MetaLast503AtUTC], ShouldNotBeEmpty)

		// 冷却期内的下一次调用：不再打真实接口，来源回到 "cache"
		payload, source, err = Fetch(ctx, store.Cache(), baseRequest("f1", cf.fetch))
		So(err, ShouldBeNil)
		So(source, ShouldEqual, SourceCache)
		So(payload, ShouldResemble, map[string]any{"orders": []any{1.0}})
		So(cf.calls, ShouldEqual, 1)
	})

	Convey("503 without cache should raise a user-facing error", t, func() {
		store := memstore.New()
		cf := &countingFetch{fn: func() (any, error) { return nil, &statusErr{code: 503} }}

		_, _, err := Fetch(ctx, store.Cache(), baseRequest("f2", cf.fetch))
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "no cached data exists for f2")
		So(err.Error(), ShouldContainSubstring, "503")
	})

	Convey("expired cooldown should allow a fresh live attempt", t, func() {
		store := memstore.New()
		stale := time.Now().UTC().Add(-25 * time.Minute).Format(time.RFC3339)
		seed(store, "f3", "cached", time.Hour, map[string]string{reportjob.MetaLast503AtUTC: stale})
		cf := &countingFetch{fn: func() (any, error) { return "live", nil }}

		_, source, err := Fetch(ctx, store.Cache(), baseRequest("f3", cf.fetch))
		So(err, ShouldBeNil)
		So(source, ShouldEqual, SourceLive)
		So(cf.calls, ShouldEqual, 1)
	})

	Convey("timeout with cache should serve cache-timeout", t, func() {
		store := memstore.New()
		seed(store, "f4", "cached", time.Hour, nil)
		cf := &countingFetch{fn: func() (any, error) { return nil, context.DeadlineExceeded }}

		payload, source, err := Fetch(ctx, store.Cache(), baseRequest("f4", cf.fetch))
		So(err, ShouldBeNil)
		So(source, ShouldEqual, SourceCacheTimeout)
		So(payload, ShouldEqual, "cached")
	})

	Convey("timeout without cache should explain the upstream is not responding", t, func() {
		store := memstore.New()
		cf := &countingFetch{fn: func() (any, error) { return nil, context.DeadlineExceeded }}

		_, _, err := Fetch(ctx, store.Cache(), baseRequest("f5", cf.fetch))
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "not responding")
	})

	Convey("connection error with cache should serve cache-error", t, func() {
		store := memstore.New()
		seed(store, "f6", "cached", time.Hour, nil)
		connErr := fmt.Errorf("connect: %w", syscall.ECONNREFUSED)
		cf := &countingFetch{fn: func() (any, error) { return nil, connErr }}

		_, source, err := Fetch(ctx, store.Cache(), baseRequest("f6", cf.fetch))
		So(err, ShouldBeNil)
		So(source, ShouldEqual, SourceCacheError)
	})

	Convey("connection error without cache should explain the upstream is unreachable", t, func() {
		store := memstore.New()
		connErr := fmt.Errorf("connect: %w", syscall.ECONNREFUSED)
		cf := &countingFetch{fn: func() (any, error) { return nil, connErr }}

		_, _, err := Fetch(ctx, store.Cache(), baseRequest("f7", cf.fetch))
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "cannot reach upstream")
	})

	Convey("unclassified errors should propagate unchanged", t, func() {
		store := memstore.New()
		seed(store, "f8", "cached", time.Hour, nil)
		boom := errors.New("malformed response")
		cf := &countingFetch{fn: func() (any, error) { return nil, boom }}

		_, _, err := Fetch(ctx, store.Cache(), baseRequest("f8", cf.fetch))
		So(errors.Is(err, boom), ShouldBeTrue)
	})

	Convey("a 404 outside the fallback set should propagate even with cache", t, func() {
		store := memstore.New()
		seed(store, "f9", "cached", time.Hour, nil)
		cf := &countingFetch{fn: func() (any, error) { return nil, &statusErr{code: 404} }}

		_, _, err := Fetch(ctx, store.Cache(), baseRequest("f9", cf.fetch))
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "404")
	})
}

func TestFetchSimulated503(t *testing.T) {
	ctx := context.Background()

	Convey("simulated 503 should serve cache without a live call and stamp the cooldown", t, func() {
		store := memstore.New()
		seed(store, "s1", "cached", time.Minute, nil)
		cf := &countingFetch{fn: func() (any, error) { return "live", nil }}

		req := baseRequest("s1", cf.fetch)
		req.ForceRefresh = false
		req.MaxAgeMinutes = 15
		req.Simulate503 = true

		payload, source, err := Fetch(ctx, store.Cache(), req)
		So(err, ShouldBeNil)
		So(source, ShouldEqual, SourceCache503Sim)
		So(payload, ShouldEqual, "cached")
		So(cf.calls, ShouldEqual, 0)

		entry, _ := store.Cache().Get(ctx, "s1")
		So(entry.Meta[reportjob.MetaLast503AtUTC], ShouldNotBeEmpty)
	})

	Convey("simulated 503 without cache should raise", t, func() {
		store := memstore.New()
		cf := &countingFetch{fn: func() (any, error) { return "live", nil }}

		req := baseRequest("s2", cf.fetch)
		req.Simulate503 = true

		_, _, err := Fetch(ctx, store.Cache(), req)
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "Simulated 503 and no cached data")
		So(cf.calls, ShouldEqual, 0)
	})
}
