package memstore

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mengeric/reportfetch-go/reportjob"
)

func TestCacheUpsert(t *testing.T) {
	ctx := context.Background()

	Convey("set should fully replace the previous payload and meta", t, func() {
		cache := New().Cache()
		So(cache.Set(ctx, "k", map[string]any{"v": 1}, map[string]string{"a": "1"}), ShouldBeNil)

		e, err := cache.Get(ctx, "k")
		So(err, ShouldBeNil)
		So(e.Payload, ShouldResemble, map[string]any{"v": 1})
		So(e.Meta, ShouldResemble, map[string]string{"a": "1"})

		So(cache.Set(ctx, "k", map[string]any{"v": 2}, nil), ShouldBeNil)
		e, err = cache.Get(ctx, "k")
		So(err, ShouldBeNil)
		// 整体覆盖：不是新旧合并
		So(e.Payload, ShouldResemble, map[string]any{"v": 2})
		So(e.Meta, ShouldBeEmpty)
	})

	Convey("missing keys should yield ErrCacheMiss, not a raw error", t, func() {
		_, err := New().Cache().Get(ctx, "absent")
		So(errors.Is(err, reportjob.ErrCacheMiss), ShouldBeTrue)
	})

	Convey("returned entries should be copies, not aliases of stored state", t, func() {
		cache := New().Cache()
		So(cache.Set(ctx, "k", "v", map[string]string{"a": "1"}), ShouldBeNil)
		e, _ := cache.Get(ctx, "k")
		e.Meta["a"] = "mutated"

		again, _ := cache.Get(ctx, "k")
		So(again.Meta["a"], ShouldEqual, "1")
	})
}

func TestJobStoreSemantics(t *testing.T) {
	ctx := context.Background()

	Convey("job semantics should match the durable store contract", t, func() {
		jobs := New().Jobs()
		So(jobs.Create(ctx, "j"), ShouldBeNil)
		So(errors.Is(jobs.Create(ctx, "j"), reportjob.ErrJobExists), ShouldBeTrue)

		So(jobs.Update(ctx, "j", reportjob.JobUpdate{Message: "A"}), ShouldBeNil)
		So(jobs.Update(ctx, "j", reportjob.JobUpdate{Message: "B", Pct: reportjob.IntPtr(50)}), ShouldBeNil)
		So(jobs.Update(ctx, "j", reportjob.JobUpdate{Message: "C"}), ShouldBeNil)

		job, err := jobs.Get(ctx, "j")
		So(err, ShouldBeNil)
		So(job.Log, ShouldResemble, []string{"A", "B", "C"})
		So(job.Pct, ShouldEqual, 50)
		So(job.Status, ShouldEqual, reportjob.StatusRunning)

		So(jobs.Update(ctx, "j", reportjob.JobUpdate{Error: "boom", Done: true}), ShouldBeNil)
		job, _ = jobs.Get(ctx, "j")
		So(job.Status, ShouldEqual, reportjob.StatusFailed)
	})
}
