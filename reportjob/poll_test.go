package reportjob

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// seedJob 直接写入指定 UpdatedAt 的任务，构造失联场景。
func seedJob(store JobStore, rec JobRecord) {
	s := store.(*inMemoryJobStore)
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := rec
	s.m[rec.ID] = &cp
}

func TestPollStallDetection(t *testing.T) {
	ctx := context.Background()

	Convey("a stalled running job should fail on the read that observes it", t, func() {
		store := newDefaultJobStore()
		seedJob(store, JobRecord{
			ID:        "stalled",
			Status:    StatusRunning,
			Pct:       42,
			Log:       []string{"Starting…"},
			UpdatedAt: time.Now().Add(-10 * time.Minute),
		})

		job, err := Poll(ctx, store, "stalled", 5*time.Minute)
		So(err, ShouldBeNil)
		So(job.Status, ShouldEqual, StatusFailed)
		So(job.Error, ShouldContainSubstring, "stopped responding")

		// 失联只判一次：后续读取保持 failed
		again, err := Poll(ctx, store, "stalled", 5*time.Minute)
		So(err, ShouldBeNil)
		So(again.Status, ShouldEqual, StatusFailed)
	})

	Convey("a recently updated running job should pass through untouched", t, func() {
		store := newDefaultJobStore()
		seedJob(store, JobRecord{
			ID:        "alive",
			Status:    StatusRunning,
			UpdatedAt: time.Now().Add(-time.Minute),
		})

		job, err := Poll(ctx, store, "alive", 5*time.Minute)
		So(err, ShouldBeNil)
		So(job.Status, ShouldEqual, StatusRunning)
	})

	Convey("terminal jobs are never re-reconciled however old they are", t, func() {
		store := newDefaultJobStore()
		seedJob(store, JobRecord{
			ID:        "done",
			Status:    StatusCompleted,
			UpdatedAt: time.Now().Add(-24 * time.Hour),
		})

		job, err := Poll(ctx, store, "done", 5*time.Minute)
		So(err, ShouldBeNil)
		So(job.Status, ShouldEqual, StatusCompleted)
	})

	Convey("a non-positive TTL should fall back to the default", t, func() {
		store := newDefaultJobStore()
		seedJob(store, JobRecord{
			ID:        "old",
			Status:    StatusRunning,
			UpdatedAt: time.Now().Add(-6 * time.Minute),
		})

		job, err := Poll(ctx, store, "old", 0)
		So(err, ShouldBeNil)
		So(job.Status, ShouldEqual, StatusFailed)
	})

	Convey("missing jobs should surface ErrJobNotFound", t, func() {
		store := newDefaultJobStore()
		_, err := Poll(ctx, store, "missing", time.Minute)
		So(errors.Is(err, ErrJobNotFound), ShouldBeTrue)
	})
}
