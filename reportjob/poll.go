package reportjob

import (
	"context"
	"time"
)

// DefaultStallTTL running 任务停更多久后按失联处理。
const DefaultStallTTL = 5 * time.Minute

// stallError 写入失联任务的用户可读错误文案。
const stallError = "Report generation has stopped responding. Please try again."

// Poll 停更感知的任务读取。
// 功能：读取任务；若仍为 running 且 UpdatedAt 早于 stallTTL，则在本次读取中
// 直接把任务置为 failed（error 为失联文案）后再返回。这是惰性对账：没有
// 主动看门狗，只有轮询者碰到失联任务时才触发。
// 参数：stallTTL <= 0 时取 DefaultStallTTL。
func Poll(ctx context.Context, store JobStore, jobID string, stallTTL time.Duration) (*JobRecord, error) {
	job, err := store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if stallTTL <= 0 {
		stallTTL = DefaultStallTTL
	}
	if job.Status == StatusRunning && time.Since(job.UpdatedAt) > stallTTL {
		if err := store.Update(ctx, jobID, JobUpdate{Error: stallError, Done: true}); err != nil {
			return nil, err
		}
		return store.Get(ctx, jobID)
	}
	return job, nil
}
