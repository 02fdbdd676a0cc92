package reports

import (
	"context"

	"github.com/mengeric/reportfetch-go/fetcher"
	"github.com/mengeric/reportfetch-go/reportjob"
)

// JobResult 后台报表任务的最终结果载荷。
// FromCache 为 true 表示本次展示的是回退缓存数据，展示层据此加提示。
type JobResult struct {
	FromCache bool   `json:"from_cache"`
	Source    string `json:"source"`
	Payload   any    `json:"payload"`
}

// buildFn 一张报表对应的取数函数。
type buildFn func(ctx context.Context) (Result, error)

// work 通用的报表执行单元：起步心跳 → 调上游 → 组装结果。
// 失败直接返回错误，由 Runner 统一转为 failed 终态。
func work(build buildFn) reportjob.Work {
	return func(ctx context.Context, report reportjob.Progress) (any, error) {
		report("Starting…", reportjob.IntPtr(1))
		report("Calling upstream…", reportjob.IntPtr(5))

		res, err := build(ctx)
		if err != nil {
			return nil, err
		}

		fromCache := res.Source != fetcher.SourceLive
		if fromCache {
			report("Served cached report", reportjob.IntPtr(70))
		} else {
			report("Got live data", reportjob.IntPtr(70))
		}

		report("Assembling report", nil)
		return JobResult{FromCache: fromCache, Source: res.Source, Payload: res.Data}, nil
	}
}

// StatusesWork 生产状态清单报表的执行单元。
func (s *Service) StatusesWork(instance string) reportjob.Work {
	return work(func(ctx context.Context) (Result, error) {
		return s.Statuses(ctx, instance)
	})
}

// OpenOrdersWork 单客户在产订单报表的执行单元。
func (s *Service) OpenOrdersWork(customer, instance string) reportjob.Work {
	return work(func(ctx context.Context) (Result, error) {
		return s.OpenOrders(ctx, customer, instance)
	})
}

// OpenOrdersByGroupWork 客户组在产订单报表的执行单元。
func (s *Service) OpenOrdersByGroupWork(group, instance string) reportjob.Work {
	return work(func(ctx context.Context) (Result, error) {
		return s.OpenOrdersByGroup(ctx, group, instance)
	})
}

// OrderLookupWork 订单号查询报表的执行单元。
func (s *Service) OrderLookupWork(orderNo, endpoint, instance string) reportjob.Work {
	return work(func(ctx context.Context) (Result, error) {
		return s.OrderLookup(ctx, orderNo, endpoint, instance)
	})
}
