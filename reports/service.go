package reports

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mengeric/reportfetch-go/client"
	"github.com/mengeric/reportfetch-go/config"
	"github.com/mengeric/reportfetch-go/fetcher"
	"github.com/mengeric/reportfetch-go/reportjob"
)

// Result 带来源标记的报表结果。
// 说明：Source 随结果一路带到展示层，用于"当前展示的是缓存数据"提示。
type Result struct {
	Data   any    `json:"data"`
	Source string `json:"source"`
}

// MappingSource 生产状态重映射的来源（gormstore.Store 即满足）。
type MappingSource interface {
	ActiveStatusMappings(ctx context.Context) (map[string]string, error)
}

// UpstreamFactory 按实例名构造上游客户端；测试据此注入打桩实现。
type UpstreamFactory func(instance string) (client.UpstreamAPI, error)

// Service 报表服务：把"某张报表"翻译成一到多次 fetcher.Fetch 调用并组装结果。
type Service struct {
	cfg      config.Config
	cache    reportjob.CacheStore
	upstream UpstreamFactory
	mappings MappingSource
}

// Option 可选项函数。
type Option func(*Service)

// WithUpstreamFactory 注入上游客户端工厂。
func WithUpstreamFactory(f UpstreamFactory) Option { return func(s *Service) { s.upstream = f } }

// WithMappings 注入状态重映射来源。
func WithMappings(m MappingSource) Option { return func(s *Service) { s.mappings = m } }

// NewService 创建报表服务。未注入工厂时按配置构造真实 OData 客户端。
func NewService(cfg config.Config, cache reportjob.CacheStore, opts ...Option) *Service {
	s := &Service{cfg: cfg, cache: cache}
	for _, fn := range opts {
		fn(s)
	}
	if s.upstream == nil {
		s.upstream = defaultFactory(cfg)
	}
	return s
}

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

func defaultFactory(cfg config.Config) UpstreamFactory {
	connect := msDuration(cfg.Upstream.ConnectTimeoutMS)
	read := msDuration(cfg.Upstream.ReadTimeoutMS)
	return func(instance string) (client.UpstreamAPI, error) {
		ins, ok := cfg.Upstream.Instances[instance]
		if !ok {
			return nil, fmt.Errorf("unrecognised instance: %s", instance)
		}
		return client.NewODataClient(instance, ins, connect, read), nil
	}
}

// request 组装报表路径通用的取数请求：总是先试真实取数，5xx/超时/连接失败
// 一律回退缓存并启用冷却。
func (s *Service) request(key string, fn fetcher.FetchFn) fetcher.Request {
	return fetcher.Request{
		CacheKey:             key,
		Fetch:                fn,
		ForceRefresh:         true, // 报表永远先试真实数据
		MaxAgeMinutes:        0,    // ForceRefresh 下忽略
		FallbackStatuses:     s.cfg.Fetch.FallbackStatuses,
		FallbackOnTimeouts:   true,
		FallbackOnConnErrors: true,
		CooldownMinutes:      s.cfg.Fetch.CooldownMinutes,
		Simulate503:          s.cfg.Upstream.Force503,
	}
}

// Statuses 取某实例当前在产订单出现过的生产状态（去重排序）。
func (s *Service) Statuses(ctx context.Context, instance string) (Result, error) {
	api, err := s.upstream(instance)
	if err != nil {
		return Result{}, err
	}

	fn := func(ctx context.Context) (any, error) {
		rows, err := api.Get(ctx, "JobsScheduleDetailed", []string{
			"OrderStatus eq 'Work in Progress'",
			"ProductionStatus ne null",
		})
		if err != nil {
			return nil, err
		}
		set := map[string]bool{}
		for _, r := range rows {
			if v, ok := r["ProductionStatus"].(string); ok {
				if v = strings.TrimSpace(v); v != "" {
					set[v] = true
				}
			}
		}
		out := make([]string, 0, len(set))
		for v := range set {
			out = append(out, v)
		}
		sort.Strings(out)
		return out, nil
	}

	data, source, err := fetcher.Fetch(ctx, s.cache, s.request("statuses:"+instance, fn))
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, Source: source}, nil
}

// OpenOrders 取某客户的在产订单，真实数据优先，失败回退缓存。
func (s *Service) OpenOrders(ctx context.Context, customer, instance string) (Result, error) {
	api, err := s.upstream(instance)
	if err != nil {
		return Result{}, err
	}

	fn := func(ctx context.Context) (any, error) {
		return s.fetchAndProcessOrders(ctx, api, []string{
			"OrderStatus eq 'Work in Progress'",
			"ProductionStatus ne null",
			"Customer eq " + client.Quote(customer),
		})
	}

	key := fmt.Sprintf("open_orders:%s:customer:%s", instance, customer)
	data, source, err := fetcher.Fetch(ctx, s.cache, s.request(key, fn))
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, Source: source}, nil
}

// OpenOrdersByGroup 取某客户组全部客户的在产订单。
// 实现：先解析组内客户清单，再把 Customer in (...) 条件按 URL 长度上限分批，
// 逐批取数后合并。
func (s *Service) OpenOrdersByGroup(ctx context.Context, group, instance string) (Result, error) {
	api, err := s.upstream(instance)
	if err != nil {
		return Result{}, err
	}

	fn := func(ctx context.Context) (any, error) {
		customers, err := api.Get(ctx, "SalesReport", []string{
			// SalesReport 端点的列名带下划线，与 JobsScheduleDetailed 不同
			"Order_Status eq 'Work in Progress'",
			"CustomerGroup eq " + client.Quote(group),
		})
		if err != nil {
			return nil, err
		}
		names := uniqueCustomerNames(customers)
		if len(names) == 0 {
			return []client.Row{}, nil
		}

		results := []client.Row{}
		for _, batch := range batchQuoted(names, maxURLLength) {
			rows, err := s.fetchAndProcessOrders(ctx, api, []string{
				"OrderStatus eq 'Work in Progress'",
				"ProductionStatus ne null",
				fmt.Sprintf("Customer in (%s)", strings.Join(batch, ", ")),
			})
			if err != nil {
				return nil, err
			}
			results = append(results, rows...)
		}
		return results, nil
	}

	key := fmt.Sprintf("open_orders_by_group:%s:%s", instance, group)
	data, source, err := fetcher.Fetch(ctx, s.cache, s.request(key, fn))
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, Source: source}, nil
}

// OrderLookup 按订单号在指定端点取数。
func (s *Service) OrderLookup(ctx context.Context, orderNo, endpoint, instance string) (Result, error) {
	api, err := s.upstream(instance)
	if err != nil {
		return Result{}, err
	}

	fn := func(ctx context.Context) (any, error) {
		rows, err := api.Get(ctx, endpoint, []string{"RefNo eq " + client.Quote(orderNo)})
		if err != nil {
			return nil, err
		}
		return rows, nil
	}

	key := fmt.Sprintf("order:%s:%s:%s", instance, endpoint, orderNo)
	data, source, err := fetcher.Fetch(ctx, s.cache, s.request(key, fn))
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, Source: source}, nil
}
