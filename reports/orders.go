package reports

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mengeric/reportfetch-go/client"
)

// 展示层用到的列；去重与排序都以这些列为准。
var displayedColumns = []string{
	"RefNo", "Descn", "DateScheduled", "ProductionLine",
	"InventoryItem", "ProductionStatus", "FixedLine",
}

// maxURLLength 上游对过长查询串不友好，Customer in (...) 按此上限分批。
const maxURLLength = 1000

// fetchAndProcessOrders 取订单行并做展示前处理：补齐缺列、套用状态重映射、
// 按展示列去重、按 RefNo/FixedLine 排序。
func (s *Service) fetchAndProcessOrders(ctx context.Context, api client.UpstreamAPI, conditions []string) ([]client.Row, error) {
	rows, err := api.Get(ctx, "JobsScheduleDetailed", conditions)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []client.Row{}, nil
	}

	mappings := map[string]string{}
	if s.mappings != nil {
		if m, err := s.mappings.ActiveStatusMappings(ctx); err == nil {
			mappings = m
		}
	}

	seen := map[string]bool{}
	out := make([]client.Row, 0, len(rows))
	for _, r := range rows {
		for _, col := range displayedColumns {
			if _, ok := r[col]; !ok {
				r[col] = nil
			}
		}
		if ps, ok := r["ProductionStatus"].(string); ok {
			if mapped, ok := mappings[ps]; ok {
				r["ProductionStatus"] = mapped
			}
		}
		key := dedupeKey(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := asString(out[i]["RefNo"]), asString(out[j]["RefNo"])
		if ri != rj {
			return ri < rj
		}
		return asString(out[i]["FixedLine"]) < asString(out[j]["FixedLine"])
	})
	return out, nil
}

func dedupeKey(r client.Row) string {
	parts := make([]string, 0, len(displayedColumns))
	for _, col := range displayedColumns {
		parts = append(parts, asString(r[col]))
	}
	return strings.Join(parts, "\x1f")
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// uniqueCustomerNames 从 SalesReport 行集提取去重排序后的客户名。
func uniqueCustomerNames(rows []client.Row) []string {
	set := map[string]bool{}
	for _, r := range rows {
		if name, ok := r["Customer"].(string); ok {
			if name = strings.TrimSpace(name); name != "" {
				set[name] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// batchQuoted 把客户名转为 OData 字面量后按估算的查询串长度分批。
func batchQuoted(names []string, maxLen int) [][]string {
	baseLen := len("OrderStatus eq 'Work in Progress' and ProductionStatus ne null and Customer in ()")
	batches := [][]string{}
	batch := []string{}
	for _, name := range names {
		quoted := client.Quote(name)
		test := append(append([]string{}, batch...), quoted)
		if baseLen+len(strings.Join(test, ", ")) > maxLen && len(batch) > 0 {
			batches = append(batches, batch)
			batch = []string{quoted}
		} else {
			batch = append(batch, quoted)
		}
	}
	if len(batch) > 0 {
		batches = append(batches, batch)
	}
	return batches
}
