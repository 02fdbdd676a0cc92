package client

import (
	"fmt"
	"strings"
)

// Row 上游归一化后的单行记录。
// 说明：上游各端点返回形状不一（对象数组、空 value、缺列），统一在客户端边界
// 折叠为 []Row 这一种容器类型，下游不再做形状推断。
type Row = map[string]any

// odataEnvelope 上游响应包装，数据一律在 value 数组内。
type odataEnvelope struct {
	Value []Row `json:"value"`
}

// StatusError 非 2xx 响应错误。
// 功能：携带状态码供取数层分类（fetcher 通过 HTTPStatus() 识别）。
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s => %d", e.URL, e.Code)
}

// HTTPStatus 返回响应状态码。
func (e *StatusError) HTTPStatus() int { return e.Code }

// Quote 按 OData 规范转义字符串字面量：内部单引号翻倍后整体加单引号。
// 例：O'Malley -> 'O''Malley'
func Quote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
