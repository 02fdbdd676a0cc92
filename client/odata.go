package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mengeric/reportfetch-go/config"
	"github.com/mengeric/reportfetch-go/logging"
)

//go:generate mockgen -destination=../mocks/upstream_api_mock.go -package=mocks github.com/mengeric/reportfetch-go/client UpstreamAPI

// UpstreamAPI 定义与上游报表 OData 服务的交互接口，便于 gomock 打桩。
// 功能：按端点与过滤条件取回归一化行集。
type UpstreamAPI interface {
	Get(ctx context.Context, endpoint string, conditions []string) ([]Row, error)
}

// ODataClient 实现 UpstreamAPI。
// 超时策略：连接短超时 + 整体读长超时；连接类失败做一次有界重试，读阶段绝不
// 重试，保证最坏延迟可控。
type ODataClient struct {
	source   string // 实例名，如 DD、CBR，回填到每行 Instance 列
	base     string
	username string
	password string
	hc       *http.Client
}

// NewODataClient 构造 HTTP 实现。
// 参数：source 实例名；ins 该实例的接入配置；connectTimeout/readTimeout 为
// 连接与整体超时。
func NewODataClient(source string, ins config.Instance, connectTimeout, readTimeout time.Duration) *ODataClient {
	if connectTimeout <= 0 {
		connectTimeout = 3 * time.Second
	}
	if readTimeout <= 0 {
		readTimeout = 8 * time.Second
	}
	tr := &http.Transport{
		DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
	}
	return &ODataClient{
		source:   source,
		base:     strings.TrimRight(ins.BaseURL, "/"),
		username: ins.Username,
		password: ins.Password,
		hc:       &http.Client{Transport: tr, Timeout: readTimeout},
	}
}

// Get 发起 GET 请求并归一化响应。
// 参数：endpoint 端点名（如 JobsScheduleDetailed）；conditions 过滤条件，
// 以 " and " 连接后放入 $filter。
// 返回：归一化行集；非 2xx 返回 *StatusError。
func (c *ODataClient) Get(ctx context.Context, endpoint string, conditions []string) ([]Row, error) {
	u := fmt.Sprintf("%s/%s", c.base, strings.TrimLeft(endpoint, "/"))
	if len(conditions) > 0 {
		u += "?$filter=" + encodeFilter(strings.Join(conditions, " and "))
	}

	res, err := c.do(ctx, u)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		io.Copy(io.Discard, res.Body)
		return nil, &StatusError{Code: res.StatusCode, URL: u}
	}

	var env odataEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", u, err)
	}
	return c.normalize(env.Value), nil
}

// do 执行请求；连接类失败重试一次（只重试拨号阶段的失败）。
func (c *ODataClient) do(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	res, err := c.hc.Do(req)
	if err == nil || !isDialFailure(err) {
		return res, err
	}
	logging.L().Warnf(ctx, "dial failed, retrying once: url=%s err=%v", u, err)
	req2, rerr := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if rerr != nil {
		return nil, rerr
	}
	req2.SetBasicAuth(c.username, c.password)
	return c.hc.Do(req2)
}

// isDialFailure 仅识别建立连接阶段的失败（不含超时后的读失败）。
func isDialFailure(err error) bool {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return false
	}
	if ue.Timeout() {
		return false
	}
	var oe *net.OpError
	return errors.As(ue.Err, &oe) && oe.Op == "dial"
}

// normalize 把上游行集折叠为稳定形状：补 Instance 列并把 DateScheduled
// 从 2006-01-02T15:04:05Z 改写为 02 Jan 2006；无法解析的日期原样保留。
func (c *ODataClient) normalize(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		r["Instance"] = c.source
		if raw, ok := r["DateScheduled"].(string); ok {
			if ts, err := time.Parse("2006-01-02T15:04:05Z", raw); err == nil {
				r["DateScheduled"] = ts.Format("02 Jan 2006")
			}
		}
		out = append(out, r)
	}
	return out
}

// encodeFilter 编码 $filter：空格转 %20，保留 ()' 以贴合上游的解析习惯。
func encodeFilter(filter string) string {
	esc := url.QueryEscape(filter)
	esc = strings.ReplaceAll(esc, "+", "%20")
	esc = strings.ReplaceAll(esc, "%28", "(")
	esc = strings.ReplaceAll(esc, "%29", ")")
	esc = strings.ReplaceAll(esc, "%27", "'")
	return esc
}
