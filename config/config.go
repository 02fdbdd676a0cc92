package config

// Instance 单个上游 OData 数据源的接入配置。
// 功能：每个 Buz 实例（如 DD、CBR）对应一套独立的报表根地址与 BasicAuth 凭证。
type Instance struct {
	BaseURL  string // 形如 http://api.buzmanager.com/reports/DESDR
	Username string
	Password string
}

// Config 组件运行所需的完整配置（可选）。
// 功能：承载本地数据库、上游实例与取数/任务执行相关配置。
// 注意：组件本身不创建 HTTP 服务；路由与页面由宿主负责。
type Config struct {
	Sqlite struct {
		Path string // 本地数据库文件路径，例如 data/reports.db
	}

	Upstream struct {
		Instances        map[string]Instance // 实例名 -> 接入配置
		ConnectTimeoutMS int                 // 连接超时（毫秒）
		ReadTimeoutMS    int                 // 整体读超时（毫秒）
		Force503         bool                // 黑障演练：强制所有取数走模拟 503 路径
	}

	Fetch struct {
		MaxAgeMinutes        int   // 缓存新鲜期（分钟），0 表示不走新鲜缓存捷径
		FallbackStatuses     []int // 触发回退缓存的 HTTP 状态码，如 [500, 503]
		FallbackOnTimeouts   bool
		FallbackOnConnErrors bool
		CooldownMinutes      int // 回退后对同一 key 的冷却期（分钟）
	}

	Runner struct {
		PoolSize        int // 后台任务协程池大小
		StallTTLSeconds int // 任务停更判定阈值（秒）
	}
}

// withDefaults 填充默认值。
func (c *Config) withDefaults() {
	if c.Upstream.ConnectTimeoutMS <= 0 {
		c.Upstream.ConnectTimeoutMS = 3000
	}
	if c.Upstream.ReadTimeoutMS <= 0 {
		c.Upstream.ReadTimeoutMS = 8000
	}
	if len(c.Fetch.FallbackStatuses) == 0 {
		c.Fetch.FallbackStatuses = []int{500, 503}
	}
	if c.Fetch.CooldownMinutes <= 0 {
		c.Fetch.CooldownMinutes = 10
	}
	if c.Runner.PoolSize <= 0 {
		c.Runner.PoolSize = 2
	}
	if c.Runner.StallTTLSeconds <= 0 {
		c.Runner.StallTTLSeconds = 300
	}
}
