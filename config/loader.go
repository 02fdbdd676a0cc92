package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Load 从 YAML 文件加载配置并填充默认值。
// 说明：环境变量 BUZ_FORCE_503=1 可覆盖 Upstream.Force503，便于在不改配置文件的
// 情况下做黑障演练。
func Load(file string) (Config, error) {
	var c Config
	b, err := os.ReadFile(file)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	if os.Getenv("BUZ_FORCE_503") == "1" {
		c.Upstream.Force503 = true
	}
	c.withDefaults()
	return c, nil
}

// MustLoad 从 YAML 文件加载配置（失败 panic）。
func MustLoad(file string) Config {
	c, err := Load(file)
	if err != nil {
		panic(err)
	}
	return c
}
