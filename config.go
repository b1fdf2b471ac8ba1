package evloop

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
)

// LogConfig 日志配置
type LogConfig struct {
	Level       string `json:"level"`       // debug / info / warn / error
	Development bool   `json:"development"` // console 编码，便于本地调试
}

// Config 为 reactor 及其 handler 的配置，可由 YAML 文件覆盖默认值
type Config struct {
	MaxEvents       int       `json:"maxEvents"`       // 单次 Wait 最多返回的就绪记录数
	ReadBufferSize  int       `json:"readBufferSize"`  // 单次 read 的缓冲大小
	Backlog         int       `json:"backlog"`         // listen 队列长度
	ShutdownKeyword string    `json:"shutdownKeyword"` // 本地输入的退出命令
	Log             LogConfig `json:"log"`
}

// DefaultConfig 提供一组可工作的默认值
func DefaultConfig() Config {
	return Config{
		MaxEvents:       10,
		ReadBufferSize:  1024,
		Backlog:         228,
		ShutdownKeyword: "exit",
		Log:             LogConfig{Level: "info"},
	}
}

// LoadConfig 读取 YAML 文件并覆盖到默认值上
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("evloop: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("evloop: parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate 检查配置是否可用
func (c Config) Validate() error {
	switch {
	case c.MaxEvents <= 0:
		return fmt.Errorf("%w: maxEvents=%d", ErrInvalidArgument, c.MaxEvents)
	case c.ReadBufferSize <= 0:
		return fmt.Errorf("%w: readBufferSize=%d", ErrInvalidArgument, c.ReadBufferSize)
	case c.Backlog <= 0:
		return fmt.Errorf("%w: backlog=%d", ErrInvalidArgument, c.Backlog)
	case c.ShutdownKeyword == "":
		return fmt.Errorf("%w: empty shutdownKeyword", ErrInvalidArgument)
	}
	return nil
}
