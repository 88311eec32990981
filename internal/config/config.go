package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"AgentPact-Chain/pkg/logger"
)

// Config 描述 agentpactd 在启动阶段需要加载的全部配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Web3      Web3Config      `json:"web3"`
	Storage   StorageConfig   `json:"storage"`
	Bounds    BoundsConfig    `json:"bounds"`
	Notify    NotifyConfig    `json:"notify"`
	Responder ResponderConfig `json:"responder"`
	Logging   logger.Config   `json:"logging"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// Web3Config 包含访问验证合约所需的节点与账户信息。
type Web3Config struct {
	RPCURL       string `json:"rpc_url"`
	Contract     string `json:"contract"`
	PrivateKey   string `json:"private_key"`
	ChainCatalog string `json:"chain_catalog"` // 可选的链清单 YAML 路径
	Chain        string `json:"chain"`         // 从清单中选用的链名
}

// StorageConfig 描述协调镜像的存储后端。
type StorageConfig struct {
	Driver string `json:"driver"` // memory 或 mysql
	DSN    string `json:"dsn"`
}

// BoundsConfig 描述动作清单缓存与可选的清单文件。
type BoundsConfig struct {
	CacheDriver string `json:"cache_driver"` // memory 或 redis
	Redis       struct {
		Address   string `json:"address"`
		Password  string `json:"password"`
		DB        int    `json:"db"`
		KeyPrefix string `json:"key_prefix"`
	} `json:"redis"`
	ManifestPath string `json:"manifest_path"`
}

// NotifyConfig 描述提案通知队列。
type NotifyConfig struct {
	Driver string `json:"driver"` // memory 或 rabbitmq
	URL    string `json:"url"`
	Queue  string `json:"queue"`
}

// ResponderConfig 控制自动应答行为。
type ResponderConfig struct {
	Enabled bool `json:"enabled"`
	Workers int  `json:"workers"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}

	if c.Bounds.CacheDriver == "" {
		c.Bounds.CacheDriver = "memory"
	}
	if c.Bounds.ManifestPath != "" && !filepath.IsAbs(c.Bounds.ManifestPath) {
		c.Bounds.ManifestPath = filepath.Join(baseDir, c.Bounds.ManifestPath)
	}

	if c.Notify.Driver == "" {
		c.Notify.Driver = "memory"
	}

	if c.Responder.Workers <= 0 {
		c.Responder.Workers = 1
	}

	if c.Web3.ChainCatalog != "" && !filepath.IsAbs(c.Web3.ChainCatalog) {
		c.Web3.ChainCatalog = filepath.Join(baseDir, c.Web3.ChainCatalog)
	}
}
