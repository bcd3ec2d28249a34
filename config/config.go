package config

import (
	"os"
	"time"

	"github.com/ipfs-force-community/metrics"
	"github.com/pelletier/go-toml"

	"github.com/web3-force/dapp-gateway/types"
)

const (
	// Configuration file name
	ConfigFile = "config.toml"
)

type Config struct {
	API     *APIConfig
	Wallet  *WalletConfig
	Request *RequestConfig
	Chains  []*ChainConfig
	Metrics *metrics.MetricsConfig
	Trace   *metrics.TraceConfig

	AllowInsecureOrigins bool
}

type APIConfig struct {
	ListenAddress string
}

type WalletConfig struct {
	DataDir string
}

type RequestConfig struct {
	QueueSize     int
	Timeout       time.Duration
	ClearInterval time.Duration
}

type ChainConfig struct {
	ChainID string
	Name    string
	RPCURL  string
}

func DefaultConfig() *Config {
	cfg := &Config{
		API:    &APIConfig{ListenAddress: "/ip4/127.0.0.1/tcp/45132"},
		Wallet: &WalletConfig{DataDir: "~/.dapp-gateway"},
		Request: &RequestConfig{
			QueueSize:     30,
			Timeout:       time.Second * 30,
			ClearInterval: time.Second * 5,
		},
		Chains: []*ChainConfig{
			{ChainID: "0x1", Name: "mainnet", RPCURL: "http://127.0.0.1:8545"},
		},
		Metrics: metrics.DefaultMetricsConfig(),
		Trace:   metrics.DefaultTraceConfig(),
	}
	namespace := "gateway"
	cfg.Metrics.Exporter.Prometheus.Namespace = namespace
	cfg.Metrics.Exporter.Graphite.Namespace = namespace
	cfg.Metrics.Exporter.Prometheus.EndPoint = "/ip4/0.0.0.0/tcp/4569"
	cfg.Metrics.Exporter.Graphite.Port = 4569
	cfg.Trace.ServerName = "dapp-gateway"
	cfg.Trace.JaegerEndpoint = ""

	return cfg
}

// RequestConfig converts the file section into the runtime shape.
func (c *Config) RequestConfig() *types.RequestConfig {
	if c.Request == nil {
		return types.DefaultRequestConfig()
	}
	return &types.RequestConfig{
		RequestQueueSize: c.Request.QueueSize,
		RequestTimeout:   c.Request.Timeout,
		ClearInterval:    c.Request.ClearInterval,
	}
}

// ChainInfos converts the configured allow list.
func (c *Config) ChainInfos() []*types.ChainInfo {
	out := make([]*types.ChainInfo, 0, len(c.Chains))
	for _, chain := range c.Chains {
		out = append(out, &types.ChainInfo{
			ChainID: chain.ChainID,
			Name:    chain.Name,
			RPCURL:  chain.RPCURL,
		})
	}
	return out
}

func ReadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	err = toml.Unmarshal(data, cfg)

	return cfg, err
}

func WriteConfig(filePath string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(filePath, data, 0644)
}
