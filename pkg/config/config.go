package config

import (
	"bytes"
	_ "embed"
	"strings"

	"github.com/KyberNetwork/logger"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/KyberNetwork/kscan/pkg/client"
	"github.com/KyberNetwork/kscan/pkg/server/scanhttp"
)

type Config struct {
	Redis  client.RedisCfg
	Scan   client.ScanCfg
	Server scanhttp.Config
	Remote client.ScanHttpCfg
}

//go:embed default.yaml
var defaultConfig []byte

// LoadConfig reads configPath, falling back to the embedded defaults, then applies env overrides such as
// SCAN_DEFAULTCOUNT for scan.defaultCount.
func LoadConfig(configPath string) (Config, error) {
	cfg := Config{}
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	v.SetConfigType("yaml")
	err := v.ReadInConfig()
	if err != nil {
		logger.Warnf("readInConfig error with %v", err)
		if err := v.ReadConfig(bytes.NewBuffer(defaultConfig)); err != nil {
			return Config{}, errors.Wrap(err, "read default config")
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}
	logger.Infof("LoadConfig|redis=%v|scan.defaultCount=%d|server=%s%s", cfg.Redis.Addrs, cfg.Scan.DefaultCount,
		cfg.Server.HTTP.String(), cfg.Server.BasePath)
	return cfg, nil
}

// Init builds the clients of every hot config section.
func (c *Config) Init() {
	c.Redis.OnUpdate(nil, &c.Redis)
	c.Scan.OnUpdate(nil, &c.Scan)
	c.Remote.OnUpdate(nil, &c.Remote)
}
