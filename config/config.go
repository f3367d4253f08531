package config

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/chaos-io/cutout/asset"
	"github.com/chaos-io/cutout/pixel"
)

const (
	envPrefix = "CUTOUT"
	// APIKeyEnv 远程抠图服务的凭证
	APIKeyEnv = "REMOVE_BG_API_KEY"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Upload     UploadConfig     `mapstructure:"upload"`
	RemBG      RemBGConfig      `mapstructure:"rembg"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Spool      SpoolConfig      `mapstructure:"spool"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	MaxPixels    int64    `mapstructure:"max_pixels"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

type RemBGConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	Endpoint         string        `mapstructure:"endpoint"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxUploadSide    int           `mapstructure:"max_upload_side"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerReset     time.Duration `mapstructure:"breaker_reset"`
}

type ClassifierConfig struct {
	Threshold   float64 `mapstructure:"threshold"`
	BrightAbove float64 `mapstructure:"bright_above"`
	DarkBelow   float64 `mapstructure:"dark_below"`
	Shift       int     `mapstructure:"shift"`
}

type SpoolConfig struct {
	Dir       string        `mapstructure:"dir"`
	Retention time.Duration `mapstructure:"retention"`
	SweepSpec string        `mapstructure:"sweep_spec"`
}

// Params 转为分类参数
func (c ClassifierConfig) Params() pixel.Params {
	return pixel.Params{
		Threshold:   c.Threshold,
		BrightAbove: c.BrightAbove,
		DarkBelow:   c.DarkBelow,
		Shift:       c.Shift,
	}
}

// Fingerprint 影响抠图结果的配置摘要，用于区分缓存。凭证只参与哈希，不会出现在结果里
func (c *Config) Fingerprint() string {
	h := md5.New()
	_, _ = fmt.Fprintf(h, "%s|%s|%d|%d|%v|%v|%v|%d",
		c.RemBG.Endpoint, c.RemBG.APIKey, c.RemBG.MaxUploadSide, c.Upload.MaxPixels,
		c.Classifier.Threshold, c.Classifier.BrightAbove, c.Classifier.DarkBelow, c.Classifier.Shift)
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// Load 加载配置：默认值 < YAML 文件 < 环境变量。path 为空时不读文件
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("rembg.api_key", APIKeyEnv, envPrefix+"_REMBG_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Classifier.Params().Validate(); err != nil {
		return nil, fmt.Errorf("invalid classifier config: %w", err)
	}

	return &cfg, nil
}

// New 加载配置文件，失败时退回默认值（环境变量仍然生效）。
// 返回的 error 是配置文件本身的加载错误，由调用方决定如何记录
func New(path string) (*Config, error) {
	cfg, loadErr := Load(path)
	if loadErr == nil {
		return cfg, nil
	}
	cfg, err := Load("")
	if err != nil {
		return getDefaultConfig(), errors.Join(loadErr, err)
	}
	return cfg, loadErr
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("upload.max_pixels", asset.DefaultMaxPixels)
	v.SetDefault("upload.allowed_types", defaultAllowedTypes)

	v.SetDefault("rembg.api_key", "")
	v.SetDefault("rembg.endpoint", "https://api.remove.bg/v1.0/removebg")
	v.SetDefault("rembg.timeout", 30*time.Second)
	v.SetDefault("rembg.max_upload_side", 4096)
	v.SetDefault("rembg.breaker_threshold", 5)
	v.SetDefault("rembg.breaker_reset", 30*time.Second)

	v.SetDefault("classifier.threshold", pixel.DefaultThreshold)
	v.SetDefault("classifier.bright_above", pixel.DefaultBrightAbove)
	v.SetDefault("classifier.dark_below", pixel.DefaultDarkBelow)
	v.SetDefault("classifier.shift", pixel.DefaultShift)

	v.SetDefault("spool.dir", "./output")
	v.SetDefault("spool.retention", 24*time.Hour)
	v.SetDefault("spool.sweep_spec", "@every 1h")
}

var defaultAllowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp", "image/tiff"}

func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			Mode:         "debug",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  24 * time.Hour,
		},
		Upload: UploadConfig{
			MaxSize:      10 * 1024 * 1024,
			MaxPixels:    asset.DefaultMaxPixels,
			AllowedTypes: defaultAllowedTypes,
		},
		RemBG: RemBGConfig{
			Endpoint:         "https://api.remove.bg/v1.0/removebg",
			Timeout:          30 * time.Second,
			MaxUploadSide:    4096,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Classifier: ClassifierConfig{
			Threshold:   pixel.DefaultThreshold,
			BrightAbove: pixel.DefaultBrightAbove,
			DarkBelow:   pixel.DefaultDarkBelow,
			Shift:       pixel.DefaultShift,
		},
		Spool: SpoolConfig{
			Dir:       "./output",
			Retention: 24 * time.Hour,
			SweepSpec: "@every 1h",
		},
	}
}
