package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/nerdneilsfield/go-live-translator/pkg/livetrans"
)

// Config 应用配置
type Config struct {
	// 翻译 API
	APIBaseURL string `mapstructure:"api_base_url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`

	// 翻译行为
	TargetLanguage string `mapstructure:"target_language"`
	TimeoutMs      int    `mapstructure:"timeout_ms"`
	Concurrency    int    `mapstructure:"concurrency"`
	MaxRetries     int    `mapstructure:"max_retries"`
	RetryDelayMs   int    `mapstructure:"retry_delay_ms"`
	PromptTemplate string `mapstructure:"prompt_template"`
	SerialFallback bool   `mapstructure:"serial_fallback"`

	// 分段
	AdaptiveTargetSize int  `mapstructure:"adaptive_target_size"`
	MaxSegmentSize     int  `mapstructure:"max_segment_size"`
	DisableAdaptive    bool `mapstructure:"disable_adaptive_merge"`

	// 缓存
	UseCache        bool   `mapstructure:"use_cache"`
	CacheDir        string `mapstructure:"cache_dir"`
	CacheTTLMinutes int    `mapstructure:"cache_ttl_minutes"`
	CacheMaxEntries int    `mapstructure:"cache_max_entries"`

	// 其他
	Debug bool `mapstructure:"debug"`
}

// LoadConfig 从文件与环境变量加载配置
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// 如果配置路径已指定，则直接使用
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigName(".livetrans")
		v.SetConfigType("yaml")
	}

	// 读取环境变量
	v.AutomaticEnv()
	v.SetEnvPrefix("LIVETRANS")

	if err := v.ReadInConfig(); err != nil {
		// 找不到配置文件时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.CacheDir == "" {
		config.CacheDir = getDefaultCacheDir()
	}

	return &config, nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("api_base_url", "https://api.openai.com/v1")
	v.SetDefault("model", "gpt-4o-mini")
	v.SetDefault("target_language", "zh-CN")
	v.SetDefault("timeout_ms", 60000)
	v.SetDefault("concurrency", 4)
	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_delay_ms", 250)
	v.SetDefault("serial_fallback", true)
	v.SetDefault("adaptive_target_size", livetrans.DefaultTargetSegmentSize)
	v.SetDefault("max_segment_size", livetrans.DefaultMaxSegmentSize)
	v.SetDefault("use_cache", true)
	v.SetDefault("cache_ttl_minutes", 24*60)
	v.SetDefault("cache_max_entries", 2048)
	v.SetDefault("debug", false)
}

// getDefaultCacheDir 默认缓存目录
func getDefaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "livetrans-cache")
	}
	return filepath.Join(home, ".cache", "livetrans")
}

// Resolve 转换为核心层配置
func (c *Config) Resolve() *livetrans.Config {
	return &livetrans.Config{
		APIBaseURL:     c.APIBaseURL,
		APIKey:         c.APIKey,
		Model:          c.Model,
		TargetLanguage: c.TargetLanguage,
		Timeout:        time.Duration(c.TimeoutMs) * time.Millisecond,
		Concurrency:    c.Concurrency,
		MaxRetries:     c.MaxRetries,
		RetryBaseDelay: time.Duration(c.RetryDelayMs) * time.Millisecond,
		PromptTemplate: c.PromptTemplate,
		SerialFallback: c.SerialFallback,
	}
}

// Segmenter 按配置构建分段器
func (c *Config) Segmenter() *livetrans.Segmenter {
	seg := livetrans.NewSegmenter()
	if c.DisableAdaptive {
		seg.Adaptive = false
	}
	if c.AdaptiveTargetSize > 0 {
		seg.TargetSize = c.AdaptiveTargetSize
	}
	if c.MaxSegmentSize > 0 {
		seg.MaxSize = c.MaxSegmentSize
	}
	return seg
}

// CacheTTL 缓存过期时间
func (c *Config) CacheTTL() time.Duration {
	if c.CacheTTLMinutes <= 0 {
		return livetrans.DefaultCacheTTL
	}
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}
