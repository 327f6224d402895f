package livetrans

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

// Config 一次翻译运行所使用的完整配置
// 由外部配置层解析后传入，核心不读取任何全局状态
type Config struct {
	// APIBaseURL 补全 API 的基础地址
	APIBaseURL string `json:"api_base_url"`

	// APIKey API 密钥（绝不参与任何缓存键）
	APIKey string `json:"-"`

	// Model 使用的模型
	Model string `json:"model"`

	// TargetLanguage 目标语言（BCP-47 标签）
	TargetLanguage string `json:"target_language"`

	// Timeout 单次请求超时
	Timeout time.Duration `json:"timeout"`

	// Concurrency 并发上限（>=1）
	Concurrency int `json:"concurrency"`

	// MaxRetries 单个分段的最大尝试次数（>=1）
	MaxRetries int `json:"max_retries"`

	// RetryBaseDelay 重试基础延迟，实际延迟 = RetryBaseDelay * 尝试次数（线性退避）
	RetryBaseDelay time.Duration `json:"retry_base_delay"`

	// PromptTemplate 配置层提供的提示词模板，可包含 {{targetLanguage}} 与 {{fileName}}
	PromptTemplate string `json:"prompt_template"`

	// SerialFallback 并发运行整体失败时，是否以并发=1重试整个文档一次
	SerialFallback bool `json:"serial_fallback"`
}

// Validate 校验配置，缺失字段在网络请求发起前即报错
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.APIBaseURL == "" {
		return NewConfigError("api_base_url")
	}
	if c.APIKey == "" {
		return NewConfigError("api_key")
	}
	if c.Model == "" {
		return NewConfigError("model")
	}
	if c.TargetLanguage == "" {
		return NewConfigError("target_language")
	}
	if _, err := language.Parse(c.TargetLanguage); err != nil {
		return fmt.Errorf("%w: invalid target_language %q: %v", ErrInvalidConfig, c.TargetLanguage, err)
	}
	return nil
}

// normalized 返回填充了默认值的配置副本
func (c *Config) normalized() *Config {
	out := *c
	if out.Timeout <= 0 {
		out.Timeout = 60 * time.Second
	}
	if out.Concurrency < 1 {
		out.Concurrency = 1
	}
	if out.MaxRetries < 1 {
		out.MaxRetries = 1
	}
	if out.RetryBaseDelay <= 0 {
		out.RetryBaseDelay = 250 * time.Millisecond
	}
	return &out
}

// PromptSource 提示词来源
type PromptSource string

const (
	// PromptSourceWorkspace 工作区内的覆盖文件
	PromptSourceWorkspace PromptSource = "workspace"
	// PromptSourceConfiguration 配置项提供的模板
	PromptSourceConfiguration PromptSource = "configuration"
	// PromptSourceDefault 内置默认模板
	PromptSourceDefault PromptSource = "default"
)

// Prompt 解析后的翻译提示词
// Fingerprint 参与缓存键：指令文本的任何变化都会使缓存失效
type Prompt struct {
	// Instructions 解析后的模板文本
	Instructions string `json:"instructions"`

	// Source 来源
	Source PromptSource `json:"source"`

	// Fingerprint 指令文本的内容哈希
	Fingerprint string `json:"fingerprint"`

	// Path 来源文件路径（仅工作区覆盖时存在）
	Path string `json:"path,omitempty"`
}

// RawResult 翻译客户端对单个分段的输出
type RawResult struct {
	// Markdown 翻译后的文本
	Markdown string `json:"markdown"`

	// ProviderID 提供方标识（响应中的模型名）
	ProviderID string `json:"provider_id"`

	// Latency 本次调用的墙钟耗时
	Latency time.Duration `json:"latency"`
}

// RecoveryType 分段恢复方式
type RecoveryType string

const (
	// RecoveryCacheFallback 回落到历史缓存条目
	RecoveryCacheFallback RecoveryType = "cacheFallback"
	// RecoveryPlaceholder 以原文占位
	RecoveryPlaceholder RecoveryType = "placeholder"
)

// Recovery 分段级恢复元数据
// 仅当分段无法获得新鲜翻译时产生，不会使整个运行失败
type Recovery struct {
	SegmentIndex int          `json:"segment_index"`
	Code         ErrorCode    `json:"code"`
	Type         RecoveryType `json:"type"`
	Attempts     int          `json:"attempts"`
	Message      string       `json:"message"`
}

// SegmentUpdate 单个分段完成时的更新
// 发射顺序严格按 SegmentIndex 递增
type SegmentUpdate struct {
	SegmentIndex  int           `json:"segment_index"`
	TotalSegments int           `json:"total_segments"`
	Markdown      string        `json:"markdown"`
	HTML          string        `json:"html"`
	Latency       time.Duration `json:"latency"`
	ProviderID    string        `json:"provider_id"`
	WasCached     bool          `json:"was_cached"`
	Recovery      *Recovery     `json:"recovery,omitempty"`
}

// Result 整个文档的翻译结果
type Result struct {
	Markdown       string        `json:"markdown"`
	HTML           string        `json:"html"`
	ProviderID     string        `json:"provider_id"`
	Latency        time.Duration `json:"latency"`
	TargetLanguage string        `json:"target_language"`
	DocumentPath   string        `json:"document_path"`
	SourceVersion  string        `json:"source_version"`
	WasCached      bool          `json:"was_cached"`
	Recoveries     []Recovery    `json:"recoveries"`
}

// Request 一次文档翻译请求
type Request struct {
	// Text 文档全文
	Text string `json:"text"`

	// FileName 文件名提示，参与提示词 {{fileName}} 插值
	FileName string `json:"file_name"`

	// DocumentID 文档标识（路径或稳定标签），用于缓存归属与单运行互斥
	DocumentID string `json:"document_id"`

	// Version 文档版本号；为空时以内容哈希代替
	Version string `json:"version,omitempty"`

	// ForceRefresh 强制刷新：先清除该文档的两级缓存
	ForceRefresh bool `json:"force_refresh,omitempty"`
}

// NothingToTranslate 空文档的固定占位内容
const NothingToTranslate = "*Nothing to translate.*"
