package livetrans

import (
	"crypto/md5"
	"fmt"
	"strings"

	"github.com/Kunde21/markdownfmt/v3"
)

// hashString 计算字符串的MD5十六进制摘要
func hashString(data string) string {
	sum := md5.Sum([]byte(data))
	return fmt.Sprintf("%x", sum)
}

// NormalizeMarkdown 规范化分段文本用于指纹计算
// 经过一次 markdown 解析与重排，纯空白变化不会使缓存失效；
// 无法解析时退回到去除首尾空白的原文
func NormalizeMarkdown(text string) string {
	formatted, err := markdownfmt.Process("", []byte(text))
	if err != nil {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(string(formatted))
}

// PromptFingerprint 计算提示词指令文本的指纹
func PromptFingerprint(instructions string) string {
	return hashString("prompt:" + instructions)
}

// ContentHash 计算文档内容哈希
func ContentHash(text string) string {
	return hashString("content:" + text)
}

// SegmentFingerprint 计算单个分段的缓存指纹
// 参与因素：规范化后的分段文本、模型、目标语言、API地址、提示词指纹
// APIKey 与超时绝不参与
func SegmentFingerprint(text string, cfg *Config, prompt *Prompt) string {
	keyData := fmt.Sprintf("seg|model:%s|tgt:%s|base:%s|prompt:%s|text:%s",
		cfg.Model,
		cfg.TargetLanguage,
		cfg.APIBaseURL,
		prompt.Fingerprint,
		NormalizeMarkdown(text),
	)
	return hashString(keyData)
}

// ConfigHash 计算参与文档级缓存键的配置哈希
// 仅包含目标语言、模型、API地址与提示词指纹
func ConfigHash(cfg *Config, prompt *Prompt) string {
	keyData := fmt.Sprintf("cfg|model:%s|tgt:%s|base:%s|prompt:%s",
		cfg.Model,
		cfg.TargetLanguage,
		cfg.APIBaseURL,
		prompt.Fingerprint,
	)
	return hashString(keyData)
}
