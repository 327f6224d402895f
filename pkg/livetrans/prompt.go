package livetrans

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultPromptTemplate 内置提示词模板
const DefaultPromptTemplate = `You are a professional translator. Translate the following Markdown document section into {{targetLanguage}}.

Rules:
1. Preserve all Markdown syntax exactly (headings, emphasis, links, tables).
2. Do not translate code blocks, inline code, URLs or file paths.
3. Keep the original paragraph structure and line breaks.
4. Output only the translated text, without explanations or surrounding quotes.

The section comes from the file {{fileName}}.`

// WorkspacePromptFile 工作区提示词覆盖文件的相对路径
const WorkspacePromptFile = ".livetrans/prompt.md"

// PromptResolver 按优先级解析提示词：工作区覆盖文件 > 配置模板 > 内置默认
type PromptResolver struct {
	// WorkspaceDir 工作区根目录，为空时跳过覆盖文件
	WorkspaceDir string

	// ConfigTemplate 配置层提供的模板
	ConfigTemplate string
}

// Resolve 解析提示词，每次翻译运行执行一次
func (r *PromptResolver) Resolve() *Prompt {
	if r.WorkspaceDir != "" {
		path := filepath.Join(r.WorkspaceDir, WorkspacePromptFile)
		if data, err := os.ReadFile(path); err == nil {
			text := strings.TrimSpace(string(data))
			if text != "" {
				return &Prompt{
					Instructions: text,
					Source:       PromptSourceWorkspace,
					Fingerprint:  PromptFingerprint(text),
					Path:         path,
				}
			}
		}
	}

	if strings.TrimSpace(r.ConfigTemplate) != "" {
		return &Prompt{
			Instructions: r.ConfigTemplate,
			Source:       PromptSourceConfiguration,
			Fingerprint:  PromptFingerprint(r.ConfigTemplate),
		}
	}

	return &Prompt{
		Instructions: DefaultPromptTemplate,
		Source:       PromptSourceDefault,
		Fingerprint:  PromptFingerprint(DefaultPromptTemplate),
	}
}

// RenderPrompt 将模板中的 {{targetLanguage}} 与 {{fileName}} 插值为实际值
func RenderPrompt(instructions, targetLanguage, fileName string) string {
	if fileName == "" {
		fileName = "untitled.md"
	}
	replacer := strings.NewReplacer(
		"{{targetLanguage}}", targetLanguage,
		"{{fileName}}", fileName,
	)
	return replacer.Replace(instructions)
}
