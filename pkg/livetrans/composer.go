package livetrans

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	mathjax "github.com/litao91/goldmark-mathjax"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
	meta "github.com/yuin/goldmark-meta"
	"go.uber.org/zap"
)

// RecoveryClass 恢复分段在渲染HTML中的标记类名
const RecoveryClass = "livetrans-recovery"

// Composer 结果合成器
// 按原始索引顺序拼接分段 Markdown，渲染最终 HTML，并聚合恢复与耗时元数据
type Composer struct {
	md     goldmark.Markdown
	logger *zap.Logger
}

// NewComposer 创建合成器
func NewComposer(logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				meta.Meta,
				mathjax.MathJax,
			),
			goldmark.WithRendererOptions(
				goldmarkhtml.WithUnsafe(),
			),
		),
		logger: logger,
	}
}

// RenderHTML 渲染一段 Markdown
// 渲染失败时退回到转义后的预格式化文本，绝不让渲染错误中断翻译
func (c *Composer) RenderHTML(markdown string) string {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(markdown), &buf); err != nil {
		c.logger.Warn("markdown render failed", zap.Error(err))
		return "<pre>" + html.EscapeString(markdown) + "</pre>"
	}
	return buf.String()
}

// RenderSegmentHTML 渲染单个分段，恢复分段的顶层节点加上标记类
func (c *Composer) RenderSegmentHTML(markdown string, recovery *Recovery) string {
	rendered := c.RenderHTML(markdown)
	if recovery == nil {
		return rendered
	}
	return c.markRecovered(rendered, recovery)
}

// markRecovered 为恢复分段的HTML顶层元素追加标记类与恢复类型属性
func (c *Composer) markRecovered(fragment string, recovery *Recovery) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}

	doc.Find("body > *").Each(func(_ int, sel *goquery.Selection) {
		sel.AddClass(RecoveryClass)
		sel.SetAttr("data-recovery", string(recovery.Type))
	})

	out, err := doc.Find("body").Html()
	if err != nil {
		return fragment
	}
	return out
}

// Compose 汇总整个文档的最终结果
func (c *Composer) Compose(updates []*SegmentUpdate, out *RunOutput, cfg *Config, documentPath, sourceVersion string) *Result {
	markdowns := make([]string, 0, len(updates))
	htmls := make([]string, 0, len(updates))
	for _, update := range updates {
		if update == nil {
			continue
		}
		markdowns = append(markdowns, update.Markdown)
		htmls = append(htmls, c.RenderSegmentHTML(update.Markdown, update.Recovery))
	}

	recoveries := out.Recoveries
	if recoveries == nil {
		recoveries = []Recovery{}
	}

	return &Result{
		Markdown:       strings.Join(markdowns, "\n\n"),
		HTML:           strings.Join(htmls, "\n"),
		ProviderID:     out.ProviderID,
		Latency:        out.Latency,
		TargetLanguage: cfg.TargetLanguage,
		DocumentPath:   documentPath,
		SourceVersion:  sourceVersion,
		WasCached:      out.WasCached,
		Recoveries:     recoveries,
	}
}

// FormatLatency 以毫秒为单位格式化耗时，用于界面展示
func FormatLatency(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}
