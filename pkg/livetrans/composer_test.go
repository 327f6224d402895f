package livetrans

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestComposerRenderHTML(t *testing.T) {
	c := NewComposer(zaptest.NewLogger(t))

	html := c.RenderHTML("# 标题\n\n**加粗**文本")
	assert.Contains(t, html, "<h1")
	assert.Contains(t, html, "<strong>加粗</strong>")
}

func TestComposerRenderGFMTable(t *testing.T) {
	c := NewComposer(zaptest.NewLogger(t))

	html := c.RenderHTML("| a | b |\n|---|---|\n| 1 | 2 |")
	assert.Contains(t, html, "<table>")
}

func TestComposerMarksRecoveredSegments(t *testing.T) {
	c := NewComposer(zaptest.NewLogger(t))
	recovery := &Recovery{SegmentIndex: 2, Code: CodeServer, Type: RecoveryPlaceholder}

	html := c.RenderSegmentHTML("A recovered paragraph.", recovery)
	assert.Contains(t, html, RecoveryClass)
	assert.Contains(t, html, `data-recovery="placeholder"`)

	// 正常分段不带标记
	plain := c.RenderSegmentHTML("A normal paragraph.", nil)
	assert.NotContains(t, plain, RecoveryClass)
}

func TestComposerCompose(t *testing.T) {
	c := NewComposer(zaptest.NewLogger(t))
	cfg := fingerprintConfig()

	updates := []*SegmentUpdate{
		{SegmentIndex: 0, Markdown: "第一段"},
		{SegmentIndex: 1, Markdown: "第二段", Recovery: &Recovery{SegmentIndex: 1, Type: RecoveryCacheFallback, Code: CodeTimeout}},
		{SegmentIndex: 2, Markdown: "第三段"},
	}
	out := &RunOutput{
		Results:    updates,
		Recoveries: []Recovery{*updates[1].Recovery},
		Latency:    120 * time.Millisecond,
		ProviderID: "mock-model",
	}

	result := c.Compose(updates, out, cfg, "/tmp/doc.md", "v42")

	// 按原始索引顺序以双换行拼接
	assert.Equal(t, "第一段\n\n第二段\n\n第三段", result.Markdown)
	assert.Contains(t, result.HTML, "第二段")
	assert.Contains(t, result.HTML, RecoveryClass)
	assert.Equal(t, "mock-model", result.ProviderID)
	assert.Equal(t, 120*time.Millisecond, result.Latency)
	assert.Equal(t, "/tmp/doc.md", result.DocumentPath)
	assert.Equal(t, "v42", result.SourceVersion)
	require.Len(t, result.Recoveries, 1)
	assert.Equal(t, RecoveryCacheFallback, result.Recoveries[0].Type)
}

func TestComposeNilRecoveriesBecomesEmptySlice(t *testing.T) {
	c := NewComposer(zaptest.NewLogger(t))

	result := c.Compose(nil, &RunOutput{}, fingerprintConfig(), "doc.md", "v1")
	require.NotNil(t, result.Recoveries)
	assert.Empty(t, result.Recoveries)
}

func TestFormatLatency(t *testing.T) {
	assert.Equal(t, "1530ms", FormatLatency(1530*time.Millisecond))
	assert.Equal(t, "0ms", FormatLatency(0))
}
