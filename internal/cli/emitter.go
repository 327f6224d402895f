package cli

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/pterm/pterm"

	"github.com/nerdneilsfield/go-live-translator/pkg/livetrans"
)

// terminalEmitter 终端消息流消费端
// 把管线事件渲染为进度条与告警输出；最终结果由根命令统一处理
type terminalEmitter struct {
	mu    sync.Mutex
	bar   *pterm.ProgressbarPrinter
	quiet bool
}

func newTerminalEmitter(quiet bool) *terminalEmitter {
	return &terminalEmitter{quiet: quiet}
}

// Emit 实现livetrans.Emitter
func (e *terminalEmitter) Emit(event livetrans.Event) {
	if e.quiet {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev := event.(type) {
	case livetrans.SetLoadingEvent:
		if ev.IsLoading && ev.TotalSegments > 0 {
			bar, err := pterm.DefaultProgressbar.
				WithTotal(ev.TotalSegments).
				WithTitle("翻译进度").
				WithRemoveWhenDone(true).
				Start()
			if err == nil {
				e.bar = bar
			}
		} else if !ev.IsLoading && e.bar != nil {
			_, _ = e.bar.Stop()
			e.bar = nil
		}

	case livetrans.TranslationChunkEvent:
		if e.bar != nil {
			e.bar.Increment()
		}
		if ev.Recovery != nil {
			warn := color.New(color.FgYellow, color.Bold)
			warn.Printf("分段 %d 恢复: %s (%s, 尝试 %d 次)\n",
				ev.SegmentIndex, ev.Recovery.Type, ev.Recovery.Code, ev.Recovery.Attempts)
			fmt.Printf("  %s\n", segmentPreview(ev.Markdown))
		}

	case livetrans.TranslationErrorEvent:
		if e.bar != nil {
			_, _ = e.bar.Stop()
			e.bar = nil
		}
		errColor := color.New(color.FgRed, color.Bold)
		errColor.Printf("翻译失败: %s\n", ev.Message)
		if ev.Hint != "" {
			fmt.Printf("  提示: %s\n", ev.Hint)
		}
	}
}

// segmentPreview 取分段首行并按显示宽度截断，避免宽字符撑破终端布局
func segmentPreview(markdown string) string {
	line := markdown
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	return runewidth.Truncate(strings.TrimSpace(line), 60, "…")
}

// multiEmitter 把消息流广播给多个消费端
type multiEmitter []livetrans.Emitter

// Emit 实现livetrans.Emitter
func (m multiEmitter) Emit(event livetrans.Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
