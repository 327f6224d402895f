package livetrans

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultTargetSegmentSize 自适应合并的目标长度
	DefaultTargetSegmentSize = 500
	// DefaultMaxSegmentSize 自适应合并的硬上限
	DefaultMaxSegmentSize = 1400
)

// Segmenter 将 Markdown 文档按段落与代码块边界切分为有序分段
// 代码块内部绝不会出现分段边界
type Segmenter struct {
	// Adaptive 是否合并过短的分段
	Adaptive bool

	// TargetSize 合并缓冲达到该长度即产出一个分段
	TargetSize int

	// MaxSize 合并后分段的硬上限；单个超长段落本身不受此限
	MaxSize int
}

// NewSegmenter 创建启用自适应合并的分段器
func NewSegmenter() *Segmenter {
	return &Segmenter{
		Adaptive:   true,
		TargetSize: DefaultTargetSegmentSize,
		MaxSize:    DefaultMaxSegmentSize,
	}
}

// Split 切分文档
// 空输入返回空列表；无段落分隔的非空输入整体作为单个分段返回
func (s *Segmenter) Split(markdown string) []string {
	base := splitBlocks(markdown)
	if !s.Adaptive || len(base) == 0 {
		return base
	}
	return s.mergeBlocks(base)
}

// splitBlocks 按空行切分，围栏代码块内的空行不作为切分点
func splitBlocks(markdown string) []string {
	if strings.TrimSpace(markdown) == "" {
		return []string{}
	}

	// 标准化换行符
	text := strings.ReplaceAll(markdown, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var segments []string
	var current []string
	inFence := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			current = append(current, line)
			continue
		}

		if trimmed == "" && !inFence {
			if len(current) > 0 {
				segments = append(segments, strings.Join(current, "\n"))
				current = nil
			}
			continue
		}

		current = append(current, line)
	}

	if len(current) > 0 {
		segments = append(segments, strings.Join(current, "\n"))
	}

	// 退化情况：没有任何段落分隔
	if len(segments) == 0 {
		return []string{markdown}
	}

	return segments
}

// mergeBlocks 将连续的短分段合并到目标长度
func (s *Segmenter) mergeBlocks(base []string) []string {
	target := s.TargetSize
	if target <= 0 {
		target = DefaultTargetSegmentSize
	}
	maxSize := s.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSegmentSize
	}

	var out []string
	var buf strings.Builder
	bufLen := 0

	flush := func() {
		if bufLen > 0 {
			out = append(out, buf.String())
			buf.Reset()
			bufLen = 0
		}
	}

	for _, seg := range base {
		segLen := utf8.RuneCountInString(seg)

		// 合并会超过硬上限时先冲刷缓冲，再从当前分段重新开始
		if bufLen > 0 && bufLen+2+segLen > maxSize {
			flush()
		}

		if bufLen > 0 {
			buf.WriteString("\n\n")
			bufLen += 2
		}
		buf.WriteString(seg)
		bufLen += segLen

		if bufLen >= target {
			flush()
		}
	}

	// 末尾不足目标长度的残余并入前一个分段，除非它是唯一分段
	// 或并入后会突破硬上限
	if bufLen > 0 {
		if len(out) > 0 {
			prev := out[len(out)-1]
			if utf8.RuneCountInString(prev)+2+bufLen <= maxSize {
				out[len(out)-1] = prev + "\n\n" + buf.String()
			} else {
				out = append(out, buf.String())
			}
		} else {
			out = append(out, buf.String())
		}
	}

	return out
}
