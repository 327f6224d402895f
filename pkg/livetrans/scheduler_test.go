package livetrans

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// countingClient 记录每个分段被调用次数的测试客户端
type countingClient struct {
	mu    sync.Mutex
	calls map[string]int
	fn    ClientFunc
}

func newCountingClient(fn ClientFunc) *countingClient {
	return &countingClient{calls: make(map[string]int), fn: fn}
}

func (c *countingClient) Translate(ctx context.Context, segmentText, fileName string, prompt *Prompt) (*RawResult, error) {
	c.mu.Lock()
	c.calls[segmentText]++
	c.mu.Unlock()
	return c.fn(ctx, segmentText, fileName, prompt)
}

func (c *countingClient) callCount(segmentText string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[segmentText]
}

func (c *countingClient) totalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

func schedulerConfig(concurrency int) *Config {
	return &Config{
		APIBaseURL:     "https://api.example.com/v1",
		APIKey:         "sk-test",
		Model:          "gpt-4o-mini",
		TargetLanguage: "zh-CN",
		Concurrency:    concurrency,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	}
}

func echoClient(delay func() time.Duration) ClientFunc {
	return func(ctx context.Context, segmentText, fileName string, prompt *Prompt) (*RawResult, error) {
		if delay != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay()):
			}
		}
		return &RawResult{Markdown: "译:" + segmentText, ProviderID: "mock-model", Latency: time.Millisecond}, nil
	}
}

func makeSegments(n int) []string {
	segments := make([]string, n)
	for i := range segments {
		segments[i] = fmt.Sprintf("segment body %d", i)
	}
	return segments
}

func TestSchedulerEmitsInAscendingOrder(t *testing.T) {
	segments := makeSegments(12)

	for _, concurrency := range []int{1, 2, 4, 8} {
		concurrency := concurrency
		t.Run(fmt.Sprintf("concurrency_%d", concurrency), func(t *testing.T) {
			rng := rand.New(rand.NewSource(int64(concurrency)))
			var rngMu sync.Mutex
			client := echoClient(func() time.Duration {
				rngMu.Lock()
				defer rngMu.Unlock()
				return time.Duration(rng.Intn(30)) * time.Millisecond
			})

			cache := NewSegmentCache(64, time.Hour)
			sched := NewScheduler(schedulerConfig(concurrency), client, cache, fingerprintPrompt(), "doc.md", zaptest.NewLogger(t))

			var emitted []int
			out, err := sched.Run(context.Background(), "doc.md", segments, RunCallbacks{
				OnSegment: func(update *SegmentUpdate) {
					emitted = append(emitted, update.SegmentIndex)
				},
			})

			require.NoError(t, err)
			require.Len(t, emitted, len(segments))
			// 无论完成顺序如何，发射严格按索引递增
			for i, idx := range emitted {
				assert.Equal(t, i, idx)
			}
			require.Len(t, out.Results, len(segments))
			assert.Equal(t, "译:"+segments[5], out.Results[5].Markdown)
		})
	}
}

func TestSchedulerDispatchesEachSegmentOnce(t *testing.T) {
	segments := makeSegments(20)
	client := newCountingClient(echoClient(func() time.Duration {
		return time.Duration(rand.Intn(5)) * time.Millisecond
	}))

	cache := NewSegmentCache(64, time.Hour)
	sched := NewScheduler(schedulerConfig(6), client, cache, fingerprintPrompt(), "doc.md", zaptest.NewLogger(t))

	_, err := sched.Run(context.Background(), "doc.md", segments, RunCallbacks{})
	require.NoError(t, err)

	for _, seg := range segments {
		assert.Equal(t, 1, client.callCount(seg), "segment %q dispatched more than once", seg)
	}
}

func TestSchedulerSlowFirstSegmentGatesEmission(t *testing.T) {
	// 第一段慢、第二段快：第二段必须等第一段发射后才发射
	segments := []string{"slow paragraph", "fast paragraph"}

	client := ClientFunc(func(ctx context.Context, segmentText, fileName string, prompt *Prompt) (*RawResult, error) {
		if strings.HasPrefix(segmentText, "slow") {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
		return &RawResult{Markdown: "译:" + segmentText, ProviderID: "mock-model"}, nil
	})

	cache := NewSegmentCache(64, time.Hour)
	sched := NewScheduler(schedulerConfig(2), client, cache, fingerprintPrompt(), "doc.md", zaptest.NewLogger(t))

	var emitted []int
	_, err := sched.Run(context.Background(), "doc.md", segments, RunCallbacks{
		OnSegment: func(update *SegmentUpdate) {
			emitted = append(emitted, update.SegmentIndex)
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, emitted)
}

func TestSchedulerCacheHitSkipsClient(t *testing.T) {
	segments := makeSegments(4)
	cfg := schedulerConfig(2)
	prompt := fingerprintPrompt()

	cache := NewSegmentCache(64, time.Hour)
	for _, seg := range segments {
		cache.Put("doc.md", SegmentFingerprint(seg, cfg, prompt), RawResult{Markdown: "缓存:" + seg, ProviderID: "mock-model"})
	}

	client := newCountingClient(echoClient(nil))
	sched := NewScheduler(cfg, client, cache, prompt, "doc.md", zaptest.NewLogger(t))

	out, err := sched.Run(context.Background(), "doc.md", segments, RunCallbacks{})
	require.NoError(t, err)

	// 指纹全部命中：零网络调用，结果标记为缓存
	assert.Equal(t, 0, client.totalCalls())
	assert.True(t, out.WasCached)
	for i, update := range out.Results {
		assert.True(t, update.WasCached)
		assert.Equal(t, "缓存:"+segments[i], update.Markdown)
	}
}

func TestSchedulerPlaceholderRecovery(t *testing.T) {
	segments := []string{"doomed paragraph"}
	cfg := schedulerConfig(1)

	client := newCountingClient(ClientFunc(func(context.Context, string, string, *Prompt) (*RawResult, error) {
		return nil, NewTranslateError(CodeServer, "upstream down", nil)
	}))

	cache := NewSegmentCache(64, time.Hour)
	sched := NewScheduler(cfg, client, cache, fingerprintPrompt(), "doc.md", zaptest.NewLogger(t))

	out, err := sched.Run(context.Background(), "doc.md", segments, RunCallbacks{})
	require.NoError(t, err, "segment failure must not fail the run")

	require.Len(t, out.Results, 1)
	update := out.Results[0]
	require.NotNil(t, update.Recovery)
	assert.Equal(t, RecoveryPlaceholder, update.Recovery.Type)
	assert.Equal(t, CodeServer, update.Recovery.Code)
	assert.Equal(t, cfg.MaxRetries, update.Recovery.Attempts)
	assert.Contains(t, update.Markdown, "Translation failed")
	assert.Contains(t, update.Markdown, "doomed paragraph")
	assert.Equal(t, cfg.MaxRetries, client.callCount("doomed paragraph"))
	require.Len(t, out.Recoveries, 1)
}

func TestSchedulerCacheFallbackRecovery(t *testing.T) {
	segments := []string{"flaky paragraph"}
	cfg := schedulerConfig(1)
	prompt := fingerprintPrompt()

	// 条目已过期：Get未命中，但回落读取仍可用
	clock := newFakeClock()
	cache := NewSegmentCache(64, time.Hour)
	cache.now = clock.now
	cache.Put("doc.md", SegmentFingerprint(segments[0], cfg, prompt), RawResult{Markdown: "历史译文", ProviderID: "mock-model"})
	clock.advance(48 * time.Hour)

	client := newCountingClient(ClientFunc(func(context.Context, string, string, *Prompt) (*RawResult, error) {
		return nil, NewTranslateError(CodeNetwork, "unreachable", nil)
	}))

	sched := NewScheduler(cfg, client, cache, prompt, "doc.md", zaptest.NewLogger(t))
	out, err := sched.Run(context.Background(), "doc.md", segments, RunCallbacks{})
	require.NoError(t, err)

	update := out.Results[0]
	require.NotNil(t, update.Recovery)
	assert.Equal(t, RecoveryCacheFallback, update.Recovery.Type)
	assert.Equal(t, "历史译文", update.Markdown)
	assert.True(t, update.WasCached)
	// 回落前仍然耗尽了全部重试
	assert.Equal(t, cfg.MaxRetries, client.callCount("flaky paragraph"))
}

func TestSchedulerSuccessfulResultIsCached(t *testing.T) {
	segments := []string{"fresh paragraph"}
	cfg := schedulerConfig(1)
	prompt := fingerprintPrompt()

	cache := NewSegmentCache(64, time.Hour)
	client := newCountingClient(echoClient(nil))
	sched := NewScheduler(cfg, client, cache, prompt, "doc.md", zaptest.NewLogger(t))

	_, err := sched.Run(context.Background(), "doc.md", segments, RunCallbacks{})
	require.NoError(t, err)

	cached, ok := cache.Get(SegmentFingerprint(segments[0], cfg, prompt))
	require.True(t, ok)
	assert.Equal(t, "译:fresh paragraph", cached.Markdown)
}

func TestSchedulerCancellation(t *testing.T) {
	segments := makeSegments(30)
	ctx, cancel := context.WithCancel(context.Background())

	client := echoClient(func() time.Duration { return 10 * time.Millisecond })
	cache := NewSegmentCache(64, time.Hour)
	sched := NewScheduler(schedulerConfig(2), client, cache, fingerprintPrompt(), "doc.md", zaptest.NewLogger(t))

	var mu sync.Mutex
	var emitted []int
	go func() {
		time.Sleep(35 * time.Millisecond)
		cancel()
	}()

	_, err := sched.Run(ctx, "doc.md", segments, RunCallbacks{
		OnSegment: func(update *SegmentUpdate) {
			mu.Lock()
			emitted = append(emitted, update.SegmentIndex)
			mu.Unlock()
		},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunCanceled)

	// 已发射的前缀仍然严格递增
	mu.Lock()
	defer mu.Unlock()
	assert.Less(t, len(emitted), len(segments))
	for i, idx := range emitted {
		assert.Equal(t, i, idx)
	}
}

func TestSchedulerEmptySegments(t *testing.T) {
	cache := NewSegmentCache(64, time.Hour)
	sched := NewScheduler(schedulerConfig(2), echoClient(nil), cache, fingerprintPrompt(), "doc.md", zaptest.NewLogger(t))

	out, err := sched.Run(context.Background(), "doc.md", nil, RunCallbacks{})
	require.NoError(t, err)
	assert.Empty(t, out.Results)
}

func TestSchedulerNilClient(t *testing.T) {
	cache := NewSegmentCache(64, time.Hour)
	sched := NewScheduler(schedulerConfig(1), nil, cache, fingerprintPrompt(), "doc.md", zaptest.NewLogger(t))

	_, err := sched.Run(context.Background(), "doc.md", makeSegments(1), RunCallbacks{})
	assert.ErrorIs(t, err, ErrNoClient)
}

func TestSchedulerAggregatesLatency(t *testing.T) {
	segments := makeSegments(3)
	cache := NewSegmentCache(64, time.Hour)
	sched := NewScheduler(schedulerConfig(3), echoClient(nil), cache, fingerprintPrompt(), "doc.md", zaptest.NewLogger(t))

	out, err := sched.Run(context.Background(), "doc.md", segments, RunCallbacks{})
	require.NoError(t, err)

	// 各分段耗时求和，提供方取最后一个非空值
	assert.Equal(t, 3*time.Millisecond, out.Latency)
	assert.Equal(t, "mock-model", out.ProviderID)
	assert.False(t, out.WasCached)
}
