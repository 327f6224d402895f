package livetrans

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// RunCallbacks 调度器的回调集合
type RunCallbacks struct {
	// OnPlan 在任何翻译工作开始前调用一次，携带全部分段原文
	OnPlan func(segments []string)

	// OnSegment 每个分段完成时调用，严格按索引升序
	OnSegment func(update *SegmentUpdate)
}

// RunOutput 一次调度运行的汇总输出
type RunOutput struct {
	// Results 按索引排列的分段更新
	Results []*SegmentUpdate

	// Recoveries 产生过恢复的分段元数据
	Recoveries []Recovery

	// Latency 各分段调用耗时之和
	Latency time.Duration

	// ProviderID 提供方标识（最后一个非空值）
	ProviderID string

	// WasCached 是否全部命中缓存
	WasCached bool
}

// Scheduler 并发调度器
// 在并发上限内执行分段翻译，乱序完成的结果暂存于待冲刷表，
// 由冲刷游标保证对外发射严格按索引递增
type Scheduler struct {
	cfg      *Config
	client   Client
	cache    *SegmentCache
	policy   RetryPolicy
	prompt   *Prompt
	fileName string
	logger   *zap.Logger
}

// NewScheduler 创建调度器
func NewScheduler(cfg *Config, client Client, cache *SegmentCache, prompt *Prompt, fileName string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:      cfg,
		client:   client,
		cache:    cache,
		policy:   NewRetryPolicy(cfg),
		prompt:   prompt,
		fileName: fileName,
		logger:   logger,
	}
}

// Run 执行一次翻译运行
// documentID 用于缓存归属登记；分段失败在本层恢复，只有取消或
// 回调之外的致命错误才会令整个运行失败
func (s *Scheduler) Run(ctx context.Context, documentID string, segments []string, cb RunCallbacks) (*RunOutput, error) {
	if s.client == nil {
		return nil, ErrNoClient
	}

	if cb.OnPlan != nil {
		cb.OnPlan(segments)
	}

	total := len(segments)
	if total == 0 {
		return &RunOutput{Results: []*SegmentUpdate{}, WasCached: false}, nil
	}

	workers := s.cfg.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > total {
		workers = total
	}

	s.logger.Debug("starting translation run",
		zap.String("documentID", documentID),
		zap.Int("segments", total),
		zap.Int("workers", workers))

	run := &runState{
		total:   total,
		pending: make(map[int]*SegmentUpdate),
		results: make([]*SegmentUpdate, total),
		emit:    cb.OnSegment,
	}

	// 共享索引游标是唯一的分派仲裁：每个索引至多分派一次
	var cursor int64 = -1

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 非分段局部的致命错误（如回调panic）终止整个运行
	var fatalMu sync.Mutex
	var fatalErr error
	recordFatal := func(err error) {
		fatalMu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		fatalMu.Unlock()
		cancel()
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					recordFatal(fmt.Errorf("worker %d panic: %v", workerID, rec))
				}
			}()
			for {
				if runCtx.Err() != nil {
					return
				}
				idx := int(atomic.AddInt64(&cursor, 1))
				if idx >= total {
					return
				}

				update := s.translateSegment(runCtx, documentID, idx, total, segments[idx])
				if update == nil {
					// 取消：不再发射任何分段
					return
				}
				run.complete(idx, update)
			}
		}(w)
	}
	wg.Wait()

	fatalMu.Lock()
	err := fatalErr
	fatalMu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRunCanceled, err)
	}

	return run.output(), nil
}

// translateSegment 处理单个分段：缓存命中 → 带重试的调用 → 缓存回落/占位
// 返回nil表示运行已被取消
func (s *Scheduler) translateSegment(ctx context.Context, documentID string, idx, total int, text string) *SegmentUpdate {
	fingerprint := SegmentFingerprint(text, s.cfg, s.prompt)

	if cached, ok := s.cache.Get(fingerprint); ok {
		s.cache.Touch(documentID, fingerprint)
		s.logger.Debug("segment cache hit",
			zap.Int("segment", idx),
			zap.String("fingerprint", fingerprint))
		return &SegmentUpdate{
			SegmentIndex:  idx,
			TotalSegments: total,
			Markdown:      cached.Markdown,
			ProviderID:    cached.ProviderID,
			WasCached:     true,
		}
	}

	result, attempts, terr := s.policy.Execute(ctx, func(ctx context.Context) (*RawResult, error) {
		return s.client.Translate(ctx, text, s.fileName, s.prompt)
	})

	if ctx.Err() != nil {
		return nil
	}

	if terr == nil {
		s.cache.Put(documentID, fingerprint, *result)
		return &SegmentUpdate{
			SegmentIndex:  idx,
			TotalSegments: total,
			Markdown:      result.Markdown,
			Latency:       result.Latency,
			ProviderID:    result.ProviderID,
			WasCached:     false,
		}
	}

	s.logger.Warn("segment translation exhausted",
		zap.Int("segment", idx),
		zap.Int("attempts", attempts),
		zap.String("code", string(terr.Code)),
		zap.Error(terr))

	// 恢复链：历史缓存条目优先，其次以原文占位
	if stale, ok := s.cache.GetStale(fingerprint); ok {
		s.cache.Touch(documentID, fingerprint)
		return &SegmentUpdate{
			SegmentIndex:  idx,
			TotalSegments: total,
			Markdown:      stale.Markdown,
			ProviderID:    stale.ProviderID,
			WasCached:     true,
			Recovery: &Recovery{
				SegmentIndex: idx,
				Code:         terr.Code,
				Type:         RecoveryCacheFallback,
				Attempts:     attempts,
				Message:      terr.Message,
			},
		}
	}

	return &SegmentUpdate{
		SegmentIndex:  idx,
		TotalSegments: total,
		Markdown:      PlaceholderSegment(text, terr.Code),
		WasCached:     false,
		Recovery: &Recovery{
			SegmentIndex: idx,
			Code:         terr.Code,
			Type:         RecoveryPlaceholder,
			Attempts:     attempts,
			Message:      terr.Message,
		},
	}
}

// PlaceholderSegment 以原文加可见失败标注构造占位分段
func PlaceholderSegment(original string, code ErrorCode) string {
	return fmt.Sprintf("> ⚠️ Translation failed (%s). Showing original text.\n\n%s", code, original)
}

// runState 运行期的共享状态：待冲刷表与冲刷游标
type runState struct {
	mu      sync.Mutex
	total   int
	pending map[int]*SegmentUpdate
	results []*SegmentUpdate
	cursor  int // 下一个待发射的索引
	emit    func(*SegmentUpdate)
}

// complete 登记一个完成的分段，并沿连续已完成的索引冲刷发射
func (r *runState) complete(idx int, update *SegmentUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending[idx] = update
	r.results[idx] = update

	for {
		next, ok := r.pending[r.cursor]
		if !ok {
			return
		}
		delete(r.pending, r.cursor)
		r.cursor++
		if r.emit != nil {
			r.emit(next)
		}
	}
}

// output 汇总运行结果
func (r *runState) output() *RunOutput {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := &RunOutput{
		Results:   r.results,
		WasCached: true,
	}
	for _, update := range r.results {
		if update == nil {
			continue
		}
		out.Latency += update.Latency
		if update.ProviderID != "" {
			out.ProviderID = update.ProviderID
		}
		if !update.WasCached {
			out.WasCached = false
		}
		if update.Recovery != nil {
			out.Recoveries = append(out.Recoveries, *update.Recovery)
		}
	}
	return out
}
