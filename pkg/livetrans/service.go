package livetrans

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service 实时翻译服务门面
// 持有两级缓存与翻译客户端，串起分段、调度、合成的完整管线；
// 同一文档同时只有一个运行，新运行启动时取消旧运行
type Service struct {
	cfg       *Config
	logger    *zap.Logger
	client    Client
	emitter   Emitter
	segmenter *Segmenter
	segCache  *SegmentCache
	docCache  *DocumentCache
	composer  *Composer
	resolver  *PromptResolver

	mu     sync.Mutex
	active map[string]*runHandle
}

// runHandle 标识一次在途运行
type runHandle struct {
	cancel context.CancelFunc
}

// NewService 创建服务
// 配置校验在此处完成：缺失字段在任何网络请求前即报错
func NewService(cfg *Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	options := serviceOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	logger := options.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := options.client
	if client == nil {
		client = NewOpenAIClient(cfg, logger)
	}

	emitter := options.emitter
	if emitter == nil {
		emitter = NopEmitter{}
	}

	segmenter := options.segmenter
	if segmenter == nil {
		segmenter = NewSegmenter()
	}

	segCache := options.segmentCache
	if segCache == nil {
		segCache = NewSegmentCache(0, 0)
	}

	docCache := options.docCache
	if docCache == nil {
		docCache = NewDocumentCache(0, 0, logger)
	}
	if options.cacheDir != "" {
		if store := NewDiskStore(options.cacheDir, logger); store != nil {
			docCache.WithStore(store)
		}
	}

	resolver := options.resolver
	if resolver == nil {
		resolver = &PromptResolver{
			WorkspaceDir:   options.workspaceDir,
			ConfigTemplate: cfg.PromptTemplate,
		}
	}

	return &Service{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		emitter:   emitter,
		segmenter: segmenter,
		segCache:  segCache,
		docCache:  docCache,
		composer:  NewComposer(logger),
		resolver:  resolver,
		active:    make(map[string]*runHandle),
	}, nil
}

// TranslateDocument 翻译整个文档，按消息流向预览面板发射进度与结果
func (s *Service) TranslateDocument(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	documentID := req.DocumentID
	if documentID == "" {
		documentID = req.FileName
	}

	runID := uuid.New().String()
	start := time.Now()

	// 单文档单运行：启动前取消同文档的在途运行
	runCtx, cancel := context.WithCancel(ctx)
	handle := &runHandle{cancel: cancel}
	s.mu.Lock()
	if prev, ok := s.active[documentID]; ok {
		prev.cancel()
	}
	s.active[documentID] = handle
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.active[documentID] == handle {
			delete(s.active, documentID)
		}
		s.mu.Unlock()
		cancel()
	}()

	prompt := s.resolver.Resolve()

	s.logger.Info("translation run started",
		zap.String("runID", runID),
		zap.String("documentID", documentID),
		zap.String("targetLanguage", s.cfg.TargetLanguage),
		zap.String("promptSource", string(prompt.Source)))

	// 空文档：固定占位，零分段，零耗时
	if strings.TrimSpace(req.Text) == "" {
		result := &Result{
			Markdown:       NothingToTranslate,
			HTML:           s.composer.RenderHTML(NothingToTranslate),
			TargetLanguage: s.cfg.TargetLanguage,
			DocumentPath:   documentID,
			Recoveries:     []Recovery{},
		}
		s.emitter.Emit(TranslationResultEvent{Result: result})
		return result, nil
	}

	contentHash := ContentHash(req.Text)
	version := req.Version
	if version == "" {
		version = contentHash
	}
	key := DocumentKey{
		DocumentID: documentID,
		Version:    version,
		ConfigHash: ConfigHash(s.cfg, prompt),
	}

	if req.ForceRefresh {
		s.docCache.Delete(key, s.cfg, prompt)
		s.segCache.ClearForDocument(documentID)
	} else if cached, ok := s.docCache.Get(key, contentHash, s.cfg, prompt); ok {
		// 文档缓存命中即短路，分段缓存只在未命中时参与
		cached.WasCached = true
		s.logger.Info("document cache hit",
			zap.String("runID", runID),
			zap.String("documentID", documentID))
		s.emitter.Emit(TranslationResultEvent{Result: &cached})
		return &cached, nil
	}

	segments := s.segmenter.Split(req.Text)
	s.emitter.Emit(SetLoadingEvent{
		IsLoading:      true,
		DocumentPath:   documentID,
		TargetLanguage: s.cfg.TargetLanguage,
		TotalSegments:  len(segments),
	})

	out, err := s.runScheduled(runCtx, s.cfg, documentID, req.FileName, prompt, segments)
	if err != nil {
		if runCtx.Err() == nil && s.cfg.SerialFallback {
			// 并发运行整体失败：以并发=1重试整个文档一次
			s.logger.Warn("concurrent run failed, retrying serially",
				zap.String("runID", runID),
				zap.Error(err))
			serialCfg := *s.cfg
			serialCfg.Concurrency = 1
			out, err = s.runScheduled(runCtx, &serialCfg, documentID, req.FileName, prompt, segments)
		}
		if err != nil {
			s.emitFailure(documentID, err)
			return nil, err
		}
	}

	result := s.composer.Compose(out.Results, out, s.cfg, documentID, version)
	s.docCache.Set(key, contentHash, s.cfg, prompt, *result)

	s.emitter.Emit(TranslationResultEvent{Result: result})
	s.emitter.Emit(SetLoadingEvent{
		IsLoading:      false,
		DocumentPath:   documentID,
		TargetLanguage: s.cfg.TargetLanguage,
	})

	s.logger.Info("translation run completed",
		zap.String("runID", runID),
		zap.Int("segments", len(segments)),
		zap.Int("recoveries", len(result.Recoveries)),
		zap.Bool("wasCached", result.WasCached),
		zap.Duration("wallClock", time.Since(start)),
		zap.Duration("aggregateLatency", result.Latency))

	return result, nil
}

// runScheduled 执行一次调度运行并桥接消息流
func (s *Service) runScheduled(ctx context.Context, cfg *Config, documentID, fileName string, prompt *Prompt, segments []string) (*RunOutput, error) {
	scheduler := NewScheduler(cfg, s.client, s.segCache, prompt, fileName, s.logger)
	return scheduler.Run(ctx, documentID, segments, RunCallbacks{
		OnPlan: func(segs []string) {
			source := make([]SourceSegment, len(segs))
			for i, seg := range segs {
				source[i] = SourceSegment{SegmentIndex: i, Markdown: seg}
			}
			s.emitter.Emit(TranslationSourceEvent{
				DocumentPath:   documentID,
				TargetLanguage: cfg.TargetLanguage,
				Segments:       source,
			})
		},
		OnSegment: func(update *SegmentUpdate) {
			update.HTML = s.composer.RenderSegmentHTML(update.Markdown, update.Recovery)
			s.emitter.Emit(TranslationChunkEvent{
				SegmentIndex:  update.SegmentIndex,
				TotalSegments: update.TotalSegments,
				Markdown:      update.Markdown,
				HTML:          update.HTML,
				LatencyMs:     update.Latency.Milliseconds(),
				ProviderID:    update.ProviderID,
				WasCached:     update.WasCached,
				Recovery:      update.Recovery,
			})
		},
	})
}

// emitFailure 发射整体失败消息
func (s *Service) emitFailure(documentID string, err error) {
	hint := ""
	if errors.Is(err, ErrInvalidConfig) {
		hint = "Configure settings"
	}
	s.emitter.Emit(TranslationErrorEvent{
		Message:        err.Error(),
		DocumentPath:   documentID,
		TargetLanguage: s.cfg.TargetLanguage,
		Hint:           hint,
	})
	s.emitter.Emit(SetLoadingEvent{
		IsLoading:      false,
		DocumentPath:   documentID,
		TargetLanguage: s.cfg.TargetLanguage,
	})
}

// CloseDocument 文档关闭：取消在途运行并清除其分段缓存
func (s *Service) CloseDocument(documentID string) {
	s.mu.Lock()
	if handle, ok := s.active[documentID]; ok {
		handle.cancel()
		delete(s.active, documentID)
	}
	s.mu.Unlock()

	s.segCache.ClearForDocument(documentID)
}

// Config 返回服务的配置副本
func (s *Service) Config() Config {
	return *s.cfg
}
