package livetrans

import "go.uber.org/zap"

// Option 服务配置选项函数
type Option func(*serviceOptions)

// serviceOptions 服务内部选项
type serviceOptions struct {
	logger       *zap.Logger
	client       Client
	emitter      Emitter
	segmenter    *Segmenter
	segmentCache *SegmentCache
	docCache     *DocumentCache
	resolver     *PromptResolver
	workspaceDir string
	cacheDir     string
}

// WithLogger 设置logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithClient 设置翻译客户端（测试时注入mock）
func WithClient(client Client) Option {
	return func(o *serviceOptions) {
		o.client = client
	}
}

// WithEmitter 设置消息流消费端
func WithEmitter(emitter Emitter) Option {
	return func(o *serviceOptions) {
		o.emitter = emitter
	}
}

// WithSegmenter 设置分段器
func WithSegmenter(segmenter *Segmenter) Option {
	return func(o *serviceOptions) {
		o.segmenter = segmenter
	}
}

// WithSegmentCache 设置分段缓存
func WithSegmentCache(cache *SegmentCache) Option {
	return func(o *serviceOptions) {
		o.segmentCache = cache
	}
}

// WithDocumentCache 设置文档缓存
func WithDocumentCache(cache *DocumentCache) Option {
	return func(o *serviceOptions) {
		o.docCache = cache
	}
}

// WithPromptResolver 设置提示词解析器
func WithPromptResolver(resolver *PromptResolver) Option {
	return func(o *serviceOptions) {
		o.resolver = resolver
	}
}

// WithWorkspaceDir 设置工作区目录，用于提示词覆盖文件查找
func WithWorkspaceDir(dir string) Option {
	return func(o *serviceOptions) {
		o.workspaceDir = dir
	}
}

// WithCacheDir 启用文档缓存的持久层
func WithCacheDir(dir string) Option {
	return func(o *serviceOptions) {
		o.cacheDir = dir
	}
}
