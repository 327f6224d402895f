package livetrans

// EventKind 对外消息流的固定词表
type EventKind string

const (
	EventSetLoading        EventKind = "setLoading"
	EventTranslationSource EventKind = "translationSource"
	EventTranslationChunk  EventKind = "translationChunk"
	EventTranslationResult EventKind = "translationResult"
	EventTranslationError  EventKind = "translationError"
)

// Event 预览面板消息流中的一条消息
// 封闭的标签联合：具体类型仅限本文件定义的五种
type Event interface {
	Kind() EventKind
}

// SetLoadingEvent 加载状态变化
type SetLoadingEvent struct {
	IsLoading      bool   `json:"is_loading"`
	DocumentPath   string `json:"document_path"`
	TargetLanguage string `json:"target_language"`
	TotalSegments  int    `json:"total_segments,omitempty"`
}

// Kind 实现Event接口
func (SetLoadingEvent) Kind() EventKind { return EventSetLoading }

// SourceSegment 翻译前的分段原文
type SourceSegment struct {
	SegmentIndex int    `json:"segment_index"`
	Markdown     string `json:"markdown"`
}

// TranslationSourceEvent 翻译开始前发射一次，预览面板先以原文占位
type TranslationSourceEvent struct {
	DocumentPath   string          `json:"document_path"`
	TargetLanguage string          `json:"target_language"`
	Segments       []SourceSegment `json:"segments"`
}

// Kind 实现Event接口
func (TranslationSourceEvent) Kind() EventKind { return EventTranslationSource }

// TranslationChunkEvent 单个分段完成，严格按索引升序发射
type TranslationChunkEvent struct {
	SegmentIndex  int       `json:"segment_index"`
	TotalSegments int       `json:"total_segments"`
	Markdown      string    `json:"markdown"`
	HTML          string    `json:"html"`
	LatencyMs     int64     `json:"latency_ms"`
	ProviderID    string    `json:"provider_id"`
	WasCached     bool      `json:"was_cached"`
	Recovery      *Recovery `json:"recovery,omitempty"`
}

// Kind 实现Event接口
func (TranslationChunkEvent) Kind() EventKind { return EventTranslationChunk }

// TranslationResultEvent 最终聚合结果
type TranslationResultEvent struct {
	Result *Result `json:"result"`
}

// Kind 实现Event接口
func (TranslationResultEvent) Kind() EventKind { return EventTranslationResult }

// TranslationErrorEvent 不可恢复的整体失败（区别于分段级恢复）
type TranslationErrorEvent struct {
	Message        string `json:"message"`
	DocumentPath   string `json:"document_path"`
	TargetLanguage string `json:"target_language"`
	Hint           string `json:"hint,omitempty"`
}

// Kind 实现Event接口
func (TranslationErrorEvent) Kind() EventKind { return EventTranslationError }

// Emitter 消息流的消费端
type Emitter interface {
	Emit(event Event)
}

// EmitterFunc 函数适配器
type EmitterFunc func(event Event)

// Emit 实现Emitter接口
func (f EmitterFunc) Emit(event Event) { f(event) }

// NopEmitter 丢弃所有消息
type NopEmitter struct{}

// Emit 实现Emitter接口
func (NopEmitter) Emit(Event) {}
