package livetrans

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// diskRecord 持久化缓存条目的平面记录
type diskRecord struct {
	ContentHash       string    `json:"content_hash"`
	TargetLanguage    string    `json:"target_language"`
	Model             string    `json:"model"`
	PromptFingerprint string    `json:"prompt_fingerprint"`
	Result            Result    `json:"result"`
	Timestamp         time.Time `json:"timestamp"`
}

// DiskStore 文档缓存的持久层
// 每个（文档，配置）组合对应一个JSON文件：
//
//	<root>/<hash(documentID)>/<hash(targetLanguage|model|promptFingerprint)>.json
type DiskStore struct {
	root   string
	logger *zap.Logger
}

// NewDiskStore 创建持久层；目录创建失败时返回nil并记录日志
func NewDiskStore(root string, logger *zap.Logger) *DiskStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if root == "" {
		return nil
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		logger.Warn("cache directory unavailable", zap.String("root", root), zap.Error(err))
		return nil
	}
	return &DiskStore{root: root, logger: logger}
}

// entryPath 计算条目文件路径
func (s *DiskStore) entryPath(documentID string, cfg *Config, prompt *Prompt) string {
	docDir := hashString("doc:" + documentID)
	name := hashString(cfg.TargetLanguage + "|" + cfg.Model + "|" + prompt.Fingerprint)
	return filepath.Join(s.root, docDir, name+".json")
}

// Load 加载条目并重新校验新鲜度
// 内容哈希、目标语言、模型、提示词指纹任一不匹配即拒绝；
// 读取或解析失败一律按缓存未命中处理
func (s *DiskStore) Load(documentID, contentHash string, cfg *Config, prompt *Prompt) (Result, bool) {
	path := s.entryPath(documentID, cfg, prompt)

	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, false
	}

	var record diskRecord
	if err := json.Unmarshal(data, &record); err != nil {
		s.logger.Warn("corrupt cache entry treated as miss",
			zap.String("path", path),
			zap.Error(err))
		return Result{}, false
	}

	if record.ContentHash != contentHash ||
		record.TargetLanguage != cfg.TargetLanguage ||
		record.Model != cfg.Model ||
		record.PromptFingerprint != prompt.Fingerprint {
		return Result{}, false
	}

	return record.Result, true
}

// Save 持久化条目；失败由调用方记录日志，不影响翻译结果
func (s *DiskStore) Save(documentID, contentHash string, cfg *Config, prompt *Prompt, result Result) error {
	record := diskRecord{
		ContentHash:       contentHash,
		TargetLanguage:    cfg.TargetLanguage,
		Model:             cfg.Model,
		PromptFingerprint: prompt.Fingerprint,
		Result:            result,
		Timestamp:         time.Now(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	path := s.entryPath(documentID, cfg, prompt)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Remove 删除条目，用于强制刷新
func (s *DiskStore) Remove(documentID string, cfg *Config, prompt *Prompt) {
	path := s.entryPath(documentID, cfg, prompt)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("cache entry remove failed", zap.String("path", path), zap.Error(err))
	}
}
