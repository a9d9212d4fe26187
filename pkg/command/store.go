package command

import (
	"maps"
	"sync"
)

// MemoryStore 是进程内的 ConversationStore。
// 只保存交互状态（如当前会话 ID），聊天历史由服务端持久化；进程退出即丢失。
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]ContextValues
}

// NewMemoryStore 创建内存存储实例。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]ContextValues)}
}

// Load 返回 key 对应状态的副本，不存在时返回 nil。
func (s *MemoryStore) Load(key string) (ContextValues, error) {
	if s == nil || key == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data[key]), nil
}

// Save 按键合并写入，同名键以新值为准。
func (s *MemoryStore) Save(key string, values ContextValues) error {
	if s == nil || key == "" || len(values) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.data[key]
	if !ok {
		current = make(ContextValues, len(values))
		s.data[key] = current
	}
	maps.Copy(current, values)
	return nil
}
