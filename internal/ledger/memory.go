package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/park285/llm-kakao-bots/generation-pipeline-go/internal/config"
)

// MemoryStore 는 프로세스 내 카운터 저장소다. 재시작 시 값이 사라진다.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[Key]Counter
}

// NewMemoryStore 는 빈 메모리 저장소를 생성한다.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[Key]Counter)}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (Counter, error) {
	if err := key.Validate(); err != nil {
		return Counter{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key], nil
}

func (s *MemoryStore) IncrementBelow(_ context.Context, key Key, limit int64) (Increment, error) {
	if err := key.Validate(); err != nil {
		return Increment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	counter := s.counters[key]
	if counter.Value >= limit {
		return Increment{Value: counter.Value}, nil
	}
	counter.Value++
	counter.LastUpdated = time.Now()
	s.counters[key] = counter
	return Increment{Applied: true, Value: counter.Value}, nil
}

// Set 은 카운터 값을 직접 지정한다. 테스트와 운영 보정용이다.
func (s *MemoryStore) Set(key Key, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] = Counter{Value: value, LastUpdated: time.Now()}
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Backend() string {
	return config.LedgerBackendMemory
}

func (s *MemoryStore) Close() {}

var _ Store = (*MemoryStore)(nil)
