package memory

import (
	"sync"
	"time"
)

// Message is one turn stored in session memory.
type Message struct {
	Role      string
	Content   string
	Metadata  map[string]any
	Timestamp time.Time

	// seq is a per-session monotonic sequence number, used by the
	// manager to archive each turn at most once.
	seq uint64
}

// SessionMemory is a bounded FIFO of conversation turns for one
// session. When full, the oldest turn is evicted.
type SessionMemory struct {
	mu       sync.RWMutex
	messages []Message
	maxSize  int
	nextSeq  uint64
}

func NewSessionMemory(maxSize int) *SessionMemory {
	if maxSize < 1 {
		maxSize = 50
	}
	return &SessionMemory{maxSize: maxSize}
}

func (s *SessionMemory) Add(role, content string, metadata map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	s.messages = append(s.messages, Message{
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		Timestamp: time.Now(),
		seq:       s.nextSeq,
	})
	if len(s.messages) > s.maxSize {
		s.messages = s.messages[len(s.messages)-s.maxSize:]
	}
}

// GetRecent returns the last n messages, oldest first.
func (s *SessionMemory) GetRecent(n int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.messages) {
		n = len(s.messages)
	}
	out := make([]Message, n)
	copy(out, s.messages[len(s.messages)-n:])
	return out
}

func (s *SessionMemory) GetAll() []Message {
	return s.GetRecent(0)
}

func (s *SessionMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *SessionMemory) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}
