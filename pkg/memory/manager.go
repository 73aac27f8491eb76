package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexhub/lexhub/pkg/config"
	"github.com/lexhub/lexhub/pkg/embedders"
	"github.com/lexhub/lexhub/pkg/vector"
)

// Long-term record types stored in the vector collection.
const (
	RecordConversation    = "conversation"
	RecordRefinedContext  = "refined_context"
	RecordToolDescription = "tool_description"
)

// Context section headers assembled by GetFullContext.
const (
	sectionHistory = "=== 对话历史 ==="
	sectionMemory  = "=== 相关历史记忆 ==="
	sectionFacts   = "=== 当前案件已知事实 ==="
)

// Stats summarizes the long-term store and active sessions.
type Stats struct {
	TotalRecords         int `json:"total_records"`
	ConversationCount    int `json:"conversation_count"`
	ToolDescriptionCount int `json:"tool_description_count"`
	RefinedContextCount  int `json:"refined_context_count"`
	ActiveSessions       int `json:"active_sessions"`
}

// Manager coordinates the three memory tiers: per-session FIFO
// history, per-session global case state, and the shared vector-backed
// long-term store. The long-term tier degrades to a no-op when no
// embedder or store is wired, so the runtime works without a vector
// database.
type Manager struct {
	cfg        config.MemoryConfig
	collection string
	topK       int

	embedder embedders.Embedder
	store    vector.Provider

	mu       sync.RWMutex
	sessions map[string]*SessionMemory
	globals  map[string]*GlobalState

	// Per-type record counts for Stats. Tracked in-process because
	// neither backend offers a filtered count.
	counts map[string]int

	// archivedSeq remembers, per session, the highest message sequence
	// already copied into long-term memory.
	archivedSeq map[string]uint64
}

func NewManager(cfg config.MemoryConfig, vcfg config.VectorDBConfig, embedder embedders.Embedder, store vector.Provider) *Manager {
	topK := vcfg.TopK
	if topK <= 0 {
		topK = 5
	}
	collection := vcfg.Collection
	if collection == "" {
		collection = "long_term_memory"
	}
	return &Manager{
		cfg:         cfg,
		collection:  collection,
		topK:        topK,
		embedder:    embedder,
		store:       store,
		sessions:    make(map[string]*SessionMemory),
		globals:     make(map[string]*GlobalState),
		counts:      make(map[string]int),
		archivedSeq: make(map[string]uint64),
	}
}

// Session returns the session FIFO, creating it on first use.
func (m *Manager) Session(sessionID string) *SessionMemory {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		s = NewSessionMemory(m.cfg.SessionMemorySize)
		m.sessions[sessionID] = s
	}
	return s
}

// Global returns the session's case state, creating it on first use.
func (m *Manager) Global(sessionID string) *GlobalState {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.globals[sessionID]
	if !ok {
		g = NewGlobalState()
		m.globals[sessionID] = g
	}
	return g
}

func (m *Manager) AddMessage(sessionID, role, content string, metadata map[string]any) {
	m.Session(sessionID).Add(role, content, metadata)
}

func (m *Manager) UpdateGlobalState(sessionID string, update StateUpdate) {
	m.Global(sessionID).Merge(update)
}

// GetFullContext assembles the prompt context: recent history, relevant
// long-term memories for the query, and the known case facts.
func (m *Manager) GetFullContext(ctx context.Context, sessionID, query string) string {
	var sections []string

	history := m.FormatHistory(sessionID)
	if history != "" {
		sections = append(sections, sectionHistory+"\n"+history)
	}

	memories, err := m.RetrieveRelevantMemory(ctx, query, m.topK)
	if err != nil {
		slog.Warn("Long-term memory retrieval failed", "error", err)
	}
	if len(memories) > 0 {
		sections = append(sections, sectionMemory+"\n"+strings.Join(memories, "\n---\n"))
	}

	if global := m.Global(sessionID); !global.Empty() {
		sections = append(sections, sectionFacts+"\n"+global.String())
	}

	return strings.Join(sections, "\n\n")
}

// FormatHistory renders the recent window of session turns.
func (m *Manager) FormatHistory(sessionID string) string {
	window := m.cfg.ContextWindowSize
	if window <= 0 {
		window = 10
	}
	messages := m.Session(sessionID).GetRecent(window)
	if len(messages) == 0 {
		return ""
	}

	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		label := msg.Role
		switch msg.Role {
		case "user":
			label = "用户"
		case "assistant":
			label = "助手"
		}
		lines = append(lines, label+"："+msg.Content)
	}
	return strings.Join(lines, "\n")
}

// RetrieveRelevantMemory searches the long-term store for records
// similar to the query. Returns nil when long-term memory is disabled.
func (m *Manager) RetrieveRelevantMemory(ctx context.Context, query string, topK int) ([]string, error) {
	if !m.longTermEnabled() || query == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = m.topK
	}

	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := m.store.Search(ctx, m.collection, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("memory search failed: %w", err)
	}

	out := make([]string, 0, len(results))
	for _, r := range results {
		if r.Content != "" {
			out = append(out, r.Content)
		}
	}
	return out, nil
}

// SaveConversation archives a completed user/assistant exchange.
func (m *Manager) SaveConversation(ctx context.Context, sessionID, userMsg, assistantMsg, intent string) error {
	content := "User: " + userMsg + "\nAssistant: " + assistantMsg
	return m.saveRecord(ctx, content, map[string]any{
		"type":       RecordConversation,
		"session_id": sessionID,
		"intent":     intent,
	})
}

// SaveRefinedContext archives a condensed summary of older session
// history.
func (m *Manager) SaveRefinedContext(ctx context.Context, sessionID, refined string) error {
	return m.saveRecord(ctx, refined, map[string]any{
		"type":       RecordRefinedContext,
		"session_id": sessionID,
	})
}

// SaveToolDescription archives a tool capability description so future
// sessions can recall what a tool is good for.
func (m *Manager) SaveToolDescription(ctx context.Context, toolName, description string) error {
	return m.saveRecord(ctx, description, map[string]any{
		"type":      RecordToolDescription,
		"tool_name": toolName,
	})
}

func (m *Manager) saveRecord(ctx context.Context, content string, metadata map[string]any) error {
	if !m.longTermEnabled() {
		slog.Debug("Long-term memory disabled, skipping save")
		return nil
	}
	if content == "" {
		return nil
	}

	vec, err := m.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to embed record: %w", err)
	}

	metadata["content"] = content
	metadata["timestamp"] = time.Now().Format(time.RFC3339)

	id := uuid.NewString()
	if err := m.store.Upsert(ctx, m.collection, id, vec, metadata); err != nil {
		return fmt.Errorf("failed to save memory record: %w", err)
	}

	if recordType, ok := metadata["type"].(string); ok {
		m.mu.Lock()
		m.counts[recordType]++
		m.mu.Unlock()
	}
	return nil
}

// CheckAndArchive copies older user/assistant pairs into long-term
// memory once the session outgrows the refine threshold. The FIFO is
// never mutated here; capacity eviction is the only thing that removes
// live messages. A per-session sequence watermark keeps each pair from
// being archived twice.
func (m *Manager) CheckAndArchive(ctx context.Context, sessionID string) error {
	threshold := m.cfg.ContextRefineThreshold
	if threshold <= 0 {
		threshold = 5
	}

	session := m.Session(sessionID)
	if session.Len() <= threshold {
		return nil
	}
	if !m.longTermEnabled() {
		return nil
	}

	messages := session.GetAll()
	older := messages[:len(messages)-threshold]

	m.mu.RLock()
	watermark := m.archivedSeq[sessionID]
	m.mu.RUnlock()

	archived := 0
	for i := 0; i+1 < len(older); i++ {
		if older[i].seq <= watermark || older[i].Role != "user" || older[i+1].Role != "assistant" {
			continue
		}

		content := "User: " + older[i].Content + "\nAssistant: " + older[i+1].Content
		if err := m.saveRecord(ctx, content, map[string]any{
			"type":       RecordConversation,
			"session_id": sessionID,
			"archived":   true,
		}); err != nil {
			return fmt.Errorf("failed to archive session pair: %w", err)
		}
		watermark = older[i+1].seq
		archived++
		i++
	}

	if archived > 0 {
		m.mu.Lock()
		m.archivedSeq[sessionID] = watermark
		m.mu.Unlock()
		slog.Info("Archived session history to long-term memory",
			"session_id", sessionID,
			"pairs", archived)
	}
	return nil
}

// ResetSession clears the session FIFO and its global state. Long-term
// records survive.
func (m *Manager) ResetSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	delete(m.globals, sessionID)
	delete(m.archivedSeq, sessionID)
}

func (m *Manager) GetStats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	stats := Stats{
		ConversationCount:    m.counts[RecordConversation],
		ToolDescriptionCount: m.counts[RecordToolDescription],
		RefinedContextCount:  m.counts[RecordRefinedContext],
		ActiveSessions:       len(m.sessions),
	}
	m.mu.RUnlock()

	if m.longTermEnabled() {
		total, err := m.store.Count(ctx, m.collection)
		if err != nil {
			return stats, fmt.Errorf("failed to count memory records: %w", err)
		}
		stats.TotalRecords = total
	}
	return stats, nil
}

func (m *Manager) longTermEnabled() bool {
	return m.embedder != nil && m.store != nil
}

// Close flushes the long-term store.
func (m *Manager) Close() error {
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}
