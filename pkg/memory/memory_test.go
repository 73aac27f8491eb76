package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexhub/lexhub/pkg/config"
	"github.com/lexhub/lexhub/pkg/vector"
)

// stubEmbedder produces deterministic vectors from text hashes, enough
// for exact-match similarity in tests.
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New32a()
	h.Write([]byte(text))
	sum := h.Sum32()
	vec := make([]float32, 8)
	for i := range vec {
		vec[i] = float32((sum>>(i*4))&0xF) + 1
	}
	return vec, nil
}

func (s stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (stubEmbedder) Dimension(context.Context) (int, error) { return 8, nil }

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := vector.NewChromemProvider(vector.ChromemConfig{})
	require.NoError(t, err)
	return NewManager(
		config.MemoryConfig{SessionMemorySize: 50, ContextWindowSize: 10, ContextRefineThreshold: 5},
		config.VectorDBConfig{Collection: "long_term_memory", TopK: 5},
		stubEmbedder{},
		store,
	)
}

func TestSessionMemoryEvictsOldest(t *testing.T) {
	s := NewSessionMemory(3)
	for i := 0; i < 5; i++ {
		s.Add("user", fmt.Sprintf("消息%d", i), nil)
	}

	assert.Equal(t, 3, s.Len())
	messages := s.GetAll()
	assert.Equal(t, "消息2", messages[0].Content)
	assert.Equal(t, "消息4", messages[2].Content)
}

func TestSessionMemoryGetRecentOrder(t *testing.T) {
	s := NewSessionMemory(10)
	s.Add("user", "第一条", nil)
	s.Add("assistant", "第二条", nil)
	s.Add("user", "第三条", nil)

	recent := s.GetRecent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "第二条", recent[0].Content)
	assert.Equal(t, "第三条", recent[1].Content)
}

func TestGlobalStateMergeUnion(t *testing.T) {
	g := NewGlobalState()
	g.Merge(StateUpdate{
		Domain:  "Labor",
		Parties: []string{"张三", "某科技公司"},
		Amounts: []string{"5000元"},
	})
	g.Merge(StateUpdate{
		Intent:  "Calculation",
		Parties: []string{"张三", "李四"},
	})

	snap := g.Snapshot()
	assert.Equal(t, "Labor", snap.Domain)
	assert.Equal(t, "Calculation", snap.Intent)
	assert.Equal(t, []string{"张三", "某科技公司", "李四"}, snap.Parties)
	assert.Equal(t, []string{"5000元"}, snap.Amounts)
}

func TestGlobalStateEmptyUpdateKeepsFacts(t *testing.T) {
	g := NewGlobalState()
	g.Merge(StateUpdate{Domain: "Family", Parties: []string{"王五"}})
	g.Merge(StateUpdate{})

	snap := g.Snapshot()
	assert.Equal(t, "Family", snap.Domain)
	assert.Equal(t, []string{"王五"}, snap.Parties)
}

func TestGlobalStateString(t *testing.T) {
	g := NewGlobalState()
	assert.Equal(t, "暂无全局信息", g.String())

	g.Merge(StateUpdate{
		Domain:    "Labor",
		Parties:   []string{"张三", "公司"},
		Amounts:   []string{"2万元"},
		Dates:     []string{"2024年3月"},
		Locations: []string{"北京"},
	})

	s := g.String()
	assert.Contains(t, s, "当前法律领域：Labor")
	assert.Contains(t, s, "已知当事人：张三, 公司")
	assert.Contains(t, s, "已知金额：2万元")
	assert.Contains(t, s, "已知时间：2024年3月")
	assert.Contains(t, s, "已知地点：北京")
}

func TestGetFullContextEmptySessionIsEmpty(t *testing.T) {
	m := newTestManager(t)

	full := m.GetFullContext(context.Background(), "fresh", "")
	assert.Equal(t, "", full)
}

func TestGetFullContextOmitsFactsWhenStateEmpty(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.AddMessage("s1", "user", "你好", nil)

	full := m.GetFullContext(ctx, "s1", "")
	assert.Contains(t, full, "=== 对话历史 ===")
	assert.NotContains(t, full, "=== 当前案件已知事实 ===")
	assert.NotContains(t, full, "暂无全局信息")
}

func TestGetFullContextSections(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.AddMessage("s1", "user", "公司拖欠工资怎么办", nil)
	m.AddMessage("s1", "assistant", "可以申请劳动仲裁", nil)
	m.UpdateGlobalState("s1", StateUpdate{Domain: "Labor", Parties: []string{"张三"}})

	full := m.GetFullContext(ctx, "s1", "工资")

	historyIdx := strings.Index(full, "=== 对话历史 ===")
	factsIdx := strings.Index(full, "=== 当前案件已知事实 ===")
	require.GreaterOrEqual(t, historyIdx, 0)
	require.Greater(t, factsIdx, historyIdx)
	assert.Contains(t, full, "用户：公司拖欠工资怎么办")
	assert.Contains(t, full, "助手：可以申请劳动仲裁")
	assert.Contains(t, full, "已知当事人：张三")
}

func TestGetFullContextIncludesRetrievedMemory(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveConversation(ctx, "old", "试用期被辞退有补偿吗", "有，按工作年限补偿", "QARetrieval"))

	full := m.GetFullContext(ctx, "s1", "试用期被辞退有补偿吗")
	assert.Contains(t, full, "=== 相关历史记忆 ===")
	assert.Contains(t, full, "试用期被辞退有补偿吗")
}

func TestSaveAndRetrieveConversation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveConversation(ctx, "s1", "离婚财产怎么分", "原则上均等分割", "QARetrieval"))

	memories, err := m.RetrieveRelevantMemory(ctx, "离婚财产怎么分", 3)
	require.NoError(t, err)
	require.NotEmpty(t, memories)
	assert.Contains(t, memories[0], "User: 离婚财产怎么分")
	assert.Contains(t, memories[0], "Assistant: 原则上均等分割")
}

func TestCheckAndArchiveCopiesOlderPairs(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Threshold 5: with 16 alternating turns, the oldest 11 fall
	// outside the protected tail and hold 5 complete pairs.
	for i := 0; i < 8; i++ {
		m.AddMessage("s1", "user", fmt.Sprintf("第%d轮提问", i), nil)
		m.AddMessage("s1", "assistant", fmt.Sprintf("第%d轮回答", i), nil)
	}

	require.NoError(t, m.CheckAndArchive(ctx, "s1"))

	// Archival copies; the live session is untouched.
	assert.Equal(t, 16, m.Session("s1").Len())

	stats, err := m.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.ConversationCount)

	memories, err := m.RetrieveRelevantMemory(ctx, "第0轮提问", 5)
	require.NoError(t, err)
	require.Len(t, memories, 5)
	joined := strings.Join(memories, "\n")
	assert.Contains(t, joined, "User: 第0轮提问\nAssistant: 第0轮回答")
	assert.Contains(t, joined, "User: 第4轮提问\nAssistant: 第4轮回答")
}

func TestCheckAndArchiveIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		m.AddMessage("s1", "user", fmt.Sprintf("第%d轮提问", i), nil)
		m.AddMessage("s1", "assistant", fmt.Sprintf("第%d轮回答", i), nil)
	}

	require.NoError(t, m.CheckAndArchive(ctx, "s1"))
	require.NoError(t, m.CheckAndArchive(ctx, "s1"))

	stats, err := m.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.ConversationCount)
}

func TestCheckAndArchiveShortSessionNoop(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.AddMessage("s1", "user", "问题", nil)
	m.AddMessage("s1", "assistant", "回答", nil)

	require.NoError(t, m.CheckAndArchive(ctx, "s1"))

	stats, err := m.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.ConversationCount)
}

func TestCheckAndArchiveKeepsMessagesWithoutLongTerm(t *testing.T) {
	m := NewManager(
		config.MemoryConfig{SessionMemorySize: 50, ContextWindowSize: 10, ContextRefineThreshold: 5},
		config.VectorDBConfig{},
		nil,
		nil,
	)

	for i := 0; i < 16; i++ {
		m.AddMessage("s1", "user", fmt.Sprintf("第%d轮提问", i), nil)
	}

	require.NoError(t, m.CheckAndArchive(context.Background(), "s1"))
	assert.Equal(t, 16, m.Session("s1").Len())
}

func TestResetSessionKeepsLongTerm(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.AddMessage("s1", "user", "问题", nil)
	m.UpdateGlobalState("s1", StateUpdate{Domain: "Labor"})
	require.NoError(t, m.SaveConversation(ctx, "s1", "问", "答", "QARetrieval"))

	m.ResetSession("s1")

	assert.Zero(t, m.Session("s1").Len())
	assert.Equal(t, "暂无全局信息", m.Global("s1").String())

	stats, err := m.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRecords)
}

func TestGetStatsCountsByType(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveConversation(ctx, "s1", "问", "答", "QARetrieval"))
	require.NoError(t, m.SaveToolDescription(ctx, "web_search", "联网搜索法律条文与案例"))
	require.NoError(t, m.SaveRefinedContext(ctx, "s1", "历史摘要"))
	m.AddMessage("s1", "user", "问题", nil)

	stats, err := m.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRecords)
	assert.Equal(t, 1, stats.ConversationCount)
	assert.Equal(t, 1, stats.ToolDescriptionCount)
	assert.Equal(t, 1, stats.RefinedContextCount)
	assert.Equal(t, 1, stats.ActiveSessions)
}

func TestManagerWithoutLongTermStore(t *testing.T) {
	m := NewManager(
		config.MemoryConfig{SessionMemorySize: 10, ContextWindowSize: 5, ContextRefineThreshold: 3},
		config.VectorDBConfig{},
		nil,
		nil,
	)
	ctx := context.Background()

	require.NoError(t, m.SaveConversation(ctx, "s1", "问", "答", "QARetrieval"))

	memories, err := m.RetrieveRelevantMemory(ctx, "问", 3)
	require.NoError(t, err)
	assert.Nil(t, memories)

	m.AddMessage("s1", "user", "问题", nil)
	full := m.GetFullContext(ctx, "s1", "问题")
	assert.Contains(t, full, "=== 对话历史 ===")
	assert.NotContains(t, full, "=== 相关历史记忆 ===")
}
