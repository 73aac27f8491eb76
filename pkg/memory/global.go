package memory

import (
	"strings"
	"sync"
)

// GlobalState accumulates case-level facts across a session: the
// current legal domain and intent plus entities extracted from every
// turn. Updates merge; established facts are never overwritten by
// empty values.
type GlobalState struct {
	mu sync.RWMutex

	Domain string
	Intent string

	Parties   []string
	Amounts   []string
	Dates     []string
	Locations []string

	Facts map[string]string
}

// StateUpdate carries new observations to merge into GlobalState.
type StateUpdate struct {
	Domain string
	Intent string

	Parties   []string
	Amounts   []string
	Dates     []string
	Locations []string

	Facts map[string]string
}

func NewGlobalState() *GlobalState {
	return &GlobalState{Facts: make(map[string]string)}
}

// Merge unions the update into the state. Lists deduplicate, the fact
// map merges key-wise, and empty update fields leave existing values
// untouched.
func (g *GlobalState) Merge(update StateUpdate) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if update.Domain != "" {
		g.Domain = update.Domain
	}
	if update.Intent != "" {
		g.Intent = update.Intent
	}

	g.Parties = mergeUnique(g.Parties, update.Parties)
	g.Amounts = mergeUnique(g.Amounts, update.Amounts)
	g.Dates = mergeUnique(g.Dates, update.Dates)
	g.Locations = mergeUnique(g.Locations, update.Locations)

	for k, v := range update.Facts {
		if v != "" {
			if g.Facts == nil {
				g.Facts = make(map[string]string)
			}
			g.Facts[k] = v
		}
	}
}

// Empty reports whether no facts have been recorded yet.
func (g *GlobalState) Empty() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.Domain == "" && g.Intent == "" &&
		len(g.Parties) == 0 && len(g.Amounts) == 0 &&
		len(g.Dates) == 0 && len(g.Locations) == 0 &&
		len(g.Facts) == 0
}

// String renders the known facts as the 已知事实 context block.
func (g *GlobalState) String() string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var lines []string
	if g.Domain != "" {
		lines = append(lines, "当前法律领域："+g.Domain)
	}
	if g.Intent != "" {
		lines = append(lines, "当前法律意图："+g.Intent)
	}
	if len(g.Parties) > 0 {
		lines = append(lines, "已知当事人："+strings.Join(g.Parties, ", "))
	}
	if len(g.Amounts) > 0 {
		lines = append(lines, "已知金额："+strings.Join(g.Amounts, ", "))
	}
	if len(g.Dates) > 0 {
		lines = append(lines, "已知时间："+strings.Join(g.Dates, ", "))
	}
	if len(g.Locations) > 0 {
		lines = append(lines, "已知地点："+strings.Join(g.Locations, ", "))
	}
	for k, v := range g.Facts {
		lines = append(lines, k+"："+v)
	}

	if len(lines) == 0 {
		return "暂无全局信息"
	}
	return strings.Join(lines, "\n")
}

func (g *GlobalState) Snapshot() StateUpdate {
	g.mu.RLock()
	defer g.mu.RUnlock()

	facts := make(map[string]string, len(g.Facts))
	for k, v := range g.Facts {
		facts[k] = v
	}
	return StateUpdate{
		Domain:    g.Domain,
		Intent:    g.Intent,
		Parties:   append([]string(nil), g.Parties...),
		Amounts:   append([]string(nil), g.Amounts...),
		Dates:     append([]string(nil), g.Dates...),
		Locations: append([]string(nil), g.Locations...),
		Facts:     facts,
	}
}

func mergeUnique(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, v := range existing {
		seen[v] = true
	}
	for _, v := range incoming {
		if v == "" || seen[v] {
			continue
		}
		existing = append(existing, v)
		seen[v] = true
	}
	return existing
}
