// Interaction history: what an agent remembers about past games.
package agents

// HistoryEntry records one completed game from the owning agent's side.
type HistoryEntry struct {
	PartnerID       AgentID  `json:"partner_id"`
	Cycle           uint64   `json:"cycle"`
	OwnDecision     Decision `json:"own_decision"`
	PartnerDecision Decision `json:"partner_decision"`
}

// History is an append-only log of one agent's games, indexed by partner.
type History struct {
	entries   []HistoryEntry
	byPartner map[AgentID][]int // partner → indexes into entries, oldest first
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{byPartner: make(map[AgentID][]int)}
}

// Record appends a completed game.
func (h *History) Record(partner AgentID, cycle uint64, own, theirs Decision) {
	h.entries = append(h.entries, HistoryEntry{
		PartnerID:       partner,
		Cycle:           cycle,
		OwnDecision:     own,
		PartnerDecision: theirs,
	})
	h.byPartner[partner] = append(h.byPartner[partner], len(h.entries)-1)
}

// MostRecentWith returns the latest game played against partner.
func (h *History) MostRecentWith(partner AgentID) (HistoryEntry, bool) {
	if h == nil {
		return HistoryEntry{}, false
	}
	idx := h.byPartner[partner]
	if len(idx) == 0 {
		return HistoryEntry{}, false
	}
	return h.entries[idx[len(idx)-1]], true
}

// GamesWith returns every game against partner, oldest first.
func (h *History) GamesWith(partner AgentID) []HistoryEntry {
	idx := h.byPartner[partner]
	if len(idx) == 0 {
		return nil
	}
	out := make([]HistoryEntry, len(idx))
	for i, j := range idx {
		out[i] = h.entries[j]
	}
	return out
}

// All returns a copy of the full log, oldest first.
func (h *History) All() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of recorded games.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.entries)
}

// Partners returns the number of distinct partners played.
func (h *History) Partners() int {
	return len(h.byPartner)
}
