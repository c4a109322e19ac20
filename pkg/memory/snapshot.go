package memory

import (
	"encoding/json"
	"errors"
	"time"
)

var timeZero time.Time

// Export copies the manager's tables into a Snapshot.
func (m *Manager) Export() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		ShortTermMemory: append([]MemoryItem{}, m.shortTerm...),
		LongTermMemory:  append([]SummaryItem{}, m.longTerm...),
		VectorIndex:     make(map[string][]float32, len(m.vectorIndex)),
		Timestamp:       m.now().UnixMilli(),
	}
	for id, v := range m.vectorIndex {
		snap.VectorIndex[id] = append([]float32(nil), v...)
	}
	return snap
}

// Import replaces the tables that are present in snap. Capacity limits are
// re-applied, oldest first.
func (m *Manager) Import(snap Snapshot) {
	m.mu.Lock()
	if snap.ShortTermMemory != nil {
		items := snap.ShortTermMemory
		if over := len(items) - m.cfg.MaxShortTermItems; over > 0 {
			items = items[over:]
		}
		m.shortTerm = append([]MemoryItem(nil), items...)
	}
	if snap.LongTermMemory != nil {
		items := snap.LongTermMemory
		if over := len(items) - m.cfg.MaxLongTermItems; over > 0 {
			items = items[over:]
		}
		m.longTerm = append([]SummaryItem(nil), items...)
	}
	if snap.VectorIndex != nil {
		m.vectorIndex = make(map[string][]float32, len(snap.VectorIndex))
		for id, v := range snap.VectorIndex {
			m.vectorIndex[id] = append([]float32(nil), v...)
		}
	}
	m.mu.Unlock()

	m.searchCache.Flush()
}

func (m *Manager) ExportJSON() ([]byte, error) {
	return json.Marshal(m.Export())
}

func (m *Manager) ImportJSON(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errors.Join(ErrCorruptSnapshot, err)
	}
	m.Import(snap)
	return nil
}
