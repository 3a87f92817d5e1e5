package tracking

import "time"

// EntryRecord is the save-layer view of one tracked entry: enough state for
// a persistence layer to compute insert/update/delete command sets without
// reaching back into change-detection internals.
type EntryRecord struct {
	EntityType string         `json:"entity_type"`
	Key        string         `json:"key"`
	State      string         `json:"state"`
	Current    map[string]any `json:"current"`
	Original   map[string]any `json:"original,omitempty"`
	Modified   []string       `json:"modified,omitempty"`
	Temporary  []string       `json:"temporary,omitempty"`
}

// Checkpoint is a full snapshot of the tracked set at a point in time.
type Checkpoint struct {
	SavedAt time.Time     `json:"saved_at"`
	Entries []EntryRecord `json:"entries"`
}

// Record exports the entry's current bookkeeping for the save layer.
func (e *Entry) Record() EntryRecord {
	rec := EntryRecord{
		EntityType: e.entityType.Name(),
		Key:        e.trackedKey,
		State:      e.state.String(),
		Current:    make(map[string]any, len(e.entityType.Properties())),
	}
	for _, p := range e.entityType.Properties() {
		rec.Current[p.Name()] = e.GetCurrentValue(p)
		if v, ok := e.originals.get(p.Index()); ok {
			if rec.Original == nil {
				rec.Original = make(map[string]any)
			}
			rec.Original[p.Name()] = v
		}
		if e.modified.has(p.Index()) {
			rec.Modified = append(rec.Modified, p.Name())
		}
		if e.temporary.has(p.Index()) {
			rec.Temporary = append(rec.Temporary, p.Name())
		}
	}
	return rec
}

// Snapshot exports all tracked entries as a checkpoint, ordered by entity
// type and key.
func (sm *StateManager) Snapshot() Checkpoint {
	cp := Checkpoint{SavedAt: time.Now().UTC()}
	for _, e := range sm.Entries() {
		cp.Entries = append(cp.Entries, e.Record())
	}
	return cp
}
