package model

// Snapshot is the full serialized image of dispatcher state, written
// atomically to disk and restored on startup.
type Snapshot struct {
	Jobs    map[string]*Job    `json:"jobs"`
	Engines map[string]*Engine `json:"engines"`
}

// NewSnapshot returns an empty snapshot with both namespaces allocated.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Jobs:    make(map[string]*Job),
		Engines: make(map[string]*Engine),
	}
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := NewSnapshot()
	for id, j := range s.Jobs {
		out.Jobs[id] = j.Clone()
	}
	for id, e := range s.Engines {
		out.Engines[id] = e.Clone()
	}
	return out
}
