package weights

// EditSession stages weight edits for the sibling sets of one template.
// Edits accumulate in pending state per parent (a template for its sections,
// a section for its questions) and become visible to readers only on Commit.
// Discard drops all pending state without side effects.
type EditSession struct {
	committed map[string]map[string]float64
	pending   map[string]map[string]float64
}

// NewEditSession starts a session over the committed sibling sets, keyed by
// parent ID. The input maps are copied; the caller's snapshot stays untouched.
func NewEditSession(committed map[string]map[string]float64) *EditSession {
	s := &EditSession{
		committed: make(map[string]map[string]float64, len(committed)),
		pending:   make(map[string]map[string]float64),
	}
	for parentID, siblings := range committed {
		s.committed[parentID] = copyWeights(siblings)
	}
	return s
}

// Stage applies SetWeight against the current view of a parent's siblings and
// records the result as pending. The committed set is untouched until Commit.
func (s *EditSession) Stage(parentID, siblingID string, newWeight float64) (map[string]float64, error) {
	view, ok := s.View(parentID)
	if !ok {
		return nil, ErrInvalidOperation
	}

	updated, err := SetWeight(view, siblingID, newWeight)
	if err != nil {
		return nil, err
	}

	s.pending[parentID] = updated
	return copyWeights(updated), nil
}

// View returns the pending siblings for a parent when dirty, the committed
// ones otherwise. The returned map is a copy.
func (s *EditSession) View(parentID string) (map[string]float64, bool) {
	if siblings, ok := s.pending[parentID]; ok {
		return copyWeights(siblings), true
	}
	siblings, ok := s.committed[parentID]
	if !ok {
		return nil, false
	}
	return copyWeights(siblings), true
}

// DirtyParents lists the parents with staged edits.
func (s *EditSession) DirtyParents() []string {
	parents := make([]string, 0, len(s.pending))
	for parentID := range s.pending {
		parents = append(parents, parentID)
	}
	return parents
}

func (s *EditSession) HasPending() bool {
	return len(s.pending) > 0
}

// Commit validates every dirty parent against the sum invariant and applies
// the whole batch atomically. On any violation nothing is applied and the
// prior committed state remains visible. The applied sets are returned so the
// caller can persist them.
func (s *EditSession) Commit() (map[string]map[string]float64, error) {
	for parentID, siblings := range s.pending {
		if !SumOK(siblings) {
			return nil, &SumInvariantError{ParentID: parentID, Sum: sum(siblings)}
		}
	}

	applied := make(map[string]map[string]float64, len(s.pending))
	for parentID, siblings := range s.pending {
		s.committed[parentID] = copyWeights(siblings)
		applied[parentID] = copyWeights(siblings)
	}
	s.pending = make(map[string]map[string]float64)

	return applied, nil
}

// Discard reverts to the last committed weight set.
func (s *EditSession) Discard() {
	s.pending = make(map[string]map[string]float64)
}

func copyWeights(siblings map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(siblings))
	for id, w := range siblings {
		out[id] = w
	}
	return out
}
