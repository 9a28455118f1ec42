package endpoint

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Collect merges the four candidate sources into a deduplicated list keyed by
// normalized URL. Insertion priority is persisted, then preset, then
// user-added; the first origin seen for a URL wins. selected is appended with
// OriginSelected when it is not already present. Invalid inputs are skipped.
func Collect(presets []string, persisted []CustomEndpoint, selected string, userAdded []string) []Candidate {
	s := NewSet()
	for _, p := range persisted {
		s.insert(p.URL, OriginPersisted)
	}
	for _, u := range presets {
		s.insert(u, OriginPreset)
	}
	for _, u := range userAdded {
		s.insert(u, OriginUser)
	}
	if Normalize(selected) != "" {
		s.insert(selected, OriginSelected)
	}
	return s.Candidates()
}

// Set is an ordered candidate set keyed by canonical URL. Display order is
// first-insertion order. It is safe for concurrent use.
type Set struct {
	mu    sync.RWMutex
	order []string
	byURL map[string]*Candidate
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{byURL: make(map[string]*Candidate)}
}

// NewSetFrom returns a Set holding a copy of cands.
func NewSetFrom(cands []Candidate) *Set {
	s := NewSet()
	s.Merge(cands)
	return s
}

// insert adds raw if it validates and is not present. It reports whether a
// new entry was created.
func (s *Set) insert(raw string, origin Origin) bool {
	if _, err := Validate(raw); err != nil {
		log.Debug().Err(err).Str("origin", string(origin)).Msg("skipping candidate")
		return false
	}
	key := Normalize(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byURL[key]; ok {
		return false
	}
	s.byURL[key] = &Candidate{ID: uuid.NewString(), URL: key, Origin: origin}
	s.order = append(s.order, key)
	return true
}

// Add validates raw and appends it. It returns ErrEmptyURL or an
// *InvalidURLError for bad input and ErrDuplicateURL when the normalized URL
// is already present; existing candidates are never affected.
func (s *Set) Add(raw string, origin Origin) (Candidate, error) {
	if _, err := Validate(raw); err != nil {
		return Candidate{}, err
	}
	key := Normalize(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byURL[key]; ok {
		return Candidate{}, ErrDuplicateURL
	}
	c := &Candidate{ID: uuid.NewString(), URL: key, Origin: origin}
	s.byURL[key] = c
	s.order = append(s.order, key)
	return copyCandidate(c), nil
}

// Remove deletes the candidate with the given URL. It reports whether an
// entry was removed.
func (s *Set) Remove(raw string) bool {
	key := Normalize(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byURL[key]; !ok {
		return false
	}
	delete(s.byURL, key)
	for i, u := range s.order {
		if u == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Merge replaces the membership of the set with cands while keeping the ID,
// origin and probe result already recorded for URLs present on both sides.
// URLs absent from cands are dropped. New URLs are appended in cands order.
func (s *Set) Merge(cands []Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*Candidate, len(cands))
	order := make([]string, 0, len(cands))
	for _, c := range cands {
		key := Normalize(c.URL)
		if key == "" {
			continue
		}
		if _, dup := next[key]; dup {
			continue
		}
		if prev, ok := s.byURL[key]; ok {
			next[key] = prev
		} else {
			nc := copyCandidate(&c)
			nc.URL = key
			if nc.ID == "" {
				nc.ID = uuid.NewString()
			}
			next[key] = &nc
		}
		order = append(order, key)
	}
	s.byURL = next
	s.order = order
}

// Get returns the candidate for the normalized URL.
func (s *Set) Get(raw string) (Candidate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byURL[Normalize(raw)]
	if !ok {
		return Candidate{}, false
	}
	return copyCandidate(c), true
}

// Has reports whether the normalized URL is present.
func (s *Set) Has(raw string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byURL[Normalize(raw)]
	return ok
}

// Len returns the number of candidates.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// URLs returns the candidate URLs in display order.
func (s *Set) URLs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Candidates returns a snapshot of the set in display order.
func (s *Set) Candidates() []Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Candidate, 0, len(s.order))
	for _, u := range s.order {
		out = append(out, copyCandidate(s.byURL[u]))
	}
	return out
}

// CustomURLs returns the URLs of user-managed candidates (persisted or
// user-added) in display order.
func (s *Set) CustomURLs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, u := range s.order {
		if s.byURL[u].Origin.IsCustom() {
			out = append(out, u)
		}
	}
	return out
}

// ResetResults marks every candidate as pending so stale latencies are never
// shown as current.
func (s *Set) ResetResults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byURL {
		c.Result = &ProbeResult{URL: c.URL}
	}
}

// ApplyResults records probe results on the matching candidates. Results for
// URLs no longer in the set are ignored.
func (s *Set) ApplyResults(results []ProbeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		c, ok := s.byURL[Normalize(r.URL)]
		if !ok {
			continue
		}
		rc := r
		rc.URL = c.URL
		if r.LatencyMs != nil {
			ms := *r.LatencyMs
			rc.LatencyMs = &ms
		}
		c.Result = &rc
	}
}

func copyCandidate(c *Candidate) Candidate {
	out := *c
	if c.Result != nil {
		r := *c.Result
		if c.Result.LatencyMs != nil {
			ms := *c.Result.LatencyMs
			r.LatencyMs = &ms
		}
		out.Result = &r
	}
	return out
}
