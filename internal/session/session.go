// Package session implements the provider edit session: a draft candidate
// set, probe rounds with auto-selection, field edits written through the
// config bridge, and the commit that persists custom endpoints and the blob.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/provswitch/internal/bridge"
	"github.com/allaspectsdev/provswitch/internal/commit"
	"github.com/allaspectsdev/provswitch/internal/endpoint"
	"github.com/allaspectsdev/provswitch/internal/metrics"
	"github.com/allaspectsdev/provswitch/internal/provider"
	"github.com/allaspectsdev/provswitch/internal/selection"
	"github.com/allaspectsdev/provswitch/internal/speedtest"
)

var (
	// ErrTestInProgress is returned when a speed test is started while the
	// previous round of the same session is still running.
	ErrTestInProgress = errors.New("session: speed test already in progress")
	// ErrSessionClosed is returned by operations on a closed session. Probe
	// results that arrive after Close are discarded with this error.
	ErrSessionClosed = errors.New("session: closed")
	// ErrUnsupportedSlot is returned by SetModel for a slot the provider's
	// format does not carry.
	ErrUnsupportedSlot = errors.New("session: model slot not supported by format")
)

// DefaultSelfWriteTTL is how long the session ignores a config-changed
// notification carrying the blob it just wrote.
const DefaultSelfWriteTTL = 50 * time.Millisecond

// ProviderStore is the persistence the session reads from and commits to.
type ProviderStore interface {
	commit.Store
	commit.Committer
	GetProvider(ctx context.Context, id string) (*provider.Provider, error)
}

// PresetSource supplies the preset endpoint candidates of a template.
type PresetSource interface {
	Presets(templateID string) []string
}

// Prober runs one probe round. *speedtest.Engine implements it.
type Prober interface {
	ProbeFor(ctx context.Context, app provider.App, urls []string, timeouts speedtest.Timeouts) []endpoint.ProbeResult
}

// ProbeRecorder receives every completed round of a saved provider.
type ProbeRecorder interface {
	RecordRound(ctx context.Context, providerID string, results []endpoint.ProbeResult)
}

// Options configures sessions. Store and Prober are required.
type Options struct {
	Store        ProviderStore
	Prober       Prober
	Presets      PresetSource
	Recorder     ProbeRecorder
	Collector    *metrics.Collector
	Timeouts     speedtest.Timeouts
	AutoSelect   bool
	SelfWriteTTL time.Duration
}

func (o Options) validate() error {
	if o.Store == nil {
		return errors.New("session: store is required")
	}
	if o.Prober == nil {
		return errors.New("session: prober is required")
	}
	return nil
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID         string               `json:"id"`
	ProviderID string               `json:"provider_id,omitempty"`
	App        provider.App         `json:"app"`
	Name       string               `json:"name"`
	Format     bridge.Format        `json:"format"`
	Blob       string               `json:"blob"`
	Fields     bridge.Fields        `json:"fields"`
	Selected   string               `json:"selected"`
	Candidates []endpoint.Candidate `json:"candidates"`
	Testing    bool                 `json:"testing"`
}

// Session is one open provider edit. All edits apply to a local draft; the
// persisted endpoint set is only touched by Commit. It is safe for
// concurrent use.
type Session struct {
	id     string
	opts   Options
	bridge bridge.Bridge

	mu        sync.Mutex
	prov      provider.Provider
	saved     bool
	initial   []endpoint.CustomEndpoint
	savedBlob string
	blob      string
	selected  string
	draft     *endpoint.Set
	ranked    []endpoint.ProbeResult
	testing   bool
	closed    bool

	// selfWrite holds the blob of the session's own last write until the
	// timer of the same generation clears it.
	selfWrite    string
	selfWriteGen uint64
	selfTimer    *time.Timer
}

// Open starts a session editing the saved provider providerID.
func Open(ctx context.Context, opts Options, providerID string) (*Session, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	p, err := opts.Store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("session: load provider: %w", err)
	}
	initial, err := opts.Store.ListEndpoints(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("session: load endpoints: %w", err)
	}
	return newSession(opts, *p, true, initial)
}

// OpenNew starts a session for a provider that has not been saved yet. The
// initial custom endpoint set is empty and Commit creates the provider.
func OpenNew(opts Options, p provider.Provider) (*Session, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if _, err := provider.ParseApp(string(p.App)); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if p.Format == "" {
		p.Format = provider.FormatFor(p.App)
	}
	p.ID = ""
	return newSession(opts, p, false, nil)
}

func newSession(opts Options, p provider.Provider, saved bool, initial []endpoint.CustomEndpoint) (*Session, error) {
	b, err := p.Bridge()
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if opts.SelfWriteTTL <= 0 {
		opts.SelfWriteTTL = DefaultSelfWriteTTL
	}
	if initial == nil {
		initial = []endpoint.CustomEndpoint{}
	}

	var presets []string
	if opts.Presets != nil && p.TemplateID != "" {
		presets = opts.Presets.Presets(p.TemplateID)
	}
	selected := b.ReadBaseURL(p.Blob)

	s := &Session{
		id:        uuid.NewString(),
		opts:      opts,
		bridge:    b,
		prov:      p,
		saved:     saved,
		initial:   initial,
		savedBlob: p.Blob,
		blob:      p.Blob,
		selected:  selected,
		draft:     endpoint.NewSetFrom(endpoint.Collect(presets, initial, selected, nil)),
	}
	opts.Collector.SessionOpened()
	log.Debug().
		Str("session", s.id).
		Str("provider", p.ID).
		Str("app", string(p.App)).
		Int("candidates", s.draft.Len()).
		Msg("session opened")
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ProviderID returns the ID of the edited provider, or "" before the first
// commit of a new provider.
func (s *Session) ProviderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prov.ID
}

// App returns the application family of the edited provider.
func (s *Session) App() provider.App { return s.prov.App }

// Blob returns the current draft blob.
func (s *Session) Blob() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blob
}

// Fields projects the draft blob into semantic fields.
func (s *Session) Fields() bridge.Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bridge.Read(s.bridge, s.blob)
}

// Selected returns the normalized base URL of the draft blob.
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Candidates returns the draft candidates in display order.
func (s *Session) Candidates() []endpoint.Candidate {
	return s.draft.Candidates()
}

// Ranked returns the ranking of the last completed probe round.
func (s *Session) Ranked() []endpoint.ProbeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]endpoint.ProbeResult, len(s.ranked))
	copy(out, s.ranked)
	return out
}

// IsTesting reports whether a probe round is running.
func (s *Session) IsTesting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.testing
}

// Snapshot returns the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:         s.id,
		ProviderID: s.prov.ID,
		App:        s.prov.App,
		Name:       s.prov.Name,
		Format:     s.prov.Format,
		Blob:       s.blob,
		Fields:     bridge.Read(s.bridge, s.blob),
		Selected:   s.selected,
		Candidates: s.draft.Candidates(),
		Testing:    s.testing,
	}
}

// AddCandidate adds a user endpoint to the draft.
func (s *Session) AddCandidate(raw string) (endpoint.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return endpoint.Candidate{}, ErrSessionClosed
	}
	return s.draft.Add(raw, endpoint.OriginUser)
}

// RemoveCandidate removes url from the draft. It reports whether the URL
// was present.
func (s *Session) RemoveCandidate(url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrSessionClosed
	}
	return s.draft.Remove(url), nil
}

// RunSpeedTest probes every draft candidate and returns the ranked results.
// Results are applied only after the whole round settles; auto-selection
// then writes the fastest URL into the blob when enabled.
func (s *Session) RunSpeedTest(ctx context.Context) ([]endpoint.ProbeResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.testing {
		s.mu.Unlock()
		return nil, ErrTestInProgress
	}
	s.testing = true
	s.draft.ResetResults()
	urls := s.draft.URLs()
	app := s.prov.App
	s.mu.Unlock()

	results := s.opts.Prober.ProbeFor(ctx, app, urls, s.opts.Timeouts)

	s.mu.Lock()
	s.testing = false
	if s.closed {
		s.mu.Unlock()
		log.Debug().Str("session", s.id).Msg("discarding probe results of closed session")
		return nil, ErrSessionClosed
	}
	s.draft.ApplyResults(results)
	ranked := selection.Rank(results)
	s.ranked = ranked
	if next, ok := selection.AutoSelect(ranked, s.selected, s.opts.AutoSelect); ok {
		log.Info().
			Str("session", s.id).
			Str("from", s.selected).
			Str("to", next).
			Msg("auto-selected fastest endpoint")
		s.selected = next
		s.writeLocked(s.bridge.WriteBaseURL(s.blob, next))
		s.opts.Collector.RecordAutoSelect()
	}
	providerID, saved := s.prov.ID, s.saved
	s.mu.Unlock()

	if saved && s.opts.Recorder != nil {
		s.opts.Recorder.RecordRound(ctx, providerID, results)
	}
	out := make([]endpoint.ProbeResult, len(ranked))
	copy(out, ranked)
	return out, nil
}

// SetBaseURL writes raw as the provider's base URL. An empty value removes
// it. A new URL joins the candidates with origin selected.
func (s *Session) SetBaseURL(raw string) error {
	n := endpoint.Normalize(raw)
	if n != "" {
		if _, err := endpoint.Validate(n); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.selected = n
	s.ensureSelectedLocked()
	s.writeLocked(s.bridge.WriteBaseURL(s.blob, n))
	return nil
}

// SetAPIKey writes the API key into the blob.
func (s *Session) SetAPIKey(value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.writeLocked(s.bridge.WriteAPIKey(s.blob, value))
	return nil
}

// CheckSlot returns ErrUnsupportedSlot when the provider's format has no
// such model slot.
func (s *Session) CheckSlot(slot bridge.ModelSlot) error {
	if !bridge.Supports(s.bridge, slot) {
		return fmt.Errorf("%w: %s", ErrUnsupportedSlot, slot)
	}
	return nil
}

// SetModel writes one model slot into the blob.
func (s *Session) SetModel(slot bridge.ModelSlot, value string) error {
	if err := s.CheckSlot(slot); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.writeLocked(s.bridge.WriteModel(s.blob, slot, value))
	return nil
}

// ConfigChanged handles a notification that the raw blob changed, e.g. from
// a raw editor. A notification carrying the session's own last write is
// ignored. Otherwise the blob is adopted and the selected base URL is
// re-derived from it. It reports whether the blob was adopted.
func (s *Session) ConfigChanged(blob string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrSessionClosed
	}
	if s.selfWrite != "" && blob == s.selfWrite {
		s.opts.Collector.SelfWriteSuppressed()
		return false, nil
	}
	if blob == s.blob {
		return false, nil
	}
	s.blob = blob
	s.selected = s.bridge.ReadBaseURL(blob)
	s.ensureSelectedLocked()
	return true, nil
}

// Commit persists the provider row when new, the custom endpoint diff and
// the blob in one store transaction. On failure nothing is persisted and the
// draft is left untouched so the caller can retry.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	p := s.prov
	if !s.saved {
		p.Blob = s.blob
	}
	plan := commit.Diff(commit.URLs(s.initial), s.draft.CustomURLs())
	entries := commit.Entries(plan, s.initial, time.Now().UTC())
	change := commit.Change{Create: !s.saved, Provider: &p, Plan: plan, Entries: entries}
	if s.saved && s.blob != s.savedBlob {
		blob := s.blob
		change.Blob = &blob
	}
	if err := commit.Commit(ctx, s.opts.Store, change); err != nil {
		s.opts.Collector.RecordCommit(false)
		return err
	}

	p.Blob = s.blob
	s.prov = p
	s.saved = true
	s.savedBlob = s.blob
	s.initial = nextInitial(s.initial, plan, entries)
	s.opts.Collector.RecordCommit(true)
	log.Info().
		Str("session", s.id).
		Str("provider", s.prov.ID).
		Msg("session committed")
	return nil
}

// Close ends the session. A running probe round finishes but its results
// are discarded. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.selfTimer != nil {
		s.selfTimer.Stop()
	}
	s.opts.Collector.SessionClosed()
	log.Debug().Str("session", s.id).Msg("session closed")
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// writeLocked adopts a blob produced by the session itself and arms the
// self-write token for it.
func (s *Session) writeLocked(blob string) {
	s.blob = blob
	s.selfWrite = blob
	s.selfWriteGen++
	gen := s.selfWriteGen
	if s.selfTimer != nil {
		s.selfTimer.Stop()
	}
	s.selfTimer = time.AfterFunc(s.opts.SelfWriteTTL, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.selfWriteGen == gen {
			s.selfWrite = ""
		}
	})
}

func (s *Session) ensureSelectedLocked() {
	if s.selected == "" || s.draft.Has(s.selected) {
		return
	}
	if _, err := s.draft.Add(s.selected, endpoint.OriginSelected); err != nil {
		log.Debug().Err(err).Str("url", s.selected).Msg("selected base url not added as candidate")
	}
}

// nextInitial returns the persisted set after a successful commit of plan.
func nextInitial(initial []endpoint.CustomEndpoint, plan commit.Plan, entries []endpoint.CustomEndpoint) []endpoint.CustomEndpoint {
	if plan.Empty() {
		return initial
	}
	removed := make(map[string]bool, len(plan.ToRemove))
	for _, u := range plan.ToRemove {
		removed[u] = true
	}
	out := make([]endpoint.CustomEndpoint, 0, len(initial)+len(entries))
	if !plan.ExplicitClear {
		for _, e := range initial {
			if !removed[endpoint.Normalize(e.URL)] {
				out = append(out, e)
			}
		}
	}
	return append(out, entries...)
}
