package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ehr/carewizard/internal/platform/draft"
	"github.com/ehr/carewizard/internal/platform/formstate"
	"github.com/rs/zerolog"
)

var (
	ErrStepLocked         = errors.New("step is locked until the steps before it are complete")
	ErrStepOutOfRange     = errors.New("step out of range")
	ErrSubmissionInFlight = errors.New("submission already in progress")
	ErrNotReady           = errors.New("final step is not complete")
	ErrSessionClosed      = errors.New("session closed")
)

// OutcomeKind classifies the result of Advance.
type OutcomeKind int

const (
	Advanced OutcomeKind = iota
	Blocked
	ReadyToSubmit
)

func (k OutcomeKind) String() string {
	switch k {
	case Advanced:
		return "advanced"
	case Blocked:
		return "blocked"
	case ReadyToSubmit:
		return "ready_to_submit"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the result of Advance. Missing is set only when Blocked.
type Outcome struct {
	Kind    OutcomeKind
	Step    int
	Missing []string
}

// Options tunes a Session.
type Options struct {
	Debounce time.Duration
	Logger   zerolog.Logger
	// SaveTimeout bounds one debounced draft write.
	SaveTimeout time.Duration
}

// View is a consistent snapshot of a session.
type View struct {
	Key       string
	Step      int
	Fields    formstate.FieldMap
	Satisfied []bool
	Restored  bool
	Repairs   []formstate.Repair
}

// Session is one operator's pass through the wizard for one draft key. All
// methods are safe for concurrent use; operations on a session are
// serialized.
type Session struct {
	key    string
	gate   *Gate
	schema *formstate.Schema
	store  *draft.Store
	log    zerolog.Logger
	saver  *draft.Debouncer

	saveTimeout time.Duration

	// writeMu orders debounced writes against Clear and CompleteSubmit so a
	// cleared draft is never written back. Acquire before mu.
	writeMu sync.Mutex

	mu         sync.Mutex
	fields     formstate.FieldMap
	step       int
	dirty      bool
	submitting bool
	closed     bool
	restored   bool
	repairs    []formstate.Repair
	lastActive time.Time
}

// NewSession loads the draft stored under key, or starts from defaults. The
// load completes before the session accepts any mutation.
func NewSession(ctx context.Context, key string, gate *Gate, store *draft.Store, opts Options) *Session {
	s := &Session{
		key:         key,
		gate:        gate,
		schema:      gate.Schema(),
		store:       store,
		log:         opts.Logger.With().Str("draft_key", key).Logger(),
		saveTimeout: opts.SaveTimeout,
		lastActive:  time.Now(),
	}
	if s.saveTimeout <= 0 {
		s.saveTimeout = 10 * time.Second
	}

	if m, repairs, ok := store.Load(ctx, key); ok {
		s.fields = m
		s.restored = true
		s.repairs = repairs
	} else {
		s.fields = s.schema.Defaults()
	}
	s.saver = draft.NewDebouncer(opts.Debounce, s.persist)
	return s
}

func (s *Session) Key() string { return s.key }

// persist writes the latest FieldMap if it changed since the last write.
func (s *Session) persist() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return
	}
	snapshot := s.fields
	s.dirty = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()
	if out := s.store.Save(ctx, s.key, snapshot); out != draft.Saved {
		s.log.Warn().Str("outcome", out.String()).Msg("draft persisted partially")
	}
}

func (s *Session) checkOpen() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.submitting {
		return ErrSubmissionInFlight
	}
	return nil
}

// Mutate applies cmds atomically and schedules a draft write.
func (s *Session) Mutate(cmds ...formstate.Command) error {
	s.mu.Lock()
	if err := s.checkOpen(); err != nil {
		s.mu.Unlock()
		return err
	}
	next, err := s.schema.Apply(s.fields, cmds...)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.fields = next
	s.dirty = true
	s.lastActive = time.Now()
	s.mu.Unlock()

	s.saver.Trigger()
	return nil
}

// Advance validates the current step and moves past it. On the last step a
// satisfied gate yields ReadyToSubmit; the caller then runs BeginSubmit.
func (s *Session) Advance() (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return Outcome{}, err
	}
	s.lastActive = time.Now()

	if missing := s.gate.MissingFields(s.step, s.fields); len(missing) > 0 {
		return Outcome{Kind: Blocked, Step: s.step, Missing: missing}, nil
	}
	if s.step == s.gate.Len()-1 {
		return Outcome{Kind: ReadyToSubmit, Step: s.step}, nil
	}
	s.step++
	return Outcome{Kind: Advanced, Step: s.step}, nil
}

// GoTo moves to step i. Moving back is always allowed; moving forward
// requires every step from the current one up to i to be satisfied.
func (s *Session) GoTo(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if i < 0 || i >= s.gate.Len() {
		return fmt.Errorf("%w: %d", ErrStepOutOfRange, i)
	}
	for j := s.step; j < i; j++ {
		if !s.gate.IsStepSatisfied(j, s.fields) {
			return fmt.Errorf("%w: %s", ErrStepLocked, s.gate.steps[j].Key)
		}
	}
	s.step = i
	s.lastActive = time.Now()
	return nil
}

// Clear resets the session to defaults on the first step and deletes the
// stored draft.
func (s *Session) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if err := s.checkOpen(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.reset()
	s.mu.Unlock()

	s.saver.Stop()
	if err := s.store.Clear(ctx, s.key); err != nil {
		s.log.Warn().Err(err).Msg("draft clear failed")
	}
	return nil
}

func (s *Session) reset() {
	s.fields = s.schema.Defaults()
	s.step = 0
	s.dirty = false
	s.restored = false
	s.repairs = nil
	s.lastActive = time.Now()
}

// Flush writes a pending draft immediately.
func (s *Session) Flush() {
	s.saver.Flush()
}

// Close tears the session down. A pending draft write is cancelled.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.saver.Stop()
}

// BeginSubmit latches the session for submission and returns the FieldMap
// to submit. It fails unless the session is on a satisfied final step.
func (s *Session) BeginSubmit() (formstate.FieldMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	last := s.gate.Len() - 1
	if s.step != last || !s.gate.IsStepSatisfied(last, s.fields) {
		return nil, ErrNotReady
	}
	s.submitting = true
	return s.fields.Clone(), nil
}

// CompleteSubmit releases the latch after a successful dispatch, deletes
// the draft and resets the session.
func (s *Session) CompleteSubmit(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.reset()
	s.submitting = false
	s.mu.Unlock()

	s.saver.Stop()
	if err := s.store.Clear(ctx, s.key); err != nil {
		s.log.Warn().Err(err).Msg("draft clear after submission failed")
	}
}

// AbortSubmit releases the latch after a failed dispatch. Fields and the
// stored draft are kept.
func (s *Session) AbortSubmit() {
	s.mu.Lock()
	s.submitting = false
	s.mu.Unlock()
}

func (s *Session) Step() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Fields returns a copy of the current FieldMap.
func (s *Session) Fields() formstate.FieldMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields.Clone()
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	sat := make([]bool, s.gate.Len())
	for i := range sat {
		sat[i] = s.gate.IsStepSatisfied(i, s.fields)
	}
	return View{
		Key:       s.key,
		Step:      s.step,
		Fields:    s.fields.Clone(),
		Satisfied: sat,
		Restored:  s.restored,
		Repairs:   append([]formstate.Repair(nil), s.repairs...),
	}
}

// Submitting reports whether the submission latch is held.
func (s *Session) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive, s.submitting
}
