package wizard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ehr/carewizard/internal/platform/draft"
	"github.com/ehr/carewizard/internal/platform/formstate"
	"github.com/rs/zerolog"
)

const testKey = "north/carePlan_42"

func newTestSession(t *testing.T, backend draft.Backend) (*Session, *draft.Store) {
	t.Helper()
	g := testGate(t)
	store := draft.NewStore(backend, g.Schema(), zerolog.Nop())
	s := NewSession(context.Background(), testKey, g, store, Options{Debounce: time.Hour, Logger: zerolog.Nop()})
	t.Cleanup(s.Close)
	return s, store
}

func fillAll(t *testing.T, s *Session) {
	t.Helper()
	err := s.Mutate(formstate.MergeFields{Values: map[string]any{
		"risk_details": "Loose rug",
		"stairs":       "yes",
		"care_type":    "single",
		"visits":       map[string]any{"monday": map[string]any{"enabled": true}},
		"consent":      true,
		"hazards":      []any{"rug"},
	}})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
}

func TestSession_AdvanceBlocked(t *testing.T) {
	s, _ := newTestSession(t, draft.NewMemoryBackend(0))

	out, err := s.Advance()
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if out.Kind != Blocked {
		t.Fatalf("expected Blocked, got %s", out.Kind)
	}
	if len(out.Missing) != 2 {
		t.Errorf("expected 2 missing fields, got %v", out.Missing)
	}
	if s.Step() != 0 {
		t.Errorf("expected to stay on step 0, got %d", s.Step())
	}
}

func TestSession_AdvanceToSubmit(t *testing.T) {
	s, _ := newTestSession(t, draft.NewMemoryBackend(0))
	fillAll(t, s)

	for want := 1; want < 4; want++ {
		out, err := s.Advance()
		if err != nil {
			t.Fatalf("Advance: %v", err)
		}
		if out.Kind != Advanced || out.Step != want {
			t.Fatalf("expected Advanced to %d, got %+v", want, out)
		}
	}
	out, err := s.Advance()
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if out.Kind != ReadyToSubmit {
		t.Errorf("expected ReadyToSubmit, got %s", out.Kind)
	}
	if s.Step() != 3 {
		t.Errorf("expected to stay on last step, got %d", s.Step())
	}
}

func TestSession_GoTo(t *testing.T) {
	s, _ := newTestSession(t, draft.NewMemoryBackend(0))

	if err := s.GoTo(2); !errors.Is(err, ErrStepLocked) {
		t.Errorf("expected ErrStepLocked, got %v", err)
	}
	if err := s.GoTo(9); !errors.Is(err, ErrStepOutOfRange) {
		t.Errorf("expected ErrStepOutOfRange, got %v", err)
	}

	if err := s.Mutate(
		formstate.SetField{Name: "risk_details", Value: "none"},
		formstate.SetField{Name: "stairs", Value: "no"},
	); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	// Steps 0 and 1 are satisfied; step 2 is not.
	if err := s.GoTo(2); err != nil {
		t.Fatalf("GoTo(2): %v", err)
	}
	if err := s.GoTo(3); !errors.Is(err, ErrStepLocked) {
		t.Errorf("expected ErrStepLocked past unsatisfied step, got %v", err)
	}
	if err := s.GoTo(0); err != nil {
		t.Errorf("expected backward move allowed, got %v", err)
	}
}

func TestSession_MutateUnknownField(t *testing.T) {
	s, _ := newTestSession(t, draft.NewMemoryBackend(0))
	err := s.Mutate(formstate.SetField{Name: "nope", Value: "x"})
	if !errors.Is(err, formstate.ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestSession_DebouncedPersistence(t *testing.T) {
	ctx := context.Background()
	mem := draft.NewMemoryBackend(0)
	s, store := newTestSession(t, mem)

	for _, v := range []string{"a", "ab", "abc"} {
		if err := s.Mutate(formstate.SetField{Name: "risk_details", Value: v}); err != nil {
			t.Fatalf("Mutate: %v", err)
		}
	}
	if _, _, ok := store.Load(ctx, testKey); ok {
		t.Fatal("expected nothing written before the quiet period")
	}

	s.Flush()
	got, _, ok := store.Load(ctx, testKey)
	if !ok {
		t.Fatal("expected draft written on flush")
	}
	if got.Str("risk_details") != "abc" {
		t.Errorf("expected latest value persisted, got %q", got.Str("risk_details"))
	}
}

func TestSession_DebounceFires(t *testing.T) {
	ctx := context.Background()
	g := testGate(t)
	store := draft.NewStore(draft.NewMemoryBackend(0), g.Schema(), zerolog.Nop())
	s := NewSession(ctx, testKey, g, store, Options{Debounce: 10 * time.Millisecond, Logger: zerolog.Nop()})
	defer s.Close()

	if err := s.Mutate(formstate.SetField{Name: "stairs", Value: "yes"}); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m, _, ok := store.Load(ctx, testKey); ok && m.Str("stairs") == "yes" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("debounced write never landed")
}

func TestSession_Restores(t *testing.T) {
	ctx := context.Background()
	mem := draft.NewMemoryBackend(0)
	_ = mem.Put(ctx, testKey, []byte(`{"stairs":"yes","hazards":"rug"}`))

	s, _ := newTestSession(t, mem)
	v := s.View()
	if !v.Restored {
		t.Error("expected restored session")
	}
	if v.Fields.Str("stairs") != "yes" {
		t.Errorf("expected stairs restored, got %q", v.Fields.Str("stairs"))
	}
	if l := v.Fields.List("hazards"); l == nil || len(l) != 0 {
		t.Errorf("expected hazards repaired to [], got %#v", v.Fields["hazards"])
	}
	if v.Step != 0 {
		t.Errorf("expected restored session on step 0, got %d", v.Step)
	}
}

func TestSession_Clear(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSession(t, draft.NewMemoryBackend(0))
	fillAll(t, s)
	s.Flush()
	if _, err := s.Advance(); err != nil {
		t.Fatal(err)
	}

	if err := s.Mutate(formstate.SetField{Name: "stairs", Value: "changed"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	s.Flush()

	if _, _, ok := store.Load(ctx, testKey); ok {
		t.Error("expected draft deleted and not resurrected")
	}
	if s.Step() != 0 {
		t.Errorf("expected step 0, got %d", s.Step())
	}
	if s.Fields().Str("stairs") != "" {
		t.Error("expected defaults after clear")
	}
}

func TestSession_CloseCancelsPendingWrite(t *testing.T) {
	ctx := context.Background()
	g := testGate(t)
	store := draft.NewStore(draft.NewMemoryBackend(0), g.Schema(), zerolog.Nop())
	s := NewSession(ctx, testKey, g, store, Options{Debounce: 20 * time.Millisecond, Logger: zerolog.Nop()})

	if err := s.Mutate(formstate.SetField{Name: "stairs", Value: "yes"}); err != nil {
		t.Fatal(err)
	}
	s.Close()
	time.Sleep(60 * time.Millisecond)

	if _, _, ok := store.Load(ctx, testKey); ok {
		t.Error("expected no write after teardown")
	}
	if err := s.Mutate(formstate.SetField{Name: "stairs", Value: "no"}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSession_SubmissionLatch(t *testing.T) {
	ctx := context.Background()
	s, store := newTestSession(t, draft.NewMemoryBackend(0))

	if _, err := s.BeginSubmit(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady before last step, got %v", err)
	}

	fillAll(t, s)
	if err := s.GoTo(3); err != nil {
		t.Fatalf("GoTo: %v", err)
	}
	s.Flush()

	snapshot, err := s.BeginSubmit()
	if err != nil {
		t.Fatalf("BeginSubmit: %v", err)
	}
	if snapshot.Str("care_type") != "single" {
		t.Errorf("unexpected snapshot: %v", snapshot)
	}

	if _, err := s.BeginSubmit(); !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("expected ErrSubmissionInFlight, got %v", err)
	}
	if _, err := s.Advance(); !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("expected Advance blocked, got %v", err)
	}
	if err := s.Mutate(formstate.SetField{Name: "stairs", Value: "x"}); !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("expected Mutate blocked, got %v", err)
	}

	s.AbortSubmit()
	if _, _, ok := store.Load(ctx, testKey); !ok {
		t.Error("expected draft kept after failed dispatch")
	}

	if _, err := s.BeginSubmit(); err != nil {
		t.Fatalf("BeginSubmit after abort: %v", err)
	}
	s.CompleteSubmit(ctx)
	if _, _, ok := store.Load(ctx, testKey); ok {
		t.Error("expected draft deleted after successful dispatch")
	}
	if s.Step() != 0 || s.Submitting() {
		t.Errorf("expected reset session, step=%d submitting=%v", s.Step(), s.Submitting())
	}
}
