package draft

import (
	"context"
	"errors"

	"github.com/ehr/carewizard/internal/platform/formstate"
	"github.com/rs/zerolog"
)

// SaveOutcome reports how far a save got. Saves never return errors; a
// dropped write is logged and the previous draft stays in place.
type SaveOutcome int

const (
	Saved SaveOutcome = iota
	SavedWithoutPreviews
	Dropped
)

func (o SaveOutcome) String() string {
	switch o {
	case Saved:
		return "saved"
	case SavedWithoutPreviews:
		return "saved_without_previews"
	default:
		return "dropped"
	}
}

// Store reads and writes drafts for one schema.
type Store struct {
	backend Backend
	schema  *formstate.Schema
	log     zerolog.Logger
}

func NewStore(backend Backend, schema *formstate.Schema, log zerolog.Logger) *Store {
	return &Store{
		backend: backend,
		schema:  schema,
		log:     log.With().Str("component", "draft").Logger(),
	}
}

// Load returns the reconciled draft stored under key. Any failure to read
// or decode is treated as absence.
func (s *Store) Load(ctx context.Context, key string) (formstate.FieldMap, []formstate.Repair, bool) {
	body, err := s.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Warn().Err(err).Str("draft_key", key).Msg("draft read failed; starting fresh")
		}
		return nil, nil, false
	}

	doc, err := decode(body)
	if err != nil {
		s.log.Warn().Err(err).Str("draft_key", key).Msg("draft is not valid JSON; starting fresh")
		return nil, nil, false
	}

	m, repairs := s.schema.Reconcile(doc)
	for _, r := range repairs {
		if r.Action == formstate.RepairFilledDefault {
			continue
		}
		s.log.Warn().
			Str("draft_key", key).
			Str("field", r.Field).
			Str("action", string(r.Action)).
			Str("from", r.From).
			Msg("draft value repaired")
	}
	return m, repairs, true
}

// Save writes m under key. If the backend rejects the document it retries
// once without preview fields.
func (s *Store) Save(ctx context.Context, key string, m formstate.FieldMap) SaveOutcome {
	err := s.put(ctx, key, m, false)
	if err == nil {
		return Saved
	}
	s.log.Warn().Err(err).Str("draft_key", key).Msg("draft save failed; retrying without previews")

	if err := s.put(ctx, key, m, true); err != nil {
		s.log.Error().Err(err).Str("draft_key", key).Msg("draft save dropped")
		return Dropped
	}
	if !hasPreviews(m) {
		return Saved
	}
	return SavedWithoutPreviews
}

func (s *Store) put(ctx context.Context, key string, m formstate.FieldMap, dropPreviews bool) error {
	body, err := encode(m, dropPreviews)
	if err != nil {
		return err
	}
	return s.backend.Put(ctx, key, body)
}

// Clear removes the draft. Clearing an absent draft succeeds.
func (s *Store) Clear(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// List returns stored drafts under prefix.
func (s *Store) List(ctx context.Context, prefix string, limit, offset int) ([]Entry, int, error) {
	return s.backend.List(ctx, prefix, limit, offset)
}
