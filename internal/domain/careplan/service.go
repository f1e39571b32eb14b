package careplan

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/carewizard/internal/platform/blobstore"
	"github.com/ehr/carewizard/internal/platform/draft"
	"github.com/ehr/carewizard/internal/platform/formstate"
	"github.com/ehr/carewizard/internal/platform/wizard"
)

var (
	ErrInvalidClientID  = errors.New("invalid client id")
	ErrUnknownStep      = errors.New("unknown step")
	ErrUnknownOperation = errors.New("unknown field operation")
	ErrNotAttachment    = errors.New("field does not accept attachments")
)

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// DraftKey is the durable slot of one client's care plan draft.
func DraftKey(tenantID, clientID string) string {
	return tenantID + "/carePlan_" + clientID
}

// Field operations accepted by Mutate.
const (
	OpSet    = "set"
	OpMerge  = "merge"
	OpToggle = "toggle"
	OpCheck  = "check"
)

// FieldCommand is the wire form of a formstate.Command.
type FieldCommand struct {
	Op      string         `json:"op"`
	Field   string         `json:"field,omitempty"`
	Value   any            `json:"value,omitempty"`
	Values  map[string]any `json:"values,omitempty"`
	Checked bool           `json:"checked,omitempty"`
}

// previewFields names the preview companion of each attachment field.
var previewFields = map[string]string{
	"documentation_upload":        "documentation_upload_preview",
	"risk_management_plan_upload": "risk_management_plan_preview",
	"poa_upload":                  "poa_upload_preview",
	"id_upload":                   "id_upload_preview",
}

// StepStatus is one entry of the step bar.
type StepStatus struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Satisfied bool   `json:"satisfied"`
	Current   bool   `json:"current"`
}

// WizardState is the client-facing view of a session.
type WizardState struct {
	DraftKey string             `json:"draft_key"`
	Step     string             `json:"step"`
	Steps    []StepStatus       `json:"steps"`
	Fields   map[string]any     `json:"fields"`
	Restored bool               `json:"restored"`
	Repairs  []formstate.Repair `json:"repairs,omitempty"`
}

// AdvanceOutcome is the result of pressing Next/Submit.
type AdvanceOutcome string

const (
	OutcomeAdvanced  AdvanceOutcome = "advanced"
	OutcomeBlocked   AdvanceOutcome = "blocked"
	OutcomeSubmitted AdvanceOutcome = "submitted"
)

type AdvanceResult struct {
	Outcome AdvanceOutcome `json:"outcome"`
	Step    string         `json:"step"`
	Missing []string       `json:"missing,omitempty"`
	Receipt *Receipt       `json:"receipt,omitempty"`
}

// Service runs care plan wizards for clients.
type Service struct {
	sessions   *wizard.Manager
	catalog    *Catalog
	pipeline   *Pipeline
	dispatcher *Dispatcher
	repo       CarePlanRepository
	log        zerolog.Logger
}

func NewService(sessions *wizard.Manager, catalog *Catalog, pipeline *Pipeline, dispatcher *Dispatcher, repo CarePlanRepository, log zerolog.Logger) *Service {
	return &Service{
		sessions:   sessions,
		catalog:    catalog,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		repo:       repo,
		log:        log.With().Str("component", "careplan").Logger(),
	}
}

func (s *Service) Catalog() *Catalog { return s.catalog }

func (s *Service) key(tenantID, clientID string) (string, error) {
	if !clientIDPattern.MatchString(clientID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidClientID, clientID)
	}
	return DraftKey(tenantID, clientID), nil
}

// with runs fn on the client's session. A session evicted between lookup
// and use is reopened once.
func (s *Service) with(ctx context.Context, tenantID, clientID string, fn func(*wizard.Session) error) error {
	key, err := s.key(tenantID, clientID)
	if err != nil {
		return err
	}
	for attempt := 0; ; attempt++ {
		err := fn(s.sessions.Open(ctx, key))
		if errors.Is(err, wizard.ErrSessionClosed) && attempt == 0 {
			continue
		}
		return err
	}
}

func (s *Service) state(sess *wizard.Session) *WizardState {
	v := sess.View()
	steps := s.catalog.Gate.Steps()
	out := &WizardState{
		DraftKey: v.Key,
		Step:     steps[v.Step].Key,
		Steps:    make([]StepStatus, len(steps)),
		Fields:   presentFields(v.Fields),
		Restored: v.Restored,
		Repairs:  v.Repairs,
	}
	for i, st := range steps {
		out.Steps[i] = StepStatus{Key: st.Key, Label: st.Label, Satisfied: v.Satisfied[i], Current: i == v.Step}
	}
	return out
}

// presentFields replaces live attachments with their descriptors.
func presentFields(m formstate.FieldMap) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if r, ok := v.(*formstate.Resource); ok {
			out[k] = r.Descriptor()
			continue
		}
		out[k] = v
	}
	return out
}

// View opens (or restores) the client's wizard.
func (s *Service) View(ctx context.Context, tenantID, clientID string) (*WizardState, error) {
	var st *WizardState
	err := s.with(ctx, tenantID, clientID, func(sess *wizard.Session) error {
		st = s.state(sess)
		return nil
	})
	return st, err
}

// Commands converts wire commands. Toggling a communication need also sets
// the boolean field it mirrors.
func (s *Service) Commands(in []FieldCommand) ([]formstate.Command, error) {
	var out []formstate.Command
	for i, c := range in {
		switch strings.ToLower(c.Op) {
		case OpSet:
			out = append(out, formstate.SetField{Name: c.Field, Value: c.Value})
		case OpMerge:
			out = append(out, formstate.MergeFields{Values: c.Values})
		case OpToggle:
			out = append(out, formstate.ToggleArrayMember{Name: c.Field, Value: c.Value, Checked: c.Checked})
			if c.Field == "communication_needs" {
				if linked, ok := communicationLinks[formstate.AsString(c.Value)]; ok {
					out = append(out, formstate.ToggleBoolean{Name: linked, Checked: c.Checked})
				}
			}
		case OpCheck:
			out = append(out, formstate.ToggleBoolean{Name: c.Field, Checked: c.Checked})
		default:
			return nil, fmt.Errorf("command %d: %w: %q", i, ErrUnknownOperation, c.Op)
		}
	}
	return out, nil
}

// Mutate applies field commands as one atomic change.
func (s *Service) Mutate(ctx context.Context, tenantID, clientID string, in []FieldCommand) (*WizardState, error) {
	cmds, err := s.Commands(in)
	if err != nil {
		return nil, err
	}
	var st *WizardState
	err = s.with(ctx, tenantID, clientID, func(sess *wizard.Session) error {
		if err := sess.Mutate(cmds...); err != nil {
			return err
		}
		st = s.state(sess)
		return nil
	})
	return st, err
}

// Attach places a live attachment in a resource field. Images also get an
// inline preview.
func (s *Service) Attach(ctx context.Context, tenantID, clientID, field string, res *formstate.Resource) error {
	preview, ok := previewFields[field]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAttachment, field)
	}
	if err := blobstore.ValidateUpload(blobstore.BlobMetadata{FileName: res.Name, ContentType: res.ContentType}); err != nil {
		return err
	}
	if res.Size() > blobstore.MaxFileSize {
		return blobstore.ErrFileTooLarge
	}

	cmds := []formstate.Command{formstate.SetField{Name: field, Value: res}}
	if strings.HasPrefix(res.ContentType, "image/") {
		url := "data:" + res.ContentType + ";base64," + base64.StdEncoding.EncodeToString(res.Data)
		cmds = append(cmds, formstate.SetField{Name: preview, Value: url})
	}
	return s.with(ctx, tenantID, clientID, func(sess *wizard.Session) error {
		return sess.Mutate(cmds...)
	})
}

// GoTo jumps to the step with the given key.
func (s *Service) GoTo(ctx context.Context, tenantID, clientID, stepKey string) (*WizardState, error) {
	i := s.catalog.Gate.Index(stepKey)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, stepKey)
	}
	var st *WizardState
	err := s.with(ctx, tenantID, clientID, func(sess *wizard.Session) error {
		if err := sess.GoTo(i); err != nil {
			return err
		}
		st = s.state(sess)
		return nil
	})
	return st, err
}

// Clear discards the client's form and draft.
func (s *Service) Clear(ctx context.Context, tenantID, clientID string) error {
	return s.with(ctx, tenantID, clientID, func(sess *wizard.Session) error {
		return sess.Clear(ctx)
	})
}

// Close tears down the client's live session without touching its draft.
func (s *Service) Close(tenantID, clientID string) (bool, error) {
	key, err := s.key(tenantID, clientID)
	if err != nil {
		return false, err
	}
	return s.sessions.Discard(key), nil
}

// Advance validates the current step. On the last step a satisfied form is
// normalized, dispatched and its draft cleared.
func (s *Service) Advance(ctx context.Context, tenantID, clientID string, meta Meta, labels wizard.Labeler) (*AdvanceResult, error) {
	meta.TenantID = tenantID
	meta.ClientID = clientID
	steps := s.catalog.Gate.Steps()

	var res *AdvanceResult
	err := s.with(ctx, tenantID, clientID, func(sess *wizard.Session) error {
		out, err := sess.Advance()
		if err != nil {
			return err
		}
		switch out.Kind {
		case wizard.Blocked:
			res = &AdvanceResult{
				Outcome: OutcomeBlocked,
				Step:    steps[out.Step].Key,
				Missing: wizard.LabelNames(out.Missing, labels),
			}
			return nil
		case wizard.Advanced:
			res = &AdvanceResult{Outcome: OutcomeAdvanced, Step: steps[out.Step].Key}
			return nil
		}

		receipt, err := s.submit(ctx, sess, meta)
		if err != nil {
			return err
		}
		res = &AdvanceResult{Outcome: OutcomeSubmitted, Step: steps[0].Key, Receipt: receipt}
		return nil
	})
	return res, err
}

func (s *Service) submit(ctx context.Context, sess *wizard.Session, meta Meta) (*Receipt, error) {
	fields, err := sess.BeginSubmit()
	if err != nil {
		return nil, err
	}
	log := s.log.With().Str("draft_key", sess.Key()).Logger()

	payload, err := s.pipeline.Prepare(fields, meta)
	if err != nil {
		sess.AbortSubmit()
		log.Info().Err(err).Msg("care plan normalization failed")
		return nil, err
	}

	receipt, err := s.dispatcher.Dispatch(context.WithoutCancel(ctx), payload, fields, meta)
	if err != nil {
		sess.AbortSubmit()
		log.Error().Err(err).Msg("care plan dispatch failed; draft kept")
		return nil, err
	}

	sess.CompleteSubmit(context.WithoutCancel(ctx))
	log.Info().Str("care_plan_id", receipt.ID).Msg("care plan submitted")
	return receipt, nil
}

// ListDrafts lists the tenant's stored drafts, newest first.
func (s *Service) ListDrafts(ctx context.Context, tenantID string, limit, offset int) ([]draft.Entry, int, error) {
	return s.sessions.Store().List(ctx, tenantID+"/", limit, offset)
}

// ListSubmitted lists care plans stored for a client. It is empty when
// submissions go to a remote backend.
func (s *Service) ListSubmitted(ctx context.Context, tenantID, clientID string, limit, offset int) ([]*CarePlan, int, error) {
	if _, err := s.key(tenantID, clientID); err != nil {
		return nil, 0, err
	}
	if s.repo == nil {
		return []*CarePlan{}, 0, nil
	}
	return s.repo.ListByClient(ctx, tenantID, clientID, limit, offset)
}
