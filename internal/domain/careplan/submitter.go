package careplan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// Receipt acknowledges an accepted submission.
type Receipt struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Submitter delivers a payload to the care plan backend.
type Submitter interface {
	Submit(ctx context.Context, p *Payload) (*Receipt, error)
}

// LocalSubmitter stores payloads through a CarePlanRepository.
type LocalSubmitter struct {
	repo CarePlanRepository
}

func NewLocalSubmitter(repo CarePlanRepository) *LocalSubmitter {
	return &LocalSubmitter{repo: repo}
}

func (s *LocalSubmitter) Submit(ctx context.Context, p *Payload) (*Receipt, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	cp := &CarePlan{
		TenantID:  p.TenantID,
		ClientID:  p.ClientID,
		Title:     p.Title,
		CareType:  p.CareRequirements.CareType,
		StartDate: p.StartDate.Time,
		EndDate:   p.EndDate.Time,
		Payload:   body,
	}
	if p.Description != "" {
		d := p.Description
		cp.Description = &d
	}
	if err := s.repo.Create(ctx, cp, activitiesOf(p), attachmentsOf(p)); err != nil {
		return nil, err
	}
	return &Receipt{ID: cp.ID.String(), CreatedAt: cp.CreatedAt}, nil
}

// RemoteSubmitter POSTs payloads as JSON to an external care plan API.
type RemoteSubmitter struct {
	url    string
	token  string
	client *http.Client
}

func NewRemoteSubmitter(url, token string, timeout time.Duration) *RemoteSubmitter {
	return &RemoteSubmitter{url: url, token: token, client: &http.Client{Timeout: timeout}}
}

func (s *RemoteSubmitter) Submit(ctx context.Context, p *Payload) (*Receipt, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post care plan: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("care plan backend returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out struct {
		ID        any       `json:"id"`
		CreatedAt time.Time `json:"created_at"`
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	r := &Receipt{CreatedAt: out.CreatedAt}
	if out.ID != nil {
		r.ID = fmt.Sprint(out.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return r, nil
}
