package careplan

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type carePlanRepoMemory struct {
	mu          sync.RWMutex
	plans       map[uuid.UUID]*CarePlan
	activities  map[uuid.UUID][]*CarePlanActivity
	attachments map[uuid.UUID][]*CarePlanAttachment
}

// NewCarePlanRepoMemory returns a repository for development and tests.
func NewCarePlanRepoMemory() CarePlanRepository {
	return &carePlanRepoMemory{
		plans:       make(map[uuid.UUID]*CarePlan),
		activities:  make(map[uuid.UUID][]*CarePlanActivity),
		attachments: make(map[uuid.UUID][]*CarePlanAttachment),
	}
}

func (r *carePlanRepoMemory) Create(_ context.Context, cp *CarePlan, activities []*CarePlanActivity, attachments []*CarePlanAttachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now().UTC()
	for _, a := range activities {
		a.ID = uuid.New()
		a.CarePlanID = cp.ID
	}
	for _, a := range attachments {
		a.ID = uuid.New()
		a.CarePlanID = cp.ID
	}
	stored := *cp
	r.plans[cp.ID] = &stored
	r.activities[cp.ID] = activities
	r.attachments[cp.ID] = attachments
	return nil
}

func (r *carePlanRepoMemory) GetByID(_ context.Context, id uuid.UUID) (*CarePlan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp, ok := r.plans[id]
	if !ok {
		return nil, ErrCarePlanNotFound
	}
	out := *cp
	return &out, nil
}

func (r *carePlanRepoMemory) ListByClient(_ context.Context, tenantID, clientID string, limit, offset int) ([]*CarePlan, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []*CarePlan
	for _, cp := range r.plans {
		if cp.TenantID == tenantID && cp.ClientID == clientID {
			out := *cp
			all = append(all, &out)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return []*CarePlan{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (r *carePlanRepoMemory) GetActivities(_ context.Context, carePlanID uuid.UUID) ([]*CarePlanActivity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activities[carePlanID], nil
}

func (r *carePlanRepoMemory) GetAttachments(_ context.Context, carePlanID uuid.UUID) ([]*CarePlanAttachment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.attachments[carePlanID], nil
}
