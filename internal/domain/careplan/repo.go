package careplan

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrCarePlanNotFound = errors.New("care plan not found")

type CarePlanRepository interface {
	// Create stores the plan with its activities and attachments atomically.
	Create(ctx context.Context, cp *CarePlan, activities []*CarePlanActivity, attachments []*CarePlanAttachment) error
	GetByID(ctx context.Context, id uuid.UUID) (*CarePlan, error)
	ListByClient(ctx context.Context, tenantID, clientID string, limit, offset int) ([]*CarePlan, int, error)
	GetActivities(ctx context.Context, carePlanID uuid.UUID) ([]*CarePlanActivity, error)
	GetAttachments(ctx context.Context, carePlanID uuid.UUID) ([]*CarePlanAttachment, error)
}
