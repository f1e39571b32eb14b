package careplan

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/carewizard/internal/platform/db"
)

type carePlanRepoPG struct{ pool *pgxpool.Pool }

func NewCarePlanRepoPG(pool *pgxpool.Pool) CarePlanRepository {
	return &carePlanRepoPG{pool: pool}
}

func (r *carePlanRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const cpCols = `id, tenant_id, client_id, title, description, care_type,
	start_date, end_date, payload, created_by, created_at`

func (r *carePlanRepoPG) scanCP(row pgx.Row) (*CarePlan, error) {
	var cp CarePlan
	err := row.Scan(&cp.ID, &cp.TenantID, &cp.ClientID, &cp.Title, &cp.Description,
		&cp.CareType, &cp.StartDate, &cp.EndDate, &cp.Payload, &cp.CreatedBy, &cp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCarePlanNotFound
	}
	return &cp, err
}

func (r *carePlanRepoPG) Create(ctx context.Context, cp *CarePlan, activities []*CarePlanActivity, attachments []*CarePlanAttachment) error {
	cp.ID = uuid.New()
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO care_plan (id, tenant_id, client_id, title, description, care_type,
				start_date, end_date, payload, created_by)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			RETURNING created_at`,
			cp.ID, cp.TenantID, cp.ClientID, cp.Title, cp.Description, cp.CareType,
			cp.StartDate, cp.EndDate, cp.Payload, cp.CreatedBy).Scan(&cp.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert care plan: %w", err)
		}

		for _, a := range activities {
			a.ID = uuid.New()
			a.CarePlanID = cp.ID
			_, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO care_plan_activity (id, care_plan_id, day, slot_id, start_time, end_time,
					care_type, carers, notes)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				a.ID, a.CarePlanID, a.Day, a.SlotID, a.StartTime, a.EndTime,
				a.CareType, a.Carers, a.Notes)
			if err != nil {
				return fmt.Errorf("insert activity %s: %w", a.Day, err)
			}
		}

		for _, att := range attachments {
			att.ID = uuid.New()
			att.CarePlanID = cp.ID
			_, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO care_plan_attachment (id, care_plan_id, field, blob_id, filename,
					content_type, size_bytes)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				att.ID, att.CarePlanID, att.Field, att.BlobID, att.FileName,
				att.ContentType, att.SizeBytes)
			if err != nil {
				return fmt.Errorf("insert attachment %s: %w", att.Field, err)
			}
		}
		return nil
	})
}

func (r *carePlanRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CarePlan, error) {
	return r.scanCP(r.conn(ctx).QueryRow(ctx, `SELECT `+cpCols+` FROM care_plan WHERE id = $1`, id))
}

func (r *carePlanRepoPG) ListByClient(ctx context.Context, tenantID, clientID string, limit, offset int) ([]*CarePlan, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM care_plan WHERE tenant_id = $1 AND client_id = $2`,
		tenantID, clientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+cpCols+` FROM care_plan
		WHERE tenant_id = $1 AND client_id = $2
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`, tenantID, clientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*CarePlan
	for rows.Next() {
		cp, err := r.scanCP(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, cp)
	}
	return items, total, rows.Err()
}

func (r *carePlanRepoPG) GetActivities(ctx context.Context, carePlanID uuid.UUID) ([]*CarePlanActivity, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, care_plan_id, day, slot_id, start_time, end_time, care_type, carers, notes
		FROM care_plan_activity WHERE care_plan_id = $1 ORDER BY start_time`, carePlanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*CarePlanActivity
	for rows.Next() {
		var a CarePlanActivity
		if err := rows.Scan(&a.ID, &a.CarePlanID, &a.Day, &a.SlotID, &a.StartTime, &a.EndTime,
			&a.CareType, &a.Carers, &a.Notes); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}

func (r *carePlanRepoPG) GetAttachments(ctx context.Context, carePlanID uuid.UUID) ([]*CarePlanAttachment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, care_plan_id, field, blob_id, filename, content_type, size_bytes
		FROM care_plan_attachment WHERE care_plan_id = $1 ORDER BY field`, carePlanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*CarePlanAttachment
	for rows.Next() {
		var a CarePlanAttachment
		if err := rows.Scan(&a.ID, &a.CarePlanID, &a.Field, &a.BlobID, &a.FileName,
			&a.ContentType, &a.SizeBytes); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}
