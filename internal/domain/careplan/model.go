package careplan

import (
	"time"

	"github.com/google/uuid"
)

// CarePlan maps to the care_plan table. Payload holds the submitted
// document as JSON.
type CarePlan struct {
	ID          uuid.UUID `db:"id" json:"id"`
	TenantID    string    `db:"tenant_id" json:"tenant_id"`
	ClientID    string    `db:"client_id" json:"client_id"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description,omitempty"`
	CareType    string    `db:"care_type" json:"care_type"`
	StartDate   time.Time `db:"start_date" json:"start_date"`
	EndDate     time.Time `db:"end_date" json:"end_date"`
	Payload     []byte    `db:"payload" json:"-"`
	CreatedBy   *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CarePlanActivity maps to care_plan_activity: one agreed visit slot.
type CarePlanActivity struct {
	ID         uuid.UUID `db:"id" json:"id"`
	CarePlanID uuid.UUID `db:"care_plan_id" json:"care_plan_id"`
	Day        string    `db:"day" json:"day"`
	SlotID     *string   `db:"slot_id" json:"slot_id,omitempty"`
	StartTime  time.Time `db:"start_time" json:"start_time"`
	EndTime    time.Time `db:"end_time" json:"end_time"`
	CareType   string    `db:"care_type" json:"care_type"`
	Carers     int       `db:"carers" json:"carers"`
	Notes      *string   `db:"notes" json:"notes,omitempty"`
}

// CarePlanAttachment maps to care_plan_attachment.
type CarePlanAttachment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	CarePlanID  uuid.UUID `db:"care_plan_id" json:"care_plan_id"`
	Field       string    `db:"field" json:"field"`
	BlobID      string    `db:"blob_id" json:"blob_id"`
	FileName    string    `db:"filename" json:"filename"`
	ContentType *string   `db:"content_type" json:"content_type,omitempty"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
}

// carersFor is the number of carers each visit of a care type needs.
func carersFor(careType string) int {
	if careType == CareTypeDoubleHanded {
		return 2
	}
	return 1
}

// activitiesOf expands the enabled days of the agreed schedule into one
// activity per slot, Monday first.
func activitiesOf(p *Payload) []*CarePlanActivity {
	visits := p.CareRequirements.AgreedCareVisits
	days := make(map[string]any, len(visits))
	for d := range visits {
		days[d] = nil
	}
	var out []*CarePlanActivity
	for _, day := range orderedDays(days) {
		v := visits[day]
		if !v.Enabled {
			continue
		}
		for _, s := range v.Slots {
			a := &CarePlanActivity{
				Day:       day,
				StartTime: s.StartTime.Time,
				EndTime:   s.EndTime.Time,
				CareType:  p.CareRequirements.CareType,
				Carers:    carersFor(p.CareRequirements.CareType),
			}
			if s.ID != "" {
				id := s.ID
				a.SlotID = &id
			}
			out = append(out, a)
		}
	}
	return out
}

func attachmentsOf(p *Payload) []*CarePlanAttachment {
	out := make([]*CarePlanAttachment, 0, len(p.Attachments))
	for _, att := range p.Attachments {
		a := &CarePlanAttachment{
			Field:     att.Field,
			BlobID:    att.BlobID,
			FileName:  att.FileName,
			SizeBytes: att.Size,
		}
		if att.ContentType != "" {
			ct := att.ContentType
			a.ContentType = &ct
		}
		out = append(out, a)
	}
	return out
}
