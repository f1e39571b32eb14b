package careplan

import (
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"github.com/ehr/carewizard/internal/platform/formstate"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestPipeline(loc *time.Location) *Pipeline {
	p := NewPipeline(loc)
	p.now = func() time.Time { return fixedNow }
	return p
}

func mondaySchedule() map[string]any {
	return map[string]any{
		"monday": map[string]any{
			"enabled": true,
			"slots": []any{
				map[string]any{"id": "s1", "startTime": "09:00", "endTime": "10:00"},
			},
		},
	}
}

func validFields() formstate.FieldMap {
	m := Schema.Defaults()
	m["care_type"] = []any{"Single Handed Call"}
	m["agreedCareVisits"] = mondaySchedule()
	m["wound_date_observed"] = ""
	return m
}

func TestPrepare_InvalidCareType(t *testing.T) {
	m := validFields()
	m["care_type"] = []any{"Hourly"}
	// a broken schedule is not reported while the care type is invalid
	m["agreedCareVisits"] = map[string]any{
		"monday": map[string]any{"enabled": true, "slots": []any{map[string]any{"id": "x"}}},
	}

	_, err := newTestPipeline(time.UTC).Prepare(m, Meta{})
	var ne *NormalizationError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NormalizationError, got %v", err)
	}
	if ne.Code != CodeInvalidEnum || ne.Field != "care_type" || ne.Value != "Hourly" {
		t.Errorf("unexpected error: %+v", ne)
	}
}

func TestPrepare_MissingSlotTimes(t *testing.T) {
	m := validFields()
	m["agreedCareVisits"] = map[string]any{
		"wednesday": map[string]any{"enabled": true, "slots": []any{
			map[string]any{"id": "w1", "startTime": "13:00"},
		}},
		"tuesday": map[string]any{"enabled": false, "slots": []any{
			map[string]any{"id": "t1"},
		}},
		"monday": map[string]any{"enabled": true, "slots": []any{
			map[string]any{"id": "a", "startTime": "09:00", "endTime": ""},
			map[string]any{"startTime": "", "endTime": "10:00"},
			map[string]any{"id": "ok", "startTime": "11:00", "endTime": "11:30"},
		}},
	}

	_, err := newTestPipeline(time.UTC).Prepare(m, Meta{})
	var ne *NormalizationError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NormalizationError, got %v", err)
	}
	if ne.Code != CodeMissingSlotTime {
		t.Fatalf("expected %s, got %s", CodeMissingSlotTime, ne.Code)
	}
	want := []SlotRef{
		{Day: "monday", Index: 0, ID: "a"},
		{Day: "monday", Index: 1},
		{Day: "wednesday", Index: 0, ID: "w1"},
	}
	if diff := cmp.Diff(want, ne.Slots); diff != "" {
		t.Errorf("slots mismatch (-want +got):\n%s", diff)
	}
	wantMsgs := []string{
		"monday: slot a missing start or end time",
		"monday: slot 1 missing start or end time",
		"wednesday: slot w1 missing start or end time",
	}
	if diff := cmp.Diff(wantMsgs, ne.Messages()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestPrepare_Schedule(t *testing.T) {
	loc := london(t)
	m := validFields()
	m["agreedCareVisits"] = map[string]any{
		"monday": map[string]any{
			"enabled":    true,
			"lunchStart": "12:00",
			"lunchEnd":   "12:30",
			"slots": []any{
				map[string]any{"id": "s1", "startTime": "09:30", "endTime": "10:00"},
			},
		},
		"sunday": map[string]any{"enabled": false, "slots": []any{}},
	}

	p, err := newTestPipeline(loc).Prepare(m, Meta{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mon := p.CareRequirements.AgreedCareVisits["monday"]
	if !mon.Enabled || len(mon.Slots) != 1 {
		t.Fatalf("unexpected monday: %+v", mon)
	}
	if got := mon.Slots[0].StartTime.String(); got != "2024-06-15T08:30:00.000Z" {
		t.Errorf("expected BST wall time converted to UTC, got %s", got)
	}
	if mon.LunchStart != "12:00" || mon.LunchEnd != "12:30" {
		t.Errorf("expected lunch window kept, got %q-%q", mon.LunchStart, mon.LunchEnd)
	}
	if sun, ok := p.CareRequirements.AgreedCareVisits["sunday"]; !ok || sun.Enabled {
		t.Errorf("expected disabled sunday kept, got %+v", sun)
	}
}

func TestPrepare_Assembles(t *testing.T) {
	m := validFields()
	m["care_type"] = []any{"d"}
	m["contractStart"] = "2024-07-01"
	m["contractEnd"] = "07-01-2025"
	m["hazards"] = []any{"Loose rugs"}
	m["other_hazards"] = "Steep <b>garden</b> steps"
	m["had_fall_before"] = "yes"
	m["fall_count"] = "2"
	m["gp_primary_doctor_phone"] = "7700900123"
	m["hospital_clinic_phone"] = ""
	m["wound_date_observed"] = "2024-03-05"
	m["allergies"] = []any{
		map[string]any{"name": "Penicillin", "severity": "High", "Appointments": "2024-07-01"},
		map[string]any{"name": "", "severity": ""},
	}
	m["dietary_requirements"] = []any{"Halal", "Low salt"}
	m["has_important_jobs"] = []any{"yes"}

	p, err := newTestPipeline(time.UTC).Prepare(m, Meta{TenantID: "t1", ClientID: "c1", ClientName: " Ada Lovelace "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.Title != "Ada Lovelace Care Plan" {
		t.Errorf("unexpected title: %q", p.Title)
	}
	if p.StartDate.String() != "2024-06-15T12:00:00.000Z" || p.EndDate.String() != "2025-06-15T12:00:00.000Z" {
		t.Errorf("unexpected plan window: %s - %s", p.StartDate, p.EndDate)
	}
	if p.CareRequirements.CareType != CareTypeDoubleHanded {
		t.Errorf("expected %s, got %s", CareTypeDoubleHanded, p.CareRequirements.CareType)
	}
	if p.CareRequirements.ContractStart.String() != "2024-07-01T00:00:00.000Z" ||
		p.CareRequirements.ContractEnd.String() != "2025-07-01T00:00:00.000Z" {
		t.Errorf("unexpected contract: %s - %s", p.CareRequirements.ContractStart, p.CareRequirements.ContractEnd)
	}
	if diff := cmp.Diff([]string{"Loose rugs", "Steep garden steps"}, p.RiskAssessment.Hazards); diff != "" {
		t.Errorf("hazards mismatch (-want +got):\n%s", diff)
	}
	if !p.FallsAndMobility.FallenBefore || p.FallsAndMobility.TimesFallen == nil || *p.FallsAndMobility.TimesFallen != 2 {
		t.Errorf("unexpected falls: %+v", p.FallsAndMobility)
	}
	if p.MedicalInfo.SupportContactPhone != "+447700900123" {
		t.Errorf("unexpected GP phone: %q", p.MedicalInfo.SupportContactPhone)
	}
	if p.MedicalInfo.HospitalContact != "" {
		t.Errorf("expected bare dialling code dropped, got %q", p.MedicalInfo.HospitalContact)
	}
	if len(p.MedicalInfo.ClientAllergies) != 1 {
		t.Fatalf("expected blank allergy row dropped, got %+v", p.MedicalInfo.ClientAllergies)
	}
	if a := p.MedicalInfo.ClientAllergies[0]; a.Allergy != "Penicillin" || a.Appointments != "2024-07-01T00:00:00.000Z" {
		t.Errorf("unexpected allergy: %+v", a)
	}
	if p.FoodHydration.DietaryRequirements != "Halal, Low salt" {
		t.Errorf("unexpected dietary requirements: %q", p.FoodHydration.DietaryRequirements)
	}
	if !p.Routine.HaveJob || p.Routine.HaveDislikes {
		t.Errorf("unexpected routine flags: %+v", p.Routine)
	}
	if p.BodyMap.DateFirstObserved.String() != "2024-03-05T08:00:00.000Z" {
		t.Errorf("unexpected first observed: %s", p.BodyMap.DateFirstObserved)
	}
	if p.BodyMap.Type != "Full assessment" || p.MovingHandling.RiskManagementPlan != "Standard plan" {
		t.Errorf("unexpected defaults: %q %q", p.BodyMap.Type, p.MovingHandling.RiskManagementPlan)
	}
	if p.MovingHandling.SittingToStandingDependence != "Moderate" {
		t.Errorf("expected Moderate fallback, got %q", p.MovingHandling.SittingToStandingDependence)
	}
}

func TestPrepare_DoesNotMutateInput(t *testing.T) {
	m := validFields()
	m["other_hazards"] = "<i>x</i>"
	before := m.Clone()
	if _, err := newTestPipeline(time.UTC).Prepare(m, Meta{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(map[string]any(before), map[string]any(m)); diff != "" {
		t.Errorf("fields mutated (-before +after):\n%s", diff)
	}
}

func TestPayload_WireNames(t *testing.T) {
	p, err := newTestPipeline(time.UTC).Prepare(validFields(), Meta{TenantID: "t1", ClientID: "c1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	legal, _ := doc["legalRequirement"].(map[string]any)
	if _, ok := legal["consertUpload"]; !ok {
		t.Errorf("expected consertUpload key, got %v", legal)
	}
	mh, _ := doc["movingHandling"].(map[string]any)
	for _, k := range []string{"EvacuationPlanRequired", "IntakeLog"} {
		if _, ok := mh[k]; !ok {
			t.Errorf("expected movingHandling.%s", k)
		}
	}
	body, _ := doc["bodyMap"].(map[string]any)
	if v, ok := body["dateFirstObserved"]; !ok || v != nil {
		t.Errorf("expected null dateFirstObserved, got %#v", v)
	}
	care, _ := doc["careRequirements"].(map[string]any)
	if care["careType"] != CareTypeSingleHanded {
		t.Errorf("unexpected careType: %v", care["careType"])
	}
	if _, ok := doc["attachments"]; ok {
		t.Error("expected attachments omitted when empty")
	}
}
