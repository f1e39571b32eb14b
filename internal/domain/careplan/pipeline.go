package careplan

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ehr/carewizard/internal/platform/formstate"
)

// NormalizationCode classifies a submission-time normalization failure.
type NormalizationCode string

const (
	CodeInvalidEnum     NormalizationCode = "invalid_enum"
	CodeMissingSlotTime NormalizationCode = "missing_slot_time"
)

// SlotRef identifies one visit slot in the weekly schedule.
type SlotRef struct {
	Day   string `json:"day"`
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
}

func (r SlotRef) String() string {
	id := r.ID
	if id == "" {
		id = fmt.Sprint(r.Index)
	}
	return fmt.Sprintf("%s: slot %s missing start or end time", r.Day, id)
}

// NormalizationError is returned when a satisfied form still cannot be turned
// into a payload. Nothing has been sent when it is returned.
type NormalizationError struct {
	Code  NormalizationCode `json:"code"`
	Field string            `json:"field"`
	Value any               `json:"value,omitempty"`
	Slots []SlotRef         `json:"slots,omitempty"`
}

func (e *NormalizationError) Error() string {
	switch e.Code {
	case CodeInvalidEnum:
		return fmt.Sprintf("%s: %v is not a recognised value", e.Field, e.Value)
	case CodeMissingSlotTime:
		return fmt.Sprintf("%s: %d slot(s) missing start or end time", e.Field, len(e.Slots))
	default:
		return fmt.Sprintf("%s: %s", e.Field, e.Code)
	}
}

// Messages lists one operator-facing line per offending value.
func (e *NormalizationError) Messages() []string {
	if e.Code != CodeMissingSlotTime {
		return []string{e.Error()}
	}
	out := make([]string, len(e.Slots))
	for i, s := range e.Slots {
		out[i] = s.String()
	}
	return out
}

// Meta carries submission context that is not part of the form.
type Meta struct {
	TenantID   string
	ClientID   string
	ClientName string
	Actor      string
}

// Pipeline turns a completed FieldMap into a Payload. It has no side
// effects; dispatch happens separately.
type Pipeline struct {
	now     func() time.Time
	loc     *time.Location
	cleaner textCleaner
}

// NewPipeline returns a pipeline resolving wall-clock times in loc.
func NewPipeline(loc *time.Location) *Pipeline {
	if loc == nil {
		loc = time.UTC
	}
	return &Pipeline{now: time.Now, loc: loc, cleaner: newTextCleaner()}
}

// Weekdays orders schedule days for display and normalization.
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Prepare runs the normalization stages in order and assembles the payload.
// The first failing stage aborts with a *NormalizationError.
func (p *Pipeline) Prepare(fields formstate.FieldMap, meta Meta) (*Payload, error) {
	now := p.now()

	careType, ok := NormalizeCareType(fields["care_type"])
	if !ok {
		return nil, &NormalizationError{Code: CodeInvalidEnum, Field: "care_type", Value: first(fields["care_type"])}
	}

	visits, err := p.schedule(fields.Object("agreedCareVisits"), now)
	if err != nil {
		return nil, err
	}

	observed, _ := FirstObservedInstant(fields["wound_date_observed"], p.loc)

	payload := p.assemble(fields, meta, now)
	payload.CareRequirements = CareRequirements{
		CareType:         careType,
		ContractStart:    p.date(fields.Str("contractStart")),
		ContractEnd:      p.date(fields.Str("contractEnd")),
		AgreedCareVisits: visits,
	}
	payload.BodyMap.DateFirstObserved = At(observed)
	return payload, nil
}

func (p *Pipeline) date(s string) Instant {
	t, _ := ParseDate(s, p.loc)
	return At(t)
}

func orderedDays(schedule map[string]any) []string {
	days := make([]string, 0, len(schedule))
	rank := func(d string) int {
		for i, w := range Weekdays {
			if strings.EqualFold(d, w) {
				return i
			}
		}
		return len(Weekdays)
	}
	for d := range schedule {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool {
		ri, rj := rank(days[i]), rank(days[j])
		if ri != rj {
			return ri < rj
		}
		return days[i] < days[j]
	})
	return days
}

func (p *Pipeline) schedule(schedule map[string]any, now time.Time) (map[string]Visit, error) {
	out := make(map[string]Visit, len(schedule))
	var missing []SlotRef

	for _, day := range orderedDays(schedule) {
		info, _ := schedule[day].(map[string]any)
		v := Visit{
			Enabled:    formstate.Truthy(info["enabled"]),
			Slots:      []Slot{},
			LunchStart: formstate.AsString(info["lunchStart"]),
			LunchEnd:   formstate.AsString(info["lunchEnd"]),
		}
		rawSlots, _ := info["slots"].([]any)
		for idx, raw := range rawSlots {
			slot, _ := raw.(map[string]any)
			s := Slot{ID: formstate.AsString(slot["id"])}
			start, okStart := slotInstant(slot["startTime"], now, p.loc)
			end, okEnd := slotInstant(slot["endTime"], now, p.loc)
			if okStart {
				s.StartTime = At(start)
			}
			if okEnd {
				s.EndTime = At(end)
			}
			if v.Enabled && (!okStart || !okEnd) {
				missing = append(missing, SlotRef{Day: day, Index: idx, ID: s.ID})
			}
			v.Slots = append(v.Slots, s)
		}
		out[day] = v
	}

	if len(missing) > 0 {
		return nil, &NormalizationError{Code: CodeMissingSlotTime, Field: "agreedCareVisits", Slots: missing}
	}
	return out, nil
}

func rowBlank(row map[string]any) bool {
	for _, v := range row {
		switch t := v.(type) {
		case nil:
		case string:
			if !formstate.IsBlank(t) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func rowsOf(fields formstate.FieldMap, name string) []map[string]any {
	var out []map[string]any
	for _, r := range fields.List(name) {
		row, ok := r.(map[string]any)
		if !ok || rowBlank(row) {
			continue
		}
		out = append(out, row)
	}
	return out
}

func (p *Pipeline) assemble(f formstate.FieldMap, meta Meta, now time.Time) *Payload {
	c := p.cleaner
	str := func(name string) string { return c.clean(f.Str(name)) }
	list := func(name string) []string { return c.list(splitList(f[name])) }
	yes := func(name string) bool { return affirmative(f[name]) }
	has := func(name string) bool { return len(f.List(name)) > 0 }

	name := strings.TrimSpace(meta.ClientName)

	hazards := list("hazards")
	if other := str("other_hazards"); !formstate.IsBlank(other) {
		hazards = append(hazards, other)
	}

	allergies := []ClientAllergy{}
	for _, row := range rowsOf(f, "allergies") {
		get := func(k string) string { return c.clean(formstate.AsString(row[k])) }
		appt := ""
		if t, ok := ParseDate(formstate.AsString(row["Appointments"]), p.loc); ok {
			appt = At(t).String()
		}
		allergies = append(allergies, ClientAllergy{
			Allergy:                    get("name"),
			AllergyDetails:             get("allergiesDetails"),
			Severity:                   get("severity"),
			AllergyMedicationFrequency: get("allergyMedicationFrequency"),
			AllergyMedicationName:      get("allergyMedicationName"),
			AllergyMedicationDosage:    get("allergyMedicationDosage"),
			Appointments:               appt,
			KnownTrigger:               get("knownTrigger"),
		})
	}

	medications := []map[string]any{}
	for _, row := range rowsOf(f, "medication_schedule") {
		medications = append(medications, formstate.Clone(row).(map[string]any))
	}

	intake := []IntakeEntry{}
	for _, row := range rowsOf(f, "hydration_intake_log") {
		intake = append(intake, IntakeEntry{
			Time:   formstate.AsString(row["time"]),
			Amount: formstate.AsString(row["amount"]),
		})
	}

	woundType := "Full assessment"
	if yes("has_existing_wounds") {
		woundType = str("wound_type")
	}
	riskPlan := "Standard plan"
	if !formstate.IsBlank(f.Str("risk_management_plan_url")) {
		riskPlan = "Uploaded"
	}

	return &Payload{
		TenantID:    meta.TenantID,
		ClientID:    meta.ClientID,
		Title:       strings.TrimSpace(name + " Care Plan"),
		Description: strings.TrimSpace("Comprehensive care plan covering all aspects for " + name),
		StartDate:   At(now),
		EndDate:     At(now.Add(365 * 24 * time.Hour)),

		RiskAssessment: RiskAssessment{
			PrimarySupportNeed:        "dressing",
			RiskFactorsAndAlerts:      list("risk_factors"),
			Details:                   str("risk_details"),
			AreasRequiringSupport:     list("support_areas"),
			HomeLayout:                str("stairs"),
			SafetyFeaturesPresent:     list("safety_features"),
			Hazards:                   hazards,
			AccessibilityNeeds:        list("accessibility"),
			LoneWorkerConsideration:   yes("lone_worker"),
			RiskAssessmentAndTraining: str("risk_assessment_training"),
		},

		PersonalCare: PersonalCare{
			BathingAndShowering:     str("can_wash_themselves"),
			OralHygiene:             str("can_maintain_oral_hygiene"),
			MaintainThemselves:      str("can_maintain_personal_appearance"),
			DressThemselves:         str("can_dress_themselves"),
			GroomingNeeds:           list("grooming_needs"),
			ToiletUsage:             str("toilet_usage"),
			BowelControl:            str("bowel_control"),
			BladderControl:          str("bladder_control"),
			ToiletingSupport:        str("continence_support"),
			AdditionalNotes:         str("additional_notes"),
			ContinenceCare:          str("continence_care"),
			MobilityAssistance:      str("mobility_assistance"),
			PreferredLanguage:       str("preferred_language"),
			CommunicationStyleNeeds: list("communication_needs"),
		},

		EverydayActivityPlan: EverydayActivityPlan{
			CanTheyShop:                   str("can_do_shopping"),
			CanTheyCall:                   str("can_use_telephone"),
			CanTheyWash:                   str("can_do_laundry"),
			AdditionalNotes:               str("everyday_activity_notes"),
			CommunityAccessNeeds:          str("community_access_needs"),
			ExerciseAndMobilityActivities: str("exercise_mobility_activities"),
		},

		FallsAndMobility: FallsAndMobility{
			FallenBefore:            yes("had_fall_before"),
			TimesFallen:             number(f["fall_count"]),
			MobilityLevel:           str("mobility_level"),
			MobilitySupport:         str("mobility_support"),
			OtherMobilitySupport:    str("other_mobility_support"),
			ActiveAsTheyLikeToBe:    str("as_active_as_liked"),
			CanTransfer:             str("can_transfer"),
			CanUseStairs:            str("can_stairs"),
			CanTravelAlone:          str("can_travel_own"),
			MobilityAdditionalNotes: str("falls_mobility_notes"),
			VisionStatus:            str("vision_status"),
			SpeechStatus:            str("speech_status"),
			HearingStatus:           str("hearing_status"),
			SensoryAdditionalNotes:  str("sensory_needs_notes"),
		},

		MedicalInfo: MedicalInfo{
			PrimaryDiagnosis:                  str("primary_diagnosis"),
			PrimaryAdditionalNotes:            str("primary_additional_notes"),
			SecondaryDiagnoses:                str("secondary_diagnosis"),
			SecondaryAdditionalNotes:          str("secondary_additional_notes"),
			PastMedicalHistory:                str("past_medical_history"),
			MedicalSupport:                    yes("medication_support"),
			BreathingDifficulty:               yes("breathing_difficulty"),
			BreathingSupportNeed:              str("breathing_support_notes"),
			UseAirwayManagementEquipment:      yes("airway_equipment_used"),
			SpecifyAirwayEquipment:            c.clean(firstNonBlank(first(f["airway_equipment_types"]), f.Str("airway_equipment_specify"))),
			AirwayEquipmentRisk:               str("airway_equipment_risks"),
			AirwayEquipmentMitigationPlan:     str("airway_risks_mitigation"),
			HaveSkinPressureSores:             yes("has_pressure_sores"),
			SkinPressureConcerningIssues:      yes("skin_concerns"),
			SkinAdditionalInformation:         str("skin_additional_info"),
			CurrentHealthStatus:               first(f["current_health_status"]),
			RaisedSafeguardingIssue:           yes("safeguarding_issues"),
			SafeguardingAdditionalInformation: str("safeguarding_additional_info"),
			PrimaryDoctor:                     str("gp_primary_doctor_name"),
			SupportContactPhone:               phone(f, "gp_primary_doctor_code", "gp_primary_doctor_phone"),
			SpecialistContact:                 phone(f, "specialist_code", "specialist_phone"),
			HospitalContact:                   phone(f, "hospital_clinic_code", "hospital_clinic_phone"),
			EmergencyCareNotes:                str("emergency_care_notes"),
			MedicalReportUpload:               f.Str("documentation_upload_url"),
			KnownAllergies:                    yes("has_allergies"),
			Medications:                       medications,
			ClientAllergies:                   allergies,
		},

		PsychologicalInfo: PsychologicalInfo{
			HealthLevelSatisfaction:     str("health_satisfaction"),
			HealthMotivationalLevel:     str("motivation_level"),
			SleepMood:                   str("mood"),
			SpecifySleepMood:            str("mood_specify"),
			SleepStatus:                 str("sleep"),
			AnyoneWorriedAboutMemory:    yes("worried_about_memory"),
			MemoryStatus:                str("memory"),
			SpecifyMemoryStatus:         str("memory_specify"),
			CanTheyDoHouseKeeping:       str("housekeeping_ability"),
			HouseKeepingSupport:         yes("housekeeping_support"),
			HouseKeepingAdditionalNotes: str("housekeeping_notes"),
		},

		FoodHydration: FoodHydration{
			DietaryRequirements:                   c.clean(joinList(f["dietary_requirements"])),
			FoodOrDrinkAllergies:                  yes("has_allergies_intolerances"),
			FoodAllergiesSpecification:            str("allergies_specify"),
			AllergiesImpact:                       str("allergies_impact"),
			FavouriteFoods:                        str("favourite_foods"),
			AppetiteLevel:                         str("appetite"),
			SwallowingDifficulties:                str("swallow"),
			MedicationsAffectingSwallowing:        str("medications_affect_swallowing"),
			SpecifyMedicationsAffectingSwallowing: str("medications_affect_swallowing_specify"),
			CanFeedSelf:                           str("can_feed_self"),
			CanPrepareLightMeals:                  str("can_prepare_light_meal"),
			CanCookMeals:                          str("can_cook_meals"),
			ClientFoodGiver:                       str("responsible_for_food"),
			MealtimeSupport:                       str("mealtime_support"),
			HydrationSchedule:                     str("hydration_schedule"),
			StrongDislikes:                        str("strong_dislikes"),
			FluidPreferences:                      str("fluid_preference"),
		},

		Routine: Routine{
			PersonalBiography:              str("personal_biography"),
			HaveJob:                        has("has_important_jobs"),
			AboutJob:                       str("job_details"),
			HaveImportantPerson:            has("has_important_people"),
			AboutImportantPerson:           str("important_people_details"),
			SignificantPersonHasLocation:   has("has_significant_locations"),
			ImportantPersonLocationEffects: str("locations_care_impact"),
			CanMaintainOralHygiene:         str("can_maintain_oral_hygiene"),
			CareGiverGenderPreference:      str("caregiver_gender_preference"),
			AutonomyPreference:             c.clean(joinList(f["autonomy_preferences"])),
			DailyRoutine:                   str("daily_routine"),
			HaveSpecificImportantRoutine:   has("has_specific_routines_preferences"),
			SpecificRoutineDetails:         str("specific_routines_details"),
			HaveDislikes:                   has("has_dislikes"),
			DislikesEffect:                 str("dislikes_details"),
			HaveHobbiesRoutines:            has("has_hobbies"),
			HobbiesRoutinesEffect:          str("hobbies_impact"),
		},

		CultureValues: CultureValues{
			ReligiousBackground:                 str("cultural_religious_background"),
			EthnicGroup:                         str("ethnic_group"),
			CulturalAccommodation:               str("specific_religious_cultural_accommodations"),
			SexualityAndRelationshipPreferences: str("sexuality_description"),
			SexImpartingCareNeeds:               str("gender_sexual_orientation_impact"),
			PreferredLanguage:                   str("preferred_language"),
			CommunicationStyleNeeds:             list("other_communication_needs"),
			PreferredMethodOfCommunication:      "PHONE",
			KeyFamilyMembers:                    str("key_family_members"),
			ReceivesInformalCare:                yes("has_informal_care"),
			InformalCareByWho:                   c.clean(firstNonBlank(f.Str("informal_care_provider"), f.Str("informal_care_provider_other"))),
			SupportMethodByInformalCare:         str("informal_care_support"),
			ConcernsOnInformalCare:              str("informal_carer_concerns"),
			SpecifyConcernsOnInformalCare:       str("informal_carer_concerns_details"),
			ReceivesFormalCare:                  yes("has_formal_care"),
			SpecifyFormalCare:                   str("formal_care_details"),
			SocialGroupAndCommunity:             str("activity_plan_notes"),
			EmotionalSupportNeeds:               []string{},
			MentalWellbeingTracking:             f.Bool("mental_wellbeing_tracking"),
		},

		BodyMap: BodyMap{
			VisitFrequency:              "Weekly",
			CarePlanReviewDate:          f.Str("care_plan_review_date"),
			InvoicingCycle:              str("invoicing_cycle"),
			FundingAndInsuranceDetails:  str("funding_insurance_details"),
			AssignedCareManager:         str("assigned_care_manager"),
			InitialClinicalObservations: f.Bool("body_map_consent"),
			InitialSkinIntegrity:        yes("has_existing_wounds"),
			Type:                        woundType,
			Size:                        str("wound_size_grade"),
			LocationDescription:         str("wound_location_description"),
			Weight:                      str("client_weight"),
			Height:                      str("client_height"),
		},

		MovingHandling: MovingHandling{
			EquipmentNeeds:                  str("equipment_needs"),
			AnyPainDuringRestingAndMovement: str("has_pain"),
			AnyCognitiveImpairment:          str("has_cognitive_impairment"),
			BehaviouralChanges:              has("has_changing_behaviors"),
			DescribeBehaviouralChanges:      str("behavior_description"),
			WalkIndependently:               yes("can_walk_independently"),
			StandingBalanceDependence:       str("standing_balance_dependency"),
			ManageStairs:                    yes("can_manage_stairs"),
			SittingToStandingDependence:     firstNonBlank(str("sitting_to_standing_dependency"), "Moderate"),
			LimitedSittingBalance:           yes("has_limited_sitting_balance"),
			TurnInBed:                       yes("can_move_turn_in_bed"),
			LyingToSittingDependence:        yes("can_lying_to_sitting"),
			GettingUpFromChairDependence:    firstNonBlank(str("bed_in_out_dependency"), "Assisted"),
			BathOrShower:                    str("bath_or_shower"),
			ChairToCommodeOrBed:             yes("can_transfer_independently"),
			ProfilingBedAndMattress:         yes("has_profiling_bed_mattress"),
			TransferRisks:                   list("transfer_risks"),
			BehaviouralChallenges:           list("behavioural_challenges"),
			RiskManagementPlan:              riskPlan,
			LocationRiskReview:              str("location_risk_review"),
			EvacuationPlanRequired:          yes("evacuation_plan_required"),
			DailyGoal:                       str("daily_hydration_goal"),
			IntakeLog:                       intake,
			DehydrationAlertEnabled:         f.Bool("dehydration_alert_enabled"),
		},

		LegalRequirement: LegalRequirement{
			AttorneyInPlace:               yes("has_power_of_attorney"),
			AttorneyType:                  c.clean(joinList(f["poa_type"])),
			AttorneyName:                  c.clean(firstNonBlank(f.Str("poa_name_health_welfare"), f.Str("poa_name_finance_property"))),
			AttorneyContact:               phone(f, "poa_code", "poa_contact_number"),
			AttorneyEmail:                 str("poa_email"),
			Solicitor:                     str("poa_solicitor_firm"),
			CertificateNumber:             str("poa_certificate_number"),
			CertificateUpload:             f.Str("poa_upload_url"),
			DigitalConsentsAndPermissions: []string{},
			ConsentUpload:                 f.Str("id_upload_url"),
		},

		Carers: []string{},
	}
}

// phone joins a dialling code and number. A bare code is treated as no
// number.
func phone(f formstate.FieldMap, codeField, numberField string) string {
	num := strings.TrimSpace(f.Str(numberField))
	if num == "" {
		return ""
	}
	return strings.TrimSpace(f.Str(codeField)) + num
}
