package careplan

import (
	"time"

	"github.com/ehr/carewizard/internal/platform/formstate"
)

// Attachment slots. Each has a live resource field plus preview and URL
// companions.
var attachmentFields = []string{
	"documentation_upload",
	"risk_management_plan_upload",
	"poa_upload",
	"id_upload",
}

// communicationLinks maps communication_needs members to the boolean field
// that mirrors them.
var communicationLinks = map[string]string{
	"wears_hearing_aid":            "wears_hearing_aid",
	"uses_glasses":                 "uses_glasses",
	"requires_large_print":         "requires_large_print",
	"prefers_written_instructions": "prefers_written_instructions",
	"non_verbal":                   "non_verbal",
}

func text(name string) formstate.Field {
	return formstate.Field{Name: name, Kind: formstate.KindScalar, Default: ""}
}

func textOr(name, def string) formstate.Field {
	return formstate.Field{Name: name, Kind: formstate.KindScalar, Default: def}
}

func nullable(name string) formstate.Field {
	return formstate.Field{Name: name, Kind: formstate.KindScalar}
}

func list(name string) formstate.Field {
	return formstate.Field{Name: name, Kind: formstate.KindArray}
}

func rows(name string, repair func(any) any) formstate.Field {
	return formstate.Field{Name: name, Kind: formstate.KindArray, Repair: repair}
}

func flag(name string) formstate.Field {
	return formstate.Field{Name: name, Kind: formstate.KindBoolean}
}

func upload(name string) formstate.Field {
	return formstate.Field{Name: name, Kind: formstate.KindResource}
}

func timestamp(name string) formstate.Field {
	return formstate.Field{Name: name, Kind: formstate.KindScalar, DefaultFunc: func() any {
		return time.Now().UTC().Format(isoLayout)
	}}
}

// normalizeIntakeLog reshapes hydration log rows to {time, amount}.
func normalizeIntakeLog(v any) any {
	in, _ := v.([]any)
	out := make([]any, 0, len(in))
	for _, r := range in {
		row, _ := r.(map[string]any)
		out = append(out, map[string]any{
			"time":   formstate.AsString(row["time"]),
			"amount": formstate.AsString(row["amount"]),
		})
	}
	return out
}

// Schema is the full care plan record.
var Schema = formstate.MustSchema(
	// risk assessment
	list("risk_factors"),
	text("risk_details"),
	list("support_areas"),
	text("stairs"),
	list("safety_features"),
	list("hazards"),
	text("other_hazards"),
	list("accessibility"),
	nullable("lone_worker"),
	text("risk_assessment_training"),

	// care essentials
	textOr("can_wash_themselves", "YES_INDEPENDENTLY"),
	text("can_maintain_oral_hygiene"),
	text("can_maintain_personal_appearance"),
	text("can_dress_themselves"),
	list("grooming_needs"),
	text("other_grooming"),
	text("toilet_usage"),
	text("bowel_control"),
	text("bladder_control"),
	text("continence_support"),
	text("other_continence"),
	text("additional_notes"),
	text("continence_care"),
	text("mobility_assistance"),
	text("preferred_language"),
	flag("wears_hearing_aid"),
	flag("uses_glasses"),
	flag("requires_large_print"),
	flag("prefers_written_instructions"),
	flag("non_verbal"),
	list("communication_needs"),

	// everyday activity plan
	text("can_do_shopping"),
	text("can_use_telephone"),
	text("can_do_laundry"),
	text("everyday_activity_notes"),
	text("community_access_needs"),
	text("exercise_mobility_activities"),

	// falls and mobility
	text("had_fall_before"),
	text("fall_count"),
	textOr("mobility_level", "INDEPENDENT"),
	textOr("mobility_support", "NONE"),
	text("other_mobility_support"),
	text("as_active_as_liked"),
	text("can_transfer"),
	text("can_stairs"),
	text("can_travel_own"),
	text("falls_mobility_notes"),

	// sensory
	text("vision_status"),
	text("speech_status"),
	text("hearing_status"),
	text("sensory_needs_notes"),

	// medical information
	text("primary_diagnosis"),
	text("primary_additional_notes"),
	text("secondary_diagnosis"),
	text("secondary_additional_notes"),
	text("past_medical_history"),
	list("medication_support"),
	list("breathing_difficulty"),
	text("breathing_support_notes"),
	list("airway_equipment_used"),
	list("airway_equipment_types"),
	text("airway_equipment_specify"),
	text("airway_equipment_risks"),
	text("airway_risks_mitigation"),
	list("has_pressure_sores"),
	list("skin_concerns"),
	text("skin_additional_info"),

	// body map
	flag("body_map_consent"),
	timestamp("care_plan_review_date"),
	list("has_existing_wounds"),
	text("wound_type"),
	text("wound_size_grade"),
	text("wound_location_description"),
	timestamp("wound_date_observed"),
	text("client_weight"),
	text("client_height"),

	// safeguarding and health status
	list("safeguarding_issues"),
	list("safeguarding_skin_concerns"),
	text("safeguarding_additional_info"),
	list("current_health_status"),

	// allergies and medication
	list("has_allergies"),
	text("allergies_details"),
	list("allergies"),
	list("medication_schedule"),
	text("activity_plan_notes"),

	// medical contacts
	text("gp_primary_doctor_name"),
	textOr("gp_primary_doctor_code", "+44"),
	text("gp_primary_doctor_phone"),
	textOr("specialist_code", "+44"),
	text("specialist_phone"),
	textOr("hospital_clinic_code", "+44"),
	text("hospital_clinic_phone"),
	text("emergency_care_notes"),
	upload("documentation_upload"),
	text("documentation_upload_preview"),
	text("documentation_upload_url"),

	// psychological information
	text("health_satisfaction"),
	text("motivation_level"),
	text("mood"),
	text("mood_specify"),
	text("sleep"),
	text("sleep_specify"),
	text("worried_about_memory"),
	text("memory"),
	text("memory_specify"),
	text("housekeeping_ability"),
	text("housekeeping_support"),
	text("housekeeping_notes"),

	// food, nutrition and hydration
	list("dietary_requirements"),
	text("has_allergies_intolerances"),
	text("allergies_specify"),
	text("allergies_impact"),
	text("dietary_requirement"),
	text("favourite_foods"),
	text("appetite"),
	text("swallow"),
	text("medications_affect_swallowing"),
	text("medications_affect_swallowing_specify"),
	text("can_feed_self"),
	text("can_prepare_light_meal"),
	text("can_cook_meals"),
	text("responsible_for_food"),
	text("mealtime_support"),
	text("hydration_schedule"),
	text("strong_dislikes"),
	text("fluid_preference"),

	// history, routine and preferences
	text("personal_biography"),
	list("has_important_jobs"),
	text("job_details"),
	list("has_important_people"),
	text("important_people_details"),
	list("has_significant_locations"),
	text("locations_care_impact"),
	textOr("caregiver_gender_preference", "NO_PREFERENCE"),
	list("autonomy_preferences"),
	text("daily_routine"),
	list("has_specific_routines_preferences"),
	text("specific_routines_details"),
	list("has_dislikes"),
	text("dislikes_details"),
	list("has_hobbies"),
	text("hobbies_impact"),

	// culture, values and identity
	text("cultural_religious_background"),
	text("ethnic_group"),
	text("specific_religious_cultural_accommodations"),
	text("sexuality_description"),
	text("gender_sexual_orientation_impact"),
	text("other_communication_needs"),

	// social support
	text("key_family_members"),
	text("has_informal_care"),
	text("informal_care_provider"),
	text("informal_care_provider_other"),
	text("informal_care_support"),
	text("informal_carer_concerns"),
	text("informal_carer_concerns_details"),
	text("has_formal_care"),
	text("formal_care_details"),
	flag("mental_wellbeing_tracking"),

	// administrative
	list("finances_handling"),
	list("advanced_directive"),
	list("has_will"),
	text("admin_additional_notes"),
	text("invoicing_cycle"),
	text("funding_insurance_details"),
	text("assigned_care_manager"),

	// moving and handling
	text("equipment_needs"),
	text("has_pain"),
	text("has_cognitive_impairment"),
	list("has_changing_behaviors"),
	text("behavior_description"),
	list("can_walk_independently"),
	text("standing_balance_dependency"),
	list("can_manage_stairs"),
	text("sitting_to_standing_dependency"),
	list("has_limited_sitting_balance"),
	list("can_move_turn_in_bed"),
	list("can_lying_to_sitting"),
	text("bed_in_out_dependency"),
	text("bath_or_shower"),
	list("can_transfer_independently"),
	list("has_profiling_bed_mattress"),
	list("transfer_risks"),
	list("behavioural_challenges"),
	text("location_risk_review"),
	list("evacuation_plan_required"),
	text("daily_hydration_goal"),
	rows("hydration_intake_log", normalizeIntakeLog),
	flag("dehydration_alert_enabled"),
	upload("risk_management_plan_upload"),
	text("risk_management_plan_preview"),
	text("risk_management_plan_url"),

	// care requirements
	list("care_type"),
	text("contractStart"),
	text("contractEnd"),
	formstate.Field{Name: "agreedCareVisits", Kind: formstate.KindSchedule},

	// legal
	list("has_power_of_attorney"),
	list("poa_type"),
	text("poa_name_health_welfare"),
	text("poa_name_finance_property"),
	textOr("poa_code", "+44"),
	text("poa_contact_number"),
	text("poa_email"),
	text("poa_solicitor_firm"),
	text("poa_certificate_number"),
	upload("poa_upload"),
	text("poa_upload_preview"),
	text("poa_upload_url"),
	flag("consent_data_protection"),
	flag("consent_medication"),
	flag("consent_personal_care"),
	flag("acknowledge_complaints_policy"),
	upload("id_upload"),
	text("id_upload_preview"),
	text("id_upload_url"),
)
