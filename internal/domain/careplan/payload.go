package careplan

import (
	"time"
)

// Instant is a timestamp serialized as UTC with millisecond precision. The
// zero Instant encodes as null.
type Instant struct {
	time.Time
}

func At(t time.Time) Instant { return Instant{Time: t} }

func (i Instant) String() string {
	if i.IsZero() {
		return ""
	}
	return i.UTC().Format(isoLayout)
}

func (i Instant) MarshalJSON() ([]byte, error) {
	if i.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + i.String() + `"`), nil
}

func (i *Instant) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		*i = Instant{}
		return nil
	}
	t, err := time.Parse(`"`+time.RFC3339Nano+`"`, s)
	if err != nil {
		return err
	}
	i.Time = t
	return nil
}

// Payload is the canonical care plan document sent to the care plan
// backend. JSON names match the backend contract.
type Payload struct {
	TenantID    string  `json:"tenantId"`
	ClientID    string  `json:"clientId"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	StartDate   Instant `json:"startDate"`
	EndDate     Instant `json:"endDate"`

	RiskAssessment       RiskAssessment       `json:"riskAssessment"`
	PersonalCare         PersonalCare         `json:"personalCare"`
	EverydayActivityPlan EverydayActivityPlan `json:"everydayActivityPlan"`
	FallsAndMobility     FallsAndMobility     `json:"fallsAndMobility"`
	MedicalInfo          MedicalInfo          `json:"medicalInfo"`
	PsychologicalInfo    PsychologicalInfo    `json:"psychologicalInfo"`
	FoodHydration        FoodHydration        `json:"foodHydration"`
	Routine              Routine              `json:"routine"`
	CultureValues        CultureValues        `json:"cultureValues"`
	BodyMap              BodyMap              `json:"bodyMap"`
	MovingHandling       MovingHandling       `json:"movingHandling"`
	LegalRequirement     LegalRequirement     `json:"legalRequirement"`
	CareRequirements     CareRequirements     `json:"careRequirements"`

	Carers      []string     `json:"carers"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type RiskAssessment struct {
	PrimarySupportNeed        string   `json:"primarySupportNeed"`
	RiskFactorsAndAlerts      []string `json:"riskFactorsAndAlerts"`
	Details                   string   `json:"details"`
	AreasRequiringSupport     []string `json:"areasRequiringSupport"`
	HomeLayout                string   `json:"homeLayout"`
	SafetyFeaturesPresent     []string `json:"safetyFeaturesPresent"`
	Hazards                   []string `json:"hazards"`
	AccessibilityNeeds        []string `json:"accessibilityNeeds"`
	LoneWorkerConsideration   bool     `json:"loneWorkerConsideration"`
	RiskAssessmentAndTraining string   `json:"riskAssessmentAndTraining"`
}

type PersonalCare struct {
	BathingAndShowering     string   `json:"bathingAndShowering"`
	OralHygiene             string   `json:"oralHygiene"`
	MaintainThemselves      string   `json:"maintainThemselves"`
	DressThemselves         string   `json:"dressThemselves"`
	GroomingNeeds           []string `json:"groomingNeeds"`
	ToiletUsage             string   `json:"toiletUsage"`
	BowelControl            string   `json:"bowelControl"`
	BladderControl          string   `json:"bladderControl"`
	ToiletingSupport        string   `json:"toiletingSupport"`
	AdditionalNotes         string   `json:"additionalNotes"`
	ContinenceCare          string   `json:"continenceCare"`
	MobilityAssistance      string   `json:"mobilityAssistance"`
	PreferredLanguage       string   `json:"preferredLanguage"`
	CommunicationStyleNeeds []string `json:"communicationStyleNeeds"`
}

type EverydayActivityPlan struct {
	CanTheyShop                   string `json:"canTheyShop"`
	CanTheyCall                   string `json:"canTheyCall"`
	CanTheyWash                   string `json:"canTheyWash"`
	AdditionalNotes               string `json:"additionalNotes"`
	CommunityAccessNeeds          string `json:"communityAccessNeeds"`
	ExerciseAndMobilityActivities string `json:"ExerciseandMobilityActivities"`
}

type FallsAndMobility struct {
	FallenBefore            bool     `json:"fallenBefore"`
	TimesFallen             *float64 `json:"timesFallen"`
	MobilityLevel           string   `json:"mobilityLevel"`
	MobilitySupport         string   `json:"mobilitySupport"`
	OtherMobilitySupport    string   `json:"otherMobilitySupport"`
	ActiveAsTheyLikeToBe    string   `json:"activeAsTheyLikeToBe"`
	CanTransfer             string   `json:"canTransfer"`
	CanUseStairs            string   `json:"canuseStairs"`
	CanTravelAlone          string   `json:"canTravelAlone"`
	MobilityAdditionalNotes string   `json:"mobilityAdditionalNotes"`
	VisionStatus            string   `json:"visionStatus"`
	SpeechStatus            string   `json:"speechStatus"`
	HearingStatus           string   `json:"hearingStatus"`
	SensoryAdditionalNotes  string   `json:"sensoryAdditionalNotes"`
}

type MedicalInfo struct {
	PrimaryDiagnosis                  string           `json:"primaryDiagnosis"`
	PrimaryAdditionalNotes            string           `json:"primaryAdditionalNotes"`
	SecondaryDiagnoses                string           `json:"secondaryDiagnoses"`
	SecondaryAdditionalNotes          string           `json:"secondaryAdditionalNotes"`
	PastMedicalHistory                string           `json:"pastMedicalHistory"`
	MedicalSupport                    bool             `json:"medicalSupport"`
	BreathingDifficulty               bool             `json:"breathingDifficulty"`
	BreathingSupportNeed              string           `json:"breathingSupportNeed"`
	UseAirwayManagementEquipment      bool             `json:"useAirWayManagementEquipment"`
	SpecifyAirwayEquipment            string           `json:"specifyAirwayEquipment"`
	AirwayEquipmentRisk               string           `json:"airwayEquipmentRisk"`
	AirwayEquipmentMitigationPlan     string           `json:"airWayEquipmentMitigationPlan"`
	HaveSkinPressureSores             bool             `json:"haveSkinPressureSores"`
	SkinPressureConcerningIssues      bool             `json:"skinPressureConcerningIssues"`
	SkinAdditionalInformation         string           `json:"skinAdditionalInformation"`
	CurrentHealthStatus               string           `json:"currentHealthStatus"`
	RaisedSafeguardingIssue           bool             `json:"raisedSafeGuardingIssue"`
	SafeguardingAdditionalInformation string           `json:"safeGuardingAdditionalInformation"`
	PrimaryDoctor                     string           `json:"primaryDoctor"`
	SupportContactPhone               string           `json:"supportContactPhone"`
	SpecialistContact                 string           `json:"specialistContact"`
	HospitalContact                   string           `json:"HospitalContact"`
	EmergencyCareNotes                string           `json:"EmergencyCareNotes"`
	MedicalReportUpload               string           `json:"medicalReportUpload"`
	KnownAllergies                    bool             `json:"knownAllergies"`
	Medications                       []map[string]any `json:"medications"`
	ClientAllergies                   []ClientAllergy  `json:"clientAllergies"`
}

type ClientAllergy struct {
	Allergy                    string `json:"allergy"`
	AllergyDetails             string `json:"allergyDetails"`
	Severity                   string `json:"severity"`
	AllergyMedicationFrequency string `json:"allergyMedicationFrequency"`
	AllergyMedicationName      string `json:"allergyMedicationName"`
	AllergyMedicationDosage    string `json:"allergyMedicationDosage"`
	// Appointments is the next appointment date, or "" when none parses.
	Appointments string `json:"Appointments"`
	KnownTrigger string `json:"knownTrigger"`
}

type PsychologicalInfo struct {
	HealthLevelSatisfaction     string `json:"healthLevelSatisfaction"`
	HealthMotivationalLevel     string `json:"healthMotivationalLevel"`
	SleepMood                   string `json:"sleepMood"`
	SpecifySleepMood            string `json:"specifySleepMood"`
	SleepStatus                 string `json:"sleepStatus"`
	AnyoneWorriedAboutMemory    bool   `json:"anyoneWorriedAboutMemory"`
	MemoryStatus                string `json:"memoryStatus"`
	SpecifyMemoryStatus         string `json:"specifyMemoryStatus"`
	CanTheyDoHouseKeeping       string `json:"canTheyDoHouseKeeping"`
	HouseKeepingSupport         bool   `json:"houseKeepingSupport"`
	HouseKeepingAdditionalNotes string `json:"houseKeepingAdditionalNotes"`
}

type FoodHydration struct {
	DietaryRequirements                   string `json:"dietaryRequirements"`
	FoodOrDrinkAllergies                  bool   `json:"foodOrDrinkAllergies"`
	FoodAllergiesSpecification            string `json:"foodAllergiesSpecification"`
	AllergiesImpact                       string `json:"allergiesImpact"`
	FavouriteFoods                        string `json:"favouriteFoods"`
	FoodTextures                          string `json:"foodTextures"`
	AppetiteLevel                         string `json:"appetiteLevel"`
	SwallowingDifficulties                string `json:"swallowingDifficulties"`
	MedicationsAffectingSwallowing        string `json:"medicationsAffectingSwallowing"`
	SpecifyMedicationsAffectingSwallowing string `json:"specifyMedicationsAffectingSwallowing"`
	CanFeedSelf                           string `json:"canFeedSelf"`
	CanPrepareLightMeals                  string `json:"canPrepareLightMeals"`
	CanCookMeals                          string `json:"canCookMeals"`
	ClientFoodGiver                       string `json:"clientFoodGiver"`
	MealtimeSupport                       string `json:"mealtimeSupport"`
	HydrationSchedule                     string `json:"hydrationSchedule"`
	StrongDislikes                        string `json:"strongDislikes"`
	FluidPreferences                      string `json:"fluidPreferences"`
}

type Routine struct {
	PersonalBiography              string `json:"PersonalBiography"`
	HaveJob                        bool   `json:"haveJob"`
	AboutJob                       string `json:"aboutJob"`
	HaveImportantPerson            bool   `json:"haveImportantPerson"`
	AboutImportantPerson           string `json:"aboutImportantPerson"`
	SignificantPersonHasLocation   bool   `json:"significantPersonHasLocation"`
	ImportantPersonLocationEffects string `json:"importantPersonLocationEffects"`
	CanMaintainOralHygiene         string `json:"canMaintainOralHygiene"`
	CareGiverGenderPreference      string `json:"careGiverGenderPreference"`
	AutonomyPreference             string `json:"autonomyPreference"`
	DailyRoutine                   string `json:"dailyRoutine"`
	HaveSpecificImportantRoutine   bool   `json:"haveSpecificImportantRoutine"`
	SpecificRoutineDetails         string `json:"specificRoutineDetails"`
	HaveDislikes                   bool   `json:"haveDislikes"`
	DislikesEffect                 string `json:"dislikesEffect"`
	HaveHobbiesRoutines            bool   `json:"haveHobbiesRoutines"`
	HobbiesRoutinesEffect          string `json:"hobbiesRoutinesEffect"`
}

type CultureValues struct {
	ReligiousBackground                 string   `json:"religiousBackground"`
	EthnicGroup                         string   `json:"ethnicGroup"`
	CulturalAccommodation               string   `json:"culturalAccommodation"`
	SexualityAndRelationshipPreferences string   `json:"sexualityandRelationshipPreferences"`
	SexImpartingCareNeeds               string   `json:"sexImpartingCareNeeds"`
	PreferredLanguage                   string   `json:"preferredLanguage"`
	CommunicationStyleNeeds             []string `json:"communicationStyleNeeds"`
	PreferredMethodOfCommunication      string   `json:"preferredMethodOfCommunication"`
	KeyFamilyMembers                    string   `json:"keyFamilyMembers"`
	ReceivesInformalCare                bool     `json:"receivesInformalCare"`
	InformalCareByWho                   string   `json:"informalCareByWho"`
	SupportMethodByInformalCare         string   `json:"supportMethodByInformalCare"`
	ConcernsOnInformalCare              string   `json:"concernsOnInformalCare"`
	SpecifyConcernsOnInformalCare       string   `json:"specifyConcernsOnInformalCare"`
	ReceivesFormalCare                  bool     `json:"receivesFormalCare"`
	SpecifyFormalCare                   string   `json:"specifyFormalCare"`
	SocialGroupAndCommunity             string   `json:"socialGroupAndCommunity"`
	EmotionalSupportNeeds               []string `json:"emotionalSupportNeeds"`
	MentalWellbeingTracking             bool     `json:"mentalWellbeingTracking"`
}

type BodyMap struct {
	VisitFrequency              string  `json:"visitFrequency"`
	CarePlanReviewDate          string  `json:"carePlanReviewDate"`
	InvoicingCycle              string  `json:"invoicingCycle"`
	FundingAndInsuranceDetails  string  `json:"fundingAndInsuranceDetails"`
	AssignedCareManager         string  `json:"assignedCareManager"`
	InitialClinicalObservations bool    `json:"initialClinicalObservations"`
	InitialSkinIntegrity        bool    `json:"initialSkinIntegrity"`
	Type                        string  `json:"type"`
	Size                        string  `json:"size"`
	LocationDescription         string  `json:"locationDescription"`
	DateFirstObserved           Instant `json:"dateFirstObserved"`
	Weight                      string  `json:"weight"`
	Height                      string  `json:"height"`
}

type IntakeEntry struct {
	Time   string `json:"time"`
	Amount string `json:"amount"`
}

type MovingHandling struct {
	EquipmentNeeds                  string        `json:"equipmentsNeeds"`
	AnyPainDuringRestingAndMovement string        `json:"anyPainDuringRestingAndMovement"`
	AnyCognitiveImpairment          string        `json:"anyCognitiveImpairment"`
	BehaviouralChanges              bool          `json:"behaviouralChanges"`
	DescribeBehaviouralChanges      string        `json:"describeBehaviouralChanges"`
	WalkIndependently               bool          `json:"walkIndependently"`
	StandingBalanceDependence       string        `json:"standingBalanceDependence"`
	ManageStairs                    bool          `json:"manageStairs"`
	SittingToStandingDependence     string        `json:"sittingToStandingDependence"`
	LimitedSittingBalance           bool          `json:"limitedSittingBalance"`
	TurnInBed                       bool          `json:"turnInBed"`
	LyingToSittingDependence        bool          `json:"lyingToSittingDependence"`
	GettingUpFromChairDependence    string        `json:"gettingUpFromChairDependence"`
	BathOrShower                    string        `json:"bathOrShower"`
	ChairToCommodeOrBed             bool          `json:"chairToCommodeOrBed"`
	ProfilingBedAndMattress         bool          `json:"profilingBedAndMattress"`
	TransferRisks                   []string      `json:"transferRisks"`
	BehaviouralChallenges           []string      `json:"behaviouralChallenges"`
	RiskManagementPlan              string        `json:"riskManagementPlan"`
	LocationRiskReview              string        `json:"locationRiskReview"`
	EvacuationPlanRequired          bool          `json:"EvacuationPlanRequired"`
	DailyGoal                       string        `json:"dailyGoal"`
	IntakeLog                       []IntakeEntry `json:"IntakeLog"`
	DehydrationAlertEnabled         bool          `json:"dehydrationAlertEnabled"`
}

type LegalRequirement struct {
	AttorneyInPlace               bool     `json:"attorneyInPlace"`
	AttorneyType                  string   `json:"attorneyType"`
	AttorneyName                  string   `json:"attorneyName"`
	AttorneyContact               string   `json:"attorneyContact"`
	AttorneyEmail                 string   `json:"attorneyEmail"`
	Solicitor                     string   `json:"solicitor"`
	CertificateNumber             string   `json:"certificateNumber"`
	CertificateUpload             string   `json:"certificateUpload"`
	DigitalConsentsAndPermissions []string `json:"digitalConsentsAndPermissions"`
	ConsentUpload                 string   `json:"consertUpload"`
}

// Slot is one normalized visit window.
type Slot struct {
	ID        string  `json:"id,omitempty"`
	StartTime Instant `json:"startTime"`
	EndTime   Instant `json:"endTime"`
}

// Visit is one day of the agreed weekly schedule.
type Visit struct {
	Enabled    bool   `json:"enabled"`
	Slots      []Slot `json:"slots"`
	LunchStart string `json:"lunchStart,omitempty"`
	LunchEnd   string `json:"lunchEnd,omitempty"`
}

type CareRequirements struct {
	CareType         string           `json:"careType"`
	ContractStart    Instant          `json:"contractStart"`
	ContractEnd      Instant          `json:"contractEnd"`
	AgreedCareVisits map[string]Visit `json:"agreedCareVisits"`
}

// Attachment references an uploaded resource.
type Attachment struct {
	Field       string `json:"field"`
	BlobID      string `json:"blobId"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}
