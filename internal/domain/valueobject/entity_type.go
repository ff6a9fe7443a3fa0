package valueobject

import "strings"

// EntityType names the kind of FHIR resource an Integration produces. It is
// stored and compared in upper-case form; the source table name and the
// FHIR resourceType are both derived from it.
type EntityType string

const (
	EntityTypePatient      EntityType = "PATIENT"
	EntityTypeEncounter    EntityType = "ENCOUNTER"
	EntityTypeObservation  EntityType = "OBSERVATION"
	EntityTypeCondition    EntityType = "CONDITION"
	EntityTypeProcedure    EntityType = "PROCEDURE"
	EntityTypeMedication   EntityType = "MEDICATION"
	EntityTypeAllergy      EntityType = "ALLERGY"
	EntityTypeLocation     EntityType = "LOCATION"
	EntityTypeOrganization EntityType = "ORGANIZATION"
	EntityTypePractitioner EntityType = "PRACTITIONER"
	EntityTypeBundle       EntityType = "BUNDLE"
)

func (e EntityType) String() string { return string(e) }

// NormalizeEntityType upper-cases an entity type the way the extractor boundary
// normalizes column names, so callers don't re-normalize in the hot loop.
func NormalizeEntityType(s string) EntityType {
	return EntityType(strings.ToUpper(strings.TrimSpace(s)))
}

// TableName derives the client-side staging table name, UPPER(entityType)
// + "_INTERHEALTH".
func (e EntityType) TableName() string {
	return strings.ToUpper(string(e)) + "_INTERHEALTH"
}

// FHIRResourceType capitalizes the entity type the way the Generator stamps
// resource.resourceType, e.g. PATIENT -> Patient.
func (e EntityType) FHIRResourceType() string {
	s := strings.ToLower(string(e))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// IsBundle reports whether this entity type triggers inter-resource UUID
// reference rewriting.
func (e EntityType) IsBundle() bool {
	return e == EntityTypeBundle
}

// itemCodeFields maps an entity type to the source-row field name that
// identifies a failed record, per sync/worker.rs's extract_item_code.
var itemCodeFields = map[EntityType]string{
	EntityTypePatient:      "patient_code",
	EntityTypeEncounter:    "encounter_code",
	EntityTypeObservation:  "observation_code",
	EntityTypeCondition:    "condition_code",
	EntityTypeProcedure:    "procedure_code",
	EntityTypeMedication:   "medication_code",
	EntityTypeAllergy:      "allergy_code",
	EntityTypeLocation:     "location_code",
	EntityTypeOrganization: "organization_code",
	EntityTypePractitioner: "practitioner_code",
}

// ItemCodeField returns the record field used to populate failedItemCodes
// for this entity type, and false if the entity type has no known field.
func (e EntityType) ItemCodeField() (string, bool) {
	f, ok := itemCodeFields[e]
	return f, ok
}

// ExtractItemCode reads the item code field for this entity type out of a
// source record, returning "" and false if there is no known field or the
// field is absent/empty.
func (e EntityType) ExtractItemCode(record map[string]interface{}) (string, bool) {
	field, ok := e.ItemCodeField()
	if !ok {
		return "", false
	}
	v, ok := record[field]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
