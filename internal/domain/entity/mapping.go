package entity

import (
	"github.com/google/uuid"

	"github.com/interhealth/syncengine/internal/domain/valueobject"
)

// FieldMapping is one row of a Mapping: it projects a single source column
// into a location inside the generated FHIR document.
type FieldMapping struct {
	ID         uuid.UUID
	OriginField string
	DestinyPath string // dotted navigation with bracketed indices, e.g. "telecom[0].value"
	DataType    string // "string", "datetime", "code", ...
	IsNullable  bool
	MinLength   *int
	MaxLength   *int
	IsEnumerable bool

	// TransformationID, when set, names the terminology owner used to
	// resolve this field's source value to a canonical code.
	TransformationID *uuid.UUID

	// ReferenceDestiny maps absolute dotted paths to literal values that
	// must be stamped into the same parent object as DestinyPath, e.g.
	// {"extension[2].url": "...", "extension[2].system": "..."}.
	ReferenceDestiny map[string]string

	// RelationshipDestiny is a resource-type prefix applied to reference
	// values when DestinyPath ends in ".reference".
	RelationshipDestiny string
}

// Mapping is the ordered set of field rules projecting one source row into
// one target document, keyed by (integration, origin table, destiny table,
// entity type).
type Mapping struct {
	ID            uuid.UUID
	IntegrationID uuid.UUID
	OriginTable   string
	DestinyTable  string
	EntityType    valueobject.EntityType
	Fields        []FieldMapping
}
