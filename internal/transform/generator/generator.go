// Package generator implements the FHIR Resource Generator: a deterministic
// projection from a field-mapping document into a FHIR-shaped document
// carrying origin-column-name placeholders, per spec.md §4.2. Grounded on
// original_source/application/usecases/fhir.rs's
// generate_resource_with_transformations.
package generator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	domainerrors "github.com/interhealth/syncengine/internal/domain/errors"
	"github.com/interhealth/syncengine/internal/domain/entity"
	"github.com/interhealth/syncengine/internal/domain/valueobject"
	"github.com/interhealth/syncengine/internal/transform/path"
)

// Tag systems for the three fixed meta.tag entries every generated
// resource carries. original_source stamps (client-id, data-provider,
// data-type) tag triples by index; this implementation gives each a
// distinct `system` so a single meta.tag array unambiguously carries all
// three without relying on positional order.
const (
	tagSystemClientID     = "https://syncengine.interhealth/tags/client-id"
	tagSystemDataProvider = "https://syncengine.interhealth/tags/data-provider"
	tagSystemDataType     = "https://syncengine.interhealth/tags/data-type"

	tagClientID     = "INTERHEALTH"
	tagDataProvider = "interhealth"

	// IfNoneExistSentinelSystem/Value are the literal placeholders used
	// when the resource has no identifier to derive ifNoneExist from,
	// taken verbatim from original_source's
	// __IDENTIFIER_SYSTEM__/__IDENTIFIER_VALUE__ fallback.
	IfNoneExistSentinelSystem = "__IDENTIFIER_SYSTEM__"
	IfNoneExistSentinelValue  = "__IDENTIFIER_VALUE__"
)

// Document is the three-part generated artifact: a Bundle-entry shape with
// a fresh fullUrl, the resource body, and the conditional-create request.
type Document struct {
	FullURL  string                 `json:"fullUrl"`
	Resource map[string]interface{} `json:"resource"`
	Request  map[string]interface{} `json:"request"`
}

// Generator produces placeholder-stage Documents from a Mapping. It has no
// state: for a fixed mapping and entity type its output is identical
// except for the fullUrl UUID (spec.md §8 invariant 9).
type Generator struct {
	newUUID func() string
}

// New builds a Generator using a real random UUID per call.
func New() *Generator {
	return &Generator{newUUID: func() string { return uuid.New().String() }}
}

// NewWithUUIDFunc builds a Generator with a deterministic UUID source, for
// tests asserting invariant 9 (determinism modulo UUIDs).
func NewWithUUIDFunc(fn func() string) *Generator {
	return &Generator{newUUID: fn}
}

// Generate produces a placeholder-stage Document for one source record
// governed by mapping. No record data is consulted: every leaf is either
// the lowercased origin column name (to be filled in later by the
// Replacer) or a referenceDestiny literal.
func (g *Generator) Generate(m *entity.Mapping) (*Document, error) {
	resourceType := m.EntityType.FHIRResourceType()
	resource := map[string]interface{}{
		"resourceType": resourceType,
		"meta": map[string]interface{}{
			"tag": []interface{}{
				map[string]interface{}{"system": tagSystemClientID, "code": tagClientID},
				map[string]interface{}{"system": tagSystemDataProvider, "code": tagDataProvider},
				map[string]interface{}{"system": tagSystemDataType, "code": fmt.Sprintf("%s-Resource", resourceType)},
			},
		},
	}

	for _, fm := range m.Fields {
		if err := applyFieldMapping(resource, fm); err != nil {
			return nil, domainerrors.ErrTransformError.WithCause(err)
		}
	}

	fullURL := "urn:uuid:" + g.newUUID()

	return &Document{
		FullURL:  fullURL,
		Resource: resource,
		Request: map[string]interface{}{
			"method": "POST",
			"url":    resourceType,
			"ifNoneExist": fmt.Sprintf("identifier=%s|%s",
				IfNoneExistSentinelSystem, IfNoneExistSentinelValue),
		},
	}, nil
}

func applyFieldMapping(resource map[string]interface{}, fm entity.FieldMapping) error {
	placeholder := strings.ToLower(fm.OriginField)

	value := placeholder
	if fm.RelationshipDestiny != "" && strings.HasSuffix(fm.DestinyPath, ".reference") {
		value = fm.RelationshipDestiny + "/" + placeholder
	}

	if err := path.Set(resource, fm.DestinyPath, value); err != nil {
		return fmt.Errorf("field %q -> %q: %w", fm.OriginField, fm.DestinyPath, err)
	}

	if len(fm.ReferenceDestiny) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fm.ReferenceDestiny))
	for k := range fm.ReferenceDestiny {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := path.Set(resource, k, fm.ReferenceDestiny[k]); err != nil {
			return fmt.Errorf("referenceDestiny %q: %w", k, err)
		}
	}
	return nil
}

// EntityTypeOf is a small convenience used by callers that only have the
// raw string form of an entity type on hand.
func EntityTypeOf(s string) valueobject.EntityType {
	return valueobject.NormalizeEntityType(s)
}
