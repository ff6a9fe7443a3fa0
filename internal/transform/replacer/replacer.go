// Package replacer implements the post-fill stage described in spec.md
// §4.3: apply datetime/terminology transformations to the source record,
// substitute placeholder leaves with real values, couple terminology
// displays, prune empty reference structures, and (in Bundle mode)
// rewrite inter-resource references to urn:uuid form. Grounded on
// original_source/utils/replace.rs (replace_in_resource,
// apply_transformations, add_display_attributes,
// remove_empty_references/is_empty_structure).
package replacer

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/interhealth/syncengine/internal/domain/entity"
	"github.com/interhealth/syncengine/internal/transform/datetime"
	"github.com/interhealth/syncengine/internal/transform/generator"
	"github.com/interhealth/syncengine/internal/transform/path"
)

// TerminologyLookup is the small collaborator interface the Replacer needs
// from the Terminology Store, kept separate from the store's own package
// per spec.md §9's "pass small interfaces" design note.
type TerminologyLookup interface {
	Lookup(ctx context.Context, ownerID, tenantID uuid.UUID, sourceKey string) (code, description string, found bool, err error)
}

// fieldResult is the per-FieldMapping outcome of step 1 (datetime parse +
// terminology resolution) for a field whose terminology lookup matched,
// used to stamp its .display sibling after substitution.
type fieldResult struct {
	value          interface{}
	hasTerminology bool
	description    string
	destinyPath    string
}

// ApplyRecord mutates doc in place: substituting real record values for
// the Generator's placeholder leaves, applying datetime canonicalization
// and terminology enrichment, coupling .display siblings, recomputing
// ifNoneExist, and pruning empty reference structures. record keys are
// expected lowercased, matching the Source Extractor's column-name
// normalization.
func ApplyRecord(ctx context.Context, doc *generator.Document, record map[string]interface{}, m *entity.Mapping, lookup TerminologyLookup, tenantID uuid.UUID) error {
	values := make(map[string]interface{}, len(m.Fields))
	var descriptions []fieldResult

	for _, fm := range m.Fields {
		key := strings.ToLower(fm.OriginField)
		raw := record[key]

		value := raw
		if fm.DataType == "datetime" {
			if s, ok := value.(string); ok {
				if iso, ok2 := datetime.ToISO8601(s); ok2 {
					value = iso
				}
			}
		}

		var hasTerm bool
		var description string
		if fm.TransformationID != nil && lookup != nil {
			sourceKey := stringifyValue(value)
			code, desc, found, err := lookup.Lookup(ctx, *fm.TransformationID, tenantID, sourceKey)
			if err != nil {
				return err
			}
			if found {
				value = code
				description = desc
				hasTerm = true
			}
		}

		values[key] = value
		if hasTerm {
			if displayPath, ok := path.SiblingPath(fm.DestinyPath, ".code", ".display"); ok {
				descriptions = append(descriptions, fieldResult{
					value:       value,
					description: description,
					destinyPath: displayPath,
				})
			}
		}
	}

	doc.Resource = substitute(doc.Resource, values).(map[string]interface{})
	doc.Resource = replaceNulls(doc.Resource).(map[string]interface{})

	sort.Slice(descriptions, func(i, j int) bool { return descriptions[i].destinyPath < descriptions[j].destinyPath })
	for _, d := range descriptions {
		if err := path.Set(doc.Resource, d.destinyPath, d.description); err != nil {
			return fmt.Errorf("display path %q: %w", d.destinyPath, err)
		}
	}

	recomputeIfNoneExist(doc)

	doc.Resource = prune(doc.Resource).(map[string]interface{})

	return nil
}

func stringifyValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// substitute walks node, replacing any string leaf that matches a known
// origin column name (or, for "Type/columnName" references, whose suffix
// after the first "/" matches one) with the corresponding value.
func substitute(node interface{}, values map[string]interface{}) interface{} {
	switch t := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, v := range t {
			out[k] = substitute(v, values)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, v := range t {
			out[i] = substitute(v, values)
		}
		return out
	case string:
		lower := strings.ToLower(t)
		if idx := strings.Index(lower, "/"); idx >= 0 {
			prefix, suffix := t[:idx+1], lower[idx+1:]
			if v, ok := values[suffix]; ok {
				return prefix + stringifyValue(v)
			}
			return t
		}
		if v, ok := values[lower]; ok {
			return v
		}
		return t
	default:
		return t
	}
}

// replaceNulls walks node, turning any JSON null leaf into an empty
// string, per spec.md §4.3 step 3.
func replaceNulls(node interface{}) interface{} {
	switch t := node.(type) {
	case nil:
		return ""
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, v := range t {
			out[k] = replaceNulls(v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, v := range t {
			out[i] = replaceNulls(v)
		}
		return out
	default:
		return t
	}
}

// recomputeIfNoneExist reads the (now-substituted) resource.identifier[0]
// and, if both system and value are present non-empty strings, overwrites
// request.ifNoneExist with the real "identifier=<system>|<value>" form.
// Otherwise the Generator's placeholder sentinel form is left untouched.
func recomputeIfNoneExist(doc *generator.Document) {
	system, sysOK := path.Get(doc.Resource, "identifier[0].system")
	value, valOK := path.Get(doc.Resource, "identifier[0].value")
	if !sysOK || !valOK {
		return
	}
	sysStr, ok1 := system.(string)
	valStr, ok2 := value.(string)
	if !ok1 || !ok2 || sysStr == "" || valStr == "" {
		return
	}
	doc.Request["ifNoneExist"] = fmt.Sprintf("identifier=%s|%s", sysStr, valStr)
}

// isEmptyValue reports whether v should be considered empty for pruning
// purposes: nil, "", an empty object/array, an object whose every
// descendant is empty, or an object containing only a reference key whose
// value is empty, has no "/", or ends with "/".
func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]interface{}:
		if len(t) == 0 {
			return true
		}
		if len(t) == 1 {
			if ref, ok := t["reference"]; ok {
				if s, ok2 := ref.(string); ok2 {
					if s == "" || !strings.Contains(s, "/") || strings.HasSuffix(s, "/") {
						return true
					}
				}
			}
		}
		for _, child := range t {
			if !isEmptyValue(child) {
				return false
			}
		}
		return true
	case []interface{}:
		if len(t) == 0 {
			return true
		}
		for _, child := range t {
			if !isEmptyValue(child) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// prune recursively removes empty structures from node, per spec.md §4.3
// step 5 / §8 invariant 13. Children are pruned before a parent is judged.
func prune(node interface{}) interface{} {
	switch t := node.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make(map[string]interface{}, len(t))
		for _, k := range keys {
			child := prune(t[k])
			if isEmptyValue(child) {
				continue
			}
			out[k] = child
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(t))
		for _, item := range t {
			pruned := prune(item)
			if isEmptyValue(pruned) {
				continue
			}
			out = append(out, pruned)
		}
		return out
	default:
		return t
	}
}

// RewriteBundleReferences implements the BUNDLE-mode inter-resource
// rewrite of spec.md §4.3: any reference string "<ResourceType>/..." whose
// ResourceType matches one of docs' resourceTypes is replaced with that
// resource's urn:uuid fullUrl. Runs after per-record substitution so
// references whose type isn't present in the bundle are left untouched.
func RewriteBundleReferences(docs []*generator.Document) {
	typeToUUID := make(map[string]string, len(docs))
	for _, d := range docs {
		rt, _ := d.Resource["resourceType"].(string)
		if rt == "" {
			continue
		}
		typeToUUID[rt] = d.FullURL
	}
	for _, d := range docs {
		rewriteReferencesIn(d.Resource, typeToUUID)
	}
}

func rewriteReferencesIn(v interface{}, typeToUUID map[string]string) {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			if k == "reference" {
				if s, ok := val.(string); ok {
					if idx := strings.Index(s, "/"); idx > 0 {
						if urn, found := typeToUUID[s[:idx]]; found {
							t[k] = urn
							continue
						}
					}
				}
			}
			rewriteReferencesIn(val, typeToUUID)
		}
	case []interface{}:
		for _, item := range t {
			rewriteReferencesIn(item, typeToUUID)
		}
	}
}
