// Package path implements the dotted-path-with-bracket-index navigation
// spec.md §4.2 describes for FHIR Generator path synthesis, grounded on
// original_source/application/usecases/fhir.rs's parse_array_path/
// set_nested_value and original_source/utils/replace.rs's
// set_value_by_path (unified here into one setter, since both perform the
// same navigate-or-create-then-assign operation on a tagged JSON tree
// represented as map[string]interface{}/[]interface{}).
package path

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// step is one dot-separated token of a destiny path: a field name plus
// zero or more bracketed array indices, e.g. "extension[2]" -> {"extension",
// []int{2}}, or a chained "telecom[0][1]" -> {"telecom", []int{0, 1}}.
type step struct {
	name    string
	indices []int
}

var tokenPattern = regexp.MustCompile(`^([A-Za-z0-9_]+)((?:\[\d+\])*)$`)
var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

// ParseSteps tokenizes a dotted destiny path into its steps.
func ParseSteps(dottedPath string) ([]step, error) {
	parts := strings.Split(dottedPath, ".")
	steps := make([]step, 0, len(parts))
	for _, part := range parts {
		m := tokenPattern.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("invalid path token %q in %q", part, dottedPath)
		}
		var indices []int
		for _, im := range indexPattern.FindAllStringSubmatch(m[2], -1) {
			idx, err := strconv.Atoi(im[1])
			if err != nil {
				return nil, fmt.Errorf("invalid index in token %q: %w", part, err)
			}
			indices = append(indices, idx)
		}
		steps = append(steps, step{name: m[1], indices: indices})
	}
	return steps, nil
}

// ParseArrayPath splits a single token (e.g. "extension[2]") into its bare
// field name and bracketed indices, mirroring fhir.rs's parse_array_path.
func ParseArrayPath(token string) (string, []int, error) {
	steps, err := ParseSteps(token)
	if err != nil || len(steps) != 1 {
		return "", nil, fmt.Errorf("invalid single path token %q", token)
	}
	return steps[0].name, steps[0].indices, nil
}

// Set navigates root, creating intermediate objects/arrays as needed, and
// assigns value at the tail of dottedPath. Arrays are padded with empty
// objects up to the needed index, per spec.md §4.2.
func Set(root map[string]interface{}, dottedPath string, value interface{}) error {
	steps, err := ParseSteps(dottedPath)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return fmt.Errorf("empty path")
	}
	setInObject(root, steps, value)
	return nil
}

func setInObject(obj map[string]interface{}, steps []step, value interface{}) {
	s := steps[0]
	if len(s.indices) == 0 {
		if len(steps) == 1 {
			obj[s.name] = value
			return
		}
		child, _ := obj[s.name].(map[string]interface{})
		if child == nil {
			child = map[string]interface{}{}
		}
		setInObject(child, steps[1:], value)
		obj[s.name] = child
		return
	}

	arr, _ := obj[s.name].([]interface{})
	obj[s.name] = setInArray(arr, s.indices, steps[1:], value)
}

func setInArray(arr []interface{}, indices []int, rest []step, value interface{}) []interface{} {
	idx := indices[0]
	for len(arr) <= idx {
		arr = append(arr, map[string]interface{}{})
	}

	if len(indices) > 1 {
		childArr, _ := arr[idx].([]interface{})
		arr[idx] = setInArray(childArr, indices[1:], rest, value)
		return arr
	}

	if len(rest) == 0 {
		arr[idx] = value
		return arr
	}

	child, _ := arr[idx].(map[string]interface{})
	if child == nil {
		child = map[string]interface{}{}
	}
	setInObject(child, rest, value)
	arr[idx] = child
	return arr
}

// Get navigates root along dottedPath without creating anything, returning
// the value and whether every step resolved.
func Get(root map[string]interface{}, dottedPath string) (interface{}, bool) {
	steps, err := ParseSteps(dottedPath)
	if err != nil || len(steps) == 0 {
		return nil, false
	}
	var cur interface{} = root
	for _, s := range steps {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, present := obj[s.name]
		if !present {
			return nil, false
		}
		cur = v
		for _, idx := range s.indices {
			arr, ok := cur.([]interface{})
			if !ok || idx >= len(arr) {
				return nil, false
			}
			cur = arr[idx]
		}
	}
	return cur, true
}

// SiblingPath replaces the trailing oldSuffix of a dotted path with
// newSuffix, reporting false when the path does not end in oldSuffix. The
// Replacer uses it with ".code"/".display" to stamp the terminology display
// value next to the code it was derived from.
func SiblingPath(dottedPath, oldSuffix, newSuffix string) (string, bool) {
	if !strings.HasSuffix(dottedPath, oldSuffix) {
		return "", false
	}
	return strings.TrimSuffix(dottedPath, oldSuffix) + newSuffix, true
}
