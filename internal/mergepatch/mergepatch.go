// Package mergepatch implements JSON Merge Patch as defined in RFC 7396.
//
// Documents are generic JSON value trees as produced by encoding/json: map[string]any for objects, []any for
// arrays, and string, float64, json.Number, bool or nil for scalars. Inputs are never mutated.
package mergepatch

// Apply returns the result of applying patch to target.
//
// If patch is not an object it replaces target wholesale. Otherwise target is treated as an object (an empty one if it
// is not), null members of patch delete keys, object members are merged recursively into the corresponding member of
// target, and every other member replaces the corresponding key. Arrays are never merged element-wise.
func Apply(target, patch any) any {
	patchObject, ok := patch.(map[string]any)
	if !ok {
		return patch
	}

	targetObject, ok := target.(map[string]any)
	if !ok {
		targetObject = nil
	}

	result := make(map[string]any, len(targetObject)+len(patchObject))
	for key, value := range targetObject {
		result[key] = value
	}

	for key, value := range patchObject {
		if value == nil {
			delete(result, key)
			continue
		}
		if valueObject, isObject := value.(map[string]any); isObject {
			// A missing or non-object member merges as if it were empty, which also drops nested nulls.
			result[key] = Apply(result[key], valueObject)
			continue
		}
		result[key] = value
	}

	return result
}

// ApplyObject applies patch to the object target and returns the merged object.
//
// Unlike [Apply], both sides are objects so the result is always an object.
func ApplyObject(target, patch map[string]any) map[string]any {
	result, _ := Apply(target, patch).(map[string]any)
	return result
}

// Clone returns a deep copy of a JSON value tree.
func Clone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		cloned := make(map[string]any, len(v))
		for key, member := range v {
			cloned[key] = Clone(member)
		}
		return cloned
	case []any:
		cloned := make([]any, len(v))
		for i, element := range v {
			cloned[i] = Clone(element)
		}
		return cloned
	default:
		return v
	}
}
