package specs

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Placeholder is how a missing spec value is rendered.
const Placeholder = "—"

// Sentinel marks "no data" for a spec. It is distinct from a real zero or
// empty string.
type Sentinel struct{}

// Missing is the sentinel value returned for specs without usable data.
var Missing = Sentinel{}

// String renders the placeholder.
func (Sentinel) String() string { return Placeholder }

// MarshalJSON renders the placeholder.
func (Sentinel) MarshalJSON() ([]byte, error) { return json.Marshal(Placeholder) }

// IsMissing reports whether v is the Missing sentinel.
func IsMissing(v any) bool {
	_, ok := v.(Sentinel)
	return ok
}

// Shape is the closed set of spec value layouts.
type Shape int

const (
	// ShapeScalar is a string, number, bool, null or list.
	ShapeScalar Shape = iota
	// ShapeTagged is {value: V, confidence?, sources?}.
	ShapeTagged
	// ShapeRange is {min: N, max: N, ...}.
	ShapeRange
	// ShapeFreeForm is any other mapping.
	ShapeFreeForm
)

func (s Shape) String() string {
	switch s {
	case ShapeTagged:
		return "tagged"
	case ShapeRange:
		return "range"
	case ShapeFreeForm:
		return "free_form"
	default:
		return "scalar"
	}
}

// metadataKeys are never picked as the display value of a free-form object.
var metadataKeys = map[string]struct{}{
	"confidence": {},
	"sources":    {},
	"unit":       {},
}

// Normalized maps spec keys to display-ready values.
type Normalized map[string]any

// Get returns the value for key, or Missing when absent.
func (n Normalized) Get(key string) any {
	if v, ok := n[key]; ok {
		return v
	}
	return Missing
}

// Classify decides which shape a raw spec value has.
func Classify(v any) Shape {
	obj, ok := asObject(v)
	if !ok {
		return ShapeScalar
	}
	if obj.Has("value") {
		return ShapeTagged
	}
	if obj.Has("min") && obj.Has("max") {
		return ShapeRange
	}
	return ShapeFreeForm
}

// Normalize flattens every spec in the mapping. The result always has the
// same key set as the input.
func Normalize(specs *Object) Normalized {
	out := make(Normalized, specs.Len())
	specs.Range(func(key string, value any) bool {
		out[key] = NormalizeValue(value)
		return true
	})
	return out
}

// NormalizeValue flattens a single raw spec value. It never fails.
func NormalizeValue(v any) any {
	switch Classify(v) {
	case ShapeTagged:
		obj, _ := asObject(v)
		val, _ := obj.Get("value")
		if val == nil {
			return Missing
		}
		return val
	case ShapeRange:
		obj, _ := asObject(v)
		lo, _ := obj.Get("min")
		hi, _ := obj.Get("max")
		return formatBound(lo) + "-" + formatBound(hi)
	case ShapeFreeForm:
		obj, _ := asObject(v)
		found := any(Missing)
		obj.Range(func(key string, value any) bool {
			if _, meta := metadataKeys[key]; meta {
				return true
			}
			if truthy(value) {
				found = value
				return false
			}
			return true
		})
		return found
	default:
		if v == nil {
			return Missing
		}
		return v
	}
}

// Numeric extracts a numeric reading from a raw spec value: the tagged value,
// the lower bound of a range, the first truthy free-form entry, or the scalar.
func Numeric(v any) (float64, bool) {
	switch Classify(v) {
	case ShapeTagged:
		obj, _ := asObject(v)
		val, _ := obj.Get("value")
		return toFloat(val)
	case ShapeRange:
		obj, _ := asObject(v)
		lo, _ := obj.Get("min")
		return toFloat(lo)
	case ShapeFreeForm:
		return toFloat(NormalizeValue(v))
	default:
		return toFloat(v)
	}
}

// Lookup walks a dotted path ("battery.capacity_mah") through nested objects.
func Lookup(specs *Object, path string) (any, bool) {
	if specs == nil || path == "" {
		return nil, false
	}

	var cur any = specs
	for _, part := range strings.Split(path, ".") {
		obj, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		next, ok := obj.Get(part)
		if !ok || next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Provenance describes where a spec value came from.
type Provenance struct {
	Value      any      `json:"value"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources"`
}

const defaultConfidence = 0.9

var defaultSources = []string{"manufacturer"}

// ProvenanceOf reads confidence and sources metadata off a raw spec value,
// defaulting when the value carries none.
func ProvenanceOf(v any) Provenance {
	p := Provenance{
		Value:      v,
		Confidence: defaultConfidence,
		Sources:    append([]string(nil), defaultSources...),
	}

	obj, ok := asObject(v)
	if !ok {
		return p
	}
	if val, ok := obj.Get("value"); ok {
		p.Value = val
	}
	if c, ok := obj.Get("confidence"); ok {
		if f, ok := toFloat(c); ok {
			p.Confidence = f
		}
	}
	if s, ok := obj.Get("sources"); ok {
		if list, ok := s.([]any); ok {
			sources := make([]string, 0, len(list))
			for _, item := range list {
				if str, ok := item.(string); ok {
					sources = append(sources, str)
				}
			}
			p.Sources = sources
		}
	}
	return p
}

func asObject(v any) (*Object, bool) {
	switch t := v.(type) {
	case *Object:
		return t, t != nil
	case Object:
		return &t, true
	case map[string]any:
		return FromMap(t), true
	default:
		return nil, false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case Sentinel:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f != 0
		}
		return t != ""
	case *Object:
		return t.Len() > 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// formatBound renders one end of a range. A bound that is itself a spec
// object is flattened first; one without data renders like a null bound.
func formatBound(v any) string {
	if _, ok := asObject(v); ok {
		v = NormalizeValue(v)
		if IsMissing(v) {
			v = nil
		}
	}
	return formatScalar(v)
}

func formatScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case json.Number:
		return t.String()
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case bool, nil:
		return 0, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
