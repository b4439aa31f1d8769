package filter

import (
	"encoding/json"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/correlate/internal/ir"
)

// dataPrefix addresses into the event's structured payload.
const dataPrefix = "data."

// Accessor resolves an event attribute to the string used for predicate
// matching and correlation-key binding. Implementations must be pure.
type Accessor interface {
	Attribute(ev ir.Event, name string) (string, bool)
}

// AccessorFunc adapts a function to the Accessor interface.
type AccessorFunc func(ev ir.Event, name string) (string, bool)

// Attribute implements Accessor.
func (f AccessorFunc) Attribute(ev ir.Event, name string) (string, bool) {
	return f(ev, name)
}

// DefaultAccessor resolves the envelope attributes id, type, source and
// subject, plus dotted paths into the payload ("data.order.id").
//
// Values are NFC-normalized so that visually identical keys compare equal
// regardless of the producer's Unicode composition.
type DefaultAccessor struct{}

// Attribute implements Accessor.
func (DefaultAccessor) Attribute(ev ir.Event, name string) (string, bool) {
	switch name {
	case "id":
		return normalize(ev.ID)
	case "type":
		return normalize(ev.Type)
	case "source":
		return normalize(ev.Source)
	case "subject":
		return normalize(ev.Subject)
	}

	if !strings.HasPrefix(name, dataPrefix) {
		return "", false
	}

	value, ok := lookupPath(ev.Data, strings.Split(name[len(dataPrefix):], "."))
	if !ok {
		return "", false
	}
	s, ok := formatValue(value)
	if !ok {
		return "", false
	}
	return norm.NFC.String(s), true
}

// normalize reports empty envelope attributes as absent.
func normalize(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	return norm.NFC.String(s), true
}

// lookupPath walks nested maps following the path segments.
func lookupPath(data map[string]any, path []string) (any, bool) {
	var current any = data
	for _, segment := range path {
		m, ok := current.(map[string]any)
		if !ok || segment == "" {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// formatValue renders a scalar payload value as a string.
// Objects, arrays and null are not usable as keys.
func formatValue(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case json.Number:
		return val.String(), true
	default:
		return "", false
	}
}
