package indigo

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Well-known message tags on the INDIGO JSON wire.
const (
	// Outbound tags (client -> server).
	TagNewNumberVector = "newNumberVector"
	TagNewSwitchVector = "newSwitchVector"
	TagNewTextVector   = "newTextVector"
	TagGetProperties   = "getProperties"

	// Inbound action tags (server -> client).
	TagSetNumberVector = "setNumberVector"
	TagSetSwitchVector = "setSwitchVector"
	TagSetLightVector  = "setLightVector"
	TagSetTextVector   = "setTextVector"
	TagDefNumberVector = "defNumberVector"
	TagDefSwitchVector = "defSwitchVector"
)

// VectorType classifies a property vector's item type.
type VectorType int

// Vector types.
const (
	VectorUnknown VectorType = iota
	VectorNumber
	VectorSwitch
	VectorLight
	VectorText
)

// String returns the lowercase name of the vector type.
func (t VectorType) String() string {
	switch t {
	case VectorNumber:
		return "number"
	case VectorSwitch:
		return "switch"
	case VectorLight:
		return "light"
	case VectorText:
		return "text"
	default:
		return "unknown"
	}
}

// Item is a single named value within a property vector.
type Item struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// PropertyVector is one parsed inbound message: a named, typed group of
// device attribute values. Vectors are immutable once parsed; consumers
// derive their own state and discard them.
type PropertyVector struct {
	// Kind is the dispatch key: the message's action tag, its envelope
	// tag, or the vector name as a fallback.
	Kind string

	// Type is derived from the tag (number/switch/light/text).
	Type VectorType

	Device string
	Name   string
	Items  []Item
}

// Item returns the named item and whether it was present.
func (v PropertyVector) Item(name string) (Item, bool) {
	for _, it := range v.Items {
		if it.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

// Number returns the named item coerced to float64.
// The second return is false if the item is missing or non-numeric.
func (v PropertyVector) Number(name string) (float64, bool) {
	it, ok := v.Item(name)
	if !ok {
		return 0, false
	}
	switch val := it.Value.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Switch returns the named item coerced to bool. Missing items are false.
func (v PropertyVector) Switch(name string) bool {
	it, ok := v.Item(name)
	if !ok {
		return false
	}
	switch val := it.Value.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return strings.EqualFold(val, "true") || strings.EqualFold(val, "on")
	default:
		return false
	}
}

// Text returns the named item as a string. Missing items return "".
func (v PropertyVector) Text(name string) string {
	it, ok := v.Item(name)
	if !ok {
		return ""
	}
	s, _ := it.Value.(string)
	return s
}

// Message is one outbound protocol message: a tag wrapping a vector payload.
// It marshals to the wire envelope {tag: {device, name, items}}.
type Message struct {
	Tag     string
	Device  string
	Name    string
	Items   []Item
}

// MarshalJSON implements the single-key envelope encoding.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Tag == "" {
		return nil, fmt.Errorf("%w: empty message tag", ErrInvalidMessage)
	}
	payload := struct {
		Device string `json:"device"`
		Name   string `json:"name"`
		Items  []Item `json:"items,omitempty"`
	}{m.Device, m.Name, m.Items}

	return json.Marshal(map[string]any{m.Tag: payload})
}

// NewNumberVector builds a newNumberVector message.
func NewNumberVector(device, name string, items ...Item) Message {
	return Message{Tag: TagNewNumberVector, Device: device, Name: name, Items: items}
}

// NewSwitchVector builds a newSwitchVector message.
func NewSwitchVector(device, name string, items ...Item) Message {
	return Message{Tag: TagNewSwitchVector, Device: device, Name: name, Items: items}
}

// GetProperties builds a getProperties request for one property vector.
func GetProperties(device, name string) Message {
	return Message{Tag: TagGetProperties, Device: device, Name: name}
}

// Num is a convenience constructor for a numeric item.
func Num(name string, value float64) Item {
	return Item{Name: name, Value: value}
}

// Sw is a convenience constructor for a switch item.
func Sw(name string, on bool) Item {
	return Item{Name: name, Value: on}
}

// rawEnvelope is the superset of inbound wire shapes. Messages arrive
// either flat ({"action": ..., "device": ..., "items": [...]}) or wrapped
// in a single-key envelope ({"setNumberVector": {...}}).
type rawEnvelope struct {
	Action   string          `json:"action"`
	Device   string          `json:"device"`
	Name     string          `json:"name"`
	Items    []Item          `json:"items"`
	Elements json.RawMessage `json:"elements"`
}

// envelopeTags are single-key wrappers recognised during parsing.
var envelopeTags = []string{
	TagSetNumberVector, TagSetSwitchVector, TagSetLightVector, TagSetTextVector,
	TagDefNumberVector, TagDefSwitchVector,
	TagNewNumberVector, TagNewSwitchVector, TagNewTextVector, TagGetProperties,
}

// ParseLine parses one newline-trimmed JSON line into a PropertyVector.
//
// The dispatch kind is resolved in order of preference: a single-key
// envelope tag, the explicit action field, then the vector name.
//
// Parameters:
//   - line: One complete JSON object, without the trailing newline
//
// Returns:
//   - PropertyVector: Parsed vector with dispatch kind set
//   - error: ErrInvalidMessage if the line is not a JSON object
func ParseLine(line []byte) (PropertyVector, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(line, &top); err != nil {
		return PropertyVector{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	// Envelope form: exactly one recognised wrapper key.
	for _, tag := range envelopeTags {
		payload, ok := top[tag]
		if !ok {
			continue
		}
		var raw rawEnvelope
		if err := json.Unmarshal(payload, &raw); err != nil {
			return PropertyVector{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
		return buildVector(tag, raw), nil
	}

	// Flat form: action-or-name discriminator at top level.
	var raw rawEnvelope
	if err := json.Unmarshal(line, &raw); err != nil {
		return PropertyVector{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	kind := raw.Action
	if kind == "" {
		kind = raw.Name
	}
	if kind == "" {
		return PropertyVector{}, fmt.Errorf("%w: no action or name discriminator", ErrInvalidMessage)
	}
	return buildVector(kind, raw), nil
}

// buildVector assembles a PropertyVector from a parsed envelope.
func buildVector(kind string, raw rawEnvelope) PropertyVector {
	items := raw.Items
	if items == nil && len(raw.Elements) > 0 {
		items = parseElements(raw.Elements)
	}

	return PropertyVector{
		Kind:   kind,
		Type:   typeFromTag(kind),
		Device: raw.Device,
		Name:   raw.Name,
		Items:  items,
	}
}

// parseElements converts the map-form "elements" field into items.
// Values may be scalars or nested {"value": ...} objects.
func parseElements(data json.RawMessage) []Item {
	var elems map[string]json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil
	}

	items := make([]Item, 0, len(elems))
	for name, rawVal := range elems {
		var nested struct {
			Value any `json:"value"`
		}
		if err := json.Unmarshal(rawVal, &nested); err == nil && nested.Value != nil {
			items = append(items, Item{Name: name, Value: nested.Value})
			continue
		}
		var scalar any
		if err := json.Unmarshal(rawVal, &scalar); err == nil {
			items = append(items, Item{Name: name, Value: scalar})
		}
	}
	return items
}

// typeFromTag derives the item type from a message tag.
func typeFromTag(tag string) VectorType {
	switch {
	case strings.Contains(tag, "Number"):
		return VectorNumber
	case strings.Contains(tag, "Switch"):
		return VectorSwitch
	case strings.Contains(tag, "Light"):
		return VectorLight
	case strings.Contains(tag, "Text"):
		return VectorText
	default:
		return VectorUnknown
	}
}
