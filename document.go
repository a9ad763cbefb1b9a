package spacestatus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"time"

	"github.com/tidwall/jsonc"
)

// Document field names managed by the daemon. Everything else in the template
// is copied through unchanged.
const (
	keyState      = "state"
	keyDoor       = "ext_door"
	keyOpen       = "open"
	keyLocked     = "locked"
	keyLastChange = "lastchange"
)

// LeverState is the status lever part of the document.
type LeverState struct {
	Open       bool
	LastChange time.Time
}

// DoorState is the entry door part of the document.
type DoorState struct {
	Open       bool
	Locked     bool
	LastChange time.Time
}

// Document is the SpaceAPI status document. Values are copies; the live
// document is owned by [Store].
type Document struct {
	Lever LeverState
	Door  DoorState

	// meta is the parsed template. It is never modified after parsing, so
	// copies of a Document may share it.
	meta map[string]any
}

// Equal reports whether d and o have the same managed fields.
func (d Document) Equal(o Document) bool {
	return d.Lever.Open == o.Lever.Open &&
		d.Lever.LastChange.Equal(o.Lever.LastChange) &&
		d.Door.Open == o.Door.Open &&
		d.Door.Locked == o.Door.Locked &&
		d.Door.LastChange.Equal(o.Door.LastChange)
}

// MarshalJSON renders the template with the managed fields filled in. Keys
// are sorted at every level and the output is indented with two spaces, so
// successive files diff cleanly. HTML characters in template strings are
// written as-is.
func (d Document) MarshalJSON() ([]byte, error) {
	out := maps.Clone(d.meta)
	if out == nil {
		out = make(map[string]any)
	}

	state := cloneObject(out[keyState])
	state[keyOpen] = d.Lever.Open
	state[keyLastChange] = unixSeconds(d.Lever.LastChange)
	out[keyState] = state

	door := cloneObject(out[keyDoor])
	door[keyOpen] = d.Door.Open
	door[keyLocked] = d.Door.Locked
	door[keyLastChange] = unixSeconds(d.Door.LastChange)
	out[keyDoor] = door

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ParseDocument parses a SpaceAPI document or template. Comments and
// trailing commas are accepted. The "state" member must be an object if
// present; "ext_door" is optional.
func ParseDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()

	var meta map[string]any
	if err := dec.Decode(&meta); err != nil {
		return Document{}, fmt.Errorf("parse document: %w", err)
	}
	if meta == nil {
		return Document{}, fmt.Errorf("parse document: top level must be an object")
	}

	var doc Document
	state, err := object(meta, keyState)
	if err != nil {
		return Document{}, err
	}
	if doc.Lever.Open, err = boolField(state, keyState, keyOpen); err != nil {
		return Document{}, err
	}
	if doc.Lever.LastChange, err = timeField(state, keyState, keyLastChange); err != nil {
		return Document{}, err
	}

	door, err := object(meta, keyDoor)
	if err != nil {
		return Document{}, err
	}
	if doc.Door.Open, err = boolField(door, keyDoor, keyOpen); err != nil {
		return Document{}, err
	}
	if doc.Door.Locked, err = boolField(door, keyDoor, keyLocked); err != nil {
		return Document{}, err
	}
	if doc.Door.LastChange, err = timeField(door, keyDoor, keyLastChange); err != nil {
		return Document{}, err
	}

	doc.meta = meta
	return doc, nil
}

// LoadTemplate reads and parses the seed template at path.
func LoadTemplate(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read template: %w", err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func object(meta map[string]any, key string) (map[string]any, error) {
	v, ok := meta[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parse document: %q must be an object, got %T", key, v)
	}
	return m, nil
}

func boolField(obj map[string]any, parent, key string) (bool, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("parse document: %s.%s must be a boolean, got %T", parent, key, v)
	}
	return b, nil
}

func timeField(obj map[string]any, parent, key string) (time.Time, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return time.Time{}, nil
	}
	n, ok := v.(json.Number)
	if !ok {
		return time.Time{}, fmt.Errorf("parse document: %s.%s must be a number, got %T", parent, key, v)
	}
	sec, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return time.Time{}, fmt.Errorf("parse document: %s.%s: %w", parent, key, err)
		}
		sec = int64(f)
	}
	if sec == 0 {
		return time.Time{}, nil
	}
	return time.Unix(sec, 0), nil
}

func cloneObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return maps.Clone(m)
	}
	return make(map[string]any)
}

// unixSeconds renders t the way SpaceAPI expects: whole seconds, with the
// zero time as 0.
func unixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// LastChange returns the LastChange of the given category.
func (d Document) LastChange(c Category) time.Time {
	switch c {
	case CategoryDoor:
		return d.Door.LastChange
	case CategoryLever:
		return d.Lever.LastChange
	default:
		return time.Time{}
	}
}
