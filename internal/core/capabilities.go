package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
	KindList
)

// Value is one entry of a capability or print settings document.
type Value struct {
	Kind ValueKind
	Num  float64
	Bool bool
	Str  string
	List []string
}

func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func String(s string) Value { return Value{Kind: KindString, Str: s} }
func List(items ...string) Value { return Value{Kind: KindList, List: items} }

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	default:
		return json.Marshal(v.Str)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		items := make([]string, 0, len(raw))
		for _, item := range raw {
			s, err := scalarString(item)
			if err != nil {
				return err
			}
			items = append(items, s)
		}
		*v = List(items...)
	case 'n':
		return fmt.Errorf("null values are not supported")
	case '{':
		return fmt.Errorf("nested objects are not supported")
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*v = Number(f)
	}
	return nil
}

func scalarString(data json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		return strconv.FormatBool(b), nil
	}
	return "", fmt.Errorf("list items must be scalars, got %s", string(data))
}

// AsNumber reads numbers and numeric strings.
func (v Value) AsNumber() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		f, err := strconv.ParseFloat(v.Str, 64)
		return f, err == nil
	}
	return 0, false
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindList:
		data, _ := json.Marshal(v.List)
		return string(data)
	default:
		return v.Str
	}
}

func (v Value) contains(s string) bool {
	for _, item := range v.List {
		if item == s {
			return true
		}
	}
	return false
}

// Satisfies reports whether v, a printer capability, meets required.
func (v Value) Satisfies(required Value) bool {
	if v.Kind == KindList {
		if required.Kind == KindList {
			for _, item := range required.List {
				if !v.contains(item) {
					return false
				}
			}
			return true
		}
		return v.contains(required.String())
	}

	switch required.Kind {
	case KindNumber:
		have, ok := v.AsNumber()
		return ok && have >= required.Num
	case KindBool:
		if !required.Bool {
			return true
		}
		return v.Kind == KindBool && v.Bool
	case KindList:
		return len(required.List) == 1 && v.String() == required.List[0]
	default:
		return v.Kind == KindString && v.Str == required.Str
	}
}

// ValueMap is a schemaless key/value document such as printer capabilities
// or queue print settings.
type ValueMap map[string]Value

func ParseValueMap(raw json.RawMessage) (ValueMap, error) {
	m := ValueMap{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse value map: %w", err)
	}
	return m, nil
}

func (m ValueMap) JSON() json.RawMessage {
	if len(m) == 0 {
		return json.RawMessage("{}")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// Satisfies is true when every required key is present in m and met by it.
func (m ValueMap) Satisfies(required ValueMap) bool {
	for key, want := range required {
		have, ok := m[key]
		if !ok || !have.Satisfies(want) {
			return false
		}
	}
	return true
}

func (m ValueMap) Number(key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return v.AsNumber()
}
