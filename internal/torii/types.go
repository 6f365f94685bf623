package torii

import (
	"encoding/json"
	"fmt"
	"time"
)

// Origin tells which channel produced a record.
type Origin string

const (
	OriginCatchUp Origin = "catchup"
	OriginLive    Origin = "live"
)

// RawRecord is an undecoded record from either channel. Exactly one of
// Struct (push shape) or JSON (query shape) is set.
type RawRecord struct {
	Origin Origin

	// EventID is Torii's event identifier. Empty when the push channel
	// did not carry one.
	EventID string

	// At is the occurrence time. Zero when the upstream did not send one.
	At time.Time

	Struct *Struct
	JSON   *JSONRecord
}

// Tag returns the "namespace-Name" selector of the record.
func (r RawRecord) Tag() string {
	switch {
	case r.Struct != nil:
		return r.Struct.Name
	case r.JSON != nil:
		return r.JSON.Name
	}
	return ""
}

// JSONRecord is a row returned by the SQL endpoint.
type JSONRecord struct {
	Name string
	Data json.RawMessage
}

// Struct is a typed key/value payload pushed by the subscription channel.
type Struct struct {
	Name     string   `json:"name"`
	Children []Member `json:"children"`
}

// Member returns the first child matching one of names.
func (s *Struct) Member(names ...string) (*Member, bool) {
	for _, name := range names {
		for i := range s.Children {
			if s.Children[i].Name == name {
				return &s.Children[i], true
			}
		}
	}
	return nil, false
}

type Member struct {
	Name string `json:"name"`
	Key  bool   `json:"key"`
	Ty   Ty     `json:"ty"`
}

// Ty holds exactly one of a primitive, an enum or a nested struct.
type Ty struct {
	Primitive *Primitive `json:"primitive,omitempty"`
	Enum      *Enum      `json:"enum,omitempty"`
	Struct    *Struct    `json:"struct,omitempty"`
}

func (t Ty) String() string {
	switch {
	case t.Primitive != nil:
		return t.Primitive.Type
	case t.Enum != nil:
		return "enum " + t.Enum.Name
	case t.Struct != nil:
		return "struct " + t.Struct.Name
	}
	return "empty"
}

// Primitive types as Dojo names them.
const (
	TypeU8              = "u8"
	TypeU16             = "u16"
	TypeU32             = "u32"
	TypeU64             = "u64"
	TypeU128            = "u128"
	TypeU256            = "u256"
	TypeBool            = "bool"
	TypeFelt252         = "felt252"
	TypeContractAddress = "contract_address"
	TypeClassHash       = "class_hash"
	TypeEthAddress      = "eth_address"
)

// Primitive is a scalar value. Value is a JSON string (hex or decimal),
// number or bool.
type Primitive struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Enum carries the name of the selected variant.
type Enum struct {
	Name   string `json:"name"`
	Option string `json:"option"`
}

// sqlRow is one row of the catch-up queries.
type sqlRow struct {
	Selector  string          `json:"selector"`
	Data      json.RawMessage `json:"data"`
	EventID   string          `json:"event_id"`
	CreatedAt string          `json:"created_at"`
}

// payload unwraps data that Torii returns as a JSON string.
func (r sqlRow) payload() (json.RawMessage, error) {
	if len(r.Data) > 0 && r.Data[0] == '"' {
		var s string
		if err := json.Unmarshal(r.Data, &s); err != nil {
			return nil, fmt.Errorf("unwrap data: %w", err)
		}
		return json.RawMessage(s), nil
	}
	return r.Data, nil
}

// frame is one message of the subscription channel.
type frame struct {
	EventID   string   `json:"event_id,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
	Models    []Struct `json:"models"`
}

type subscribeRequest struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel"`
	Models  []string `json:"models"`
}

// SourceError reports a failure of one of the two channels.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("torii %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

// ParseTime reads Torii's created_at values, which are UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
