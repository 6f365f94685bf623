package decoder

import (
	"encoding/json"
	"fmt"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
	"github.com/aman-zulfiqar/ponziland-indexer/internal/torii"
)

// fieldSource reads typed fields out of one wire shape. Each getter takes
// the accepted names for the field, first one canonical.
type fieldSource interface {
	location(names ...string) (models.Location, error)
	u64(names ...string) (uint64, error)
	u256(names ...string) (models.U256, error)
	address(names ...string) (models.Address, error)
	level(names ...string) (models.Level, error)
}

// jsonFields reads the flat object returned by the SQL endpoint.
type jsonFields map[string]json.RawMessage

func newJSONFields(data json.RawMessage) (jsonFields, error) {
	var f jsonFields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, malformed("data", "not a JSON object: %v", err)
	}
	if f == nil {
		return nil, malformed("data", "null payload")
	}
	return f, nil
}

func (f jsonFields) lookup(names []string) (json.RawMessage, error) {
	for _, name := range names {
		if raw, ok := f[name]; ok && string(raw) != "null" {
			return raw, nil
		}
	}
	return nil, missing(names[0])
}

func (f jsonFields) location(names ...string) (models.Location, error) {
	raw, err := f.lookup(names)
	if err != nil {
		return 0, err
	}
	v, err := parseLocation(raw)
	if err != nil {
		return 0, malformed(names[0], "%v", err)
	}
	return v, nil
}

func (f jsonFields) u64(names ...string) (uint64, error) {
	raw, err := f.lookup(names)
	if err != nil {
		return 0, err
	}
	v, err := parseU64(raw)
	if err != nil {
		return 0, malformed(names[0], "%v", err)
	}
	return v, nil
}

func (f jsonFields) u256(names ...string) (models.U256, error) {
	raw, err := f.lookup(names)
	if err != nil {
		return models.U256{}, err
	}
	v, err := parseU256(raw)
	if err != nil {
		return models.U256{}, malformed(names[0], "%v", err)
	}
	return v, nil
}

func (f jsonFields) address(names ...string) (models.Address, error) {
	raw, err := f.lookup(names)
	if err != nil {
		return "", err
	}
	v, err := parseAddress(raw)
	if err != nil {
		return "", malformed(names[0], "%v", err)
	}
	return v, nil
}

func (f jsonFields) level(names ...string) (models.Level, error) {
	raw, err := f.lookup(names)
	if err != nil {
		return 0, err
	}
	v, err := parseLevel(raw)
	if err != nil {
		return 0, malformed(names[0], "%v", err)
	}
	return v, nil
}

// Primitive categories accepted by each getter.
var (
	integerTypes = typeSet(torii.TypeU8, torii.TypeU16, torii.TypeU32, torii.TypeU64)
	bigIntTypes  = typeSet(torii.TypeU8, torii.TypeU16, torii.TypeU32, torii.TypeU64, torii.TypeU128, torii.TypeU256, torii.TypeFelt252)
	addressTypes = typeSet(torii.TypeContractAddress, torii.TypeClassHash, torii.TypeFelt252, torii.TypeEthAddress)
)

func typeSet(types ...string) map[string]bool {
	out := make(map[string]bool, len(types))
	for _, t := range types {
		out[t] = true
	}
	return out
}

// structFields reads the typed members pushed by the subscription channel.
type structFields struct {
	s *torii.Struct
}

func (f structFields) member(names []string) (*torii.Member, error) {
	m, ok := f.s.Member(names...)
	if !ok {
		return nil, missing(names[0])
	}
	return m, nil
}

// primitive returns the member's value if its type is in want.
func (f structFields) primitive(names []string, want map[string]bool, expected string) (json.RawMessage, error) {
	m, err := f.member(names)
	if err != nil {
		return nil, err
	}
	p := m.Ty.Primitive
	if p == nil || !want[p.Type] {
		return nil, &NotExtractableError{Field: names[0], Expected: expected, Got: m.Ty.String()}
	}
	return p.Value, nil
}

func (f structFields) location(names ...string) (models.Location, error) {
	m, err := f.member(names)
	if err != nil {
		return 0, err
	}
	if s := m.Ty.Struct; s != nil {
		return structLocation(names[0], s)
	}
	raw, err := f.primitive(names, integerTypes, "integer")
	if err != nil {
		return 0, err
	}
	v, err := parseLocation(raw)
	if err != nil {
		return 0, malformed(names[0], "%v", err)
	}
	return v, nil
}

func structLocation(field string, s *torii.Struct) (models.Location, error) {
	inner := structFields{s: s}
	x, err := inner.u64("x")
	if err != nil {
		return 0, malformed(field, "%v", err)
	}
	y, err := inner.u64("y")
	if err != nil {
		return 0, malformed(field, "%v", err)
	}
	raw := json.RawMessage(fmt.Sprintf(`{"x":%d,"y":%d}`, x, y))
	v, err := parseLocation(raw)
	if err != nil {
		return 0, malformed(field, "%v", err)
	}
	return v, nil
}

func (f structFields) u64(names ...string) (uint64, error) {
	raw, err := f.primitive(names, integerTypes, "integer")
	if err != nil {
		return 0, err
	}
	v, err := parseU64(raw)
	if err != nil {
		return 0, malformed(names[0], "%v", err)
	}
	return v, nil
}

func (f structFields) u256(names ...string) (models.U256, error) {
	raw, err := f.primitive(names, bigIntTypes, "integer")
	if err != nil {
		return models.U256{}, err
	}
	v, err := parseU256(raw)
	if err != nil {
		return models.U256{}, malformed(names[0], "%v", err)
	}
	return v, nil
}

func (f structFields) address(names ...string) (models.Address, error) {
	raw, err := f.primitive(names, addressTypes, "address")
	if err != nil {
		return "", err
	}
	v, err := parseAddress(raw)
	if err != nil {
		return "", malformed(names[0], "%v", err)
	}
	return v, nil
}

func (f structFields) level(names ...string) (models.Level, error) {
	m, err := f.member(names)
	if err != nil {
		return 0, err
	}
	if m.Ty.Enum == nil {
		return 0, &NotExtractableError{Field: names[0], Expected: "enum", Got: m.Ty.String()}
	}
	v, err := models.ParseLevel(m.Ty.Enum.Option)
	if err != nil {
		return 0, malformed(names[0], "%v", err)
	}
	return v, nil
}

// reader records the first failing getter so per-kind decoders stay flat.
type reader struct {
	src fieldSource
	err error
}

func (r *reader) location(names ...string) models.Location {
	if r.err != nil {
		return 0
	}
	v, err := r.src.location(names...)
	r.err = err
	return v
}

func (r *reader) u64(names ...string) uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.src.u64(names...)
	r.err = err
	return v
}

func (r *reader) u256(names ...string) models.U256 {
	if r.err != nil {
		return models.U256{}
	}
	v, err := r.src.u256(names...)
	r.err = err
	return v
}

func (r *reader) address(names ...string) models.Address {
	if r.err != nil {
		return ""
	}
	v, err := r.src.address(names...)
	r.err = err
	return v
}

func (r *reader) level(names ...string) models.Level {
	if r.err != nil {
		return 0
	}
	v, err := r.src.level(names...)
	r.err = err
	return v
}
