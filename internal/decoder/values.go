package decoder

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aman-zulfiqar/ponziland-indexer/internal/models"
)

// scalar reads a JSON string or number as text.
func scalar(raw json.RawMessage) (string, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("null value")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("not a string or number: %s", raw)
	}
	return n.String(), nil
}

func parseU256(raw json.RawMessage) (models.U256, error) {
	s, err := scalar(raw)
	if err != nil {
		return models.U256{}, err
	}
	return models.ParseU256(s)
}

func parseU64(raw json.RawMessage) (uint64, error) {
	s, err := scalar(raw)
	if err != nil {
		return 0, err
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s, 10, 64)
	}
	u, err := models.ParseU256(s)
	if err != nil {
		return 0, err
	}
	if !u.IsUint64() {
		return 0, fmt.Errorf("%s overflows 64 bits", s)
	}
	return u.Uint64(), nil
}

func parseAddress(raw json.RawMessage) (models.Address, error) {
	s, err := scalar(raw)
	if err != nil {
		return "", err
	}
	return models.ParseAddress(s)
}

// parseLocation accepts an index as number or string, or an {x, y} object.
func parseLocation(raw json.RawMessage) (models.Location, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var xy struct {
			X *json.RawMessage `json:"x"`
			Y *json.RawMessage `json:"y"`
		}
		if err := json.Unmarshal(raw, &xy); err != nil {
			return 0, err
		}
		if xy.X == nil || xy.Y == nil {
			return 0, fmt.Errorf("coordinates need both x and y")
		}
		x, err := parseU64(*xy.X)
		if err != nil {
			return 0, fmt.Errorf("x: %w", err)
		}
		y, err := parseU64(*xy.Y)
		if err != nil {
			return 0, fmt.Errorf("y: %w", err)
		}
		if y >= models.GridSize || x > math.MaxUint16/models.GridSize {
			return 0, fmt.Errorf("(%d, %d) is off the grid", x, y)
		}
		return models.LocationFromXY(uint16(x), uint16(y)), nil
	}

	n, err := parseU64(raw)
	if err != nil {
		return 0, err
	}
	if n > math.MaxUint16 {
		return 0, fmt.Errorf("%d overflows 16 bits", n)
	}
	return models.Location(n), nil
}

// parseLevel accepts the serialized enum form {"Zero": []} or a bare name.
func parseLevel(raw json.RawMessage) (models.Level, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var variants map[string]json.RawMessage
		if err := json.Unmarshal(raw, &variants); err != nil {
			return 0, err
		}
		if len(variants) != 1 {
			return 0, fmt.Errorf("enum must carry exactly one variant, got %d", len(variants))
		}
		for name := range variants {
			return models.ParseLevel(name)
		}
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return 0, fmt.Errorf("not an enum: %s", trimmed)
	}
	return models.ParseLevel(name)
}
