package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Key addresses one canonical table in the output store.
type Key struct {
	Building int
	Meter    int
}

// String renders the key as the hierarchical store path "/building<b>/elec/meter<m>".
func (k Key) String() string {
	return fmt.Sprintf("/building%d/elec/meter%d", k.Building, k.Meter)
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(strings.TrimPrefix(s, "/"), "/")
	if len(parts) != 3 || parts[1] != "elec" {
		return Key{}, fmt.Errorf("parse key %q: want /building<b>/elec/meter<m>", s)
	}

	building, err := parseKeyPart(parts[0], "building")
	if err != nil {
		return Key{}, fmt.Errorf("parse key %q: %w", s, err)
	}
	meter, err := parseKeyPart(parts[2], "meter")
	if err != nil {
		return Key{}, fmt.Errorf("parse key %q: %w", s, err)
	}
	return Key{Building: building, Meter: meter}, nil
}

func parseKeyPart(part, prefix string) (int, error) {
	digits, ok := strings.CutPrefix(part, prefix)
	if !ok {
		return 0, fmt.Errorf("segment %q lacks prefix %q", part, prefix)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("segment %q: invalid %s number", part, prefix)
	}
	return n, nil
}

// MeterKind distinguishes the whole-building meter from appliance sub-meters.
type MeterKind string

const (
	KindSiteMeter MeterKind = "site_meter"
	KindAppliance MeterKind = "appliance"
)
