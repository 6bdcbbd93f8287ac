// Package pricing loads the reference price list used by the cost-plausibility
// check. Entries are keyed by their exact description string.
package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/c360studio/semaudit/params"
)

// ErrInvalidDocument is returned when a price list is not a JSON array of objects.
var ErrInvalidDocument = errors.New("invalid price list document")

// DefaultDemolitionSuffix marks the demolition variant of a description.
const DefaultDemolitionSuffix = " (demolition)"

// Basis says what a reference cost is measured against.
type Basis string

const (
	// BasisUnit is a cost per the entry's unit (m2, m3, piece, ...).
	BasisUnit Basis = "unit"
	// BasisMass is a cost per kilogram.
	BasisMass Basis = "kg"
)

// Entry is one price list row. Cost fields are nil when absent or not numeric.
type Entry struct {
	Description         string   `json:"description"`
	Unit                string   `json:"unit,omitempty"`
	NewCost             *float64 `json:"new-cost,omitempty"`
	DemolitionCost      *float64 `json:"demolition-cost,omitempty"`
	NewCostPerKg        *float64 `json:"new-cost-per-kg,omitempty"`
	DemolitionCostPerKg *float64 `json:"demolition-cost-per-kg,omitempty"`
}

// UnmarshalJSON accepts costs as numbers or numeric strings. Anything else
// leaves the cost unset.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.Description, _ = raw["description"].(string)
	e.Unit, _ = raw["unit"].(string)
	e.NewCost = cost(raw["new-cost"])
	e.DemolitionCost = cost(raw["demolition-cost"])
	e.NewCostPerKg = cost(raw["new-cost-per-kg"])
	e.DemolitionCostPerKg = cost(raw["demolition-cost-per-kg"])
	return nil
}

func cost(v any) *float64 {
	f, ok := params.Number(v)
	if !ok {
		return nil
	}
	return &f
}

// ReferenceCost picks the reference cost for the new or demolition variant.
// Unit-based costs take precedence over mass-based ones.
func (e Entry) ReferenceCost(demolition bool) (float64, Basis, bool) {
	unit, mass := e.NewCost, e.NewCostPerKg
	if demolition {
		unit, mass = e.DemolitionCost, e.DemolitionCostPerKg
	}
	switch {
	case unit != nil:
		return *unit, BasisUnit, true
	case mass != nil:
		return *mass, BasisMass, true
	default:
		return 0, "", false
	}
}

// List is an immutable price list indexed by description.
type List struct {
	entries []Entry
	index   map[string]int
}

// NewList indexes entries by description. When descriptions repeat, the first
// entry wins. Entries without a description are kept but cannot be looked up.
func NewList(entries []Entry) *List {
	l := &List{
		entries: entries,
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		if e.Description == "" {
			continue
		}
		if _, dup := l.index[e.Description]; !dup {
			l.index[e.Description] = i
		}
	}
	return l
}

// Parse decodes a JSON array of price entries.
func Parse(data []byte) (*List, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return NewList(entries), nil
}

// Load reads a price list from path. A missing file or empty path yields an
// empty list.
func Load(path string) (*List, error) {
	if path == "" {
		return NewList(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewList(nil), nil
		}
		return nil, fmt.Errorf("read price list: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return NewList(nil), nil
	}
	l, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse price list %s: %w", path, err)
	}
	return l, nil
}

// Lookup finds the entry with exactly this description.
func (l *List) Lookup(description string) (Entry, bool) {
	if l == nil {
		return Entry{}, false
	}
	i, ok := l.index[description]
	if !ok {
		return Entry{}, false
	}
	return l.entries[i], true
}

// LookupVariant finds the entry for a description, preferring the demolition
// variant (description + suffix) when demolition is set.
func (l *List) LookupVariant(description string, demolition bool, suffix string) (Entry, bool) {
	if demolition {
		if suffix == "" {
			suffix = DefaultDemolitionSuffix
		}
		if e, ok := l.Lookup(description + suffix); ok {
			return e, true
		}
	}
	return l.Lookup(description)
}

// Len returns the number of entries.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}
