package etl

import (
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/models"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/utils"
)

// MissingAction stands in for an absent history action.
const MissingAction = "NA"

// Key is the match criterion for one upsert.
type Key struct {
	Field string
	Value string
}

// KeyStrategy derives a key from record content alone. It reports false
// instead of inventing a value.
type KeyStrategy interface {
	Name() string
	Derive(rec models.Record) (Key, bool)
}

// pathKey reads a string at path and matches it against filterField.
type pathKey struct {
	name        string
	filterField string
	path        []string
}

func (k pathKey) Name() string { return k.name }

func (k pathKey) Derive(rec models.Record) (Key, bool) {
	v, ok := utils.String(map[string]interface{}(rec), k.path...)
	if !ok || v == "" {
		return Key{}, false
	}
	return Key{Field: k.filterField, Value: v}, true
}

// timestampActionKey joins a history change's timestamp and action.
type timestampActionKey struct {
	filterField string
}

func (k timestampActionKey) Name() string { return "timestamp+action" }

func (k timestampActionKey) Derive(rec models.Record) (Key, bool) {
	doc := map[string]interface{}(rec)
	ts, ok := utils.String(doc, "timestamp")
	if !ok || ts == "" {
		return Key{}, false
	}
	action, ok := utils.String(doc, "action")
	if !ok || action == "" {
		action = MissingAction
	}
	return Key{Field: k.filterField, Value: ts + "_" + action}, true
}

var keyStrategies = map[models.SchemaVariant][]KeyStrategy{
	models.VariantCVEv2: {
		pathKey{name: "cve.id", filterField: "cve.id", path: []string{"cve", "id"}},
		pathKey{name: "cve.cveId", filterField: "cve.cveId", path: []string{"cve", "cveId"}},
	},
	models.VariantCVEHistory: {
		pathKey{name: "cve.id", filterField: "_id", path: []string{"cve", "id"}},
		pathKey{name: "cve.cveId", filterField: "_id", path: []string{"cve", "cveId"}},
		timestampActionKey{filterField: "_id"},
	},
}

// KeyStrategiesFor returns the ordered fallbacks for v; nil means insert-only.
func KeyStrategiesFor(v models.SchemaVariant) []KeyStrategy {
	return keyStrategies[v]
}

// DeriveKey returns the first key any strategy yields.
func DeriveKey(strategies []KeyStrategy, rec models.Record) (Key, bool) {
	for _, s := range strategies {
		if key, ok := s.Derive(rec); ok {
			return key, true
		}
	}
	return Key{}, false
}
