// Package models holds the value types shared by the extract, transform
// and load stages.
package models

import (
	"fmt"
	"time"
)

// SchemaVariant identifies one of the response shapes served by the NVD API.
type SchemaVariant string

const (
	VariantVulnerabilityList SchemaVariant = "vulnerability-list"
	VariantCPEDictionary     SchemaVariant = "cpe-dictionary"
	VariantCVEv2             SchemaVariant = "cve-v2"
	VariantCVEHistory        SchemaVariant = "cve-history"
)

// Variants lists every supported variant in a stable order.
func Variants() []SchemaVariant {
	return []SchemaVariant{
		VariantVulnerabilityList,
		VariantCPEDictionary,
		VariantCVEv2,
		VariantCVEHistory,
	}
}

func (v SchemaVariant) Valid() bool {
	for _, known := range Variants() {
		if v == known {
			return true
		}
	}
	return false
}

// Keyed reports whether records of this variant are upserted by a derived key.
// The legacy 1.0 variants are insert-only.
func (v SchemaVariant) Keyed() bool {
	return v == VariantCVEv2 || v == VariantCVEHistory
}

// DefaultResponseKey is the payload location used when a descriptor does not set one.
func (v SchemaVariant) DefaultResponseKey() string {
	switch v {
	case VariantVulnerabilityList:
		return "result.CVE_Items"
	case VariantCPEDictionary:
		return "result.cpes"
	case VariantCVEv2:
		return "vulnerabilities"
	case VariantCVEHistory:
		return "cveChanges"
	default:
		return ""
	}
}

// EndpointDescriptor describes one upstream query and where its records land.
type EndpointDescriptor struct {
	Name        string
	URL         string
	Variant     SchemaVariant
	ResponseKey string
	Database    string
	Collection  string
}

// CollectionName follows "<connector>_<endpoint>" for keyed variants and
// "<endpoint>_raw" for the legacy insert-only ones.
func CollectionName(connector, endpoint string, variant SchemaVariant) string {
	if !variant.Keyed() {
		return endpoint + "_raw"
	}
	if connector == "" {
		return endpoint
	}
	return connector + "_" + endpoint
}

func (d EndpointDescriptor) String() string {
	return fmt.Sprintf("%s (%s -> %s.%s)", d.Name, d.Variant, d.Database, d.Collection)
}

// RawResponse is the decoded JSON object returned by the upstream API.
// A nil map means the body was empty or the literal null.
type RawResponse map[string]any

// Record is one normalized document.
type Record map[string]any

// IngestedAtField is stamped on every record at transform time.
const IngestedAtField = "ingested_at"

// IngestedAt returns the ingestion timestamp, if the record carries one.
func (r Record) IngestedAt() (time.Time, bool) {
	t, ok := r[IngestedAtField].(time.Time)
	return t, ok
}

// LoadResult summarizes the write for one endpoint.
type LoadResult struct {
	Inserted int
	Modified int
	Skipped  int
	// NoOp is set when no write reached the datastore.
	NoOp bool
}

func (r LoadResult) String() string {
	return fmt.Sprintf("inserted=%d modified=%d skipped=%d", r.Inserted, r.Modified, r.Skipped)
}
