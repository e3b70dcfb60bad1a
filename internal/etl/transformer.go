package etl

import (
	"fmt"
	"sort"

	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/models"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/utils"
)

// Transformer normalizes one schema variant. found is false when the body
// was empty or the payload key was absent, which callers report as a schema
// mismatch rather than a failure.
type Transformer interface {
	Variant() models.SchemaVariant
	Transform(responseKey string, raw models.RawResponse) (records []models.Record, found bool)
}

type transformerCtor func(*Stamper) Transformer

var transformers = map[models.SchemaVariant]transformerCtor{}

func registerTransformer(v models.SchemaVariant, ctor transformerCtor) {
	transformers[v] = ctor
}

func init() {
	registerTransformer(models.VariantVulnerabilityList, func(s *Stamper) Transformer { return &vulnerabilityList{stamp: s} })
	registerTransformer(models.VariantCPEDictionary, func(s *Stamper) Transformer { return &cpeDictionary{stamp: s} })
	registerTransformer(models.VariantCVEv2, func(s *Stamper) Transformer { return &cveV2{stamp: s} })
	registerTransformer(models.VariantCVEHistory, func(s *Stamper) Transformer { return &cveHistory{stamp: s} })
}

// TransformerFor returns the strategy registered for v.
func TransformerFor(v models.SchemaVariant, stamp *Stamper) (Transformer, error) {
	ctor, ok := transformers[v]
	if !ok {
		return nil, fmt.Errorf("no transformer for schema variant %q", v)
	}
	if stamp == nil {
		stamp = NewStamper(nil)
	}
	return ctor(stamp), nil
}

// RegisteredVariants lists variants with a transformer, sorted.
func RegisteredVariants() []models.SchemaVariant {
	out := make([]models.SchemaVariant, 0, len(transformers))
	for v := range transformers {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func payload(v models.SchemaVariant, responseKey string, raw models.RawResponse) ([]interface{}, bool) {
	if raw == nil {
		return nil, false
	}
	if responseKey == "" {
		responseKey = v.DefaultResponseKey()
	}
	val, ok := utils.LookupPath(map[string]interface{}(raw), responseKey)
	if !ok {
		return nil, false
	}
	return utils.AsSlice(val)
}

// vulnerabilityList flattens NVD 1.0 CVE_Items.
type vulnerabilityList struct {
	stamp *Stamper
}

func (t *vulnerabilityList) Variant() models.SchemaVariant { return models.VariantVulnerabilityList }

func (t *vulnerabilityList) Transform(responseKey string, raw models.RawResponse) ([]models.Record, bool) {
	items, ok := payload(t.Variant(), responseKey, raw)
	if !ok {
		return nil, false
	}
	records := make([]models.Record, 0, len(items))
	for _, item := range items {
		var description interface{}
		if first, ok := utils.FirstMap(item, "cve", "description", "description_data"); ok {
			description = first["value"]
		}
		records = append(records, models.Record{
			"cve_id":               utils.ValueOrNil(item, "cve", "CVE_data_meta", "ID"),
			"description":          description,
			"publishedDate":        utils.ValueOrNil(item, "publishedDate"),
			"lastModifiedDate":     utils.ValueOrNil(item, "lastModifiedDate"),
			models.IngestedAtField: t.stamp.Next(),
		})
	}
	return records, true
}

// cpeDictionary flattens NVD 1.0 CPE entries.
type cpeDictionary struct {
	stamp *Stamper
}

func (t *cpeDictionary) Variant() models.SchemaVariant { return models.VariantCPEDictionary }

func (t *cpeDictionary) Transform(responseKey string, raw models.RawResponse) ([]models.Record, bool) {
	items, ok := payload(t.Variant(), responseKey, raw)
	if !ok {
		return nil, false
	}
	records := make([]models.Record, 0, len(items))
	for _, item := range items {
		var title interface{}
		if first, ok := utils.FirstMap(item, "titles"); ok {
			title = first["title"]
		}
		records = append(records, models.Record{
			"cpe23Uri":             utils.ValueOrNil(item, "cpe23Uri"),
			"title":                title,
			models.IngestedAtField: t.stamp.Next(),
		})
	}
	return records, true
}

// cveV2 passes 2.0 API items through untouched apart from the stamp.
type cveV2 struct {
	stamp *Stamper
}

func (t *cveV2) Variant() models.SchemaVariant { return models.VariantCVEv2 }

func (t *cveV2) Transform(responseKey string, raw models.RawResponse) ([]models.Record, bool) {
	items, ok := payload(t.Variant(), responseKey, raw)
	if !ok {
		return nil, false
	}
	records := make([]models.Record, 0, len(items))
	for _, item := range items {
		m, ok := utils.AsMap(item)
		if !ok {
			continue
		}
		records = append(records, stamped(m, t.stamp))
	}
	return records, true
}

// cveHistory keeps the "change" object of each cveChanges entry.
type cveHistory struct {
	stamp *Stamper
}

func (t *cveHistory) Variant() models.SchemaVariant { return models.VariantCVEHistory }

func (t *cveHistory) Transform(responseKey string, raw models.RawResponse) ([]models.Record, bool) {
	items, ok := payload(t.Variant(), responseKey, raw)
	if !ok {
		return nil, false
	}
	records := make([]models.Record, 0, len(items))
	for _, item := range items {
		change, ok := utils.Lookup(item, "change")
		if !ok {
			continue
		}
		m, ok := utils.AsMap(change)
		if !ok {
			continue
		}
		records = append(records, stamped(m, t.stamp))
	}
	return records, true
}

// stamped copies the top level of m so the raw response is left as decoded.
func stamped(m map[string]interface{}, stamp *Stamper) models.Record {
	rec := make(models.Record, len(m)+1)
	for k, v := range m {
		rec[k] = v
	}
	rec[models.IngestedAtField] = stamp.Next()
	return rec
}
