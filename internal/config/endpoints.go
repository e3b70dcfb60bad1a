package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/models"
)

const nvdBase = "https://services.nvd.nist.gov/rest/json"

// APIKeyVar is the only template variable endpoint URLs may use.
const APIKeyVar = "NVD_API_KEY"

// DefaultEndpoints is the endpoint set used when no file is given.
func DefaultEndpoints() []EndpointSpec {
	legacy := string(models.VariantVulnerabilityList)
	return []EndpointSpec{
		{Name: "recent_vulnerabilities", Variant: legacy,
			URL: nvdBase + "/cves/1.0?resultsPerPage=20&apiKey=${NVD_API_KEY}"},
		{Name: "modified_vulnerabilities", Variant: legacy,
			URL: nvdBase + "/cves/1.0?modStartDate=2025-01-01T00:00:00:000%20UTC-00:00&resultsPerPage=20&apiKey=${NVD_API_KEY}"},
		{Name: "cpe_dictionary", Variant: string(models.VariantCPEDictionary),
			URL: nvdBase + "/cpes/1.0?resultsPerPage=20&apiKey=${NVD_API_KEY}"},

		{Name: "cve_by_id", Variant: string(models.VariantCVEv2),
			URL: nvdBase + "/cves/2.0?cveId=CVE-2019-1010218"},
		{Name: "cve_critical_cvssv3", Variant: string(models.VariantCVEv2),
			URL: nvdBase + "/cves/2.0?cvssV3Severity=CRITICAL"},
		{Name: "cve_cvssv2_avn_ach_cia", Variant: string(models.VariantCVEv2),
			URL: nvdBase + "/cves/2.0?cvssV2Metrics=AV:N/AC:H/Au:N/C:C/I:C/A:C"},

		{Name: "history_date_range", Variant: string(models.VariantCVEHistory),
			URL: nvdBase + "/cvehistory/2.0/?changeStartDate=2021-08-04T13:00:00.000%2B01:00&changeEndDate=2021-10-22T13:36:00.000%2B01:00"},
		{Name: "history_by_cveid", Variant: string(models.VariantCVEHistory),
			URL: nvdBase + "/cvehistory/2.0?cveId=CVE-2025-0001"},
		{Name: "history_paged_results", Variant: string(models.VariantCVEHistory),
			URL: nvdBase + "/cvehistory/2.0/?resultsPerPage=20&startIndex=0"},
	}
}

// BuildDescriptors validates specs and resolves them against cfg. When only
// is non-empty, just those endpoints are returned, in definition order.
func BuildDescriptors(cfg *Config, specs []EndpointSpec, only []string) ([]models.EndpointDescriptor, error) {
	wanted := map[string]bool{}
	for _, n := range only {
		wanted[n] = true
	}

	seen := map[string]bool{}
	var out []models.EndpointDescriptor
	for i, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("endpoint %d: name is required", i)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("endpoint %q defined twice", s.Name)
		}
		seen[s.Name] = true

		variant := models.SchemaVariant(s.Variant)
		if !variant.Valid() {
			return nil, fmt.Errorf("endpoint %q: unknown variant %q", s.Name, s.Variant)
		}
		if s.URL == "" {
			return nil, fmt.Errorf("endpoint %q: url is required", s.Name)
		}
		if len(wanted) > 0 && !wanted[s.Name] {
			continue
		}

		u, err := ExpandURL(s.URL, cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("endpoint %q: %w", s.Name, err)
		}

		d := models.EndpointDescriptor{
			Name:        s.Name,
			URL:         u,
			Variant:     variant,
			ResponseKey: s.ResponseKey,
			Database:    s.Database,
			Collection:  s.Collection,
		}
		if d.ResponseKey == "" {
			d.ResponseKey = variant.DefaultResponseKey()
		}
		if d.Database == "" {
			d.Database = databaseFor(cfg, variant)
		}
		if d.Collection == "" {
			d.Collection = models.CollectionName(cfg.ConnectorName, s.Name, variant)
		}
		out = append(out, d)
	}

	var missing []string
	for n := range wanted {
		if !seen[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("unknown endpoint(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func databaseFor(cfg *Config, v models.SchemaVariant) string {
	switch v {
	case models.VariantCVEv2:
		return cfg.CVEDB
	case models.VariantCVEHistory:
		return cfg.CVEHistoryDB
	default:
		return cfg.MongoDB
	}
}

// ExpandURL substitutes ${NVD_API_KEY}. An empty key drops the apiKey
// parameter rather than sending it blank.
func ExpandURL(raw, apiKey string) (string, error) {
	var unknown []string
	expanded := os.Expand(raw, func(name string) string {
		if name == APIKeyVar {
			return url.QueryEscape(apiKey)
		}
		unknown = append(unknown, name)
		return ""
	})
	if len(unknown) > 0 {
		return "", fmt.Errorf("unknown template variable(s) in url: %s", strings.Join(unknown, ", "))
	}

	u, err := url.Parse(expanded)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid url %q: scheme and host are required", expanded)
	}
	if apiKey == "" && u.RawQuery != "" {
		return dropEmptyParam(expanded, "apiKey"), nil
	}
	return expanded, nil
}

// dropEmptyParam removes "name=" pairs from the query and leaves every other
// byte of the url untouched.
func dropEmptyParam(rawURL, name string) string {
	i := strings.IndexByte(rawURL, '?')
	if i < 0 {
		return rawURL
	}
	query, fragment := rawURL[i+1:], ""
	if j := strings.IndexByte(query, '#'); j >= 0 {
		query, fragment = query[:j], query[j:]
	}

	var kept []string
	for _, pair := range strings.Split(query, "&") {
		if pair == name || pair == name+"=" {
			continue
		}
		kept = append(kept, pair)
	}
	if len(kept) == 0 {
		return rawURL[:i] + fragment
	}
	return rawURL[:i+1] + strings.Join(kept, "&") + fragment
}
