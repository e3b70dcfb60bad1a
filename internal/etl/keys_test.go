package etl

import (
	"testing"
	"time"

	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/models"
)

func rec(fields map[string]interface{}) models.Record {
	r := models.Record{models.IngestedAtField: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	for k, v := range fields {
		r[k] = v
	}
	return r
}

func TestDeriveKey_CVEv2(t *testing.T) {
	strategies := KeyStrategiesFor(models.VariantCVEv2)

	key, ok := DeriveKey(strategies, rec(map[string]interface{}{
		"cve": map[string]interface{}{"id": "CVE-2024-0001", "cveId": "ignored"},
	}))
	if !ok || key != (Key{Field: "cve.id", Value: "CVE-2024-0001"}) {
		t.Fatalf("unexpected key %+v (ok=%v)", key, ok)
	}

	key, ok = DeriveKey(strategies, rec(map[string]interface{}{
		"cve": map[string]interface{}{"cveId": "CVE-2019-1010218"},
	}))
	if !ok || key != (Key{Field: "cve.cveId", Value: "CVE-2019-1010218"}) {
		t.Fatalf("legacy id not used: %+v (ok=%v)", key, ok)
	}

	if _, ok := DeriveKey(strategies, rec(map[string]interface{}{"cve": map[string]interface{}{}})); ok {
		t.Fatal("expected no key without cve id")
	}
	if _, ok := DeriveKey(strategies, rec(map[string]interface{}{"timestamp": "T1", "action": "Added"})); ok {
		t.Fatal("cve-v2 must not fall back to timestamp+action")
	}
}

func TestDeriveKey_History(t *testing.T) {
	strategies := KeyStrategiesFor(models.VariantCVEHistory)

	cases := []struct {
		name   string
		fields map[string]interface{}
		want   Key
		ok     bool
	}{
		{
			name:   "cve id",
			fields: map[string]interface{}{"cve": map[string]interface{}{"id": "CVE-2024-0001"}, "timestamp": "T1"},
			want:   Key{Field: "_id", Value: "CVE-2024-0001"},
			ok:     true,
		},
		{
			name:   "timestamp and action",
			fields: map[string]interface{}{"timestamp": "2021-08-04T13:00:00.000", "action": "Added"},
			want:   Key{Field: "_id", Value: "2021-08-04T13:00:00.000_Added"},
			ok:     true,
		},
		{
			name:   "missing action",
			fields: map[string]interface{}{"timestamp": "T9"},
			want:   Key{Field: "_id", Value: "T9_NA"},
			ok:     true,
		},
		{
			name:   "no timestamp",
			fields: map[string]interface{}{"action": "Added"},
			ok:     false,
		},
		{
			name:   "empty timestamp",
			fields: map[string]interface{}{"timestamp": "", "action": "Added"},
			ok:     false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, ok := DeriveKey(strategies, rec(tc.fields))
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if ok && key != tc.want {
				t.Fatalf("key = %+v, want %+v", key, tc.want)
			}
		})
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	strategies := KeyStrategiesFor(models.VariantCVEHistory)
	a := rec(map[string]interface{}{"timestamp": "T1", "action": "Modified"})
	b := rec(map[string]interface{}{"timestamp": "T1", "action": "Modified"})

	ka, _ := DeriveKey(strategies, a)
	for i := 0; i < 5; i++ {
		kb, _ := DeriveKey(strategies, b)
		if ka != kb {
			t.Fatalf("keys differ for identical content: %+v vs %+v", ka, kb)
		}
	}
}

func TestKeyStrategiesFor_LegacyVariantsAreKeyless(t *testing.T) {
	for _, v := range []models.SchemaVariant{models.VariantVulnerabilityList, models.VariantCPEDictionary} {
		if s := KeyStrategiesFor(v); len(s) != 0 {
			t.Fatalf("%s should be insert-only, got %d strategies", v, len(s))
		}
	}
}
