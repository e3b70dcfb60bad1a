package etl

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/database"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// fakeStore applies write models with upsert/$set semantics in memory.
type fakeStore struct {
	colls    map[string]map[string]bson.M
	opens    int
	closes   int
	writes   int
	openErr  error
	writeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{colls: map[string]map[string]bson.M{}}
}

func (f *fakeStore) Open(ctx context.Context) (database.Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	return &fakeSession{store: f}, nil
}

func (f *fakeStore) coll(ns database.Namespace) map[string]bson.M {
	c, ok := f.colls[ns.String()]
	if !ok {
		c = map[string]bson.M{}
		f.colls[ns.String()] = c
	}
	return c
}

type fakeSession struct {
	store *fakeStore
}

func (s *fakeSession) BulkWrite(ctx context.Context, ns database.Namespace, writes []mongo.WriteModel) (*mongo.BulkWriteResult, error) {
	s.store.writes++
	if s.store.writeErr != nil {
		return nil, s.store.writeErr
	}
	coll := s.store.coll(ns)
	res := &mongo.BulkWriteResult{}
	for _, w := range writes {
		switch m := w.(type) {
		case *mongo.UpdateOneModel:
			filter := m.Filter.(bson.M)
			var id string
			for field, val := range filter {
				id = fmt.Sprintf("%s=%v", field, val)
			}
			set := m.Update.(bson.M)["$set"].(bson.M)
			existing, ok := coll[id]
			if !ok {
				if m.Upsert != nil && *m.Upsert {
					doc := bson.M{}
					for k, v := range set {
						doc[k] = v
					}
					coll[id] = doc
					res.UpsertedCount++
				}
				continue
			}
			res.MatchedCount++
			changed := false
			for k, v := range set {
				if !reflect.DeepEqual(existing[k], v) {
					existing[k] = v
					changed = true
				}
			}
			if changed {
				res.ModifiedCount++
			}
		case *mongo.InsertOneModel:
			coll[fmt.Sprintf("insert-%d", len(coll))] = m.Document.(bson.M)
			res.InsertedCount++
		default:
			return nil, fmt.Errorf("unexpected write model %T", w)
		}
	}
	return res, nil
}

func (s *fakeSession) Close(ctx context.Context) error {
	s.store.closes++
	return nil
}

func descriptor(v models.SchemaVariant) models.EndpointDescriptor {
	return models.EndpointDescriptor{
		Name:       "test_endpoint",
		Variant:    v,
		Database:   "nvd",
		Collection: models.CollectionName("nvd_connector", "test_endpoint", v),
	}
}

func TestLoad_Idempotent(t *testing.T) {
	store := newFakeStore()
	loader := NewMongoLoader(store, nil)
	d := descriptor(models.VariantCVEv2)

	records := []models.Record{rec(map[string]interface{}{
		"cve": map[string]interface{}{"id": "CVE-2019-1010218"},
	})}

	first, err := loader.Load(context.Background(), d, records)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if first.Inserted != 1 || first.Modified != 0 || first.Skipped != 0 {
		t.Fatalf("first load: %s", first)
	}
	stored := store.coll(database.Namespace{Database: "nvd", Collection: d.Collection})
	before := map[string]bson.M{}
	for k, v := range stored {
		before[k] = bson.M{}
		for f, fv := range v {
			before[k][f] = fv
		}
	}

	second, err := loader.Load(context.Background(), d, records)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if second.Inserted != 0 || second.Modified != 1 {
		t.Fatalf("second load: %s", second)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 stored document, got %d", len(stored))
	}
	if !reflect.DeepEqual(before, stored) {
		t.Fatalf("stored document changed: %v -> %v", before, stored)
	}
}

func TestLoad_EmptyBatchIsNoOp(t *testing.T) {
	store := newFakeStore()
	loader := NewMongoLoader(store, nil)

	res, err := loader.Load(context.Background(), descriptor(models.VariantCVEv2), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Inserted != 0 || res.Modified != 0 || res.Skipped != 0 || !res.NoOp {
		t.Fatalf("unexpected result: %+v", res)
	}
	if store.opens != 0 || store.writes != 0 {
		t.Fatalf("store touched: opens=%d writes=%d", store.opens, store.writes)
	}
}

func TestLoad_SkipsKeylessRecords(t *testing.T) {
	store := newFakeStore()
	loader := NewMongoLoader(store, nil)

	records := []models.Record{
		rec(map[string]interface{}{"cve": map[string]interface{}{"id": "CVE-2024-0001"}}),
		rec(map[string]interface{}{"cve": map[string]interface{}{}}),
		rec(map[string]interface{}{"sourceIdentifier": "nvd@nist.gov"}),
	}
	res, err := loader.Load(context.Background(), descriptor(models.VariantCVEv2), records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Inserted != 1 || res.Skipped != 2 {
		t.Fatalf("unexpected result: %s", res)
	}
	for _, doc := range store.coll(database.Namespace{Database: "nvd", Collection: "nvd_connector_test_endpoint"}) {
		if _, ok := doc["sourceIdentifier"]; ok {
			t.Fatal("keyless record was written")
		}
	}
}

func TestLoad_AllKeylessIsNoOp(t *testing.T) {
	store := newFakeStore()
	res, err := NewMongoLoader(store, nil).Load(context.Background(), descriptor(models.VariantCVEHistory),
		[]models.Record{rec(map[string]interface{}{"action": "Added"})})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.NoOp || res.Skipped != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if store.opens != 0 {
		t.Fatal("session opened for an empty batch")
	}
}

func TestLoad_SetLeavesOtherFieldsAndDocuments(t *testing.T) {
	store := newFakeStore()
	loader := NewMongoLoader(store, nil)
	d := descriptor(models.VariantCVEHistory)

	a := rec(map[string]interface{}{"timestamp": "T1", "action": "Added", "details": "a"})
	b := rec(map[string]interface{}{"timestamp": "T2", "action": "Added", "details": "b"})
	if _, err := loader.Load(context.Background(), d, []models.Record{a, b}); err != nil {
		t.Fatalf("load: %v", err)
	}

	coll := store.coll(database.Namespace{Database: "nvd", Collection: d.Collection})
	coll["_id=T1_Added"]["annotation"] = "kept"

	updated := rec(map[string]interface{}{"timestamp": "T1", "action": "Added", "details": "a2"})
	res, err := loader.Load(context.Background(), d, []models.Record{updated})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Modified != 1 || res.Inserted != 0 {
		t.Fatalf("unexpected result: %s", res)
	}
	if coll["_id=T1_Added"]["details"] != "a2" || coll["_id=T1_Added"]["annotation"] != "kept" {
		t.Fatalf("unexpected document: %v", coll["_id=T1_Added"])
	}
	if coll["_id=T2_Added"]["details"] != "b" {
		t.Fatalf("unrelated document touched: %v", coll["_id=T2_Added"])
	}
}

func TestLoad_LegacyVariantInsertsEveryTime(t *testing.T) {
	store := newFakeStore()
	loader := NewMongoLoader(store, nil)
	d := descriptor(models.VariantCPEDictionary)
	records := []models.Record{rec(map[string]interface{}{"cpe23Uri": "cpe:2.3:a:x:y:1:*:*:*:*:*:*:*", "title": "Y"})}

	for i := 0; i < 2; i++ {
		res, err := loader.Load(context.Background(), d, records)
		if err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
		if res.Inserted != 1 || res.Modified != 0 {
			t.Fatalf("load %d: %s", i, res)
		}
	}
	if got := len(store.coll(database.Namespace{Database: "nvd", Collection: "test_endpoint_raw"})); got != 2 {
		t.Fatalf("expected duplicates to accumulate in the legacy collection, got %d docs", got)
	}
}

func TestLoad_RecordWithoutIngestedAtSkipped(t *testing.T) {
	store := newFakeStore()
	r := models.Record{"cve": map[string]interface{}{"id": "CVE-2024-0009"}}
	res, err := NewMongoLoader(store, nil).Load(context.Background(), descriptor(models.VariantCVEv2), []models.Record{r})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped != 1 || !res.NoOp {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLoad_WriteError(t *testing.T) {
	store := newFakeStore()
	store.writeErr = errors.New("connection reset")
	records := []models.Record{rec(map[string]interface{}{"cve": map[string]interface{}{"id": "CVE-2024-0001"}})}

	_, err := NewMongoLoader(store, nil).Load(context.Background(), descriptor(models.VariantCVEv2), records)
	if KindOf(err) != KindWrite {
		t.Fatalf("expected write_error, got %v", err)
	}
	if store.closes != 1 {
		t.Fatalf("session not closed after failure: closes=%d", store.closes)
	}
}

func TestLoad_OpenError(t *testing.T) {
	store := newFakeStore()
	store.openErr = errors.New("no reachable servers")
	records := []models.Record{rec(map[string]interface{}{"cve": map[string]interface{}{"id": "CVE-2024-0001"}})}

	_, err := NewMongoLoader(store, nil).Load(context.Background(), descriptor(models.VariantCVEv2), records)
	if KindOf(err) != KindWrite {
		t.Fatalf("expected write_error, got %v", err)
	}
}

func TestBuildWrites_Shapes(t *testing.T) {
	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	r := models.Record{"cve": map[string]interface{}{"id": "CVE-2024-0001"}, models.IngestedAtField: ts}

	writes, skipped := BuildWrites(models.VariantCVEv2, []models.Record{r})
	if skipped != 0 || len(writes) != 1 {
		t.Fatalf("expected 1 write, got %d (skipped %d)", len(writes), skipped)
	}
	m, ok := writes[0].(*mongo.UpdateOneModel)
	if !ok {
		t.Fatalf("expected UpdateOneModel, got %T", writes[0])
	}
	if !reflect.DeepEqual(m.Filter, bson.M{"cve.id": "CVE-2024-0001"}) {
		t.Fatalf("unexpected filter: %v", m.Filter)
	}
	if m.Upsert == nil || !*m.Upsert {
		t.Fatal("expected upsert")
	}
	set := m.Update.(bson.M)["$set"].(bson.M)
	if set[models.IngestedAtField] != ts {
		t.Fatalf("ingested_at not in $set: %v", set)
	}
}
