package etl_test

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/Kyureeus-Edtech/nvd-etl-connector/internal/etl"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/database"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/models"
)

// Runs against a real server only when MONGO_URI is set.
func TestMongoLoader_Integration(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := database.ConnectMongo(ctx, uri)
	if err != nil {
		t.Fatalf("Failed to connect to Mongo: %v", err)
	}
	defer client.Disconnect(context.Background())

	d := models.EndpointDescriptor{
		Name:       "integration_cve",
		Variant:    models.VariantCVEv2,
		Database:   "nvd_etl_test",
		Collection: "integration_cve_" + time.Now().UTC().Format("20060102150405"),
	}
	coll := client.Database(d.Database).Collection(d.Collection)
	defer coll.Drop(context.Background())

	record := func() models.Record {
		return models.Record{
			"cve":                  map[string]interface{}{"id": "CVE-2024-3094", "vulnStatus": "Analyzed"},
			models.IngestedAtField: time.Now().UTC().Truncate(time.Millisecond),
		}
	}
	loader := etl.NewMongoLoader(database.NewMongoOpener(uri), nil)

	first, err := loader.Load(ctx, d, []models.Record{record()})
	if err != nil {
		t.Fatalf("first load failed: %v", err)
	}
	if first.Inserted != 1 || first.Modified != 0 {
		t.Fatalf("unexpected first result: %s", first)
	}

	second, err := loader.Load(ctx, d, []models.Record{record()})
	if err != nil {
		t.Fatalf("second load failed: %v", err)
	}
	if second.Inserted != 0 || second.Modified != 1 {
		t.Fatalf("unexpected second result: %s", second)
	}

	n, err := coll.CountDocuments(ctx, bson.M{"cve.id": "CVE-2024-3094"})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected exactly one document, got %d", n)
	}
}
