package etl

import (
	"context"

	"github.com/Kyureeus-Edtech/nvd-etl-connector/internal/metrics"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/database"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/logger"
	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type MongoLoader struct {
	Opener  database.Opener
	Metrics *metrics.Metrics
}

func NewMongoLoader(opener database.Opener, m *metrics.Metrics) *MongoLoader {
	return &MongoLoader{Opener: opener, Metrics: m}
}

// Load upserts keyed variants and inserts the legacy ones, in one bulk write.
// A session is opened only when there is something to write.
func (m *MongoLoader) Load(ctx context.Context, d models.EndpointDescriptor, records []models.Record) (models.LoadResult, error) {
	log := logger.With("endpoint", d.Name, "collection", d.Collection)

	writes, skipped := BuildWrites(d.Variant, records)
	result := models.LoadResult{Skipped: skipped}
	if skipped > 0 {
		log.Warn("records without a usable key were skipped", "skipped", skipped, "kind", KindKeyDerivation.String())
	}

	if len(writes) == 0 {
		result.NoOp = true
		log.Info("no valid records to write")
		m.Metrics.Loaded(d.Name, 0, 0, skipped)
		return result, nil
	}

	sess, err := m.Opener.Open(ctx)
	if err != nil {
		return result, &Error{Kind: KindWrite, Endpoint: d.Name, Err: err}
	}
	defer func() {
		if err := sess.Close(context.Background()); err != nil {
			log.Warn("closing session", "error", err)
		}
	}()

	ns := database.Namespace{Database: d.Database, Collection: d.Collection}
	log.Info("loading records", "writes", len(writes), "namespace", ns.String())
	res, err := sess.BulkWrite(ctx, ns, writes)
	if err != nil {
		return result, &Error{Kind: KindWrite, Endpoint: d.Name, Err: err}
	}

	result.Inserted = int(res.UpsertedCount + res.InsertedCount)
	result.Modified = int(res.MatchedCount)
	log.Info("Mongo BulkWrite",
		"matched", res.MatchedCount,
		"modified", res.ModifiedCount,
		"upserted", res.UpsertedCount,
		"inserted", res.InsertedCount,
	)
	m.Metrics.Loaded(d.Name, result.Inserted, result.Modified, result.Skipped)
	return result, nil
}

// BuildWrites turns records into write models for variant v and counts the
// records that cannot be written.
func BuildWrites(v models.SchemaVariant, records []models.Record) ([]mongo.WriteModel, int) {
	strategies := KeyStrategiesFor(v)
	keyed := v.Keyed()

	var writes []mongo.WriteModel
	skipped := 0
	for _, rec := range records {
		if err := ValidateRecord(rec); err != nil {
			logger.Debugf("Skipping record: %v", err)
			skipped++
			continue
		}

		if !keyed {
			writes = append(writes, mongo.NewInsertOneModel().SetDocument(bson.M(rec)))
			continue
		}

		key, ok := DeriveKey(strategies, rec)
		if !ok {
			skipped++
			continue
		}
		filter := bson.M{key.Field: key.Value}
		update := bson.M{"$set": bson.M(rec)}
		writes = append(writes, mongo.NewUpdateOneModel().SetFilter(filter).SetUpdate(update).SetUpsert(true))
	}
	return writes, skipped
}
