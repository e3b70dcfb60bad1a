package etl

import (
	"context"

	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/models"
)

// Extractor fetches one endpoint's response body.
type Extractor interface {
	Fetch(ctx context.Context, endpoint, url string) (models.RawResponse, error)
}

// Loader writes one endpoint's records to its destination collection.
type Loader interface {
	Load(ctx context.Context, d models.EndpointDescriptor, records []models.Record) (models.LoadResult, error)
}
