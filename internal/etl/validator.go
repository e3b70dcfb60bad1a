package etl

import (
	"fmt"

	"github.com/Kyureeus-Edtech/nvd-etl-connector/pkg/models"
)

// ValidateRecord checks the fields every stored document must carry.
func ValidateRecord(rec models.Record) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}
	if t, ok := rec.IngestedAt(); !ok || t.IsZero() {
		return fmt.Errorf("missing required field: %s", models.IngestedAtField)
	}
	return nil
}
