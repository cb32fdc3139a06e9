package models

import (
	"fmt"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RecordIDString extracts the string part of a SurrealDB RecordID.
// Job and chunk records are always created with string IDs, but the
// SDK types the ID as any, so decode defensively.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected record ID type: %T (expected string)", id.ID)
	}
	return s, nil
}
