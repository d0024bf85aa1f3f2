package ports

import (
	"context"

	"github.com/osamaflash/catalog/internal/domain/entities"
)

// DocumentStore persists whole JSON documents by key.
//
// Get decodes the stored document into dst. A missing or unparsable document
// is replaced by the key's default, which is saved and then decoded into dst.
// JSON that parses but cannot be decoded yields ErrInvalidDocument and is left
// in place. Save overwrites the document in full.
type DocumentStore interface {
	Get(ctx context.Context, key entities.DocumentKey, dst interface{}) error
	Save(ctx context.Context, key entities.DocumentKey, doc interface{}) error
	HealthCheck(ctx context.Context) error
	Close() error
}
