package repositories

import (
	"context"

	"github.com/satriahrh/suara/domain/entities"
)

// TranscriptRepository stores summaries of finished recognition sessions
type TranscriptRepository interface {
	Save(ctx context.Context, record entities.SessionRecord) error
	// Get returns domain.ErrNoSession when the id is unknown
	Get(ctx context.Context, id string) (*entities.SessionRecord, error)
	// List returns up to limit records, newest first
	List(ctx context.Context, limit int) ([]entities.SessionRecord, error)
}
