// Package store persists publication records. Implementations return
// sentinel.ErrNotFound and sentinel.ErrConflict (wrapped) for the service to
// translate.
package store

import "herald/internal/publication/models"

// BuildFunc receives a copy of the current record for the entity (nil when
// there is none) and returns the record to persist. Stores keep the existing
// ID and CreatedAt on update.
type BuildFunc func(existing *models.Record) (*models.Record, error)
