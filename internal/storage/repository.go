package storage

import (
	"context"
	"time"

	"logfilters/internal/constants"
	"logfilters/internal/filters"
	"logfilters/pkg/metrics"
)

// Repository persists filter records. Implementations keep records of both
// partitions in one collection, distinguished by the exclusion flag.
type Repository interface {
	// Insert stores all records or none.
	Insert(ctx context.Context, records []filters.Record) error
	// List returns one partition ordered by creation time, then id.
	List(ctx context.Context, partition filters.Partition) ([]filters.Record, error)
	// Delete returns ErrNotFound when no record has the id.
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

func observe(database, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IncDatabaseQuery(constants.ServiceName, database, operation, status)
	metrics.ObserveDatabaseQueryDuration(constants.ServiceName, database, operation, time.Since(start))
}

func validateAll(records []filters.Record) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}
