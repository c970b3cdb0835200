package filters

import (
	"time"

	"github.com/google/uuid"
)

// BuildRecords creates one record per non-empty field of req, in the order
// keyword, tag, pid, tid, log levels. Creation times are spaced by a
// microsecond so that stores ordering by created_at keep that order.
func BuildRecords(partition Partition, req AddRequest, now time.Time) ([]Record, error) {
	levels, err := CanonicalLevels(req.LogLevels)
	if err != nil {
		return nil, err
	}

	fields := []struct {
		kind    Kind
		content string
	}{
		{KindKeyword, req.Keyword},
		{KindTag, req.Tag},
		{KindProcessID, req.PID},
		{KindThreadID, req.TID},
		{KindLogLevels, levels},
	}

	base := now.UTC().Truncate(time.Microsecond)
	records := make([]Record, 0, len(fields))
	for _, f := range fields {
		if f.content == "" {
			continue
		}
		records = append(records, Record{
			ID:        uuid.New().String(),
			Kind:      f.kind,
			Content:   f.content,
			Exclusion: partition.IsExclusion(),
			CreatedAt: base.Add(time.Duration(len(records)) * time.Microsecond),
		})
	}

	if len(records) == 0 {
		return nil, nil
	}
	return records, nil
}
