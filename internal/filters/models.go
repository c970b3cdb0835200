package filters

import (
	"fmt"
	"time"

	"logfilters/pkg/errors"
)

type Kind string

const (
	KindKeyword   Kind = "keyword"
	KindTag       Kind = "tag"
	KindProcessID Kind = "pid"
	KindThreadID  Kind = "tid"
	KindLogLevels Kind = "log_levels"
)

func (k Kind) Valid() bool {
	switch k {
	case KindKeyword, KindTag, KindProcessID, KindThreadID, KindLogLevels:
		return true
	}
	return false
}

// Partition selects inclusion or exclusion rules.
type Partition string

const (
	Inclusion Partition = "inclusions"
	Exclusion Partition = "exclusions"
)

func ParsePartition(s string) (Partition, error) {
	switch Partition(s) {
	case Inclusion, Exclusion:
		return Partition(s), nil
	}
	return "", errors.ErrInvalidInput.WithDetail("message", fmt.Sprintf("unknown partition %q (valid: inclusions, exclusions)", s))
}

func (p Partition) IsExclusion() bool {
	return p == Exclusion
}

func PartitionOf(r Record) Partition {
	if r.Exclusion {
		return Exclusion
	}
	return Inclusion
}

// Record is one persisted filter rule. Records are replaced, never edited.
type Record struct {
	ID        string    `json:"id" bson:"_id"`
	Kind      Kind      `json:"kind" bson:"kind"`
	Content   string    `json:"content" bson:"content"`
	Exclusion bool      `json:"exclusion" bson:"exclusion"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

func (r Record) Partition() Partition {
	return PartitionOf(r)
}

// Validate checks the stored invariants of a record before it is persisted.
func (r Record) Validate() error {
	if r.ID == "" {
		return errors.ErrInvalidInput.WithDetail("message", "record id is required")
	}
	if !r.Kind.Valid() {
		return errors.ErrInvalidState.
			WithDetail("message", fmt.Sprintf("unknown filter kind %q", r.Kind)).
			WithDetail("record_id", r.ID)
	}
	if r.Content == "" {
		return errors.ErrInvalidInput.
			WithDetail("message", "filter content cannot be empty").
			WithDetail("record_id", r.ID)
	}
	if r.Kind == KindLogLevels {
		for _, code := range SplitLevels(r.Content) {
			if _, ok := levelNames[code]; !ok {
				return errors.ErrInvalidInput.
					WithDetail("message", fmt.Sprintf("unknown log level code %q", code)).
					WithDetail("record_id", r.ID)
			}
		}
	}
	return nil
}

// DisplayItem is the human readable projection of a Record.
type DisplayItem struct {
	TypeLabel   string `json:"type_label"`
	DisplayText string `json:"display_text"`
	Source      Record `json:"source"`
}

type AddRequest struct {
	Keyword   string   `json:"keyword"`
	Tag       string   `json:"tag"`
	PID       string   `json:"pid"`
	TID       string   `json:"tid"`
	LogLevels []string `json:"log_levels"`
}

func (r AddRequest) IsEmpty() bool {
	return r.Keyword == "" && r.Tag == "" && r.PID == "" && r.TID == "" && len(r.LogLevels) == 0
}
