package filters

import (
	"fmt"
	"strings"

	"logfilters/pkg/errors"
)

var typeLabels = map[Kind]string{
	KindLogLevels: "Log level",
	KindKeyword:   "Keyword",
	KindTag:       "Tag",
	KindProcessID: "Pid",
	KindThreadID:  "Tid",
}

// ToDisplayItem projects a record for display. A record with an unknown
// kind yields ErrInvalidState.
func ToDisplayItem(r Record) (DisplayItem, error) {
	label, ok := typeLabels[r.Kind]
	if !ok {
		return DisplayItem{}, errors.ErrInvalidState.
			WithDetail("message", fmt.Sprintf("unknown filter kind %q", r.Kind)).
			WithDetail("record_id", r.ID)
	}

	text := r.Content
	if r.Kind == KindLogLevels {
		elements := SplitLevels(r.Content)
		names := make([]string, len(elements))
		for i, e := range elements {
			names[i] = LevelName(e)
		}
		text = strings.Join(names, ", ")
	}

	return DisplayItem{
		TypeLabel:   label,
		DisplayText: text,
		Source:      r,
	}, nil
}

// MapSnapshot maps every record, skipping the ones that fail. The returned
// errors are in snapshot order.
func MapSnapshot(records []Record) ([]DisplayItem, []error) {
	items := make([]DisplayItem, 0, len(records))
	var errs []error
	for _, r := range records {
		item, err := ToDisplayItem(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		items = append(items, item)
	}
	return items, errs
}
