package crmsync

import (
	"fmt"
	"strings"

	"github.com/natserract/sfsync/pkg/airtable"
	"github.com/natserract/sfsync/pkg/mapping"
	"github.com/natserract/sfsync/pkg/salesforce"
)

// Plan is the set of writes that makes a table mirror the fetched records
type Plan struct {
	Object string
	Table  string
	// Fetched is the number of source records the plan was computed from
	Fetched int
	// Indexed is the number of managed destination rows
	Indexed int
	Creates []airtable.Record
	Updates []airtable.Record
	// Deletes holds Airtable record ids, ordered by primary value
	Deletes []string
	// ReturnValues are the distinct non-empty return field values in fetch order
	ReturnValues []string
	// Duplicates are primary values seen more than once in the fetch
	Duplicates []string
}

// MirrorWipe reports whether applying the plan removes every managed row
// because the source came back empty.
func (p *Plan) MirrorWipe() bool {
	return p.Fetched == 0 && len(p.Deletes) > 0
}

// Empty reports whether the plan has no writes
func (p *Plan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0 && len(p.Deletes) == 0
}

// Diff classifies each fetched record as create or update against index and
// collects the indexed rows that no longer exist in the source. For duplicate
// primary values the first record wins.
func Diff(records []salesforce.Record, m mapping.ObjectMapping, index DestinationIndex) (*Plan, error) {
	plan := &Plan{
		Object:  m.Object,
		Table:   m.Table,
		Fetched: len(records),
		Indexed: len(index),
	}

	fields := m.SourceFields()
	seen := make(map[string]bool, len(records))
	returned := make(map[string]bool)

	for i, record := range records {
		key, ok := record.String(m.PrimarySalesforceField)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %s record %d has no %s", ErrEmptyPrimaryKey, m.Object, i, m.PrimarySalesforceField)
		}
		if seen[key] {
			plan.Duplicates = append(plan.Duplicates, key)
			continue
		}
		seen[key] = true

		payload := airtable.Record{Fields: make(map[string]interface{}, len(fields))}
		for _, source := range fields {
			v, ok := fieldValue(record, source)
			if !ok {
				return nil, fmt.Errorf("%w: %s %s has no %s", ErrMissingField, m.Object, key, source)
			}
			payload.Fields[m.Fields[source]] = v
		}

		if m.HasReturnField() {
			if v, ok := record.String(m.ReturnField); ok && v != "" && !returned[v] {
				returned[v] = true
				plan.ReturnValues = append(plan.ReturnValues, v)
			}
		}

		if id, ok := index[key]; ok {
			payload.ID = id
			plan.Updates = append(plan.Updates, payload)
		} else {
			plan.Creates = append(plan.Creates, payload)
		}
	}

	for _, key := range index.Keys() {
		if !seen[key] {
			plan.Deletes = append(plan.Deletes, index[key])
		}
	}

	return plan, nil
}

// fieldValue reads field from record. A dotted path through a null
// relationship (Owner is null, so Owner.Name is absent) yields nil.
func fieldValue(record salesforce.Record, field string) (interface{}, bool) {
	if v, ok := record.Get(field); ok {
		return v, true
	}
	for path := field; strings.Contains(path, "."); {
		path = path[:strings.LastIndex(path, ".")]
		if v, ok := record.Get(path); ok {
			return nil, v == nil
		}
	}
	return nil, false
}
