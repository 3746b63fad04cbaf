package crmsync

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/natserract/sfsync/pkg/airtable"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// DestinationIndex maps a primary field value to the Airtable record id
type DestinationIndex map[string]string

// Keys returns the primary values in sorted order
func (d DestinationIndex) Keys() []string {
	keys := lo.Keys(d)
	sort.Strings(keys)
	return keys
}

// BuildIndex lists every row of table and indexes it by primaryField. Rows
// without a primary value are not managed by the sync and are left out.
func BuildIndex(ctx context.Context, client airtable.AirtableClient, table, primaryField string, logger *zap.Logger) (DestinationIndex, error) {
	rows, err := client.ListRecords(ctx, table)
	if err != nil {
		return nil, err
	}

	index := make(DestinationIndex, len(rows))
	unkeyed := 0
	for _, row := range rows {
		key, ok := primaryKey(row.Fields[primaryField])
		if !ok {
			unkeyed++
			continue
		}
		if prev, dup := index[key]; dup {
			logger.Warn("Duplicate primary value in destination, keeping the last row",
				zap.String("table", table),
				zap.String("key", key),
				zap.String("dropped_record_id", prev),
				zap.String("record_id", row.ID))
		}
		index[key] = row.ID
	}

	if unkeyed > 0 {
		logger.Warn("Destination rows without a primary value are ignored",
			zap.String("table", table),
			zap.String("primary_field", primaryField),
			zap.Int("count", unkeyed))
	}
	return index, nil
}

func primaryKey(v interface{}) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		return fmt.Sprint(val), true
	}
}
