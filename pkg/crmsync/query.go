package crmsync

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// QueryOptions restrict a SOQL query. WhereClause is a static condition from
// the mapping; ParentIDs and ParentField carry the previous object's return
// values.
type QueryOptions struct {
	WhereClause string
	ParentIDs   []string
	ParentField string
}

// BuildQuery renders a SOQL query selecting the keys of fields from object.
// Present conditions are joined with AND. Identifiers are quoted but not
// escaped, so they must not contain single quotes.
func BuildQuery(fields map[string]string, object string, opts QueryOptions) (string, error) {
	if object == "" {
		return "", fmt.Errorf("object is required")
	}
	if len(fields) == 0 {
		return "", fmt.Errorf("no fields to select from %s", object)
	}

	selected := lo.Keys(fields)
	sort.Strings(selected)
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selected, ","), object)

	var clauses []string
	if opts.WhereClause != "" {
		clauses = append(clauses, opts.WhereClause)
	}
	switch {
	case opts.ParentField != "" && len(opts.ParentIDs) == 0:
		return "", fmt.Errorf("%w: %s", ErrEmptyParentFilter, opts.ParentField)
	case opts.ParentField == "" && len(opts.ParentIDs) > 0:
		return "", fmt.Errorf("%d parent identifiers given without a parent field", len(opts.ParentIDs))
	case opts.ParentField != "":
		ids := lo.Map(opts.ParentIDs, func(id string, _ int) string {
			return "'" + id + "'"
		})
		clauses = append(clauses, fmt.Sprintf("%s in (%s)", opts.ParentField, strings.Join(ids, ",")))
	}

	if len(clauses) == 0 {
		return q, nil
	}
	padded := lo.Map(clauses, func(c string, _ int) string {
		return " " + c + " "
	})
	return q + " WHERE " + strings.Join(padded, "AND"), nil
}
