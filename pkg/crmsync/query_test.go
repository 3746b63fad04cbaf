package crmsync

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountFields = map[string]string{"Name": "Name", "Id": "SFDC ID"}

func Test_BuildQuery(t *testing.T) {
	tests := []struct {
		name    string
		opts    QueryOptions
		want    string
		absent  []string
		wantErr error
	}{
		{
			name: "no conditions",
			want: "SELECT Id,Name FROM Account",
		},
		{
			name:   "static filter only",
			opts:   QueryOptions{WhereClause: "A = 1"},
			want:   "SELECT Id,Name FROM Account WHERE  A = 1 ",
			absent: []string{" in ("},
		},
		{
			name:   "parent identifiers only",
			opts:   QueryOptions{ParentIDs: []string{"x", "y"}, ParentField: "F"},
			want:   "SELECT Id,Name FROM Account WHERE  F in ('x','y') ",
			absent: []string{"A = 1", " OR "},
		},
		{
			name: "both are joined with AND",
			opts: QueryOptions{WhereClause: "A = 1", ParentIDs: []string{"x"}, ParentField: "F"},
			want: "SELECT Id,Name FROM Account WHERE  A = 1 AND F in ('x') ",
		},
		{
			name:    "parent field without identifiers",
			opts:    QueryOptions{ParentField: "F", ParentIDs: []string{}},
			wantErr: ErrEmptyParentFilter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildQuery(accountFields, "Account", tt.opts)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			for _, s := range tt.absent {
				assert.NotContains(t, got, s)
			}
		})
	}
}

func Test_BuildQuery_NoWhereToken(t *testing.T) {
	got, err := BuildQuery(accountFields, "Account", QueryOptions{})
	require.NoError(t, err)
	assert.False(t, strings.Contains(got, "WHERE"))
}

func Test_BuildQuery_SelectsExactlyMappedFields(t *testing.T) {
	fields := map[string]string{
		"StageName":    "Stage",
		"Account.Name": "Account",
		"Id":           "SFDC ID",
		"Amount":       "Amount",
	}
	got, err := BuildQuery(fields, "Opportunity", QueryOptions{WhereClause: "StageName IN ('Interested')"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT Account.Name,Amount,Id,StageName FROM Opportunity WHERE  StageName IN ('Interested') ", got)
}

func Test_BuildQuery_Invalid(t *testing.T) {
	_, err := BuildQuery(nil, "Account", QueryOptions{})
	assert.Error(t, err)

	_, err = BuildQuery(accountFields, "", QueryOptions{})
	assert.Error(t, err)

	_, err = BuildQuery(accountFields, "Account", QueryOptions{ParentIDs: []string{"x"}})
	assert.Error(t, err)
}
