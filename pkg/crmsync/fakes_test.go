package crmsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/natserract/sfsync/pkg/airtable"
	"github.com/natserract/sfsync/pkg/salesforce"
)

var errBoom = errors.New("boom")

// fakeSource serves fixed records per object, split into pages of pageSize
type fakeSource struct {
	mu         sync.Mutex
	records    map[string][]salesforce.Record
	describe   map[string]*salesforce.DescribeResult
	pageSize   int
	failQuery  map[string]error
	failMoreAt int
	queries    []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		records:   make(map[string][]salesforce.Record),
		describe:  make(map[string]*salesforce.DescribeResult),
		failQuery: make(map[string]error),
	}
}

func (f *fakeSource) add(object string, raw ...string) {
	for _, r := range raw {
		f.records[object] = append(f.records[object], salesforce.NewRecord(r))
	}
}

func (f *fakeSource) Authenticate(context.Context) (*salesforce.Session, error) {
	return &salesforce.Session{AccessToken: "tok", InstanceURL: "https://example.my.salesforce.com"}, nil
}

func (f *fakeSource) Query(_ context.Context, soql string) (*salesforce.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, soql)

	_, rest, _ := strings.Cut(soql, " FROM ")
	object, _, _ := strings.Cut(rest, " ")
	if err := f.failQuery[object]; err != nil {
		return nil, err
	}
	return f.page(object, 0), nil
}

func (f *fakeSource) QueryMore(_ context.Context, next string) (*salesforce.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cursor := strings.TrimPrefix(next, "/services/data/v59.0/query/")
	object, n, _ := strings.Cut(cursor, "-")
	page, err := strconv.Atoi(n)
	if err != nil {
		return nil, err
	}
	if f.failMoreAt > 0 && page == f.failMoreAt {
		return nil, errBoom
	}
	return f.page(object, page), nil
}

func (f *fakeSource) page(object string, n int) *salesforce.QueryResult {
	records := f.records[object]
	size := f.pageSize
	if size == 0 {
		size = len(records) + 1
	}
	start := min(n*size, len(records))
	end := min(start+size, len(records))

	result := &salesforce.QueryResult{
		TotalSize: len(records),
		Done:      end >= len(records),
		Records:   records[start:end],
	}
	if !result.Done {
		result.NextRecordsURL = fmt.Sprintf("/services/data/v59.0/query/%s-%d", object, n+1)
	}
	return result
}

func (f *fakeSource) Describe(_ context.Context, object string) (*salesforce.DescribeResult, error) {
	desc, ok := f.describe[object]
	if !ok {
		return nil, fmt.Errorf("NOT_FOUND: %s", object)
	}
	return desc, nil
}

// fakeDestination is an in-memory Airtable base
type fakeDestination struct {
	mu       sync.Mutex
	tables   map[string]map[string]map[string]interface{}
	nextID   int
	calls    map[Operation]int
	events   []string
	failName string
	failID   string
	listErr  error
	delay    time.Duration

	inFlight    int32
	maxInFlight int32
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{
		tables: make(map[string]map[string]map[string]interface{}),
		calls:  make(map[Operation]int),
	}
}

func (f *fakeDestination) seed(table, id string, fields map[string]interface{}) {
	if f.tables[table] == nil {
		f.tables[table] = make(map[string]map[string]interface{})
	}
	f.tables[table][id] = fields
}

func (f *fakeDestination) rows(table string) map[string]map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[table]
}

func (f *fakeDestination) callCount(op Operation) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeDestination) enter(op Operation, first string) {
	n := atomic.AddInt32(&f.inFlight, 1)
	for {
		cur := atomic.LoadInt32(&f.maxInFlight)
		if n <= cur || atomic.CompareAndSwapInt32(&f.maxInFlight, cur, n) {
			break
		}
	}
	f.mu.Lock()
	f.calls[op]++
	f.events = append(f.events, "start "+first)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
}

func (f *fakeDestination) leave(first string) {
	f.mu.Lock()
	f.events = append(f.events, "end "+first)
	f.mu.Unlock()
	atomic.AddInt32(&f.inFlight, -1)
}

func (f *fakeDestination) ListRecords(_ context.Context, table string) ([]airtable.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []airtable.Record
	for id, fields := range f.tables[table] {
		out = append(out, airtable.Record{ID: id, Fields: fields})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDestination) CreateRecords(_ context.Context, table string, records []airtable.Record, typecast bool) ([]airtable.Record, error) {
	first := fmt.Sprint(records[0].Fields["Name"])
	f.enter(OpCreate, first)
	defer f.leave(first)

	if !typecast {
		return nil, fmt.Errorf("typecast expected")
	}
	if len(records) > airtable.MaxRecordsPerRequest {
		return nil, fmt.Errorf("too many records: %d", len(records))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		if f.failName != "" && r.Fields["Name"] == f.failName {
			return nil, errBoom
		}
	}
	if f.tables[table] == nil {
		f.tables[table] = make(map[string]map[string]interface{})
	}
	out := make([]airtable.Record, len(records))
	for i, r := range records {
		f.nextID++
		id := fmt.Sprintf("recN%04d", f.nextID)
		f.tables[table][id] = r.Fields
		out[i] = airtable.Record{ID: id, Fields: r.Fields}
	}
	return out, nil
}

func (f *fakeDestination) UpdateRecords(_ context.Context, table string, records []airtable.Record, typecast bool) ([]airtable.Record, error) {
	f.enter(OpUpdate, records[0].ID)
	defer f.leave(records[0].ID)

	if !typecast {
		return nil, fmt.Errorf("typecast expected")
	}
	if len(records) > airtable.MaxRecordsPerRequest {
		return nil, fmt.Errorf("too many records: %d", len(records))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		if _, ok := f.tables[table][r.ID]; !ok {
			return nil, fmt.Errorf("NOT_FOUND: %s", r.ID)
		}
	}
	for _, r := range records {
		f.tables[table][r.ID] = r.Fields
	}
	return records, nil
}

func (f *fakeDestination) DeleteRecords(_ context.Context, table string, ids []string) ([]string, error) {
	f.enter(OpDelete, ids[0])
	defer f.leave(ids[0])

	if len(ids) > airtable.MaxRecordsPerRequest {
		return nil, fmt.Errorf("too many records: %d", len(ids))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if id == f.failID {
			return nil, errBoom
		}
	}
	for _, id := range ids {
		delete(f.tables[table], id)
	}
	return ids, nil
}
