package crmsync

import "sync"

// SyncMetrics tracks the overall sync operation metrics
type SyncMetrics struct {
	ObjectsSucceeded int
	ObjectsFailed    int
	RecordsFetched   int
	RecordsCreated   int
	RecordsUpdated   int
	RecordsDeleted   int
	ChunksSucceeded  int
	ChunksFailed     int
	mu               sync.Mutex
}

// AddObjectSuccess increments the objects succeeded count
func (m *SyncMetrics) AddObjectSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ObjectsSucceeded++
}

// AddObjectFailure increments the objects failed count
func (m *SyncMetrics) AddObjectFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ObjectsFailed++
}

// AddFetched adds to the fetched records count
func (m *SyncMetrics) AddFetched(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordsFetched += n
}

// AddChunkSuccess records an applied chunk of n records
func (m *SyncMetrics) AddChunkSuccess(op Operation, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChunksSucceeded++
	switch op {
	case OpCreate:
		m.RecordsCreated += n
	case OpUpdate:
		m.RecordsUpdated += n
	case OpDelete:
		m.RecordsDeleted += n
	}
}

// AddChunkFailure increments the chunks failed count
func (m *SyncMetrics) AddChunkFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChunksFailed++
}

// TotalApplied returns the number of records written to the destination
func (m *SyncMetrics) TotalApplied() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RecordsCreated + m.RecordsUpdated + m.RecordsDeleted
}

// Snapshot returns a copy that is safe to read without locking
func (m *SyncMetrics) Snapshot() SyncMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SyncMetrics{
		ObjectsSucceeded: m.ObjectsSucceeded,
		ObjectsFailed:    m.ObjectsFailed,
		RecordsFetched:   m.RecordsFetched,
		RecordsCreated:   m.RecordsCreated,
		RecordsUpdated:   m.RecordsUpdated,
		RecordsDeleted:   m.RecordsDeleted,
		ChunksSucceeded:  m.ChunksSucceeded,
		ChunksFailed:     m.ChunksFailed,
	}
}
