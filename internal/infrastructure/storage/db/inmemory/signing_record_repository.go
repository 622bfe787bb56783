package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/vulpemventures/hwsign/internal/core/domain"
)

type recordInmemoryStore struct {
	records   map[string]*domain.SigningRecord
	byAccount map[string][]string
	lock      *sync.RWMutex
}

type signingRecordRepository struct {
	store *recordInmemoryStore
}

func NewSigningRecordRepository() domain.SigningRecordRepository {
	return newSigningRecordRepository()
}

func newSigningRecordRepository() *signingRecordRepository {
	return &signingRecordRepository{
		store: &recordInmemoryStore{
			records:   make(map[string]*domain.SigningRecord),
			byAccount: make(map[string][]string),
			lock:      &sync.RWMutex{},
		},
	}
}

func (r *signingRecordRepository) AddRecord(
	_ context.Context, record *domain.SigningRecord,
) (bool, error) {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	if _, ok := r.store.records[record.FlowID]; ok {
		return false, nil
	}

	rec := *record
	r.store.records[record.FlowID] = &rec
	r.store.byAccount[record.AccountRef] = append(
		r.store.byAccount[record.AccountRef], record.FlowID,
	)
	return true, nil
}

func (r *signingRecordRepository) GetRecord(
	_ context.Context, flowID string,
) (*domain.SigningRecord, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	record, ok := r.store.records[flowID]
	if !ok {
		return nil, domain.ErrSigningRecordNotFound
	}
	rec := *record
	return &rec, nil
}

func (r *signingRecordRepository) ListRecordsForAccount(
	_ context.Context, accountRef string,
) ([]*domain.SigningRecord, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	flowIDs := r.store.byAccount[accountRef]
	records := make([]*domain.SigningRecord, 0, len(flowIDs))
	for _, id := range flowIDs {
		rec := *r.store.records[id]
		records = append(records, &rec)
	}
	sortByMostRecent(records)
	return records, nil
}

func (r *signingRecordRepository) reset() {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	r.store.records = make(map[string]*domain.SigningRecord)
	r.store.byAccount = make(map[string][]string)
}

// sortByMostRecent sorts by start time, latest first. Insertion order breaks
// ties, the latest added coming first.
func sortByMostRecent(records []*domain.SigningRecord) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt > records[j].StartedAt
	})
}
