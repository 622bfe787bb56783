package dbbadger

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/vulpemventures/hwsign/internal/core/domain"
)

type signingRecordRepository struct {
	store *badgerhold.Store

	log func(format string, a ...interface{})
}

func NewSigningRecordRepository(
	store *badgerhold.Store,
) domain.SigningRecordRepository {
	return newSigningRecordRepository(store)
}

func newSigningRecordRepository(
	store *badgerhold.Store,
) *signingRecordRepository {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("signing record repository: %s", format)
		log.Debugf(format, a...)
	}
	return &signingRecordRepository{store, logFn}
}

func (r *signingRecordRepository) AddRecord(
	ctx context.Context, record *domain.SigningRecord,
) (bool, error) {
	var err error
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxInsert(tx, record.FlowID, *record)
	} else {
		err = r.store.Insert(record.FlowID, *record)
	}
	if err != nil {
		if err == badgerhold.ErrKeyExists {
			return false, nil
		}
		return false, err
	}

	r.log("added record for flow %s", record.FlowID)
	return true, nil
}

func (r *signingRecordRepository) GetRecord(
	ctx context.Context, flowID string,
) (*domain.SigningRecord, error) {
	var record domain.SigningRecord
	var err error
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxGet(tx, flowID, &record)
	} else {
		err = r.store.Get(flowID, &record)
	}
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, domain.ErrSigningRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *signingRecordRepository) ListRecordsForAccount(
	ctx context.Context, accountRef string,
) ([]*domain.SigningRecord, error) {
	query := badgerhold.Where("AccountRef").Eq(accountRef).
		SortBy("StartedAt", "CompletedAt").Reverse()

	var list []domain.SigningRecord
	var err error
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxFind(tx, &list, query)
	} else {
		err = r.store.Find(&list, query)
	}
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}

	records := make([]*domain.SigningRecord, 0, len(list))
	for i := range list {
		records = append(records, &list[i])
	}
	return records, nil
}

func (r *signingRecordRepository) reset() {
	r.store.Badger().DropAll()
}

func (r *signingRecordRepository) close() {
	r.store.Close()
}
