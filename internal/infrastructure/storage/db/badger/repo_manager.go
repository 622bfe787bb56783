package dbbadger

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
)

const gcInterval = 30 * time.Minute

// repoManager holds the badgerhold stores and domain repositories
// implementations in a single data structure.
type repoManager struct {
	recordRepository *signingRecordRepository
	stopGC           chan struct{}
}

// NewRepoManager is the factory for creating a new badger implementation
// of the ports.RepoManager interface.
// It takes care of creating the db files on disk (or in-memory if no baseDbDir
// is provided - to be used only for testing purposes), and opening and closing
// the connection to them.
func NewRepoManager(baseDbDir string, logger badger.Logger) (ports.RepoManager, error) {
	var historyDir string
	if len(baseDbDir) > 0 {
		historyDir = filepath.Join(baseDbDir, "history")
	}

	stopGC := make(chan struct{})
	historyDb, err := createDb(historyDir, logger, stopGC)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	return &repoManager{
		recordRepository: newSigningRecordRepository(historyDb),
		stopGC:           stopGC,
	}, nil
}

func (rm *repoManager) SigningRecordRepository() domain.SigningRecordRepository {
	return rm.recordRepository
}

func (rm *repoManager) Reset() {
	rm.recordRepository.reset()
}

func (rm *repoManager) Close() {
	close(rm.stopGC)
	rm.recordRepository.close()
}

func createDb(
	dbDir string, logger badger.Logger, stopGC chan struct{},
) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(gcInterval)

		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-stopGC:
					return
				case <-ticker.C:
				}
				if err := db.Badger().RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
					log.Warnf("garbage collector: %s", err)
				}
			}
		}()
	}

	return db, nil
}
