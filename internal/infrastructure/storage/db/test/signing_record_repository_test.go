package db_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
	dbbadger "github.com/vulpemventures/hwsign/internal/infrastructure/storage/db/badger"
	"github.com/vulpemventures/hwsign/internal/infrastructure/storage/db/inmemory"
	postgresdb "github.com/vulpemventures/hwsign/internal/infrastructure/storage/db/postgres"
)

var ctx = context.Background()

func TestSigningRecordRepository(t *testing.T) {
	repoManagers, err := newRepoManagers()
	require.NoError(t, err)

	for name, repoManager := range repoManagers {
		repoManager := repoManager
		t.Run(name, func(t *testing.T) {
			t.Cleanup(repoManager.Close)
			repoManager.Reset()
			testSigningRecordRepository(t, repoManager.SigningRecordRepository())
		})
	}
}

func testSigningRecordRepository(t *testing.T, repo domain.SigningRecordRepository) {
	accountRef := uuid.New().String()
	now := time.Now().Unix()

	first := newRecord(accountRef, now-20)
	first.Outcome = domain.SigningOutcomeSuccess
	first.Signature = "0x" + fmt.Sprintf("%0130x", 1)
	second := newRecord(accountRef, now-10)
	second.Outcome = domain.SigningOutcomeError
	second.ErrorKind = "deviceLocked"
	second.ErrorMessage = "device locked"
	other := newRecord(uuid.New().String(), now)

	t.Run("add_record", func(t *testing.T) {
		for _, r := range []*domain.SigningRecord{first, second, other} {
			done, err := repo.AddRecord(ctx, r)
			require.NoError(t, err)
			require.True(t, done)
		}

		done, err := repo.AddRecord(ctx, first)
		require.NoError(t, err)
		require.False(t, done)
	})

	t.Run("get_record", func(t *testing.T) {
		record, err := repo.GetRecord(ctx, second.FlowID)
		require.NoError(t, err)
		require.Equal(t, *second, *record)

		record, err = repo.GetRecord(ctx, uuid.New().String())
		require.ErrorIs(t, err, domain.ErrSigningRecordNotFound)
		require.Nil(t, record)
	})

	t.Run("list_records_for_account", func(t *testing.T) {
		records, err := repo.ListRecordsForAccount(ctx, accountRef)
		require.NoError(t, err)
		require.Len(t, records, 2)
		require.Equal(t, second.FlowID, records[0].FlowID)
		require.Equal(t, first.FlowID, records[1].FlowID)

		records, err = repo.ListRecordsForAccount(ctx, uuid.New().String())
		require.NoError(t, err)
		require.Empty(t, records)
	})
}

func newRecord(accountRef string, startedAt int64) *domain.SigningRecord {
	return &domain.SigningRecord{
		FlowID:          uuid.New().String(),
		Kind:            domain.SigningKindPersonalMessage,
		DeviceSessionID: "session",
		DeviceModel:     "nanoX",
		AccountRef:      accountRef,
		AccountAddress:  "0x9858effd232b4033e47d90003d41ec34ecaeda94",
		Blockchain:      "ethereum",
		DerivationPath:  "m/44'/60'/0'/0/0",
		StartedAt:       startedAt,
		CompletedAt:     startedAt + 5,
	}
}

// newRepoManagers returns the in-memory and embedded repo managers, plus the
// postgres one if HWSIGN_TEST_DB_HOST is set.
func newRepoManagers() (map[string]ports.RepoManager, error) {
	badgerRepoManager, err := dbbadger.NewRepoManager("", nil)
	if err != nil {
		return nil, err
	}
	repoManagers := map[string]ports.RepoManager{
		"inmemory": inmemory.NewRepoManager(),
		"badger":   badgerRepoManager,
	}

	host := os.Getenv("HWSIGN_TEST_DB_HOST")
	if host == "" {
		return repoManagers, nil
	}
	pgRepoManager, err := postgresdb.NewRepoManager(postgresdb.DbConfig{
		DbUser:             "root",
		DbPassword:         "secret",
		DbHost:             host,
		DbPort:             5432,
		DbName:             "hwsignd-db-test",
		MigrationSourceURL: "file://../postgres/migration",
	})
	if err != nil {
		return nil, err
	}
	repoManagers["postgres"] = pgRepoManager
	return repoManagers, nil
}
