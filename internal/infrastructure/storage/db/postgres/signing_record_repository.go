package postgresdb

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/vulpemventures/hwsign/internal/core/domain"
)

const (
	recordColumns = `flow_id, kind, device_session_id, device_model, account_ref,
	account_address, blockchain, derivation_path, broadcast, outcome, error_kind,
	error_message, signature, tx_hash, started_at, completed_at`

	insertRecordQuery = `INSERT INTO signing_record (` + recordColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	getRecordQuery = `SELECT ` + recordColumns + ` FROM signing_record
	WHERE flow_id = $1`

	listRecordsQuery = `SELECT ` + recordColumns + ` FROM signing_record
	WHERE account_ref = $1 ORDER BY started_at DESC, completed_at DESC`

	deleteRecordsQuery = `DELETE FROM signing_record`
)

type signingRecordRepositoryPg struct {
	pgxPool *pgxpool.Pool
}

func NewSigningRecordRepositoryPgImpl(
	pgxPool *pgxpool.Pool,
) domain.SigningRecordRepository {
	return newSigningRecordRepositoryPgImpl(pgxPool)
}

func newSigningRecordRepositoryPgImpl(
	pgxPool *pgxpool.Pool,
) *signingRecordRepositoryPg {
	return &signingRecordRepositoryPg{pgxPool}
}

func (r *signingRecordRepositoryPg) AddRecord(
	ctx context.Context, record *domain.SigningRecord,
) (bool, error) {
	if _, err := r.pgxPool.Exec(
		ctx, insertRecordQuery,
		record.FlowID, int(record.Kind), record.DeviceSessionID, record.DeviceModel,
		record.AccountRef, record.AccountAddress, record.Blockchain,
		record.DerivationPath, record.Broadcast, int(record.Outcome),
		record.ErrorKind, record.ErrorMessage, record.Signature, record.TxHash,
		record.StartedAt, record.CompletedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *signingRecordRepositoryPg) GetRecord(
	ctx context.Context, flowID string,
) (*domain.SigningRecord, error) {
	record, err := scanRecord(r.pgxPool.QueryRow(ctx, getRecordQuery, flowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSigningRecordNotFound
		}
		return nil, err
	}
	return record, nil
}

func (r *signingRecordRepositoryPg) ListRecordsForAccount(
	ctx context.Context, accountRef string,
) ([]*domain.SigningRecord, error) {
	rows, err := r.pgxPool.Query(ctx, listRecordsQuery, accountRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*domain.SigningRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *signingRecordRepositoryPg) reset(ctx context.Context) error {
	_, err := r.pgxPool.Exec(ctx, deleteRecordsQuery)
	return err
}

func scanRecord(row pgx.Row) (*domain.SigningRecord, error) {
	var (
		record        domain.SigningRecord
		kind, outcome int
	)
	if err := row.Scan(
		&record.FlowID, &kind, &record.DeviceSessionID, &record.DeviceModel,
		&record.AccountRef, &record.AccountAddress, &record.Blockchain,
		&record.DerivationPath, &record.Broadcast, &outcome,
		&record.ErrorKind, &record.ErrorMessage, &record.Signature, &record.TxHash,
		&record.StartedAt, &record.CompletedAt,
	); err != nil {
		return nil, err
	}
	record.Kind = domain.SigningKind(kind)
	record.Outcome = domain.SigningOutcome(outcome)
	return &record, nil
}
