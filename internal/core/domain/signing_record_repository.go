package domain

import (
	"context"
	"fmt"
)

var (
	ErrSigningRecordNotFound      = fmt.Errorf("signing record not found")
	ErrSigningRecordAlreadyExists = fmt.Errorf("signing record already exists")
)

// SigningRecordRepository is the abstraction for any kind of database intended
// to persist SigningRecords.
type SigningRecordRepository interface {
	// AddRecord adds the provided record to the repository by preventing
	// duplicates. Returns false if a record with the same flow id exists.
	AddRecord(ctx context.Context, record *SigningRecord) (bool, error)
	// GetRecord returns the record of the flow identified by the given id.
	GetRecord(ctx context.Context, flowID string) (*SigningRecord, error)
	// ListRecordsForAccount returns all records of the given account, most
	// recent first.
	ListRecordsForAccount(
		ctx context.Context, accountRef string,
	) ([]*SigningRecord, error)
}
