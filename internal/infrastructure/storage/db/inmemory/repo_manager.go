package inmemory

import (
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
)

type repoManager struct {
	recordRepository *signingRecordRepository
}

func NewRepoManager() ports.RepoManager {
	return &repoManager{
		recordRepository: newSigningRecordRepository(),
	}
}

func (rm *repoManager) SigningRecordRepository() domain.SigningRecordRepository {
	return rm.recordRepository
}

func (rm *repoManager) Reset() {
	rm.recordRepository.reset()
}

func (rm *repoManager) Close() {}
