package application

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
)

const (
	DefaultSessionLockTTL = 5 * time.Minute
	DefaultFlowRetention  = 5 * time.Minute
	sessionReleaseTimeout = 5 * time.Second
	historyRecordTimeout  = 5 * time.Second
)

var (
	ErrSignFlowNotFound = fmt.Errorf("signing flow not found")
)

// SigningService is the entry point of every signing flow. For every request
// it:
//   - checks synchronously that a device is connected and an account is
//     selected, and that the device session is not used by another flow.
//   - spawns a signing pipeline driving the device through app opening,
//     address verification and signing, and optionally broadcasting.
//   - keeps the flow reachable by id until some time after it terminated, so
//     that late clients can attach to it.
//   - stores the outcome of every flow into the signing history.
type SigningService struct {
	source        ports.DeviceActionSource
	appConfig     ports.AppConfigProvider
	broadcaster   ports.Broadcaster
	tracker       *tracker
	sessionGuard  ports.SessionGuard
	repoManager   ports.RepoManager
	lockTTL       time.Duration
	flowRetention time.Duration

	lock  *sync.RWMutex
	flows map[string]*SignFlow

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewSigningService(
	source ports.DeviceActionSource, appConfig ports.AppConfigProvider,
	broadcaster ports.Broadcaster, trackingSink ports.TrackingSink,
	sessionGuard ports.SessionGuard, repoManager ports.RepoManager,
	lockTTL, flowRetention time.Duration,
) *SigningService {
	if lockTTL <= 0 {
		lockTTL = DefaultSessionLockTTL
	}
	if flowRetention <= 0 {
		flowRetention = DefaultFlowRetention
	}
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("signing service: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("signing service: %s", format)
		log.WithError(err).Warnf(format, a...)
	}

	return &SigningService{
		source:        source,
		appConfig:     appConfig,
		broadcaster:   broadcaster,
		tracker:       newTracker(trackingSink),
		sessionGuard:  sessionGuard,
		repoManager:   repoManager,
		lockTTL:       lockTTL,
		flowRetention: flowRetention,
		lock:          &sync.RWMutex{},
		flows:         make(map[string]*SignFlow),
		log:           logFn,
		warn:          warnFn,
	}
}

// SignTransaction signs an EVM transaction and optionally broadcasts it.
func (s *SigningService) SignTransaction(
	ctx context.Context, derivationPath, accountRef string,
	tx *types.Transaction, chainID *big.Int, broadcast bool,
	session domain.SessionContext,
) (*SignFlow, error) {
	req := domain.NewTransactionRequest(
		derivationPath, accountRef, tx, chainID, broadcast,
	)
	return s.Sign(ctx, req, session)
}

// SignRawTransaction signs an unsigned serialized EVM transaction.
func (s *SigningService) SignRawTransaction(
	ctx context.Context, derivationPath, accountRef string, rawTx []byte,
	session domain.SessionContext,
) (*SignFlow, error) {
	req := domain.NewRawTransactionRequest(derivationPath, accountRef, rawTx)
	return s.Sign(ctx, req, session)
}

// SignTypedData signs EIP-712 typed data.
func (s *SigningService) SignTypedData(
	ctx context.Context, derivationPath, accountRef string,
	typedData apitypes.TypedData, session domain.SessionContext,
) (*SignFlow, error) {
	req := domain.NewTypedDataRequest(derivationPath, accountRef, typedData)
	return s.Sign(ctx, req, session)
}

// SignPersonalMessage signs a message with the personal_sign prefix.
func (s *SigningService) SignPersonalMessage(
	ctx context.Context, derivationPath, accountRef string, message []byte,
	session domain.SessionContext,
) (*SignFlow, error) {
	req := domain.NewPersonalMessageRequest(derivationPath, accountRef, message)
	return s.Sign(ctx, req, session)
}

// Sign starts a new signing flow for the given request. The only error
// returned is for an invalid request, every other failure is reported as the
// terminal status of the returned flow.
// The flow is not bound to ctx, use SignFlow.Cancel or leave every
// subscription to stop it.
func (s *SigningService) Sign(
	ctx context.Context, req domain.SigningRequest, session domain.SessionContext,
) (*SignFlow, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	flowID := uuid.New().String()
	record := domain.NewSigningRecord(flowID, req, session)

	if err := s.checkPreconditions(session); err != nil {
		s.log("flow %s rejected: %s", flowID, err)
		flow := newFailedSignFlow(flowID, req.Kind, err)
		s.addFlow(flow)
		s.addRecord(record, flow)
		return flow, nil
	}

	sessionID := session.DeviceSessionID
	if s.sessionGuard != nil {
		acquired, err := s.sessionGuard.Acquire(ctx, sessionID, s.lockTTL)
		if err == nil && !acquired {
			err = domain.ErrDeviceSessionBusy
		}
		if err != nil {
			s.log("flow %s rejected: %s", flowID, err)
			flow := newFailedSignFlow(flowID, req.Kind, err)
			s.addFlow(flow)
			s.addRecord(record, flow)
			return flow, nil
		}
	}

	flow := newSignFlow(flowID, req.Kind)
	pipeline, err := newSigningPipeline(flowID, req, session, pipelineDeps{
		source:      s.source,
		appConfig:   s.appConfig,
		broadcaster: s.broadcaster,
		tracker:     s.tracker,
	}, flow.hub)
	if err != nil {
		s.releaseSession(sessionID)
		return nil, err
	}

	pipelineCtx, cancel := context.WithCancel(context.Background())
	flow.cancel = cancel
	s.addFlow(flow)

	s.log("flow %s started for %s on session %s", flowID, req.Kind, sessionID)

	go func() {
		defer close(flow.done)
		defer cancel()

		if err := pipeline.run(pipelineCtx); err != nil {
			s.warn(err, "flow %s", flowID)
		}
		s.releaseSession(sessionID)
		s.addRecord(record, flow)
	}()

	return flow, nil
}

// GetFlow returns the flow with the given id, if still tracked.
func (s *SigningService) GetFlow(flowID string) (*SignFlow, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	flow, ok := s.flows[flowID]
	if !ok {
		return nil, ErrSignFlowNotFound
	}
	return flow, nil
}

// GetSigningRecord returns the history record of the given flow.
func (s *SigningService) GetSigningRecord(
	ctx context.Context, flowID string,
) (*SigningRecordInfo, error) {
	if s.repoManager == nil {
		return nil, domain.ErrSigningRecordNotFound
	}
	record, err := s.repoManager.SigningRecordRepository().GetRecord(ctx, flowID)
	if err != nil {
		return nil, err
	}
	return (*SigningRecordInfo)(record), nil
}

// ListSigningHistory returns the history of the given account, most recent
// first.
func (s *SigningService) ListSigningHistory(
	ctx context.Context, accountRef string,
) ([]SigningRecordInfo, error) {
	if s.repoManager == nil {
		return nil, nil
	}
	records, err := s.repoManager.SigningRecordRepository().ListRecordsForAccount(
		ctx, accountRef,
	)
	if err != nil {
		return nil, err
	}
	history := make([]SigningRecordInfo, 0, len(records))
	for _, r := range records {
		history = append(history, SigningRecordInfo(*r))
	}
	return history, nil
}

func (s *SigningService) checkPreconditions(session domain.SessionContext) error {
	if !session.HasDevice() {
		return domain.ErrDeviceNotConnected
	}
	if !session.HasAccount() {
		return domain.ErrAccountNotSelected
	}
	return nil
}

func (s *SigningService) addFlow(flow *SignFlow) {
	s.lock.Lock()
	s.flows[flow.ID()] = flow
	s.lock.Unlock()

	go func() {
		<-flow.Done()
		time.AfterFunc(s.flowRetention, func() {
			s.lock.Lock()
			delete(s.flows, flow.ID())
			s.lock.Unlock()
		})
	}()
}

func (s *SigningService) releaseSession(sessionID string) {
	if s.sessionGuard == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sessionReleaseTimeout)
	defer cancel()

	if err := s.sessionGuard.Release(ctx, sessionID); err != nil {
		s.warn(err, "failed to release device session %s", sessionID)
	}
}

func (s *SigningService) addRecord(record *domain.SigningRecord, flow *SignFlow) {
	if s.repoManager == nil {
		return
	}

	if status, ok := flow.Last(); ok && status.IsTerminal() {
		record.Complete(status)
	} else {
		record.Cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyRecordTimeout)
	defer cancel()

	repo := s.repoManager.SigningRecordRepository()
	if _, err := repo.AddRecord(ctx, record); err != nil {
		s.warn(err, "failed to store history record for flow %s", record.FlowID)
	}
}
