package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
)

const dialTimeout = 10 * time.Second

// service is a device-action source talking to an external bridge process
// that owns the physical device. Every action is a request tagged with a
// unique id, the bridge replies with one message per state of the action.
type service struct {
	conn      *websocket.Conn
	nextId    uint64
	chHandler *chHandler
	writeLock *sync.Mutex
	closed    chan struct{}
	closeOnce *sync.Once

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewService(addr string) (ports.DeviceActionSource, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = dialTimeout
	conn, _, err := dialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device bridge: %w", err)
	}

	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("bridge: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("bridge: %s", format)
		log.WithError(err).Warnf(format, a...)
	}

	svc := &service{
		conn:      conn,
		chHandler: newChHandler(),
		writeLock: &sync.Mutex{},
		closed:    make(chan struct{}),
		closeOnce: &sync.Once{},
		log:       logFn,
		warn:      warnFn,
	}
	go svc.listen()

	svc.log("connected to %s", addr)
	return svc, nil
}

func (s *service) OpenAppWithDependencies(
	ctx context.Context, spec domain.AppLaunchSpec, opts domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.AppOpened], error) {
	params := newActionParams(opts)
	params.App = &spec
	return doAction(ctx, s, actionOpenApp, params, appOpenedOutput.toDomain)
}

func (s *service) GetAddress(
	ctx context.Context, derivationPath string, opts domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.DeviceAddress], error) {
	params := newActionParams(opts)
	params.DerivationPath = derivationPath
	return doAction(ctx, s, actionGetAddress, params, addressOutput.toDomain)
}

func (s *service) SignTransaction(
	ctx context.Context, derivationPath string, rawTx []byte,
	opts domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.Signature], error) {
	params := newActionParams(opts)
	params.DerivationPath = derivationPath
	params.Transaction = hexutil.Encode(rawTx)
	return doAction(ctx, s, actionSignTransaction, params, signatureOutput.toDomain)
}

func (s *service) SignMessage(
	ctx context.Context, derivationPath string, message []byte,
	opts domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.Signature], error) {
	params := newActionParams(opts)
	params.DerivationPath = derivationPath
	params.Message = hexutil.Encode(message)
	return doAction(ctx, s, actionSignMessage, params, signatureOutput.toDomain)
}

func (s *service) SignTypedData(
	ctx context.Context, derivationPath string, typedData apitypes.TypedData,
	opts domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.Signature], error) {
	params := newActionParams(opts)
	params.DerivationPath = derivationPath
	params.TypedData = &typedData
	return doAction(ctx, s, actionSignTypedData, params, signatureOutput.toDomain)
}

// Close drops the connection to the bridge. Every running action terminates
// with ErrConnectionLost.
func (s *service) Close() {
	s.conn.Close()
	s.shutdown()
}

func (s *service) shutdown() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.chHandler.clear()
	})
}

func (s *service) listen() {
	defer s.shutdown()

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.warn(err, "connection dropped")
			}
			return
		}

		var resp response
		if err := json.Unmarshal(msg, &resp); err != nil {
			s.warn(err, "failed to parse message from bridge")
			continue
		}
		if resp.State == nil {
			continue
		}

		action := s.chHandler.getAction(resp.Id)
		if action == nil {
			s.log("dropped state for unknown action %d", resp.Id)
			continue
		}
		action.deliver(*resp.State)
	}
}

func (s *service) send(req request) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	return s.conn.WriteJSON(req)
}

func (s *service) cancel(id uint64) {
	if err := s.send(request{Id: id, Action: actionCancel}); err != nil {
		s.warn(err, "failed to cancel action %d", id)
	}
}

// doAction sends the given action to the bridge and relays the states it
// replies with, decoding the output of the completed state with toDomain.
func doAction[T any, W any](
	ctx context.Context, s *service, action string, params actionParams,
	toDomain func(W) (T, error),
) (<-chan domain.DeviceActionState[T], error) {
	select {
	case <-s.closed:
		return nil, ErrConnectionLost
	default:
	}

	id := atomic.AddUint64(&s.nextId, 1)
	pending := s.chHandler.addAction(id)
	if err := s.send(request{Id: id, Action: action, Params: params}); err != nil {
		s.chHandler.clearAction(id)
		return nil, fmt.Errorf("failed to send %s request: %w", action, err)
	}
	s.log("sent %s request %d", action, id)

	out := make(chan domain.DeviceActionState[T])
	go func() {
		defer close(out)
		defer s.chHandler.clearAction(id)

		emit := func(state domain.DeviceActionState[T]) bool {
			select {
			case out <- state:
				return true
			case <-ctx.Done():
				s.cancel(id)
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				s.cancel(id)
				return
			case <-s.closed:
				emit(domain.ErrorState[T](ErrConnectionLost))
				return
			case st := <-pending.states:
				state, terminal := decodeState(st, toDomain)
				if !emit(state) || terminal {
					return
				}
			}
		}
	}()

	return out, nil
}

func decodeState[T any, W any](
	st wireState, toDomain func(W) (T, error),
) (domain.DeviceActionState[T], bool) {
	switch st.Status {
	case statusPending:
		return domain.PendingState[T](
			domain.DeviceInteraction(st.Interaction), st.Step,
		), false
	case statusCompleted:
		var wire W
		if err := json.Unmarshal(st.Output, &wire); err != nil {
			return domain.ErrorState[T](fmt.Errorf("invalid action output: %w", err)), true
		}
		output, err := toDomain(wire)
		if err != nil {
			return domain.ErrorState[T](fmt.Errorf("invalid action output: %w", err)), true
		}
		return domain.CompletedState(output), true
	case statusError:
		if st.Error == nil {
			return domain.ErrorState[T](fmt.Errorf("unknown device error")), true
		}
		return domain.ErrorState[T](
			domain.NewDeviceError(st.Error.Code, st.Error.Message),
		), true
	default:
		return domain.ErrorState[T](
			fmt.Errorf("unknown action status %q", st.Status),
		), true
	}
}
