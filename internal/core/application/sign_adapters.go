package application

import (
	"context"
	"fmt"

	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
)

var (
	ErrBroadcasterNotConfigured = fmt.Errorf("no broadcaster configured")
	ErrUnsupportedSigningKind   = fmt.Errorf("unsupported signing kind")
)

// signAdapter holds what differs between signing kinds: which sign action to
// start on the device and how to build the success payload.
type signAdapter interface {
	sign(
		ctx context.Context, source ports.DeviceActionSource,
		req domain.SigningRequest, opts domain.ActionOptions,
	) (<-chan domain.DeviceActionState[domain.Signature], error)
	result(
		ctx context.Context, req domain.SigningRequest, sig domain.Signature,
	) (*domain.SigningResult, error)
}

func newSignAdapter(
	kind domain.SigningKind, broadcaster ports.Broadcaster,
) (signAdapter, error) {
	switch kind {
	case domain.SigningKindTransaction:
		return transactionAdapter{broadcaster}, nil
	case domain.SigningKindRawTransaction:
		return rawTransactionAdapter{}, nil
	case domain.SigningKindTypedData:
		return typedDataAdapter{}, nil
	case domain.SigningKindPersonalMessage:
		return personalMessageAdapter{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSigningKind, kind)
	}
}

type transactionAdapter struct {
	broadcaster ports.Broadcaster
}

func (a transactionAdapter) sign(
	ctx context.Context, source ports.DeviceActionSource,
	req domain.SigningRequest, opts domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.Signature], error) {
	rawTx, err := req.RawTransactionBytes()
	if err != nil {
		return nil, err
	}
	return source.SignTransaction(ctx, req.DerivationPath, rawTx, opts)
}

func (a transactionAdapter) result(
	ctx context.Context, req domain.SigningRequest, sig domain.Signature,
) (*domain.SigningResult, error) {
	rawTx, err := req.RawTransactionBytes()
	if err != nil {
		return nil, err
	}

	if !req.BroadcastRequested {
		return assembleResult(rawTx, sig)
	}

	if a.broadcaster == nil {
		return nil, &domain.BroadcastTransactionError{
			Signature: sig, Cause: ErrBroadcasterNotConfigured,
		}
	}

	res, err := a.broadcaster.Broadcast(ctx, domain.BroadcastArgs{
		Signature:      sig,
		RawTransaction: rawTx,
	})
	if err != nil {
		// Keep the signed tx around so that the caller can broadcast it later.
		signedTx, _ := domain.AssembleSignedTransaction(rawTx, sig)
		return nil, &domain.BroadcastTransactionError{
			Signature: sig, SignedTransaction: signedTx, Cause: err,
		}
	}
	return &domain.SigningResult{Signature: sig, Broadcast: res}, nil
}

type rawTransactionAdapter struct{}

func (rawTransactionAdapter) sign(
	ctx context.Context, source ports.DeviceActionSource,
	req domain.SigningRequest, opts domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.Signature], error) {
	return source.SignTransaction(ctx, req.DerivationPath, req.RawTransaction, opts)
}

func (rawTransactionAdapter) result(
	_ context.Context, req domain.SigningRequest, sig domain.Signature,
) (*domain.SigningResult, error) {
	return assembleResult(req.RawTransaction, sig)
}

type typedDataAdapter struct{}

func (typedDataAdapter) sign(
	ctx context.Context, source ports.DeviceActionSource,
	req domain.SigningRequest, opts domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.Signature], error) {
	return source.SignTypedData(ctx, req.DerivationPath, *req.TypedData, opts)
}

func (typedDataAdapter) result(
	_ context.Context, _ domain.SigningRequest, sig domain.Signature,
) (*domain.SigningResult, error) {
	return &domain.SigningResult{Signature: sig}, nil
}

type personalMessageAdapter struct{}

func (personalMessageAdapter) sign(
	ctx context.Context, source ports.DeviceActionSource,
	req domain.SigningRequest, opts domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.Signature], error) {
	return source.SignMessage(ctx, req.DerivationPath, req.Message, opts)
}

func (personalMessageAdapter) result(
	_ context.Context, _ domain.SigningRequest, sig domain.Signature,
) (*domain.SigningResult, error) {
	return &domain.SigningResult{Signature: sig}, nil
}

func assembleResult(
	rawTx []byte, sig domain.Signature,
) (*domain.SigningResult, error) {
	signedTx, err := domain.AssembleSignedTransaction(rawTx, sig)
	if err != nil {
		return nil, err
	}
	return &domain.SigningResult{Signature: sig, SignedTransaction: signedTx}, nil
}
