package ethclient_broadcaster

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
)

var (
	ErrChainIDMismatch = fmt.Errorf("transaction chain id does not match the node")

	networks = map[uint64]string{
		1:        "ethereum",
		10:       "optimism",
		56:       "bsc",
		137:      "polygon",
		8453:     "base",
		42161:    "arbitrum",
		11155111: "sepolia",
	}
)

// service submits signed transactions to an EVM node over JSON-RPC.
type service struct {
	client  *ethclient.Client
	chainID *big.Int
	network string

	log func(format string, a ...interface{})
}

func NewService(ctx context.Context, rpcURL string) (ports.Broadcaster, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rpc node: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain id from rpc node: %w", err)
	}

	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("broadcaster: %s", format)
		log.Debugf(format, a...)
	}

	network := NetworkName(chainID)
	logFn("connected to %s node (chain id %s)", network, chainID)

	return &service{
		client:  client,
		chainID: chainID,
		network: network,
		log:     logFn,
	}, nil
}

func (s *service) Broadcast(
	ctx context.Context, args domain.BroadcastArgs,
) (*domain.BroadcastResult, error) {
	signed, err := domain.AssembleSignedTransaction(args.RawTransaction, args.Signature)
	if err != nil {
		return nil, err
	}
	tx, err := signed.Transaction()
	if err != nil {
		return nil, err
	}

	if tx.Protected() && tx.ChainId().Cmp(s.chainID) != 0 {
		return nil, fmt.Errorf(
			"%w: got %s, expected %s", ErrChainIDMismatch, tx.ChainId(), s.chainID,
		)
	}

	if err := s.client.SendTransaction(ctx, tx); err != nil {
		return nil, err
	}

	s.log("broadcasted tx %s on %s", tx.Hash().Hex(), s.network)
	return &domain.BroadcastResult{
		TxHash:  tx.Hash().Hex(),
		Network: s.network,
	}, nil
}

// Close closes the connection to the node.
func (s *service) Close() {
	s.client.Close()
}

// NetworkName returns the well known name of the network with the given chain
// id, or "chain-<id>".
func NetworkName(chainID *big.Int) string {
	if chainID != nil && chainID.IsUint64() {
		if name, ok := networks[chainID.Uint64()]; ok {
			return name
		}
	}
	return fmt.Sprintf("chain-%s", chainID)
}
