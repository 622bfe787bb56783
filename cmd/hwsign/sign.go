package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/interfaces/websocket/api"
	path "github.com/vulpemventures/hwsign/pkg/derivation-path"
)

const (
	etherDecimals = 18
	gweiDecimals  = 9
)

var (
	derivationPath  string
	accountRef      string
	accountAddress  string
	blockchain      string
	deviceSessionID string
	deviceID        string
	deviceModel     string

	txTo             string
	txValue          string
	txNonce          uint64
	txGas            uint64
	txMaxFee         string
	txMaxPriorityFee string
	txData           string
	txChainID        int64
	txBroadcast      bool
	messageIsHex     bool

	signCmd = &cobra.Command{
		Use:   "sign",
		Short: "sign with the hardware device",
		Long: "this command lets you start a signing flow on the device bound to " +
			"the given session and follow it until it terminates",
	}
	signTxCmd = &cobra.Command{
		Use:   "tx",
		Short: "sign an EIP-1559 transaction",
		Long: "this command builds a dynamic fee transaction, signs it and " +
			"optionally broadcasts it",
		RunE: signTx,
	}
	signRawCmd = &cobra.Command{
		Use:   "raw <hex>",
		Short: "sign an unsigned serialized transaction",
		Args:  cobra.ExactArgs(1),
		RunE:  signRaw,
	}
	signTypedDataCmd = &cobra.Command{
		Use:   "typed-data <file>",
		Short: "sign EIP-712 typed data read from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  signTypedData,
	}
	signMessageCmd = &cobra.Command{
		Use:   "message <text>",
		Short: "sign a personal message",
		Args:  cobra.ExactArgs(1),
		RunE:  signMessage,
	}
)

func init() {
	flags := signCmd.PersistentFlags()
	flags.StringVar(&derivationPath, "path", path.DefaultEthereumPath, "derivation path of the signing key")
	flags.StringVar(&accountRef, "account", "", "reference of the account, defaults to the configured one")
	flags.StringVar(&accountAddress, "address", "", "expected address of the account, defaults to the configured one")
	flags.StringVar(&blockchain, "blockchain", "ethereum", "blockchain of the account")
	flags.StringVar(&deviceSessionID, "session", "", "device session id, defaults to the configured one")
	flags.StringVar(&deviceID, "device", "", "id of the device bound to the session, defaults to the configured one")
	flags.StringVar(&deviceModel, "device-model", "", "model of the device")

	signTxCmd.Flags().StringVar(&txTo, "to", "", "recipient address")
	signTxCmd.Flags().StringVar(&txValue, "value", "0", "amount in ether")
	signTxCmd.Flags().Uint64Var(&txNonce, "nonce", 0, "account nonce")
	signTxCmd.Flags().Uint64Var(&txGas, "gas", 21000, "gas limit")
	signTxCmd.Flags().StringVar(&txMaxFee, "max-fee", "0", "max fee per gas in gwei")
	signTxCmd.Flags().StringVar(&txMaxPriorityFee, "max-priority-fee", "0", "max priority fee per gas in gwei")
	signTxCmd.Flags().StringVar(&txData, "data", "", "hex encoded call data")
	signTxCmd.Flags().Int64Var(&txChainID, "chain-id", 1, "id of the chain")
	signTxCmd.Flags().BoolVar(&txBroadcast, "broadcast", false, "broadcast the transaction once signed")
	signTxCmd.MarkFlagRequired("to")

	signMessageCmd.Flags().BoolVar(&messageIsHex, "hex", false, "the message is a hex string")

	signCmd.AddCommand(signTxCmd, signRawCmd, signTypedDataCmd, signMessageCmd)
}

func signTx(_ *cobra.Command, _ []string) error {
	if !common.IsHexAddress(txTo) {
		return fmt.Errorf("invalid recipient address")
	}
	value, err := parseUnits(txValue, etherDecimals)
	if err != nil {
		return fmt.Errorf("invalid value: %s", err)
	}
	maxFee, err := parseUnits(txMaxFee, gweiDecimals)
	if err != nil {
		return fmt.Errorf("invalid max fee: %s", err)
	}
	maxPriorityFee, err := parseUnits(txMaxPriorityFee, gweiDecimals)
	if err != nil {
		return fmt.Errorf("invalid max priority fee: %s", err)
	}
	var data []byte
	if txData != "" {
		if data, err = hexutil.Decode(txData); err != nil {
			return fmt.Errorf("invalid data: %s", err)
		}
	}

	to := common.HexToAddress(txTo)
	chainID := big.NewInt(txChainID)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     txNonce,
		GasTipCap: maxPriorityFee,
		GasFeeCap: maxFee,
		Gas:       txGas,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	raw, err := domain.EncodeUnsignedTransaction(tx, chainID)
	if err != nil {
		return err
	}

	req, err := newSignRequest(domain.SigningKindTransaction)
	if err != nil {
		return err
	}
	req.Transaction = hexutil.Encode(raw)
	req.Broadcast = txBroadcast
	return sign(req)
}

func signRaw(_ *cobra.Command, args []string) error {
	if _, err := hexutil.Decode(args[0]); err != nil {
		return fmt.Errorf("invalid raw transaction: %s", err)
	}
	req, err := newSignRequest(domain.SigningKindRawTransaction)
	if err != nil {
		return err
	}
	req.RawTransaction = args[0]
	return sign(req)
}

func signTypedData(_ *cobra.Command, args []string) error {
	buf, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var typedData apitypes.TypedData
	if err := json.Unmarshal(buf, &typedData); err != nil {
		return fmt.Errorf("invalid typed data: %s", err)
	}

	req, err := newSignRequest(domain.SigningKindTypedData)
	if err != nil {
		return err
	}
	req.TypedData = &typedData
	return sign(req)
}

func signMessage(_ *cobra.Command, args []string) error {
	message := []byte(args[0])
	if messageIsHex {
		buf, err := hexutil.Decode(args[0])
		if err != nil {
			return fmt.Errorf("invalid message: %s", err)
		}
		message = buf
	}

	req, err := newSignRequest(domain.SigningKindPersonalMessage)
	if err != nil {
		return err
	}
	req.Message = hexutil.Encode(message)
	return sign(req)
}

func sign(req api.SignRequest) error {
	conn, err := dial("/v1/sign")
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(req); err != nil {
		return err
	}
	return printStatuses(conn)
}

// newSignRequest fills the request with flags, falling back to the CLI state
// for session and account.
func newSignRequest(kind domain.SigningKind) (api.SignRequest, error) {
	state, err := getState()
	if err != nil {
		return api.SignRequest{}, err
	}
	orState := func(val, key string) string {
		if val != "" {
			return val
		}
		return state[key]
	}

	req := api.SignRequest{
		Kind:           kind.String(),
		DerivationPath: derivationPath,
		AccountRef:     orState(accountRef, "account"),
		Session: api.SessionMsg{
			DeviceSessionID: orState(deviceSessionID, "session"),
		},
	}
	if id := orState(deviceID, "device"); id != "" {
		req.Session.Device = &api.DeviceMsg{ID: id, Model: deviceModel}
	}
	if addr := orState(accountAddress, "address"); addr != "" {
		req.Session.Account = &api.AccountMsg{
			Ref: req.AccountRef, Address: addr, Blockchain: blockchain,
		}
	}
	return req, nil
}

// parseUnits converts a decimal amount into its integer form with the given
// number of decimals.
func parseUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("must not be negative")
	}
	return d.Shift(decimals).BigInt(), nil
}
