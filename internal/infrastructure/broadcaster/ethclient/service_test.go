package ethclient_broadcaster_test

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	ethclient_broadcaster "github.com/vulpemventures/hwsign/internal/infrastructure/broadcaster/ethclient"
)

var (
	ctx = context.Background()
	to  = common.HexToAddress("0x3535353535353535353535353535353535353535")
)

func TestBroadcast(t *testing.T) {
	node := newFakeNode(t, 11155111)
	broadcaster, err := ethclient_broadcaster.NewService(ctx, node.server.URL)
	require.NoError(t, err)

	tx, raw, sig := signTx(t, big.NewInt(11155111))
	res, err := broadcaster.Broadcast(ctx, domain.BroadcastArgs{
		Signature: sig, RawTransaction: raw,
	})
	require.NoError(t, err)
	require.Equal(t, "sepolia", res.Network)

	require.Len(t, node.sent, 1)
	sent := new(types.Transaction)
	require.NoError(t, sent.UnmarshalBinary(node.sent[0]))
	require.Equal(t, sent.Hash().Hex(), res.TxHash)
	require.Equal(t, tx.Nonce(), sent.Nonce())
}

func TestBroadcastChainMismatch(t *testing.T) {
	node := newFakeNode(t, 1)
	broadcaster, err := ethclient_broadcaster.NewService(ctx, node.server.URL)
	require.NoError(t, err)

	_, raw, sig := signTx(t, big.NewInt(137))
	_, err = broadcaster.Broadcast(ctx, domain.BroadcastArgs{
		Signature: sig, RawTransaction: raw,
	})
	require.ErrorIs(t, err, ethclient_broadcaster.ErrChainIDMismatch)
	require.Empty(t, node.sent)
}

func TestNetworkName(t *testing.T) {
	require.Equal(t, "ethereum", ethclient_broadcaster.NetworkName(big.NewInt(1)))
	require.Equal(t, "chain-999", ethclient_broadcaster.NetworkName(big.NewInt(999)))
}

func signTx(t *testing.T, chainID *big.Int) (*types.Transaction, []byte, domain.Signature) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID: chainID, Nonce: 5, GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(2),
		Gas: 21000, To: &to, Value: big.NewInt(10),
	})
	raw, err := domain.EncodeUnsignedTransaction(tx, chainID)
	require.NoError(t, err)
	buf, err := crypto.Sign(crypto.Keccak256(raw), key)
	require.NoError(t, err)
	sig, err := domain.NewSignatureFromBytes(buf)
	require.NoError(t, err)
	return tx, raw, sig
}

type fakeNode struct {
	server *httptest.Server
	lock   sync.Mutex
	sent   [][]byte
}

// newFakeNode starts a JSON-RPC server answering eth_chainId and
// eth_sendRawTransaction.
func newFakeNode(t *testing.T, chainID uint64) *fakeNode {
	n := &fakeNode{}
	n.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var result interface{}
		switch req.Method {
		case "eth_chainId":
			result = hexutil.Uint64(chainID)
		case "eth_sendRawTransaction":
			var rawTx hexutil.Bytes
			if err := json.Unmarshal(req.Params[0], &rawTx); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			tx := new(types.Transaction)
			if err := tx.UnmarshalBinary(rawTx); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			n.lock.Lock()
			n.sent = append(n.sent, rawTx)
			n.lock.Unlock()
			result = tx.Hash()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": req.ID, "result": result,
		})
	}))
	t.Cleanup(n.server.Close)
	return n
}
