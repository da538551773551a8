package ledger

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/colorfulnotion/repminer/common"
	ethereumCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethereumTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// Sender submits contract transactions on behalf of one miner account.
type Sender interface {
	From() common.Address
	Send(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (common.Hash, error)
}

// UnlockedSender relies on the node holding an unlocked account and signing
// via eth_sendTransaction.
type UnlockedSender struct {
	rpc  *rpc.Client
	from common.Address
}

func NewUnlockedSender(c *rpc.Client, from common.Address) *UnlockedSender {
	return &UnlockedSender{rpc: c, from: from}
}

func (s *UnlockedSender) From() common.Address { return s.from }

type sendTxArgs struct {
	From ethereumCommon.Address `json:"from"`
	To   ethereumCommon.Address `json:"to"`
	Gas  hexutil.Uint64         `json:"gas"`
	Data hexutil.Bytes          `json:"data"`
}

func (s *UnlockedSender) Send(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (common.Hash, error) {
	var txHash ethereumCommon.Hash
	args := sendTxArgs{
		From: ethereumCommon.Address(s.from),
		To:   ethereumCommon.Address(to),
		Gas:  hexutil.Uint64(gasLimit),
		Data: data,
	}
	if err := s.rpc.CallContext(ctx, &txHash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, errors.Wrap(err, "eth_sendTransaction")
	}
	return common.Hash(txHash), nil
}

// KeyedSender signs transactions locally with an EIP-155 signer.
type KeyedSender struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
}

// NewKeyedSender parses a hex private key (no 0x prefix).
func NewKeyedSender(client *ethclient.Client, privateKeyHex string, chainID uint64) (*KeyedSender, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}
	return &KeyedSender{
		client:  client,
		key:     key,
		from:    common.Address(crypto.PubkeyToAddress(key.PublicKey)),
		chainID: new(big.Int).SetUint64(chainID),
	}, nil
}

func (s *KeyedSender) From() common.Address { return s.from }

func (s *KeyedSender) Send(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (common.Hash, error) {
	nonce, err := s.client.PendingNonceAt(ctx, ethereumCommon.Address(s.from))
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "pending nonce")
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "suggest gas price")
	}
	ethTx := ethereumTypes.NewTransaction(nonce, ethereumCommon.Address(to), big.NewInt(0), gasLimit, gasPrice, data)
	signer := ethereumTypes.LatestSignerForChainID(s.chainID)
	signedTx, err := ethereumTypes.SignTx(ethTx, signer, s.key)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "sign transaction")
	}
	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, errors.Wrapf(err, "send transaction nonce=%d", nonce)
	}
	return common.Hash(signedTx.Hash()), nil
}
