package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/colorfulnotion/repminer/common"
	"github.com/colorfulnotion/repminer/log"
	"github.com/colorfulnotion/repminer/minererrors"
	"github.com/colorfulnotion/repminer/trie"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethereumCommon "github.com/ethereum/go-ethereum/common"
	ethereumTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// Options are the transaction knobs of the on-chain ledger.
type Options struct {
	SubmitJRHGas          uint64
	BinarySearchGas       uint64
	RespondToChallengeGas uint64
	ReceiptPollInterval   time.Duration
	ReceiptTimeout        time.Duration
}

func DefaultOptions() Options {
	return Options{
		SubmitJRHGas:          6_000_000,
		BinarySearchGas:       1_000_000,
		RespondToChallengeGas: 4_000_000,
		ReceiptPollInterval:   time.Second,
		ReceiptTimeout:        2 * time.Minute,
	}
}

// EthLedger talks to a colony network deployment over JSON-RPC.
type EthLedger struct {
	client  *ethclient.Client
	network common.Address
	sender  Sender
	opts    Options
}

// Dial connects to rawurl. When privateKeyHex is empty transactions are sent
// from the node-unlocked account from.
func Dial(ctx context.Context, rawurl string, network, from common.Address, privateKeyHex string, chainID uint64, opts Options) (*EthLedger, error) {
	rpcClient, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", rawurl)
	}
	client := ethclient.NewClient(rpcClient)
	var sender Sender
	if privateKeyHex != "" {
		ks, err := NewKeyedSender(client, privateKeyHex, chainID)
		if err != nil {
			client.Close()
			return nil, err
		}
		sender = ks
	} else {
		sender = NewUnlockedSender(rpcClient, from)
	}
	log.Info(log.LedgerMonitoring, "ledger connected", "url", rawurl, "network", network, "from", sender.From())
	return NewEthLedger(client, network, sender, opts), nil
}

func NewEthLedger(client *ethclient.Client, network common.Address, sender Sender, opts Options) *EthLedger {
	return &EthLedger{client: client, network: network, sender: sender, opts: opts}
}

func (l *EthLedger) Close() {
	l.client.Close()
}

func (l *EthLedger) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}
	target := ethereumCommon.Address(to)
	out, err := l.client.CallContract(ctx, ethereum.CallMsg{
		From: ethereumCommon.Address(l.sender.From()),
		To:   &target,
		Data: data,
	}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", method)
	}
	res, err := contract.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", method)
	}
	log.Trace(log.LedgerMonitoring, "call", "method", method, "to", to)
	return res, nil
}

func (l *EthLedger) transact(ctx context.Context, contract abi.ABI, to common.Address, gasLimit uint64, method string, args ...interface{}) error {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return errors.Wrapf(err, "pack %s", method)
	}
	if gasLimit == 0 {
		target := ethereumCommon.Address(to)
		estimate, err := l.client.EstimateGas(ctx, ethereum.CallMsg{
			From: ethereumCommon.Address(l.sender.From()),
			To:   &target,
			Data: data,
		})
		if err != nil {
			return errors.Wrapf(err, "estimate gas %s", method)
		}
		gasLimit = estimate * 2
	}
	txHash, err := l.sender.Send(ctx, to, data, gasLimit)
	if err != nil {
		return errors.Wrap(err, method)
	}
	log.Debug(log.LedgerMonitoring, "transaction sent", "method", method, "tx", txHash, "gas", gasLimit)
	receipt, err := l.waitReceipt(ctx, txHash)
	if err != nil {
		return errors.Wrap(err, method)
	}
	if receipt.Status != ethereumTypes.ReceiptStatusSuccessful {
		return fmt.Errorf("%s tx %s: %w", method, txHash, minererrors.ErrLTxFailed)
	}
	log.Info(log.LedgerMonitoring, "transaction mined", "method", method, "tx", txHash, "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed)
	return nil
}

func (l *EthLedger) waitReceipt(ctx context.Context, txHash common.Hash) (*ethereumTypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.ReceiptTimeout)
	defer cancel()
	ticker := time.NewTicker(l.opts.ReceiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := l.client.TransactionReceipt(ctx, ethereumCommon.Hash(txHash))
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, errors.Wrap(err, "transaction receipt")
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("tx %s: %w", txHash, minererrors.ErrLTxTimeout)
		case <-ticker.C:
		}
	}
}

func (l *EthLedger) UpdateLogLength(ctx context.Context) (uint64, error) {
	res, err := l.call(ctx, colonyNetworkContract, l.network, "getReputationUpdateLogLength", false)
	if err != nil {
		return 0, err
	}
	n, err := bigOut(res, 0)
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

func (l *EthLedger) UpdateLogEntry(ctx context.Context, index uint64) (UpdateLogEntry, error) {
	res, err := l.call(ctx, colonyNetworkContract, l.network, "getReputationUpdateLogEntry", new(big.Int).SetUint64(index), false)
	if err != nil {
		return UpdateLogEntry{}, err
	}
	return decodeLogEntry(index, res)
}

func (l *EthLedger) ReputationRootHash(ctx context.Context) (common.Hash, error) {
	res, err := l.call(ctx, colonyNetworkContract, l.network, "getReputationRootHash")
	if err != nil {
		return common.Hash{}, err
	}
	return hashOut(res, 0)
}

func (l *EthLedger) MiningCycle(ctx context.Context) (MiningCycle, error) {
	res, err := l.call(ctx, colonyNetworkContract, l.network, "getReputationMiningCycle")
	if err != nil {
		return nil, err
	}
	if len(res) != 1 {
		return nil, fmt.Errorf("getReputationMiningCycle: %w", minererrors.ErrLBadResponse)
	}
	addr, ok := res[0].(ethereumCommon.Address)
	if !ok {
		return nil, fmt.Errorf("getReputationMiningCycle: %w", minererrors.ErrLBadResponse)
	}
	return &ethMiningCycle{ledger: l, address: common.Address(addr)}, nil
}

type ethMiningCycle struct {
	ledger  *EthLedger
	address common.Address
}

func (c *ethMiningCycle) Address() common.Address { return c.address }

func (c *ethMiningCycle) SubmitNewHash(ctx context.Context, root common.Hash, nNodes uint64, entryIndex uint64) error {
	return c.ledger.transact(ctx, miningCycleContract, c.address, 0, "submitNewHash",
		[32]byte(root), new(big.Int).SetUint64(nNodes), new(big.Int).SetUint64(entryIndex))
}

func (c *ethMiningCycle) SubmitJRH(ctx context.Context, round, index uint64, jrh common.Hash, first, last trie.Proof) error {
	return c.ledger.transact(ctx, miningCycleContract, c.address, c.ledger.opts.SubmitJRHGas, "submitJRH",
		new(big.Int).SetUint64(round), new(big.Int).SetUint64(index), [32]byte(jrh),
		maskToBig(first), common.HashesToBytes32(first.Siblings),
		maskToBig(last), common.HashesToBytes32(last.Siblings))
}

func (c *ethMiningCycle) DisputeRound(ctx context.Context, round, index uint64) (Submission, error) {
	res, err := c.ledger.call(ctx, miningCycleContract, c.address, "disputeRounds",
		new(big.Int).SetUint64(round), new(big.Int).SetUint64(index))
	if err != nil {
		return Submission{}, err
	}
	return decodeSubmission(round, index, res)
}

func (c *ethMiningCycle) BinarySearchForChallenge(ctx context.Context, round, index uint64, leaf []byte, proof trie.Proof) error {
	return c.ledger.transact(ctx, miningCycleContract, c.address, c.ledger.opts.BinarySearchGas, "binarySearchForChallenge",
		new(big.Int).SetUint64(round), new(big.Int).SetUint64(index), leaf,
		maskToBig(proof), common.HashesToBytes32(proof.Siblings))
}

func (c *ethMiningCycle) RespondToChallenge(ctx context.Context, args ChallengeArgs) error {
	return c.ledger.transact(ctx, miningCycleContract, c.address, c.ledger.opts.RespondToChallengeGas, "respondToChallenge",
		args.U, args.ReputationKey, common.HashesToBytes32(args.ReputationSiblings),
		args.AgreeStateReputationValue, common.HashesToBytes32(args.AgreeStateSiblings),
		args.DisagreeStateReputationValue, common.HashesToBytes32(args.DisagreeStateSiblings),
		args.PreviousNewReputationKey, args.PreviousNewReputationValue,
		common.HashesToBytes32(args.PreviousNewReputationSiblings))
}

func bigOut(res []interface{}, i int) (*big.Int, error) {
	if i >= len(res) {
		return nil, fmt.Errorf("output %d missing: %w", i, minererrors.ErrLBadResponse)
	}
	n, ok := res[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("output %d is %T: %w", i, res[i], minererrors.ErrLBadResponse)
	}
	return n, nil
}

func hashOut(res []interface{}, i int) (common.Hash, error) {
	if i >= len(res) {
		return common.Hash{}, fmt.Errorf("output %d missing: %w", i, minererrors.ErrLBadResponse)
	}
	h, ok := res[i].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("output %d is %T: %w", i, res[i], minererrors.ErrLBadResponse)
	}
	return common.Hash(h), nil
}

func decodeLogEntry(index uint64, res []interface{}) (UpdateLogEntry, error) {
	var err error
	if len(res) != 6 {
		return UpdateLogEntry{}, fmt.Errorf("log entry %d has %d fields: %w", index, len(res), minererrors.ErrLBadResponse)
	}
	user, ok1 := res[0].(ethereumCommon.Address)
	colony, ok2 := res[3].(ethereumCommon.Address)
	if !ok1 || !ok2 {
		return UpdateLogEntry{}, fmt.Errorf("log entry %d addresses: %w", index, minererrors.ErrLBadResponse)
	}
	var nums [4]*big.Int
	for i, pos := range []int{1, 2, 4, 5} {
		if nums[i], err = bigOut(res, pos); err != nil {
			return UpdateLogEntry{}, err
		}
	}
	skill, overflow := uint256.FromBig(nums[1])
	if overflow {
		return UpdateLogEntry{}, fmt.Errorf("log entry %d skill id: %w", index, minererrors.ErrLBadResponse)
	}
	return UpdateLogEntry{
		User:             user.Hex(),
		Amount:           nums[0],
		SkillID:          skill,
		Colony:           colony.Hex(),
		NUpdates:         nums[2].Uint64(),
		NPreviousUpdates: nums[3].Uint64(),
	}, nil
}

func decodeSubmission(round, index uint64, res []interface{}) (Submission, error) {
	var err error
	if len(res) != 10 {
		return Submission{}, fmt.Errorf("disputeRounds(%d,%d) has %d fields: %w", round, index, len(res), minererrors.ErrLBadResponse)
	}
	var s Submission
	hashes := []*common.Hash{&s.ProposedNewRootHash, nil, nil, nil, &s.JRH, &s.IntermediateReputationHash}
	nums := []*uint64{nil, &s.NNodes, &s.LastResponseTimestamp, &s.ChallengeStepCompleted, nil, nil,
		&s.IntermediateReputationNNodes, &s.JrhNnodes, &s.LowerBound, &s.UpperBound}
	for i := range res {
		if i < len(hashes) && hashes[i] != nil {
			if *hashes[i], err = hashOut(res, i); err != nil {
				return Submission{}, err
			}
			continue
		}
		n, err := bigOut(res, i)
		if err != nil {
			return Submission{}, err
		}
		*nums[i] = n.Uint64()
	}
	return s, nil
}
