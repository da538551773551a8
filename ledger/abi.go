package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const colonyNetworkABI = `[
{"type":"function","name":"getReputationMiningCycle","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"getReputationRootHash","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32"}]},
{"type":"function","name":"getReputationUpdateLogLength","stateMutability":"view","inputs":[{"name":"_active","type":"bool"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getReputationUpdateLogEntry","stateMutability":"view","inputs":[{"name":"_id","type":"uint256"},{"name":"_active","type":"bool"}],"outputs":[
 {"name":"user","type":"address"},{"name":"amount","type":"int256"},{"name":"skillId","type":"uint256"},
 {"name":"colony","type":"address"},{"name":"nUpdates","type":"uint256"},{"name":"nPreviousUpdates","type":"uint256"}]}
]`

const miningCycleABI = `[
{"type":"function","name":"submitNewHash","stateMutability":"nonpayable","inputs":[{"name":"newHash","type":"bytes32"},{"name":"nNodes","type":"uint256"},{"name":"entryIndex","type":"uint256"}],"outputs":[]},
{"type":"function","name":"submitJRH","stateMutability":"nonpayable","inputs":[
 {"name":"round","type":"uint256"},{"name":"index","type":"uint256"},{"name":"jrh","type":"bytes32"},
 {"name":"branchMask1","type":"uint256"},{"name":"siblings1","type":"bytes32[]"},
 {"name":"branchMask2","type":"uint256"},{"name":"siblings2","type":"bytes32[]"}],"outputs":[]},
{"type":"function","name":"disputeRounds","stateMutability":"view","inputs":[{"name":"","type":"uint256"},{"name":"","type":"uint256"}],"outputs":[
 {"name":"proposedNewRootHash","type":"bytes32"},{"name":"nNodes","type":"uint256"},{"name":"lastResponseTimestamp","type":"uint256"},
 {"name":"challengeStepCompleted","type":"uint256"},{"name":"jrh","type":"bytes32"},{"name":"intermediateReputationHash","type":"bytes32"},
 {"name":"intermediateReputationNNodes","type":"uint256"},{"name":"jrhNnodes","type":"uint256"},
 {"name":"lowerBound","type":"uint256"},{"name":"upperBound","type":"uint256"}]},
{"type":"function","name":"binarySearchForChallenge","stateMutability":"nonpayable","inputs":[
 {"name":"round","type":"uint256"},{"name":"idx","type":"uint256"},{"name":"jhIntermediateValue","type":"bytes"},
 {"name":"branchMask","type":"uint256"},{"name":"siblings","type":"bytes32[]"}],"outputs":[]},
{"type":"function","name":"respondToChallenge","stateMutability":"nonpayable","inputs":[
 {"name":"u","type":"uint256[9]"},{"name":"_reputationKey","type":"bytes"},{"name":"reputationSiblings","type":"bytes32[]"},
 {"name":"agreeStateReputationValue","type":"bytes"},{"name":"agreeStateSiblings","type":"bytes32[]"},
 {"name":"disagreeStateReputationValue","type":"bytes"},{"name":"disagreeStateSiblings","type":"bytes32[]"},
 {"name":"previousNewReputationKey","type":"bytes"},{"name":"previousNewReputationValue","type":"bytes"},
 {"name":"previousNewReputationSiblings","type":"bytes32[]"}],"outputs":[]}
]`

var (
	colonyNetworkContract = mustParseABI(colonyNetworkABI)
	miningCycleContract   = mustParseABI(miningCycleABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
