package minererrors

import (
	"errors"
	"strings"
)

// Accumulator (T) Errors
var (
	ErrTKeyNotFound      = errors.New("T1|KeyNotFound: Key is not present in the trie.")
	ErrTBadNode          = errors.New("T2|BadNode: Trie node referenced by an edge is missing from the node store.")
	ErrTProofMismatch    = errors.New("T3|ProofMismatch: Proof does not reconstruct the expected root hash.")
	ErrTSiblingsMismatch = errors.New("T4|SiblingsMismatch: Branch mask and sibling count disagree.")
)

// Reputation store (R) Errors
var (
	ErrRMalformedAddress = errors.New("R1|MalformedAddress: Colony or user address is not a well-formed account identifier.")
	ErrRBadValueLength   = errors.New("R2|BadValueLength: Reputation value is not 64 bytes.")
	ErrRCacheDiverged    = errors.New("R3|CacheDiverged: Rebuilt reputation root does not match the ledger-confirmed root.")
)

// Mining cycle (M) Errors
var (
	ErrMMalformedLogEntry = errors.New("M1|MalformedLogEntry: Update log entry could not be applied to the reputation state.")
	ErrMCycleNotReplayed  = errors.New("M2|CycleNotReplayed: The update log has not been replayed for this cycle.")
	ErrMRecordMissing     = errors.New("M3|RecordMissing: No justification record exists at the requested index.")
	ErrMSlotNotFound      = errors.New("M4|SlotNotFound: Submission not found in the dispute bracket within the probe bounds.")
)

// Dispute (D) Errors
var (
	ErrDNotConverged      = errors.New("D1|NotConverged: Binary search bounds are not yet adjacent.")
	ErrDAlreadyConverged  = errors.New("D2|AlreadyConverged: Binary search bounds are already adjacent.")
	ErrDBoundsOutOfRange  = errors.New("D3|BoundsOutOfRange: Binary search bounds fall outside the justification records.")
	ErrDInvalidPayload    = errors.New("D4|InvalidPayload: Challenge payload failed validation.")
	ErrDNoOpponent        = errors.New("D5|NoOpponent: Submission has no paired opponent in this round.")
	ErrDChallengeRejected = errors.New("D6|ChallengeRejected: Contract rejected the challenge response.")
)

// Ledger (L) Errors
var (
	ErrLIndexOutOfRange = errors.New("L1|IndexOutOfRange: Ledger lookup index is out of range.")
	ErrLTxFailed        = errors.New("L2|TxFailed: Transaction was mined with a failed status.")
	ErrLBadResponse     = errors.New("L3|BadResponse: Contract call returned an unexpected result shape.")
	ErrLTxTimeout       = errors.New("L4|TxTimeout: Transaction receipt did not arrive in time.")
)

// GetErrorName extracts the error name from the error message.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	if len(parts) < 2 {
		return errStr
	}
	nameDesc := parts[1]
	// Split on ':' to separate the error name from its description.
	nameParts := strings.SplitN(nameDesc, ":", 2)
	if len(nameParts) < 1 {
		return errStr
	}
	return strings.TrimSpace(nameParts[0])
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	// Check if the error string contains '|'.
	if !strings.Contains(errStr, "|") {
		return ""
	}
	parts := strings.SplitN(errStr, "|", 2)
	code := strings.TrimSpace(parts[0])
	// wrapped errors carry a "context: " prefix before the code
	if i := strings.LastIndex(code, ": "); i >= 0 {
		code = code[i+2:]
	}
	return code
}

// GetErrorCodeWithName returns the error code and name in the format "Code_ErrorName".
func GetErrorCodeWithName(err error) string {
	code := GetErrorCode(err)
	name := GetErrorName(err)
	if code == "" || name == "" {
		return ""
	}
	return code + "_" + name
}
