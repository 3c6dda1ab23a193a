package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// SettlementErrorKind classifies why a settlement attempt failed. The
// caller treats every kind the same way (mark failed, no retry this cycle);
// the kind exists for logs and operators.
type SettlementErrorKind string

const (
	// SettlementNetwork: the venue was unreachable or the call timed out.
	SettlementNetwork SettlementErrorKind = "network"
	// SettlementReverted: the swap executed and reverted on-chain.
	SettlementReverted SettlementErrorKind = "reverted"
	// SettlementSigner: no usable signing credential for the venue call.
	SettlementSigner SettlementErrorKind = "signer"
)

// SettlementError is the single error type every settlement failure
// surfaces as, carrying a human-readable cause. Tx is set when a
// transaction was sent before the failure (a receipt wait that timed
// out), so the caller can journal the in-flight send instead of losing
// track of it.
type SettlementError struct {
	Kind  SettlementErrorKind
	Tx    common.Hash
	Cause error
}

func (e *SettlementError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("settlement failed (%s)", e.Kind)
	}
	return fmt.Sprintf("settlement failed (%s): %v", e.Kind, e.Cause)
}

func (e *SettlementError) Unwrap() error { return e.Cause }

// NewSettlementError wraps cause with a failure kind.
func NewSettlementError(kind SettlementErrorKind, cause error) *SettlementError {
	return &SettlementError{Kind: kind, Cause: cause}
}
