package consensus

import (
	"errors"
	"fmt"
)

// Rejection reasons. The error text is the stable, machine-readable code
// reported to peers and logs.
var (
	ErrKernelTooHard              = errors.New("kernel-too-hard")
	ErrCheckpointMismatch         = errors.New("checkpoint-mismatch")
	ErrModifierCheckpointMismatch = errors.New("stake-modifier-checkpoint-mismatch")
	ErrPoWRequired                = errors.New("pow-required-at-height")
	ErrPoSRequired                = errors.New("pos-required-at-height")
	ErrTimestampViolation         = errors.New("timestamp-violation")
	ErrHighHash                   = errors.New("high-hash")
	ErrBadDiffBits                = errors.New("bad-diffbits")
	ErrStakeTooNew                = errors.New("stake-too-new")
	ErrTimeTooNew                 = errors.New("time-too-new")
	ErrBadCoinStake               = errors.New("bad-coinstake")
	ErrBadPrevBlock               = errors.New("bad-prevblk")
	ErrBadBlock                   = errors.New("bad-blk-structure")
)

// ErrNotFound is wrapped by every LookupError.
var ErrNotFound = errors.New("not found")

// Severity scores attached to rejections. A timestamp in the future may be
// an honest clock skew and is penalised least.
var severities = map[error]int{
	ErrTimeTooNew:  10,
	ErrHighHash:    50,
	ErrStakeTooNew: 50,
}

const defaultSeverity = 100

// RuleError is a deterministic consensus rejection.
type RuleError struct {
	Err         error // one of the rejection reasons above
	Severity    int
	Description string
}

func (e *RuleError) Error() string {
	if e.Description == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Description
}

func (e *RuleError) Unwrap() error { return e.Err }

func ruleError(reason error, format string, args ...any) *RuleError {
	sev, ok := severities[reason]
	if !ok {
		sev = defaultSeverity
	}
	return &RuleError{
		Err:         reason,
		Severity:    sev,
		Description: fmt.Sprintf(format, args...),
	}
}

// Reason returns the reason code of a rejection, or "" when err is not a
// RuleError.
func Reason(err error) string {
	var re *RuleError
	if errors.As(err, &re) {
		return re.Err.Error()
	}
	return ""
}

// Severity returns the peer penalty of a rejection, or 0 when err is not a
// RuleError.
func Severity(err error) int {
	var re *RuleError
	if errors.As(err, &re) {
		return re.Severity
	}
	return 0
}

// LookupError reports data the validator needed but could not find, such as
// an unindexed prior transaction or an unknown ancestor. It is recoverable:
// the caller may fetch the missing data and retry.
type LookupError struct {
	Kind string // "block", "outpoint", ...
	Key  string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup %s %s: %v", e.Kind, e.Key, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// IsLookupFailure reports whether err is, or wraps, a LookupError.
func IsLookupFailure(err error) bool {
	var le *LookupError
	return errors.As(err, &le)
}

func lookupError(kind, key string) *LookupError {
	return &LookupError{Kind: kind, Key: key, Err: ErrNotFound}
}
