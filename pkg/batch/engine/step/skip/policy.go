// Package skip decides whether a record-level error may be dropped so that the
// chunk can go on without the offending record.
package skip

import (
	"fmt"

	"github.com/tigerroll/employee-import/pkg/batch/support/util/exception"
)

// SkipPolicy decides whether err may be skipped given how many records were already skipped.
// Implementations are stateless; the step owns the running count.
type SkipPolicy interface {
	ShouldSkip(err error, skipCount int) bool
	GetSkipLimit() int
}

// Predicate classifies an error as skippable.
type Predicate func(err error) bool

// NeverSkip is the fail-fast policy. It is the default.
type NeverSkip struct{}

// ShouldSkip always returns false.
func (NeverSkip) ShouldSkip(err error, skipCount int) bool { return false }

// GetSkipLimit returns 0.
func (NeverSkip) GetSkipLimit() int { return 0 }

// LimitedSkipPolicy skips errors accepted by its predicate until skipLimit records were skipped.
type LimitedSkipPolicy struct {
	skipLimit int
	predicate Predicate
}

// NewLimitedSkipPolicy creates a policy from a limit and a predicate.
// A limit of 0 or a nil predicate yields a policy that never skips.
func NewLimitedSkipPolicy(skipLimit int, predicate Predicate) *LimitedSkipPolicy {
	return &LimitedSkipPolicy{skipLimit: skipLimit, predicate: predicate}
}

// ShouldSkip implements SkipPolicy.
func (p *LimitedSkipPolicy) ShouldSkip(err error, skipCount int) bool {
	if err == nil || p.predicate == nil || p.skipLimit <= 0 {
		return false
	}
	if skipCount >= p.skipLimit {
		return false
	}
	return p.predicate(err)
}

// GetSkipLimit implements SkipPolicy.
func (p *LimitedSkipPolicy) GetSkipLimit() int {
	return p.skipLimit
}

// ErrorTypes builds a predicate matching any of the registered error type names,
// such as "ReadError" or "WriteError". With no names it accepts any error flagged
// skippable by its BatchError.
func ErrorTypes(names ...string) Predicate {
	if len(names) == 0 {
		return exception.IsSkippable
	}
	return func(err error) bool {
		for _, name := range names {
			if exception.IsErrorOfType(err, name) {
				return true
			}
		}
		return false
	}
}

// DefaultSkipPolicyFactory builds policies from configuration values.
type DefaultSkipPolicyFactory struct{}

// NewDefaultSkipPolicyFactory creates a DefaultSkipPolicyFactory.
func NewDefaultSkipPolicyFactory() *DefaultSkipPolicyFactory {
	return &DefaultSkipPolicyFactory{}
}

// Create returns NeverSkip for a zero limit, and a LimitedSkipPolicy over the named
// error types otherwise. Unknown names are rejected.
func (f *DefaultSkipPolicyFactory) Create(skipLimit int, skippableExceptions []string) (SkipPolicy, error) {
	if skipLimit <= 0 {
		return NeverSkip{}, nil
	}
	for _, name := range skippableExceptions {
		if !exception.IsErrorTypeRegistered(name) {
			return nil, exception.NewBatchError("skip",
				fmt.Sprintf("skippable error type '%s' is not registered", name), nil, false, false)
		}
	}
	return NewLimitedSkipPolicy(skipLimit, ErrorTypes(skippableExceptions...)), nil
}
