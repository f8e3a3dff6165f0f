package dispatch

// Result is what a successful handler invocation reports back.
type Result struct {
	// TempID is the message's self-assigned temporary id, set when the
	// handler minted a new entity for it. Paired with Entry it is
	// registered into the run's resolved-id map.
	TempID string

	// Entry is the minted entity's real identity.
	Entry TempEntry

	// Detail is one human-readable line for the run report.
	Detail string
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeDeferred
	outcomeFailed
)

// Outcome is the three-way result of one handler invocation: Success,
// Deferred (an unresolved temporary-id reference, retried exactly once
// after the main pass), or Failed. Construct with Succeed, DeferFor,
// or Fail.
type Outcome struct {
	kind    outcomeKind
	result  *Result
	blocked string
	err     error
}

// Succeed reports a completed action. res may be nil when the action
// mints nothing and has nothing to say (a recorded noop).
func Succeed(res *Result) Outcome {
	return Outcome{kind: outcomeSuccess, result: res}
}

// DeferFor reports that the message references the temporary id ref
// before anything registered it. The engine queues the message for the
// retry pass.
func DeferFor(ref string) Outcome {
	return Outcome{kind: outcomeDeferred, blocked: ref}
}

// Fail reports an explicit per-message failure. The failure is recorded
// and isolated; the batch continues.
func Fail(err error) Outcome {
	return Outcome{kind: outcomeFailed, err: err}
}

// Success returns the result when the outcome is a success.
func (o Outcome) Success() (*Result, bool) {
	return o.result, o.kind == outcomeSuccess
}

// Deferral returns the blocking reference when the outcome is a deferral.
func (o Outcome) Deferral() (string, bool) {
	return o.blocked, o.kind == outcomeDeferred
}

// Failure returns the error when the outcome is a failure.
func (o Outcome) Failure() (error, bool) {
	return o.err, o.kind == outcomeFailed
}
