// Package dispatch executes validated action messages strictly in
// order, resolving temporary-id references as entities are created.
//
// Ordering is the core guarantee: later messages must observe
// identifiers minted by earlier ones ("create parent, then child, then
// resolve"), so one run is one goroutine and each handler call is a
// suspension point with nothing overlapping it. A message whose
// references cannot resolve yet is deferred and retried exactly once
// after the main pass.
//
// Body text is published as validated, temporary-id tokens included.
// Substituting them is the synthetic-update pass's job: after both
// passes, every tracked creation whose tokens resolved is re-rendered
// and corrected in place through the creating handler. One substitution
// point means a body is never published half-rewritten.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/teranos/airlock/errors"
	"github.com/teranos/airlock/intake"
	"github.com/teranos/airlock/logger"
)

// Config configures one Engine for one run.
type Config struct {
	// RunID labels the report and every dispatch log line.
	RunID string

	// Repo is the current repository. Resolved references render
	// against it: "#N" inside it, "owner/repo#N" across repositories.
	Repo string

	// RequestsPerSecond and Burst pace handler invocations. Zero values
	// fall back to one call per second with no burst.
	RequestsPerSecond float64
	Burst             int

	// External lists action types that are validated in this run but
	// dispatched by a separate subsystem. They are marked skipped
	// without a warning.
	External []string

	// InitialIDs seeds the resolved-id map, carrying references forward
	// from an earlier run.
	InitialIDs map[string]TempEntry
}

// Engine dispatches one batch of validated messages.
type Engine struct {
	registry *Registry
	limiter  *rate.Limiter
	external map[string]struct{}
	ids      map[string]TempEntry
	repo     string
	runID    string
}

// New builds an Engine around a populated handler registry.
func New(reg *Registry, cfg Config) *Engine {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	e := &Engine{
		registry: reg,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		external: make(map[string]struct{}, len(cfg.External)),
		ids:      make(map[string]TempEntry, len(cfg.InitialIDs)),
		repo:     cfg.Repo,
		runID:    cfg.RunID,
	}
	for _, t := range cfg.External {
		e.external[t] = struct{}{}
	}
	for id, entry := range cfg.InitialIDs {
		e.ids[intake.NormalizeTempID(id)] = entry
	}
	return e
}

// syntheticCandidate tracks a creation whose published body carried
// temporary-id tokens.
type syntheticCandidate struct {
	index   int
	line    int
	body    string // body as published, tokens verbatim
	tokens  []string
	entry   TempEntry
	rewrite BodyRewriter
}

// runState is the mutable bookkeeping for one Run call.
type runState struct {
	report    *Report
	deferred  []int
	synthetic []syntheticCandidate
}

// Run processes the batch: one strictly ordered main pass, one retry
// pass over deferrals, then the synthetic-update pass. A handler
// failure is isolated to its message; Run itself fails only on broken
// configuration or a cancelled context.
func (e *Engine) Run(ctx context.Context, items []intake.Message) (*Report, error) {
	if e.registry == nil || e.registry.Len() == 0 {
		return nil, errors.NewConfigurationError("no handlers registered for dispatch")
	}

	// Handlers and their platform calls log with the run id attached.
	ctx = logger.WithRunID(ctx, e.runID)

	st := &runState{
		report: &Report{
			RunID:     e.runID,
			Repo:      e.repo,
			StartedAt: time.Now(),
			Results:   make([]MessageResult, len(items)),
		},
	}
	for i, msg := range items {
		st.report.Results[i] = MessageResult{Index: i, Line: msg.Line, Type: msg.Type, Status: StatusPending}
	}

	logger.DispatchInfow("Dispatching batch",
		logger.FieldRunID, e.runID,
		logger.FieldRepo, e.repo,
		logger.FieldBatchSize, len(items),
	)

	// Main pass, strictly in order.
	for i := range items {
		msg := items[i]
		res := &st.report.Results[i]

		if _, ok := e.external[msg.Type]; ok {
			res.Status = StatusSkipped
			res.Detail = "dispatched by an external subsystem"
			logger.DispatchInfow("Skipping externally dispatched message",
				logger.FieldType, msg.Type, logger.FieldLine, msg.Line)
			continue
		}
		if !e.registry.Has(msg.Type) {
			res.Status = StatusSkipped
			res.Detail = "no handler registered"
			st.report.Warnings = append(st.report.Warnings,
				fmt.Sprintf("message %d (%s): no handler registered", i+1, msg.Type))
			logger.DispatchWarnw("No handler registered for message",
				logger.FieldType, msg.Type, logger.FieldLine, msg.Line)
			continue
		}

		if err := e.dispatch(ctx, st, i, msg, false); err != nil {
			return st.finish(e), err
		}
		if res.Status == StatusDeferred {
			st.deferred = append(st.deferred, i)
		}
	}

	// Exactly one retry pass against the now-larger map.
	for _, i := range st.deferred {
		msg := items[i]
		res := &st.report.Results[i]
		res.Retried = true

		if err := e.dispatch(ctx, st, i, msg, true); err != nil {
			return st.finish(e), err
		}
		if res.Status == StatusDeferred {
			res.Status = StatusUnresolved
			res.Error = fmt.Sprintf("temporary id %q never resolved", res.BlockedOn)
			logger.DispatchWarnw("Message unresolved after retry",
				logger.FieldType, msg.Type,
				logger.FieldLine, msg.Line,
				logger.FieldTempID, res.BlockedOn,
			)
		}
	}

	e.applySynthetic(ctx, st)

	report := st.finish(e)
	counts := report.Counts()
	logger.DispatchInfow("Dispatch complete",
		logger.FieldRunID, e.runID,
		"success", counts.Success,
		"failed", counts.Failed,
		"skipped", counts.Skipped,
		"unresolved", counts.Unresolved,
		logger.FieldDurationMS, report.Duration().Milliseconds(),
	)
	return report, nil
}

// dispatch runs one message through one attempt.
//
// On the main pass a creation whose body references ids nothing has
// minted yet is deferred before any platform call: waiting one pass
// lets the synthetic update that follows substitute everything at
// once. On the retry pass the handler is always invoked; whatever is
// still unresolved stays verbatim in the published body and is the
// synthetic pass's problem.
func (e *Engine) dispatch(ctx context.Context, st *runState, index int, msg intake.Message, retry bool) error {
	res := &st.report.Results[index]

	if !retry {
		if blocked := e.blockedBodyRef(msg); blocked != "" {
			res.Status = StatusDeferred
			res.BlockedOn = blocked
			logger.DispatchInfow("Deferred message",
				logger.FieldType, msg.Type,
				logger.FieldLine, msg.Line,
				logger.FieldTempID, blocked,
			)
			return nil
		}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "dispatch interrupted")
	}

	out, err := e.invoke(ctx, msg)
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		logger.DispatchErrorw("Handler failed",
			logger.FieldType, msg.Type,
			logger.FieldLine, msg.Line,
			logger.FieldError, err.Error(),
		)
		return nil
	}

	if result, ok := out.Success(); ok {
		res.Status = StatusSuccess
		if result != nil {
			res.Detail = result.Detail
			res.TempID = result.TempID
			res.Entry = result.Entry
			if result.TempID != "" && !result.Entry.IsZero() {
				e.register(st, result.TempID, result.Entry)
			}
			e.trackSynthetic(st, index, msg, result)
		}
		logger.DispatchInfow("Dispatched message",
			logger.FieldType, msg.Type,
			logger.FieldLine, msg.Line,
			logger.FieldStatus, string(StatusSuccess),
		)
		return nil
	}

	if ref, ok := out.Deferral(); ok {
		res.Status = StatusDeferred
		res.BlockedOn = intake.NormalizeTempID(ref)
		logger.DispatchInfow("Deferred message",
			logger.FieldType, msg.Type,
			logger.FieldLine, msg.Line,
			logger.FieldTempID, res.BlockedOn,
		)
		return nil
	}

	ferr, _ := out.Failure()
	res.Status = StatusFailed
	if ferr != nil {
		res.Error = ferr.Error()
	} else {
		res.Error = "handler reported failure"
	}
	logger.DispatchErrorw("Handler failed",
		logger.FieldType, msg.Type,
		logger.FieldLine, msg.Line,
		logger.FieldError, res.Error,
	)
	return nil
}

// blockedBodyRef returns the first body token no creation has resolved
// yet, for messages whose entities can be repaired afterwards. Other
// types resolve their references field-wise through the snapshot and
// defer themselves.
func (e *Engine) blockedBodyRef(msg intake.Message) string {
	if _, ok := e.registry.Get(msg.Type).(BodyRewriter); !ok {
		return ""
	}
	for _, token := range intake.FindTempIDs(msg.String("body")) {
		if _, resolved := e.ids[token]; !resolved {
			return token
		}
	}
	return ""
}

// invoke isolates one handler call. A panic becomes a failure for that
// message alone; the batch continues.
func (e *Engine) invoke(ctx context.Context, msg intake.Message) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("handler panic: %v", r)
		}
	}()
	return e.registry.Get(msg.Type).Handle(ctx, msg, e.snapshot())
}

// register records a freshly minted identity. The first registration of
// a token wins; a duplicate is a warning, since references elsewhere in
// the batch meant the original.
func (e *Engine) register(st *runState, id string, entry TempEntry) {
	id = intake.NormalizeTempID(id)
	if existing, ok := e.ids[id]; ok {
		st.report.Warnings = append(st.report.Warnings,
			fmt.Sprintf("temporary id %q already resolved to %s; keeping the first registration", id, existing.Ref(e.repo)))
		return
	}
	e.ids[id] = entry
	logger.DispatchInfow("Registered temporary id",
		logger.FieldTempID, id,
		logger.FieldNumber, entry.Number,
		logger.FieldURL, entry.URL,
	)
}

// trackSynthetic remembers a creation whose published body carries
// temporary-id tokens, so the synthetic pass can substitute them.
func (e *Engine) trackSynthetic(st *runState, index int, msg intake.Message, result *Result) {
	if result.Entry.IsZero() {
		return
	}
	body := msg.String("body")
	tokens := intake.FindTempIDs(body)
	if len(tokens) == 0 {
		return
	}
	rw, ok := e.registry.Get(msg.Type).(BodyRewriter)
	if !ok {
		st.report.Warnings = append(st.report.Warnings,
			fmt.Sprintf("message %d (%s): created %s referencing %s, and this type cannot be edited afterwards",
				index+1, msg.Type, result.Entry.Ref(e.repo), strings.Join(tokens, ", ")))
		return
	}
	st.synthetic = append(st.synthetic, syntheticCandidate{
		index:   index,
		line:    msg.Line,
		body:    body,
		tokens:  tokens,
		entry:   result.Entry,
		rewrite: rw,
	})
}

// applySynthetic issues the corrective updates. A tracked creation is
// re-rendered against the final map; when any of its tokens resolved,
// the creating handler rewrites the entity body in place. The edit is
// idempotent: rendering replaces tokens with their final references.
func (e *Engine) applySynthetic(ctx context.Context, st *runState) {
	for _, c := range st.synthetic {
		resolved := e.resolvedTokens(c.tokens)
		if len(resolved) == 0 {
			st.report.Warnings = append(st.report.Warnings,
				fmt.Sprintf("%s still references unresolved temporary ids: %s",
					c.entry.Ref(e.repo), strings.Join(c.tokens, ", ")))
			continue
		}

		rendered, stillMissing := e.snapshot().Render(c.body, e.repo)
		upd := SyntheticUpdate{Index: c.index, Line: c.line, Entry: c.entry, Resolved: resolved}

		if err := e.limiter.Wait(ctx); err != nil {
			upd.Error = err.Error()
			st.report.Synthetic = append(st.report.Synthetic, upd)
			return
		}
		if err := c.rewrite.RewriteBody(ctx, c.entry, rendered); err != nil {
			upd.Error = err.Error()
			logger.DispatchErrorw("Synthetic update failed",
				logger.FieldLine, c.line,
				logger.FieldError, err.Error(),
			)
		} else {
			logger.DispatchInfow("Issued synthetic update",
				logger.FieldLine, c.line,
				logger.FieldNumber, c.entry.Number,
				logger.FieldCount, len(resolved),
			)
		}
		st.report.Synthetic = append(st.report.Synthetic, upd)

		if len(stillMissing) > 0 {
			st.report.Warnings = append(st.report.Warnings,
				fmt.Sprintf("%s still references unresolved temporary ids: %s",
					c.entry.Ref(e.repo), strings.Join(stillMissing, ", ")))
		}
	}
}

// resolvedTokens filters tokens down to those now present in the map.
func (e *Engine) resolvedTokens(tokens []string) []string {
	var out []string
	for _, t := range tokens {
		if _, ok := e.ids[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// snapshot exposes the run's map through the read-only API. Dispatch is
// single-threaded, so sharing the underlying map is safe and keeps
// fresh registrations visible to later messages immediately.
func (e *Engine) snapshot() ResolvedIDs {
	return ResolvedIDs{entries: e.ids}
}

// Resolved returns a copy of the final temporary-id map.
func (e *Engine) Resolved() map[string]TempEntry {
	out := make(map[string]TempEntry, len(e.ids))
	for id, entry := range e.ids {
		out[id] = entry
	}
	return out
}

// finish stamps the report with the closing stats.
func (st *runState) finish(e *Engine) *Report {
	st.report.Resolved = e.Resolved()
	st.report.FinishedAt = time.Now()
	st.report.MemoryMB = processMemoryMB()
	return st.report
}
