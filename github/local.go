package github

import (
	"context"
	"fmt"

	"github.com/teranos/airlock/dispatch"
	"github.com/teranos/airlock/intake"
	"github.com/teranos/airlock/logger"
)

// noopHandler acknowledges an explicit no-action message, so the run
// report distinguishes "the agent chose silence" from "nothing arrived".
type noopHandler struct{}

func (h *noopHandler) Type() string { return "noop" }

func (h *noopHandler) Handle(_ context.Context, msg intake.Message, _ dispatch.ResolvedIDs) (dispatch.Outcome, error) {
	detail := "no action"
	if m := msg.String("message"); m != "" {
		detail = "no action: " + m
	}
	return dispatch.Succeed(&dispatch.Result{Detail: detail}), nil
}

// missingToolHandler records a capability gap. The record itself is the
// action: it lands in the report and the audit store, nothing reaches
// the platform.
type missingToolHandler struct{}

func (h *missingToolHandler) Type() string { return "missing_tool" }

func (h *missingToolHandler) Handle(_ context.Context, msg intake.Message, _ dispatch.ResolvedIDs) (dispatch.Outcome, error) {
	tool := msg.String("tool")
	logger.DispatchWarnw("Agent reported a missing tool",
		"tool", tool,
		"reason", msg.String("reason"),
		"alternatives", msg.String("alternatives"),
	)
	return dispatch.Succeed(&dispatch.Result{
		Detail: fmt.Sprintf("missing tool: %s (%s)", tool, msg.String("reason")),
	}), nil
}
