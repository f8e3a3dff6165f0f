package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/airlock/intake"
)

type staticHandler struct{ typ string }

func (h *staticHandler) Type() string { return h.typ }

func (h *staticHandler) Handle(context.Context, intake.Message, ResolvedIDs) (Outcome, error) {
	return Succeed(nil), nil
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, 0, reg.Len())
	assert.Nil(t, reg.Get("create_issue"))

	reg.Register(&staticHandler{typ: "create_issue"})
	reg.Register(&staticHandler{typ: "add_comment"})

	assert.Equal(t, 2, reg.Len())
	assert.True(t, reg.Has("create_issue"))
	assert.False(t, reg.Has("add_labels"))
	require.NotNil(t, reg.Get("add_comment"))
	assert.Equal(t, "add_comment", reg.Get("add_comment").Type())
	assert.Equal(t, []string{"add_comment", "create_issue"}, reg.Types())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&staticHandler{typ: "create_issue"})

	require.PanicsWithValue(t, "handler already registered for type: create_issue", func() {
		reg.Register(&staticHandler{typ: "create_issue"})
	})
}

func TestOutcomeAccessors(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		out := Succeed(&Result{Detail: "created #4"})
		res, ok := out.Success()
		require.True(t, ok)
		assert.Equal(t, "created #4", res.Detail)
		_, deferred := out.Deferral()
		assert.False(t, deferred)
		_, failed := out.Failure()
		assert.False(t, failed)
	})

	t.Run("deferred", func(t *testing.T) {
		out := DeferFor("tmp_parent")
		ref, ok := out.Deferral()
		require.True(t, ok)
		assert.Equal(t, "tmp_parent", ref)
		_, success := out.Success()
		assert.False(t, success)
	})

	t.Run("failed", func(t *testing.T) {
		out := Fail(assert.AnError)
		err, ok := out.Failure()
		require.True(t, ok)
		assert.Equal(t, assert.AnError, err)
		_, success := out.Success()
		assert.False(t, success)
	})
}
