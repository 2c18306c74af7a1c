package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("status not found")))
	assert.Equal(t, KindForbidden, KindOf(fmt.Errorf("wrapped: %w", Forbidden("blocked"))))
	assert.Equal(t, KindUpstream, KindOf(errors.New("driver exploded")))
}

func TestSentinelMatchesAfterWrap(t *testing.T) {
	sentinel := Conflict("already friends")
	wrapped := fmt.Errorf("send request: %w", sentinel)

	assert.ErrorIs(t, wrapped, sentinel)
	assert.NotErrorIs(t, wrapped, Conflict("already member"))
}

func TestMessageOfHidesCause(t *testing.T) {
	err := Upstream("failed to save status", errors.New("pq: connection refused"))

	assert.Equal(t, "failed to save status", MessageOf(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "internal server error", MessageOf(errors.New("boom")))
}
