package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Conflict("taken"))

	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))

	de, ok := AsError(err)
	assert.True(t, ok)
	assert.Equal(t, "taken", de.Message)

	v := Validation("guests", "must be positive")
	assert.Equal(t, "ValidationError: must be positive (guests)", v.Error())
	assert.Equal(t, "NotFound: gone", NotFound("gone").Error())

	// two concrete errors of the same kind are distinct
	assert.NotErrorIs(t, Forbidden("a"), Forbidden("b"))
	assert.ErrorIs(t, Forbidden("a"), ErrForbidden)
	assert.Equal(t, KindRateLimit, KindOf(RateLimited("slow down")))
}
