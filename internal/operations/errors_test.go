package operations

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeprep/internal/dedup"
)

func TestStepErrorFormatting(t *testing.T) {
	err := NewValidationError("stage", "no raw stream files discovered")
	assert.Equal(t, "[validation] stage: no raw stream files discovered", err.Error())
	assert.True(t, err.Fatal)
}

func TestStepErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewIOError("combine", "part_0.csv", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "part_0.csv", err.Context["path"])
}

func TestLedgerErrorKeepsSentinel(t *testing.T) {
	wrapped := NewLedgerError("dedup", dedup.ErrLedger)
	assert.ErrorIs(t, wrapped, dedup.ErrLedger)
	assert.True(t, wrapped.Fatal)
}

func TestStepErrorAs(t *testing.T) {
	var err error = NewSizeBudgetError("recombine", "eda", errors.New("too big"))
	var serr *StepError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, ErrorTypeSizeBudget, serr.Type)
	assert.Equal(t, "eda", serr.Context["stream"])
}
