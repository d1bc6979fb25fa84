package domain

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityError_MatchesSentinel(t *testing.T) {
	err := NewSecurityError("AAPL", ErrLedgerInconsistency, "sell of %d exceeds holding", 5)

	assert.True(t, errors.Is(err, ErrLedgerInconsistency))
	assert.False(t, errors.Is(err, ErrDataGap))
	assert.Contains(t, err.Error(), "AAPL")

	var secErr *SecurityError
	require.True(t, errors.As(err, &secErr))
	assert.Equal(t, "AAPL", secErr.Security)
}

func TestWarnings_ConcurrentAdd(t *testing.T) {
	w := NewWarnings(zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Add(WarningForwardFill, "X", "filled %d points", 1)
		}()
	}
	wg.Wait()

	assert.Len(t, w.Items(), 50)
	assert.Equal(t, 50, w.Count(WarningForwardFill))
	assert.Equal(t, 0, w.Count(WarningDataGap))
}

func TestWarnings_AddErrorExtractsSecurity(t *testing.T) {
	w := NewWarnings(zerolog.Nop())
	w.AddError(WarningDataGap, NewSecurityError("005930.KS", ErrDataGap, "no prices"))

	items := w.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "005930.KS", items[0].Security)
	assert.Contains(t, items[0].Message, "no prices")
}
