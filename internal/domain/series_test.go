package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestSeries_NormalizeSortsAndDeduplicates(t *testing.T) {
	s := Series{ID: "X", Points: []Point{
		{Date: d("2024-01-03"), Value: 3},
		{Date: d("2024-01-01"), Value: 1},
		{Date: d("2024-01-03").Add(5 * time.Hour), Value: 4},
	}}

	n := s.Normalize()

	require.Equal(t, 2, n.Len())
	assert.Equal(t, d("2024-01-01"), n.Points[0].Date)
	assert.Equal(t, 4.0, n.Points[1].Value, "last observation for a day wins")
	assert.Equal(t, 3, s.Len(), "original is untouched")
}

func TestSeries_BetweenAndValueAt(t *testing.T) {
	s := Series{Points: []Point{
		{Date: d("2024-01-01"), Value: 1},
		{Date: d("2024-01-02"), Value: 2},
		{Date: d("2024-01-05"), Value: 5},
	}}

	assert.Equal(t, 2, s.Between(d("2024-01-02"), time.Time{}).Len())
	assert.Equal(t, 1, s.Between(d("2024-01-02"), d("2024-01-04")).Len())

	v, ok := s.ValueAt(d("2024-01-04"))
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	_, ok = s.ValueAt(d("2023-12-31"))
	assert.False(t, ok)

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 5.0, last.Value)
}
