package domain

import (
	"sort"
	"time"
)

// DateLayout is the calendar-day format used for series keys and API payloads.
const DateLayout = "2006-01-02"

// Point is one dated observation.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is an ordered sequence of daily observations (prices or exchange rates).
type Series struct {
	ID     string  `json:"id"`
	Points []Point `json:"points"`
}

// Day truncates t to a UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Normalize sorts points by date and keeps the last observation for duplicate days.
func (s Series) Normalize() Series {
	pts := make([]Point, len(s.Points))
	copy(pts, s.Points)
	for i := range pts {
		pts[i].Date = Day(pts[i].Date)
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Date.Before(pts[j].Date) })

	out := pts[:0]
	for _, p := range pts {
		if n := len(out); n > 0 && out[n-1].Date.Equal(p.Date) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return Series{ID: s.ID, Points: out}
}

// Between returns the points with from <= date <= to. Zero bounds are open.
func (s Series) Between(from, to time.Time) Series {
	out := make([]Point, 0, len(s.Points))
	for _, p := range s.Points {
		if !from.IsZero() && p.Date.Before(from) {
			continue
		}
		if !to.IsZero() && p.Date.After(to) {
			continue
		}
		out = append(out, p)
	}
	return Series{ID: s.ID, Points: out}
}

// Len returns the number of points
func (s Series) Len() int { return len(s.Points) }

// First returns the first date, or zero time for an empty series.
func (s Series) First() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[0].Date
}

// Last returns the final observation and false for an empty series.
func (s Series) Last() (Point, bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// ValueAt returns the latest value on or before date (no look-ahead).
func (s Series) ValueAt(date time.Time) (float64, bool) {
	i := sort.Search(len(s.Points), func(i int) bool { return s.Points[i].Date.After(date) })
	if i == 0 {
		return 0, false
	}
	return s.Points[i-1].Value, true
}
