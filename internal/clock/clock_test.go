package clock

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	before := time.Now()
	result := Real.Now()
	after := time.Now()

	if result.Before(before) || result.After(after) {
		t.Errorf("Real.Now() = %v, expected between %v and %v", result, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	result := Real.Since(past)

	if result < time.Hour-time.Second || result > time.Hour+time.Second {
		t.Errorf("Real.Since() = %v, expected approximately 1 hour", result)
	}
}

func TestMock_Advance(t *testing.T) {
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	mock := NewMock(start)

	first := mock.Now()
	mock.Advance(time.Hour)

	if !first.Equal(start) {
		t.Errorf("before Advance, Now() = %v, expected %v", first, start)
	}
	if got, want := mock.Now(), start.Add(time.Hour); !got.Equal(want) {
		t.Errorf("after Advance, Now() = %v, expected %v", got, want)
	}
	if got := mock.Since(start); got != time.Hour {
		t.Errorf("Since() = %v, expected 1h", got)
	}
}

func TestMock_Set(t *testing.T) {
	mock := NewMock(time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC))

	newTime := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	mock.Set(newTime)

	if got := mock.Now(); !got.Equal(newTime) {
		t.Errorf("after Set, Now() = %v, expected %v", got, newTime)
	}
}

func TestOr(t *testing.T) {
	if Or(nil) != Real {
		t.Error("Or(nil) should return the real clock")
	}
	mock := NewMock(time.Now())
	if Or(mock) != Clock(mock) {
		t.Error("Or(mock) should return the mock")
	}
}

func TestClockInterface(t *testing.T) {
	var _ Clock = RealClock{}
	var _ Clock = &Mock{}
}
