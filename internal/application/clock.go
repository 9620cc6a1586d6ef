package application

import "time"

// Clock interface supaya gampang ditest
type Clock interface {
	Now() time.Time
}

// SystemClock implementasi default, pakai time.Now()
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Since is the elapsed time on c from t.
func Since(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}
