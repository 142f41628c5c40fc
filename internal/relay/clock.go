package relay

import "time"

// Clock abstrae el tiempo para poder probar el relay sin esperas reales.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer es el subconjunto de *time.Timer que usa el relay.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) C() <-chan time.Time { return r.t.C }
func (r *realTimer) Stop() bool          { return r.t.Stop() }
