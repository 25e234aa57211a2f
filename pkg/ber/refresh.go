package ber

const DefaultRefreshInterval = 100

// RefreshMonitor decides on which invocations the backplane is polled for a
// new frame. With the counter starting at zero the poll happens on
// invocations 1, 1+interval, 1+2*interval and so on.
type RefreshMonitor struct {
	interval int
	counter  int
}

func NewRefreshMonitor(interval int) RefreshMonitor {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return RefreshMonitor{interval: interval}
}

// Tick advances the invocation counter and reports whether this invocation
// should poll the backplane.
func (m *RefreshMonitor) Tick() bool {
	due := m.counter%m.interval == 0
	if due {
		m.counter = 0
	}
	m.counter++
	return due
}
