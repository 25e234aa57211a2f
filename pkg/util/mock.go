package util

import (
	"sync"

	"github.com/influxdata/influxdb-client-go/api/write"
)

// MockWriteAPI stands in for an InfluxDB write API when metrics are disabled.
// It keeps the points it is given so tests can inspect them.
type MockWriteAPI struct {
	mu     sync.Mutex
	points []*write.Point
	lines  []string
}

func (m *MockWriteAPI) WriteRecord(line string) {
	m.mu.Lock()
	m.lines = append(m.lines, line)
	m.mu.Unlock()
}

func (m *MockWriteAPI) WritePoint(point *write.Point) {
	m.mu.Lock()
	m.points = append(m.points, point)
	m.mu.Unlock()
}

func (m *MockWriteAPI) Flush() {}

func (m *MockWriteAPI) Close() {}

func (m *MockWriteAPI) Errors() <-chan error { return nil }

// Points returns a copy of the points written so far.
func (m *MockWriteAPI) Points() []*write.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]*write.Point, len(m.points))
	copy(ret, m.points)
	return ret
}

// PointsNamed returns the written points with the given measurement name.
func (m *MockWriteAPI) PointsNamed(name string) []*write.Point {
	var ret []*write.Point
	for _, p := range m.Points() {
		if p.Name() == name {
			ret = append(ret, p)
		}
	}
	return ret
}

// Reset drops everything recorded.
func (m *MockWriteAPI) Reset() {
	m.mu.Lock()
	m.points = nil
	m.lines = nil
	m.mu.Unlock()
}
