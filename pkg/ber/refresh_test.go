package ber

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefreshMonitorCadence(t *testing.T) {
	m := NewRefreshMonitor(DefaultRefreshInterval)

	var polled []int
	for call := 1; call <= 450; call++ {
		if m.Tick() {
			polled = append(polled, call)
		}
	}
	assert.Equal(t, []int{1, 101, 201, 301, 401}, polled)
}

func TestRefreshMonitorInterval(t *testing.T) {
	m := NewRefreshMonitor(3)

	var polled []int
	for call := 1; call <= 10; call++ {
		if m.Tick() {
			polled = append(polled, call)
		}
	}
	assert.Equal(t, []int{1, 4, 7, 10}, polled)
}

func TestRefreshMonitorDefault(t *testing.T) {
	assert.Equal(t, NewRefreshMonitor(DefaultRefreshInterval), NewRefreshMonitor(0))
}
