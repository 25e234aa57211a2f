package berscope

import (
	"context"

	"github.com/norasector/berscope/pkg/ber"
)

// ReportOutput handles finished burst reports.
type ReportOutput interface {
	// Start receives a context and should run in a loop, terminating upon ctx closing or on any errors.
	// After Close it handles every queued report and returns nil.
	Start(ctx context.Context) error
	// Receive returns a channel that receives burst reports.
	Receive() chan<- *ber.BurstReport
	// Close marks the end of the reports; nothing may be sent afterwards.
	Close()
}
