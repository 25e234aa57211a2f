package source

import (
	"context"

	"github.com/norasector/berscope/pkg/stream"
)

// Source produces blocks of bit decisions with their burst markers. Start
// returns nil once the stream is exhausted, or ctx's error when cancelled.
type Source interface {
	Start(ctx context.Context, segments chan<- *stream.SegmentFloat32) error
	Stop() error
}
