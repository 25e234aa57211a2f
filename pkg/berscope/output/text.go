package output

import (
	"context"
	"io"
	"sync"

	"github.com/norasector/berscope/pkg/ber"
)

// TextReportOutput writes one line per burst to dest.
type TextReportOutput struct {
	dest      io.Writer
	recvChan  chan *ber.BurstReport
	closeOnce sync.Once
}

func NewTextReportOutput(dest io.Writer) *TextReportOutput {
	return &TextReportOutput{
		dest:     dest,
		recvChan: make(chan *ber.BurstReport, reportBufferLength),
	}
}

func (s *TextReportOutput) Receive() chan<- *ber.BurstReport {
	return s.recvChan
}

func (s *TextReportOutput) Close() {
	s.closeOnce.Do(func() { close(s.recvChan) })
}

func (s *TextReportOutput) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-s.recvChan:
			if !ok {
				return nil
			}
			if _, err := io.WriteString(s.dest, FormatReport(r)+"\n"); err != nil {
				return err
			}
		}
	}
}
