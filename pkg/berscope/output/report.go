package output

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/norasector/berscope/pkg/ber"
)

const reportBufferLength = 8

// ReportToProtobuf flattens a burst report into a protobuf Struct so
// consumers need no generated types to read it.
func ReportToProtobuf(r *ber.BurstReport) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"channel_id":    float64(r.ChannelID),
		"frame_id":      float64(r.FrameID),
		"bits_received": float64(r.BitsReceived),
		"expected_bits": float64(r.ExpectedBits),
		"measurements":  float64(r.Measurements),
		"error_count":   float64(r.ErrorCount),
		"bits_compared": float64(r.BitsCompared),
		"error_rate":    r.Rate(),
		"started":       r.Started.UTC().Format(time.RFC3339Nano),
		"ended":         r.Ended.UTC().Format(time.RFC3339Nano),
	})
}

// FormatReport renders a burst report as a single line.
func FormatReport(r *ber.BurstReport) string {
	return fmt.Sprintf("channel=%d frame=%d bits_received=%d expected_bits=%d measurements=%d errors=%d compared=%d ber=%.3e duration=%s",
		r.ChannelID, r.FrameID, r.BitsReceived, r.ExpectedBits, r.Measurements,
		r.ErrorCount, r.BitsCompared, r.Rate(), r.Ended.Sub(r.Started).Round(time.Microsecond))
}
