package output

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/proto"

	"github.com/norasector/berscope/pkg/ber"
	"github.com/norasector/berscope/pkg/berscope/config"
)

// ReportUDPOutput sends each burst report to every destination as a
// protobuf Struct prefixed with its little-endian uint16 length.
type ReportUDPOutput struct {
	dests     []config.OutputDestination
	recvChan  chan *ber.BurstReport
	metrics   api.WriteAPI
	closeOnce sync.Once
}

func NewReportUDPOutput(dests []config.OutputDestination, metrics api.WriteAPI) *ReportUDPOutput {
	return &ReportUDPOutput{
		dests:    dests,
		recvChan: make(chan *ber.BurstReport, reportBufferLength),
		metrics:  metrics,
	}
}

func (s *ReportUDPOutput) Receive() chan<- *ber.BurstReport {
	return s.recvChan
}

func (s *ReportUDPOutput) Close() {
	s.closeOnce.Do(func() { close(s.recvChan) })
}

// EncodeReport returns the datagram body for a report.
func EncodeReport(r *ber.BurstReport) ([]byte, error) {
	pb, err := ReportToProtobuf(r)
	if err != nil {
		return nil, err
	}
	encoded, err := proto.Marshal(pb)
	if err != nil {
		return nil, err
	}
	if len(encoded) > 0xffff {
		return nil, fmt.Errorf("encoded report is %d bytes, too large for header", len(encoded))
	}

	var msgBuf bytes.Buffer
	if err := binary.Write(&msgBuf, binary.LittleEndian, uint16(len(encoded))); err != nil {
		return nil, err
	}
	msgBuf.Write(encoded)
	return msgBuf.Bytes(), nil
}

func (s *ReportUDPOutput) Start(ctx context.Context) error {
	destAddrs := make([]*net.UDPAddr, 0, len(s.dests))
	for _, dest := range s.dests {
		ips, err := net.LookupIP(dest.Host)
		if err != nil {
			return err
		}
		if len(ips) == 0 {
			return fmt.Errorf("no IPs returned for %s", dest.Host)
		}

		destAddr := &net.UDPAddr{IP: ips[0], Port: dest.Port}
		destAddrs = append(destAddrs, destAddr)
		log.Info().IPAddr("dest_ip", destAddr.IP).Int("port", dest.Port).Msg("report output starting")
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-s.recvChan:
			if !ok {
				return nil
			}
			msg, err := EncodeReport(r)
			if err != nil {
				log.Warn().Err(err).Msg("error encoding report")
				continue
			}

			sent := 0
			for _, destAddr := range destAddrs {
				if _, err := conn.WriteToUDP(msg, destAddr); err != nil {
					log.Error().Err(err).Msg("error writing")
					continue
				}
				sent++
			}

			s.metrics.WritePoint(influxdb2.NewPoint("report.sent",
				map[string]string{
					"channel_id": strconv.Itoa(r.ChannelID),
				},
				map[string]interface{}{
					"message_length": len(msg),
					"sent":           sent,
					"dropped":        len(destAddrs) - sent,
				}, time.Now()))
		}
	}
}
