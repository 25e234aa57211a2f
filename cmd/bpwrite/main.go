package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"

	"github.com/norasector/berscope/pkg/backplane"
)

// frameFile describes the frame to publish. Preamble and payload are hex
// strings, one vector element per byte.
type frameFile struct {
	ChannelID    int     `yaml:"channel_id"`
	Source       int     `yaml:"source"`
	CenterFreqHz float64 `yaml:"center_freq_hz"`
	SampleRateHz float64 `yaml:"sample_rate_hz"`
	FrameID      int     `yaml:"frame_id"`
	Type         int     `yaml:"type"`
	Instances    int     `yaml:"instances"`
	Preamble     string  `yaml:"preamble"`
	Payload      string  `yaml:"payload"`
	SegmentSize  int     `yaml:"segment_size"`
}

const defaultSegmentSize = 65536

func vectorFromHex(parts ...string) ([]int32, int, error) {
	var ret []int32
	preambleLength := 0
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil {
			return nil, 0, fmt.Errorf("decoding hex: %w", err)
		}
		if i == 0 {
			preambleLength = len(b)
		}
		for _, v := range b {
			ret = append(ret, int32(v))
		}
	}
	return ret, preambleLength, nil
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	frameConfig := flag.String("frame", "frame.yaml", "YAML frame description")
	base := flag.String("backplane", "/dev/shm/cbp", "backplane segment base path")
	flag.Parse()

	contents, err := os.ReadFile(*frameConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("error reading frame file")
	}
	var ff frameFile
	if err := yaml.Unmarshal(contents, &ff); err != nil {
		log.Fatal().Err(err).Msg("error unmarshaling yaml file")
	}
	if ff.SegmentSize == 0 {
		ff.SegmentSize = defaultSegmentSize
	}

	vector, preambleLength, err := vectorFromHex(ff.Preamble, ff.Payload)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid frame")
	}

	image, err := backplane.Encode(
		backplane.ChannelHeader{
			ChannelID:    ff.ChannelID,
			Source:       ff.Source,
			CenterFreqHz: ff.CenterFreqHz,
			SampleRateHz: ff.SampleRateHz,
		},
		backplane.FrameHeader{
			FrameID:           ff.FrameID,
			Type:              ff.Type,
			NumberOfInstances: ff.Instances,
			PreambleLength:    preambleLength,
		},
		vector, ff.SegmentSize)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to encode frame")
	}

	path := backplane.SegmentPath(*base, ff.ChannelID)
	if err := backplane.WriteSegment(path, image); err != nil {
		log.Fatal().Err(err).Msg("failed to write segment")
	}

	log.Info().
		Str("path", path).
		Int("frame_id", ff.FrameID).
		Int("length", len(vector)).
		Int("preamble_length", preambleLength).
		Int("instances", ff.Instances).
		Msg("published frame")
}
