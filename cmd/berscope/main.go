package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/berscope/pkg/backplane"
	"github.com/norasector/berscope/pkg/ber"
	"github.com/norasector/berscope/pkg/berscope"
	"github.com/norasector/berscope/pkg/berscope/config"
	"github.com/norasector/berscope/pkg/berscope/output"
	"github.com/norasector/berscope/pkg/berscope/source"
	"github.com/norasector/berscope/pkg/berscope/source/file"
	"github.com/norasector/berscope/pkg/berscope/source/synthetic"
	"github.com/norasector/berscope/pkg/dsp/viz"
	"github.com/norasector/berscope/pkg/util"
	"golang.org/x/sync/errgroup"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	configFile := flag.String("config", "berscope.yaml", "YAML config file")
	debug := flag.Bool("debug", false, "enable debug logging")

	flag.Parse()
	if configFile == nil {
		flag.Usage()
		os.Exit(1)
	}
	if *debug {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	}

	configContents, err := os.ReadFile(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error reading config file")
	}
	var opts config.Config
	if err := yaml.Unmarshal(configContents, &opts); err != nil {
		log.Fatal().Err(err).Msg("error unmarshaling yaml file")
	}
	opts.ApplyDefaults()
	if err := opts.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	segmentPath := backplane.SegmentPath(opts.BackplanePath, opts.ChannelID)
	segment, err := backplane.Open(segmentPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", segmentPath).Msg("failed to open channel backplane")
	}
	defer segment.Close()

	var src source.Source

	switch opts.Device {
	case config.DeviceFile:
		log.Info().Str("device", "file").Str("path", opts.PlaybackLocation).Msg("initializing source...")
		src, err = file.NewFileSource(opts.PlaybackLocation, opts.TagsLocation, opts.BlockSize, opts.SampleRate, opts.ReadDelay)
		if err != nil {
			log.Fatal().Str("device", "file").Err(err).Msg("failed to init file reader")
		}
	case config.DeviceSynthetic:
		log.Info().Str("device", "synthetic").Float64("bit_error_rate", opts.Synthetic.BitErrorRate).Msg("initializing source...")
		src, err = synthetic.NewSyntheticSource(segment, synthetic.Options{
			BlockSize:    opts.BlockSize,
			SampleRate:   opts.SampleRate,
			BitErrorRate: opts.Synthetic.BitErrorRate,
			LeadBits:     opts.Synthetic.LeadBits,
			GapBits:      opts.Synthetic.GapBits,
			Bursts:       opts.Synthetic.Bursts,
			TimeBetween:  opts.ReadDelay,
			Seed:         opts.Seed,
		})
		if err != nil {
			log.Fatal().Str("device", "synthetic").Err(err).Msg("failed to init synthetic source")
		}
	default:
		log.Fatal().Str("device", opts.Device).Msg("unknown device")
	}

	var writeAPI api.WriteAPI = &util.MockWriteAPI{}
	if opts.InfluxDB.Host != "" {
		client := influxdb2.NewClient(opts.InfluxDB.Host, "")
		defer client.Close()
		writeAPI = client.WriteAPI(opts.InfluxDB.Organization, opts.InfluxDB.Bucket)
		defer writeAPI.Flush()
	}

	outputs := []berscope.ReportOutput{output.NewTextReportOutput(os.Stdout)}
	if opts.ReportFile != "" {
		f, err := os.OpenFile(opts.ReportFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open report file")
		}
		defer f.Close()
		outputs = append(outputs, output.NewTextReportOutput(f))
	}
	if len(opts.OutputDestinations) > 0 {
		outputs = append(outputs, output.NewReportUDPOutput(opts.OutputDestinations, writeAPI))
	}

	harnessOpts := []berscope.HarnessOption{
		berscope.WithInfluxDB(writeAPI),
		berscope.WithLogger(log.Logger),
	}
	if opts.VizServer.Port != 0 {
		harnessOpts = append(harnessOpts, berscope.WithImageServer(viz.NewServer(opts.VizServer.Port, opts.VizUpdateInterval())))
	}

	harness, err := berscope.NewHarness(src, segment,
		berscope.Options{
			SampleRate: opts.SampleRate,
			Calculator: ber.Options{
				ChannelID:       opts.ChannelID,
				FullPreamble:    opts.FullPreamble,
				WindowLength:    opts.PreambleWindow,
				RefreshInterval: opts.RefreshInterval,
			},
			Slicer:  opts.Slicer,
			Seed:    opts.Seed,
			Outputs: outputs,
		}, harnessOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create harness")
	}

	eg, ctx := errgroup.WithContext(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	eg.Go(func() error {

		select {
		case <-sigChan:
		case <-ctx.Done():
		}

		return harness.Stop()
	})

	eg.Go(func() error {
		if err := harness.Start(ctx); err != nil {
			return err
		}
		// source ran dry; unblock the signal watcher
		return context.Canceled
	})

	err = eg.Wait()

	sum := harness.Summary()
	log.Info().
		Int("bursts", sum.Bursts).
		Int("measurements", sum.Measurements).
		Int("error_count", sum.ErrorCount).
		Int("bits_compared", sum.BitsCompared).
		Int("dropped_reports", sum.DroppedReports).
		Float64("error_rate", sum.Rate()).
		Msg("finished")

	if err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("exited program")
	}
}
