// Copyright 2024 The battsafe Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Command battsafe runs the battery safety supervisor against a
// byte-oriented digital-twin feed (a file or a serial port opened
// elsewhere and passed as stdin), or inspects the wire protocol offline.
package main

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shakebs/battsafe/ports"
	"github.com/shakebs/battsafe/protocol/outbound"
	"github.com/shakebs/battsafe/scheduler"
	"github.com/shakebs/battsafe/system"
	"github.com/shakebs/battsafe/telemetry"
	"github.com/shakebs/battsafe/threshold"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "battsafe",
		Short: "Battery safety supervisor for a 104S8P LFP traction pack",
		Long: `battsafe watches a digital-twin telemetry feed (per-group voltages,
module NTCs, gas/pressure/swelling channels, pack current and voltage) and
decides in real time whether to latch an EMERGENCY state, open the pack
contactor, and drive the audible/visible alarm.`,
	}
	root.AddCommand(newRunCmd(), newSelfCheckCmd(), newDecodeCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		inputPath    string
		outputPath   string
		thresholdsPath string
		tickMs       uint
		metricsAddr  string
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the supervisor against a digital-twin byte feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("battsafe: --log-level: %w", err)
			}
			logger := telemetry.NewLogger(os.Stdout, level)

			t := threshold.Default()
			if thresholdsPath != "" {
				f, err := os.Open(thresholdsPath)
				if err != nil {
					return fmt.Errorf("battsafe: opening thresholds: %w", err)
				}
				defer f.Close()
				t, err = threshold.Load(f)
				if err != nil {
					return fmt.Errorf("battsafe: loading thresholds: %w", err)
				}
			}

			sys := system.New(t)
			if err := sys.SelfCheck(); err != nil {
				return fmt.Errorf("battsafe: self-check failed, refusing to arm: %w", err)
			}
			logger.Info().Msg("self-check passed, safety armed")

			in, err := openInput(inputPath)
			if err != nil {
				return err
			}
			defer in.Close()

			out, err := openOutput(outputPath)
			if err != nil {
				return err
			}
			defer out.Close()

			var reg *prometheus.Registry
			var gauges *telemetry.Gauges
			if metricsAddr != "" {
				reg = prometheus.NewRegistry()
				gauges = telemetry.NewGauges(reg)
				go serveMetrics(metricsAddr, reg, logger)
			}

			clock := ports.NewWallClock()
			byteSource := ports.NewReaderByteSource(in)
			outDriver := ports.NewLoggingOutputDriver(func(event string, fields map[string]any) {
				logger.Info().Fields(fields).Msg(event)
			})

			sc := scheduler.New(sys, clock, byteSource, outDriver, out)
			sc.OnTransition = logger.Transition

			tick := time.Duration(tickMs) * time.Millisecond
			for {
				sc.Tick()
				if gauges != nil {
					gauges.Update(sys.Engine.State(), sys.Result)
				}
				time.Sleep(tick)
			}
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "digital-twin byte feed (file path, \"-\" for stdin)")
	cmd.Flags().StringVar(&outputPath, "output", "-", "outbound telemetry sink (file path, \"-\" for stdout)")
	cmd.Flags().StringVar(&thresholdsPath, "thresholds", "", "yaml threshold override file (defaults if unset)")
	cmd.Flags().UintVar(&tickMs, "tick-ms", 10, "scheduler tick interval in milliseconds")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on (disabled if unset)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "zerolog level: debug, info, warn, error")
	cmd.MarkFlagRequired("input")

	return cmd
}

func newSelfCheckCmd() *cobra.Command {
	var thresholdsPath string

	cmd := &cobra.Command{
		Use:   "selfcheck",
		Short: "Run the startup self-check against a threshold file and report the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := threshold.Default()
			if thresholdsPath != "" {
				f, err := os.Open(thresholdsPath)
				if err != nil {
					return fmt.Errorf("battsafe: opening thresholds: %w", err)
				}
				defer f.Close()
				t, err = threshold.Load(f)
				if err != nil {
					return fmt.Errorf("battsafe: loading thresholds: %w", err)
				}
			}

			sys := system.New(t)
			if err := sys.SelfCheck(); err != nil {
				return err
			}
			fmt.Println("self-check passed, safety armed")
			return nil
		},
	}
	cmd.Flags().StringVar(&thresholdsPath, "thresholds", "", "yaml threshold override file (defaults if unset)")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode <hex-frame>",
		Short: "Decode and validate one outbound telemetry frame given as a hex string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("battsafe: decoding hex: %w", err)
			}
			if !outbound.Validate(buf) {
				return fmt.Errorf("battsafe: frame failed validation")
			}
			if len(buf) < 3 {
				return fmt.Errorf("battsafe: frame too short")
			}
			switch buf[2] {
			case outbound.TypePackSummary:
				fmt.Printf("%+v\n", outbound.DecodePackSummary(buf))
			case outbound.TypeModuleDetail:
				fmt.Printf("%+v\n", outbound.DecodeModuleDetail(buf))
			default:
				return fmt.Errorf("battsafe: unknown frame type 0x%02x", buf[2])
			}
			return nil
		},
	}
	return cmd
}

func openInput(path string) (readCloser, error) {
	if path == "-" {
		return nopCloser{os.Stdin}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("battsafe: opening input: %w", err)
	}
	return f, nil
}

func openOutput(path string) (writeCloser, error) {
	if path == "-" || path == "" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("battsafe: opening output: %w", err)
	}
	return f, nil
}

type readCloser interface {
	Read(p []byte) (int, error)
	Close() error
}

type writeCloser interface {
	Write(p []byte) (int, error)
	Close() error
}

type nopCloser struct {
	f *os.File
}

func (n nopCloser) Read(p []byte) (int, error)  { return n.f.Read(p) }
func (n nopCloser) Write(p []byte) (int, error) { return n.f.Write(p) }
func (n nopCloser) Close() error                { return nil }

func serveMetrics(addr string, reg *prometheus.Registry, logger telemetry.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info().Str("addr", addr).Msg("serving prometheus metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server stopped")
	}
}
