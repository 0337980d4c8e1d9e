// Command opv-cobs-decode reads an Opulent Voice byte stream from
// stdin, one radio frame at a time, recovers IP packets from its COBS
// framing, and forwards Opus/RTP payloads and other UDP traffic to
// local UDP destinations.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/openresearch/opv-cobs-deframer/cobs"
	"github.com/openresearch/opv-cobs-deframer/opvconfig"
	"github.com/openresearch/opv-cobs-deframer/sink"
)

func main() {
	var configFile = pflag.StringP("config", "c", "", "Configuration file name. Searched for in the usual locations if omitted.")
	var invert = pflag.BoolP("invert", "i", false, "Invert signal polarity before decoding.")
	var noiseBlanker = pflag.BoolP("noise-blanker", "n", false, "Enable noise blanker (reserved, not yet implemented).")
	var verbose = pflag.BoolP("verbose", "v", false, "Verbose (debug-level) logging.")
	var debug = pflag.BoolP("debug", "d", false, "Dump the payload of every packet routed to the Opus or UDP sink as hex to stderr.")
	var quiet = pflag.BoolP("quiet", "q", false, "Suppress all logging except errors.")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - decode an OPV COBS byte stream into IP packets and fan them out over UDP.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: opv-cobs-decode [options] < stream\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	cfg, err := opvconfig.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opv-cobs-decode: %s\n", err)
		os.Exit(1)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	switch {
	case *quiet:
		logger.SetLevel(log.ErrorLevel)
	case *verbose:
		logger.SetLevel(log.DebugLevel)
	case cfg.LogLevel != "":
		if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
			logger.SetLevel(lvl)
		}
	}

	if *invert {
		cfg.Invert = true
	}
	if *noiseBlanker {
		cfg.NoiseBlanker = true
	}

	if cfg.NoiseBlanker {
		logger.Warn("noise blanker requested but not implemented in this decoder, ignoring")
	}

	demux := sink.NewDemux(logger.WithPrefix("demux"))

	var recorder *sink.Recorder
	if *debug {
		recorder = &sink.Recorder{}
	}

	var opusEgress, controlEgress *sink.UDPEgress
	if cfg.ListenUDP != "" {
		opusEgress, err = sink.NewUDPEgress(cfg.ListenUDP, logger.WithPrefix("opus-egress"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "opv-cobs-decode: opening Opus egress socket: %s\n", err)
			os.Exit(1)
		}
		defer opusEgress.Close()
	}
	if cfg.ControlUDP != "" {
		controlEgress, err = sink.NewUDPEgress(cfg.ControlUDP, logger.WithPrefix("control-egress"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "opv-cobs-decode: opening control egress socket: %s\n", err)
			os.Exit(1)
		}
		defer controlEgress.Close()
	}

	demux.OpusSink = func(payload []byte, seq uint16, timestamp, ssrc uint32) {
		if recorder != nil {
			recorder.Accept(payload)
		}
		if opusEgress != nil {
			opusEgress.Accept(payload)
		}
	}
	demux.UDPSink = func(dstPort uint16, payload []byte) {
		if recorder != nil {
			recorder.Accept(payload)
		}
		if controlEgress != nil {
			controlEgress.Accept(payload)
		}
	}

	deframer := cobs.NewDeframer()
	deframer.SetLogger(logger.WithPrefix("deframer"))
	deframer.SetSink(demux)

	if cfg.Channel != "" {
		logger.Info("decoding channel", "channel", cfg.Channel, "invert", cfg.Invert)
	}

	reader := bufio.NewReaderSize(os.Stdin, cobs.FramePayloadBytes*4)
	frame := make([]byte, cobs.FramePayloadBytes)

	for {
		n, err := io.ReadFull(reader, frame)
		if n > 0 {
			if cfg.Invert {
				invertBytes(frame[:n])
			}
			before := 0
			if recorder != nil {
				before = len(recorder.Packets)
			}
			deframer.Push(frame[:n])
			if *debug && recorder != nil {
				dumpNewPackets(recorder, before)
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "opv-cobs-decode: reading stream: %s\n", err)
			os.Exit(1)
		}
	}

	stats := deframer.Stats()
	logger.Info("decode complete",
		"delivered", stats.Delivered,
		"unexpected_zero", stats.UnexpectedZero,
		"oversize", stats.Oversize,
		"undersize", stats.Undersize,
		"no_sink", stats.NoSink,
	)
}

func invertBytes(b []byte) {
	for i, v := range b {
		b[i] = ^v
	}
}

func dumpNewPackets(r *sink.Recorder, from int) {
	for _, p := range r.Packets[from:] {
		fmt.Fprintf(os.Stderr, "% x\n", p)
	}
}
