package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/lanikai/rtmpstream"
	"github.com/lanikai/rtmpstream/internal/logging"
)

var log = logging.DefaultLogger.WithTag("rtmpd")

func main() {
	flag.Parse()

	if flagHelp {
		help()
		os.Exit(0)
	}

	if flagVersion {
		printVersion()
		os.Exit(0)
	}

	if level, err := parseLogLevel(flagLogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	} else {
		logging.DefaultLogger.Level = level
	}

	if flagRTMPSPort > 0 && (flagCertFile == "" || flagKeyFile == "") {
		fmt.Fprintln(os.Stderr, "--certificate and --private-key are required with --rtmps-port")
		os.Exit(1)
	}

	cfg := rtmpstream.Config{
		ListenAddr:     flagListenAddr,
		MaxConnections: flagMaxConns,
		ChunkSize:      uint32(flagChunkSize),
		WindowAckSize:  uint32(flagWindowAck),
	}

	server := rtmpstream.NewServer(cfg)

	if flagRTMPSPort > 0 {
		go func() {
			tlsAddr := fmt.Sprintf(":%d", flagRTMPSPort)
			tlsServer := rtmpstream.NewServer(rtmpstream.Config{ListenAddr: tlsAddr})
			if err := tlsServer.ListenAndServeTLS(flagCertFile, flagKeyFile); err != nil {
				log.Error("rtmps: %s", err)
			}
		}()
	}

	if err := server.ListenAndServe(); err != nil {
		log.Error("%s", err)
		os.Exit(1)
	}
}

func parseLogLevel(s string) (logging.Level, error) {
	switch s {
	case "error":
		return logging.Error, nil
	case "warn":
		return logging.Warn, nil
	case "info":
		return logging.Info, nil
	case "debug":
		return logging.Debug, nil
	case "trace":
		return logging.MaxLevel, nil
	default:
		return 0, fmt.Errorf("unrecognized log level: %s", s)
	}
}
