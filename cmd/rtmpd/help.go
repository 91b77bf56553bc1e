package main

import (
	"fmt"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

var (
	flagListenAddr   string
	flagRTMPSPort    int
	flagCertFile     string
	flagKeyFile      string
	flagMaxConns     int
	flagChunkSize    int
	flagWindowAck    int
	flagRegistryLRU  int
	flagLogLevel     string
	flagHelp         bool
	flagVersion      bool
)

func init() {
	flag.StringVarP(&flagListenAddr, "listen", "l", ":1935", "RTMP listen address")
	flag.IntVarP(&flagRTMPSPort, "rtmps-port", "p", 0, "RTMPS (TLS) listen port (0 disables)")
	flag.StringVarP(&flagCertFile, "certificate", "c", "", "TLS certificate file, required with --rtmps-port")
	flag.StringVarP(&flagKeyFile, "private-key", "k", "", "TLS private key file, required with --rtmps-port")
	flag.IntVarP(&flagMaxConns, "max-connections", "n", 0, "Maximum concurrent connections (0 = unbounded)")
	flag.IntVar(&flagChunkSize, "chunk-size", 4096, "Chunk size advertised to peers")
	flag.IntVar(&flagWindowAck, "window-ack-size", 2500000, "Window acknowledgement size advertised to peers")
	flag.IntVar(&flagRegistryLRU, "registry-cache-size", 256, "Accepted but not applied; the application registry lookup cache holds 256 entries")
	flag.StringVar(&flagLogLevel, "log-level", "info", "error|warn|info|debug|trace")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `RTMP ingest and playout server

Usage: rtmpd [OPTION]...

Network:
  -l, --listen=ADDR          RTMP listen address (default: :1935)
  -p, --rtmps-port=NUM       RTMPS (TLS) listen port (default: disabled)
  -c, --certificate=FILE     TLS certificate, required with --rtmps-port
  -k, --private-key=FILE     TLS private key, required with --rtmps-port
  -n, --max-connections=NUM  Maximum concurrent connections (default: unbounded)

Protocol:
      --chunk-size=NUM       Chunk size advertised to peers (default: 4096)
      --window-ack-size=NUM  Window acknowledgement size (default: 2500000)
      --registry-cache-size=NUM  Not applied; the registry cache holds 256 entries

Miscellaneous:
      --log-level=LEVEL      error|warn|info|debug|trace (default: info)
  -h, --help                 Prints this help message and exits
  -v, --version               Prints version information and exits`

// help prints a colorized banner and usage information, then the
// caller is expected to exit.
func help() {
	r := color.New(color.FgRed)
	y := color.New(color.FgYellow)
	b := color.New(color.FgCyan)

	//           _                      _
	//  _ __ ___| |_ _ __ ___  _ __   __| |
	// | '__/ _ \ __| '_ ` + "`" + `_ \| '_ \ / _` + "`" + ` |
	// | | |  __/ |_| | | | | | |_) | (_| |
	// |_|  \___|\__|_| |_| |_| .__/ \__,_|
	//                        |_|

	r.Printf(" _ __ ")
	y.Printf("_ __ ")
	b.Printf("_ _ __ ")
	y.Printf("_ __   ")
	r.Println("_  _  ")

	r.Printf("| '__|")
	y.Printf("| '_ \\")
	b.Printf("| | '_ \\")
	y.Printf("| '_ \\ ")
	r.Println("/ _` |")

	r.Printf("| |   ")
	y.Printf("| | | ")
	b.Printf("| | | | ")
	y.Printf("| |_) |")
	r.Println("(_| |")

	r.Printf("|_|   ")
	y.Printf("|_| |_")
	b.Printf("|_|_| |_")
	y.Printf("| .__/ ")
	r.Println("\\__,_|")

	y.Println("                               |_|")

	fmt.Println(helpString)
}
