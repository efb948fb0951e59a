package main

import (
	"flag"
	"time"

	"rdt-transfer-go/pkg/logger"
	"rdt-transfer-go/source/protocol"
	"rdt-transfer-go/source/transfer"
)

const VERSION = "1.0.0"

func main() {
	file := flag.String("file", "", "path to the file to send")
	host := flag.String("host", "localhost", "server hostname (use the connector host when simulating)")
	port := flag.Int("port", 8888, "server port (use the connector port when simulating)")
	window := flag.Int("window", protocol.DefaultWindowSize, "sender window size in packets")
	timeout := flag.Float64("timeout", 2.0, "retransmission timeout in seconds")
	mss := flag.Int("max-packet-size", protocol.DefaultMaxPacketSize, "maximum payload bytes per packet")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		logger.SetLevel(logger.LevelDebug)
	}
	if *file == "" {
		logger.Fatal("--file is required")
	}

	logger.Banner("RDT File Transfer Client", VERSION)

	client := transfer.NewClient(*host, *port)
	client.WindowSize = *window
	client.Timeout = time.Duration(*timeout * float64(time.Second))
	client.MaxPacketSize = *mss
	client.ShowProgress = !*verbose

	if err := client.SendFile(*file); err != nil {
		logger.Fatal("Transfer failed: %v", err)
	}
}
