package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"rdt-transfer-go/pkg/logger"
	"rdt-transfer-go/source/connector"
)

const VERSION = "1.0.0"

func defaultConfig() connector.Config {
	return connector.Config{
		ClientPort:     8888,
		ServerHost:     "localhost",
		ServerPort:     9999,
		LossRate:       0.1,
		CorruptionRate: 0.05,
		DelayMin:       0.0,
		DelayMax:       0.5,
		ReorderRate:    0.1,
	}
}

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	clientPort := flag.Int("client-port", 8888, "port to listen for client packets")
	serverPort := flag.Int("server-port", 9999, "port to forward to server")
	serverHost := flag.String("server-host", "localhost", "server hostname")
	loss := flag.Float64("loss", 0.1, "packet loss rate 0.0-1.0")
	corrupt := flag.Float64("corrupt", 0.05, "packet corruption rate 0.0-1.0")
	delayMin := flag.Float64("delay-min", 0.0, "minimum delay in seconds")
	delayMax := flag.Float64("delay-max", 0.5, "maximum delay in seconds")
	reorder := flag.Float64("reorder", 0.1, "packet reorder rate 0.0-1.0")
	metricsAddr := flag.String("metrics-addr", "", "optional address to serve Prometheus metrics on")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		logger.SetLevel(logger.LevelDebug)
	}

	cfg := defaultConfig()
	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			logger.Fatal("Failed to read config: %v", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			logger.Fatal("Failed to parse config: %v", err)
		}
	}

	// Explicit flags win over config file values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "client-port":
			cfg.ClientPort = *clientPort
		case "server-port":
			cfg.ServerPort = *serverPort
		case "server-host":
			cfg.ServerHost = *serverHost
		case "loss":
			cfg.LossRate = *loss
		case "corrupt":
			cfg.CorruptionRate = *corrupt
		case "delay-min":
			cfg.DelayMin = *delayMin
		case "delay-max":
			cfg.DelayMax = *delayMax
		case "reorder":
			cfg.ReorderRate = *reorder
		}
	})

	logger.Banner("RDT Network Connector", VERSION)

	conn, err := connector.New(cfg)
	if err != nil {
		logger.Fatal("Failed to start connector: %v", err)
	}

	if *metricsAddr != "" {
		connector.RegisterMetrics(prometheus.DefaultRegisterer)
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				logger.Error("Metrics endpoint failed: %v", err)
			}
		}()
		logger.Info("Serving metrics on %s/metrics", *metricsAddr)
	}

	conn.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan

	logger.Warn("Received signal: %v", sig)
	conn.Stop()
	logger.Success("Connector stopped")
}
