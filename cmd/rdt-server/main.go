package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"rdt-transfer-go/pkg/logger"
	"rdt-transfer-go/source/protocol"
	"rdt-transfer-go/source/transfer"
)

const VERSION = "1.0.0"

type Config struct {
	Port           int     `yaml:"port"`
	SaveDir        string  `yaml:"save_dir"`
	WindowSize     int     `yaml:"window_size"`
	ReceiveTimeout float64 `yaml:"receive_timeout"`
	MetricsAddr    string  `yaml:"metrics_addr"`
}

func defaultConfig() Config {
	return Config{
		Port:           9999,
		SaveDir:        "files/received",
		WindowSize:     protocol.DefaultWindowSize,
		ReceiveTimeout: 30.0,
	}
}

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	port := flag.Int("port", 9999, "port to listen on")
	saveDir := flag.String("save-dir", "files/received", "directory to save received files")
	receiveTimeout := flag.Float64("receive-timeout", 30.0, "per-transfer inactivity timeout in seconds")
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
		case "port":
			cfg.Port = *port
		case "save-dir":
			cfg.SaveDir = *saveDir
		case "receive-timeout":
			cfg.ReceiveTimeout = *receiveTimeout
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		}
	})

	logger.Banner("RDT File Transfer Server", VERSION)

	srv, err := transfer.NewServer(cfg.Port, cfg.SaveDir)
	if err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
	srv.WindowSize = cfg.WindowSize
	srv.ReceiveTimeout = time.Duration(cfg.ReceiveTimeout * float64(time.Second))

	if cfg.MetricsAddr != "" {
		transfer.RegisterMetrics(prometheus.DefaultRegisterer)
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
				logger.Error("Metrics endpoint failed: %v", err)
			}
		}()
		logger.Info("Serving metrics on %s/metrics", cfg.MetricsAddr)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		logger.Fatal("Server error: %v", err)
	case sig := <-sigChan:
		logger.Warn("Received signal: %v", sig)
		srv.Stop()
		logger.Success("Server stopped")
	}
}
