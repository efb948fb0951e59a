package transfer

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/xid"

	"rdt-transfer-go/pkg/logger"
	"rdt-transfer-go/source/protocol"
	"rdt-transfer-go/source/rdt"
)

// Server receives files over the transport and writes them to disk.
// Transfers are handled one at a time; each gets a fresh receiver on
// the shared socket.
type Server struct {
	SaveDir        string
	WindowSize     int
	ReceiveTimeout time.Duration

	conn    *net.UDPConn
	running bool
	mu      sync.Mutex
}

func NewServer(port int, saveDir string) (*Server, error) {
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create save directory: %w", err)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP socket: %w", err)
	}

	return &Server{
		SaveDir:        saveDir,
		WindowSize:     protocol.DefaultWindowSize,
		ReceiveTimeout: 30 * time.Second,
		conn:           conn,
	}, nil
}

// Port reports the bound port (useful when constructed with port 0).
func (s *Server) Port() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

func (s *Server) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start accepts transfers until Stop. Blocks.
func (s *Server) Start() error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	logger.Info("[Server] Started on port %d, saving files to %s", s.Port(), s.SaveDir)

	for s.isRunning() {
		receiver := rdt.NewReceiver(s.conn, s.WindowSize)
		receiver.Start()
		data := receiver.ReceiveAll(s.ReceiveTimeout)
		receiver.Stop()

		if len(data) == 0 {
			continue
		}

		path, err := s.saveFile(data)
		if err != nil {
			logger.Error("[Server] Error saving file: %v", err)
			continue
		}
		logger.Success("[Server] File received and saved: %s (%d bytes)", path, len(data))
	}

	return nil
}

// Stop halts the accept loop. The current receiver drains within its
// inactivity timeout.
func (s *Server) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.conn.Close()
	logger.Info("[Server] Stopped")
}

// saveFile splits the leading filename off the stream and writes the
// content under SaveDir. A stream with no usable name falls back to a
// generated one.
func (s *Server) saveFile(data []byte) (string, error) {
	name := ""
	content := data

	if idx := bytes.IndexByte(data, '\n'); idx >= 0 {
		name = filepath.Base(string(data[:idx]))
		content = data[idx+1:]
	}
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = fmt.Sprintf("received_%s.bin", xid.New())
	}

	path := filepath.Join(s.SaveDir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}

	metricTransfers.Inc()
	metricBytesReceived.Add(float64(len(content)))
	return path, nil
}
