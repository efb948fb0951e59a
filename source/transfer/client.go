package transfer

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"rdt-transfer-go/pkg/logger"
	"rdt-transfer-go/source/protocol"
	"rdt-transfer-go/source/rdt"
)

// Client sends files to a transfer server. The file is framed as
// filename + '\n' + content and handed to the transport as one opaque
// byte sequence.
type Client struct {
	ServerHost string
	ServerPort int

	WindowSize    int
	Timeout       time.Duration
	MaxPacketSize int
	ShowProgress  bool
}

func NewClient(serverHost string, serverPort int) *Client {
	return &Client{
		ServerHost:    serverHost,
		ServerPort:    serverPort,
		WindowSize:    protocol.DefaultWindowSize,
		Timeout:       2 * time.Second,
		MaxPacketSize: protocol.DefaultMaxPacketSize,
	}
}

// SendFile transmits one file and blocks until it is fully acknowledged.
func (c *Client) SendFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	filename := filepath.Base(path)
	data := append([]byte(filename+"\n"), content...)

	logger.Info("[Client] Sending file: %s (%d bytes, %d on the wire)", filename, len(content), len(data))

	destAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort))
	if err != nil {
		return fmt.Errorf("failed to resolve server address: %w", err)
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return fmt.Errorf("failed to bind UDP socket: %w", err)
	}
	defer conn.Close()

	sender := rdt.NewSender(conn, destAddr, c.WindowSize, c.Timeout, c.MaxPacketSize)
	sender.Start()

	done := make(chan struct{})
	if c.ShowProgress {
		go c.trackProgress(sender, len(data), done)
	}

	start := time.Now()
	err = sender.SendData(data)
	close(done)

	stats := sender.Stop()
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	throughput := float64(len(data)) / elapsed.Seconds()

	logger.Success("[Client] File sent in %.2fs (%.0f bytes/sec)", elapsed.Seconds(), throughput)
	logger.Info("[Client] Packets sent: %d, retransmissions: %d", stats.PacketsSent, stats.Retransmissions)
	return nil
}

// trackProgress renders acknowledged bytes until the transfer finishes.
func (c *Client) trackProgress(sender *rdt.Sender, totalBytes int, done <-chan struct{}) {
	bar := progressbar.DefaultBytes(int64(totalBytes), "sending")

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			bar.Set(totalBytes)
			bar.Finish()
			return
		case <-ticker.C:
			acked := sender.Acked() * c.MaxPacketSize
			if acked > totalBytes {
				acked = totalBytes
			}
			bar.Set(acked)
		}
	}
}
