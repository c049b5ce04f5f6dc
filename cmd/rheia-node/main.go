// Command rheia-node is the process entrypoint: it wires configuration,
// logging, the TransactionVerifier, the Chain (embedding the Sampler),
// and the Ingress adapter together behind a TCP listener, and shuts them
// down in order on SIGINT.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bermi/rheia/chain"
	"github.com/bermi/rheia/ingress"
	"github.com/bermi/rheia/internal/config"
	"github.com/bermi/rheia/internal/rlog"
	"github.com/bermi/rheia/verifier"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		println("rheia-node: loading config:", err.Error())
		return 1
	}
	rlog.SetLevel(cfg.LogLevel)
	logger := rlog.New("main")

	c := chain.New(chain.Options{
		ProposeDelayMin:   cfg.ProposeDelayMin,
		ProposeDelayMax:   cfg.ProposeDelayMax,
		MaxTransactionIDs: cfg.MaxTransactionIDs,
		MaxPendingSize:    cfg.MaxPendingSize,
		SamplerAlpha:      cfg.SamplerAlpha,
		SamplerBeta:       cfg.SamplerBeta,
	})
	v, err := verifier.New(c, verifier.Options{
		MaxParallelTasks:  cfg.MaxParallelTasks,
		MaxBatchSize:      cfg.MaxBatchSize,
		FlushDelayMin:     cfg.FlushDelayMin,
		FlushDelayMax:     cfg.FlushDelayMax,
		RecentIDCacheSize: cfg.RecentIDCacheSize,
	})
	if err != nil {
		logger.Error("constructing verifier", "err", err)
		return 1
	}
	adapter := ingress.New(v)

	lc := net.ListenConfig{Control: controlSocketOptions(logger)}
	listener, err := lc.Listen(context.Background(), "tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("binding listener", "addr", cfg.ListenAddr, "err", err)
		return 1
	}
	logger.Info("listening", "addr", cfg.ListenAddr)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() { defer wg.Done(); v.Run(ctx) }()
	wg.Add(1)
	go func() { defer wg.Done(); c.Run(ctx) }()

	wg.Add(1)
	go func() {
		defer wg.Done()
		acceptLoop(ctx, listener, adapter, logger)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	listener.Close()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := v.Shutdown(shutdownCtx); err != nil {
		logger.Warn("verifier shutdown incomplete", "err", err)
	}
	c.Shutdown()

	wg.Wait()
	logger.Info("shutdown complete")
	return 0
}

func acceptLoop(ctx context.Context, listener net.Listener, adapter *ingress.Adapter, logger *rlog.Logger) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("accept failed", "err", err)
			continue
		}
		go serveConnection(ctx, conn, adapter, logger)
	}
}

func serveConnection(ctx context.Context, conn net.Conn, adapter *ingress.Adapter, logger *rlog.Logger) {
	defer conn.Close()
	w := &connResponseWriter{conn: conn}
	header := make([]byte, ingress.HeaderSize)

	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := readFull(conn, header); err != nil {
			return
		}
		h, err := ingress.DecodeHeader(header)
		if err != nil {
			logger.Warn("dropping connection: malformed header", "err", err, "remote", conn.RemoteAddr())
			return
		}
		payload := make([]byte, h.Len)
		if _, err := readFull(conn, payload); err != nil {
			return
		}
		if err := adapter.Handle(ctx, h, payload, w); err != nil {
			logger.Warn("dropping connection after handler error", "err", err, "remote", conn.RemoteAddr())
			return
		}
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type connResponseWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *connResponseWriter) WriteResponse(nonce uint32, tag ingress.Tag, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.conn.Write(ingress.EncodeFrame(nonce, ingress.OpResponse, tag, payload))
	return err
}

// controlSocketOptions returns a net.ListenConfig.Control callback that
// applies SO_REUSEADDR, SO_REUSEPORT, TCP_NODELAY and TCP_FASTOPEN on a
// best-effort basis: failures are logged, never fatal, since the listener
// functions correctly without them.
func controlSocketOptions(logger *rlog.Logger) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
				logger.Warn("SO_REUSEADDR unavailable", "err", err)
			}
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
				logger.Warn("SO_REUSEPORT unavailable", "err", err)
			}
			if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
				logger.Warn("TCP_NODELAY unavailable", "err", err)
			}
			if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_FASTOPEN, 128); err != nil {
				logger.Warn("TCP_FASTOPEN unavailable", "err", err)
			}
		})
		if err != nil {
			sockErr = err
		}
		return sockErr
	}
}
