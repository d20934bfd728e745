package daemon

import (
	"context"
	"errors"
	"net"
	"os"

	"github.com/sirupsen/logrus"
)

// Serve listens on a Unix domain socket at socketPath and accepts
// connections until ctx is cancelled. Every connection gets its own
// goroutine; frames on one connection are processed and replied to in
// order, but distinct connections run fully concurrently (section
// 4.G/5).
func Serve(ctx context.Context, socketPath string, d *Dispatcher, log *logrus.Entry) error {
	_ = os.Remove(socketPath) // a stale socket from a prior crash must not block re-binding

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.WithError(err).Warn("daemon: accept failed")
			continue
		}
		go serveConn(ctx, conn, d, log)
	}
}

func serveConn(ctx context.Context, conn net.Conn, d *Dispatcher, log *logrus.Entry) {
	defer conn.Close()
	for {
		raw, err := readFrame(conn)
		if err != nil {
			return
		}
		req, err := DecodeRequest(raw)
		if err != nil {
			log.WithError(err).Debug("daemon: malformed request frame")
			return
		}
		resp := d.Handle(ctx, req)
		if err := writeFrame(conn, EncodeResponse(resp)); err != nil {
			return
		}
	}
}
