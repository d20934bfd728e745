package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// sendRequest dials socketPath, writes one length-prefixed request
// frame, reads one length-prefixed response frame, and closes the
// connection — a single request/response round trip per invocation,
// since the CLI is a thin, short-lived client rather than a long-lived
// dispatcher connection.
func sendRequest(socketPath string, payload []byte) ([]byte, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", socketPath, err)
	}
	defer conn.Close()

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return nil, err
	}
	if _, err := conn.Write(payload); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
