package lsp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// The wire format is the LSP base protocol: MIME-style headers, a blank
// line, then a JSON-RPC payload of exactly Content-Length bytes.

// readMessage consumes one framed message from the client. Headers other
// than Content-Length (clients commonly send Content-Type) are skipped.
func readMessage(r *bufio.Reader) ([]byte, error) {
	contentLength := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		value = strings.TrimSpace(value)
		length, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("malformed Content-Length %q: %w", value, err)
		}
		contentLength = length
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("frame without Content-Length header")
	}
	payload := make([]byte, contentLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// writeMessage frames one payload for the client. Callers serialize writes
// themselves; diagnostics publishes and responses share the same stream.
func writeMessage(w io.Writer, payload []byte) error {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(payload))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
