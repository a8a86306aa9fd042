package mcpquic

import (
	"bytes"
	"fmt"
	"io"
	"time"
)

// deadlineReader is the part of a QUIC stream the handshake needs.
type deadlineReader interface {
	io.Reader
	SetReadDeadline(time.Time) error
}

// ValidateMagicBytes reads the stream preamble within timeout and checks it
// against MagicBytesMCP. The read deadline is cleared afterwards.
func ValidateMagicBytes(r deadlineReader, timeout time.Duration) error {
	if err := r.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set handshake deadline: %w", err)
	}
	defer r.SetReadDeadline(time.Time{})

	magic := make([]byte, len(MagicBytesMCP))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("read magic bytes: %w", err)
	}
	if !bytes.Equal(magic, []byte(MagicBytesMCP)) {
		return fmt.Errorf("%w: got %q", ErrInvalidMagicBytes, string(magic))
	}
	return nil
}

// SendMagicBytes writes the preamble. Clients send it right after opening
// the stream.
func SendMagicBytes(w io.Writer) error {
	if _, err := io.WriteString(w, MagicBytesMCP); err != nil {
		return fmt.Errorf("write magic bytes: %w", err)
	}
	return nil
}
