package rpcloop

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Channel delivers one framed message at a time and accepts one response per request.
// Receive returns io.EOF once the peer has closed the stream.
type Channel interface {
	Receive(ctx context.Context) (json.RawMessage, error)
	Send(ctx context.Context, msg any) error
}

// LineChannel frames messages as newline-delimited JSON over a byte stream.
// A single goroutine owns the reader, so Receive may be called again after
// an earlier call returned on context cancellation.
type LineChannel struct {
	reader    *bufio.Reader
	startOnce sync.Once
	lines     chan []byte
	readErr   error // set before lines is closed

	mu     sync.Mutex // serializes writes
	writer io.Writer
}

// NewLineChannel creates a LineChannel reading from r and writing to w.
func NewLineChannel(r io.Reader, w io.Writer) *LineChannel {
	return &LineChannel{
		reader: bufio.NewReader(r),
		lines:  make(chan []byte),
		writer: w,
	}
}

// Receive returns the next non-blank line. It returns ctx.Err() if ctx is
// done before a line arrives; the line is then delivered to a later call.
func (c *LineChannel) Receive(ctx context.Context) (json.RawMessage, error) {
	c.startOnce.Do(func() { go c.readLoop() })

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return nil, c.readErr
		}
		return line, nil
	}
}

func (c *LineChannel) readLoop() {
	defer close(c.lines)
	for {
		line, err := c.reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			// A final line without a trailing newline is still a message.
			c.lines <- line
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

// Send writes msg as a single JSON line.
func (c *LineChannel) Send(_ context.Context, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
