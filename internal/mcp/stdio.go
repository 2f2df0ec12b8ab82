package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"codemcp/internal/events"
)

const maxStdioMessageBytes = 8 << 20

// ServeStdio reads newline-delimited JSON-RPC messages from in and writes
// responses to out, one per line. Requests are handled concurrently; writes
// are serialized. It returns nil on EOF or when ctx is canceled, after
// in-flight requests finish.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxStdioMessageBytes)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			msg := append([]byte(nil), line...)
			select {
			case lines <- msg:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	var (
		wg      sync.WaitGroup
		writeMu sync.Mutex
	)
	write := func(resp *rpcResponse) {
		payload, err := json.Marshal(resp)
		if err != nil {
			s.events.Emit(events.LevelError, "stdio_encode_failed", map[string]interface{}{"error": err.Error()})
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := out.Write(append(payload, '\n')); err != nil {
			s.events.Emit(events.LevelError, "stdio_write_failed", map[string]interface{}{"error": err.Error()})
		}
	}

	s.events.Emit(events.LevelInfo, "server_started", map[string]interface{}{"transport": "stdio"})
	defer s.events.Emit(events.LevelInfo, "server_stopped", map[string]interface{}{"transport": "stdio"})

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case err := <-readErr:
			wg.Wait()
			return err
		case msg := <-lines:
			wg.Add(1)
			go func() {
				defer wg.Done()
				if resp := s.handleMessage(ctx, msg); resp != nil {
					write(resp)
				}
			}()
		}
	}
}
