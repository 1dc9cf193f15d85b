package opencode

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"sync"

	"overseer/internal/events"
	"overseer/internal/logging"
)

// Subscribe opens the server's global event stream. Frames are decoded into
// events.Event values; frames that fail to decode are logged and skipped.
// The channel closes when the stream ends or cancel is called.
func (c *Client) Subscribe(ctx context.Context) (<-chan events.Event, func(), error) {
	streamCtx, streamCancel := context.WithCancel(ctx)
	path := c.withDirectory("/event")

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		streamCancel()
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	// The regular client carries a request timeout that would cut the
	// stream; only its transport is shared.
	streamClient := &http.Client{
		Transport: c.httpClient.Transport,
	}
	resp, err := streamClient.Do(req)
	if err != nil {
		streamCancel()
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := readRequestError(resp, http.MethodGet, "/event")
		_ = resp.Body.Close()
		streamCancel()
		return nil, nil, err
	}

	out := make(chan events.Event, 256)
	go func() {
		defer close(out)
		defer streamCancel()
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		dataLines := make([]string, 0, 8)
		emit := func(payload string) bool {
			payload = strings.TrimSpace(payload)
			if payload == "" {
				return true
			}
			event, err := events.Decode([]byte(payload))
			if err != nil {
				c.logger.Debug("opencode_event_decode_failed", logging.F("error", err))
				return true
			}
			select {
			case <-streamCtx.Done():
				return false
			case out <- event:
			}
			return true
		}

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if strings.HasPrefix(line, "data:") {
				dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
				continue
			}
			if line != "" {
				continue
			}
			if len(dataLines) == 0 {
				continue
			}
			if !emit(strings.Join(dataLines, "\n")) {
				return
			}
			dataLines = dataLines[:0]
		}
		if len(dataLines) > 0 {
			_ = emit(strings.Join(dataLines, "\n"))
		}
		if err := scanner.Err(); err != nil && streamCtx.Err() == nil {
			c.logger.Warn("opencode_event_stream_error", logging.F("error", err))
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			streamCancel()
			_ = resp.Body.Close()
		})
	}
	return out, cancel, nil
}
