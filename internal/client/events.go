package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nhle/taskflow/internal/model"
)

// Event is one frame from the event stream.
type Event struct {
	Name string
	Data json.RawMessage
}

// Task decodes a taskCreated or taskUpdated payload.
func (e Event) Task() (model.TaskView, error) {
	var task model.TaskView
	if err := json.Unmarshal(e.Data, &task); err != nil {
		return model.TaskView{}, fmt.Errorf("decoding %s payload: %w", e.Name, err)
	}
	return task, nil
}

// DeletedID decodes a taskDeleted payload.
func (e Event) DeletedID() (string, error) {
	var payload model.TaskDeleted
	if err := json.Unmarshal(e.Data, &payload); err != nil {
		return "", fmt.Errorf("decoding %s payload: %w", e.Name, err)
	}
	return payload.TaskID, nil
}

// Stream connects to the event stream and calls handle for each event
// until ctx is done or the connection fails. It returns nil only when ctx
// ends the stream. Comment lines (ready, heartbeat) are skipped.
func (c *Client) Stream(ctx context.Context, handle func(Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/events", nil)
	if err != nil {
		return fmt.Errorf("creating stream request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connecting to event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("event stream: %w", ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "event stream rejected"}
	}

	err = readEvents(bufio.NewReader(resp.Body), handle)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil {
		return fmt.Errorf("event stream closed by server")
	}
	return fmt.Errorf("reading event stream: %w", err)
}

// readEvents parses Server-Sent Events frames until the reader fails.
// It returns nil on a clean EOF.
func readEvents(reader *bufio.Reader, handle func(Event)) error {
	var name string
	var data strings.Builder

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if data.Len() > 0 {
				if name == "" {
					name = "message"
				}
				handle(Event{Name: name, Data: json.RawMessage(data.String())})
			}
			name = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}
