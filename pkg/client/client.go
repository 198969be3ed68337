package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"syscall"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/statsval/pkg/events"
)

// Client is a struct for communicating with statsval daemon
type Client struct {
	socketPath string
	httpClient *http.Client
}

// NewClient is a constructor for creating a new Client
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					conn, err := d.DialContext(ctx, "unix", socketPath)
					if err != nil {
						if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
							return nil, ErrDaemonNotRunning
						}
						if errors.Is(err, fs.ErrPermission) {
							return nil, ErrPermissionDenied
						}
						logrus.Errorf("failed to connect to unix socket: %v", err)
						return nil, err
					}
					return conn, err
				},
			},
		},
	}
}

// Send is a method for sending a request to the statsval daemon
func (c *Client) Send(method string, path string, data string) (string, error) {
	logrus.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"data":   data,
		"unix":   c.socketPath,
	}).Debug("sending request")

	url := "http://unix" + path

	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return "", fmt.Errorf("unknown method: %s", method)
	}

	var body io.Reader
	if data != "" {
		body = strings.NewReader(data)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if data != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if pkgerrors.Is(err, ErrDaemonNotRunning) {
			return "", ErrDaemonNotRunning
		}
		if pkgerrors.Is(err, ErrPermissionDenied) {
			return "", ErrPermissionDenied
		}
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Errorf("failed to close response body: %v", err)
		}
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if err := statusError(resp.StatusCode, string(b)); err != nil {
		return "", err
	}

	return string(b), nil
}

func statusError(code int, body string) error {
	if code >= 200 && code <= 299 {
		return nil
	}
	msg := strings.Trim(strings.TrimSpace(body), `"`)
	switch code {
	case http.StatusNotFound:
		return pkgerrors.Wrap(ErrNotFound, msg)
	case http.StatusConflict:
		return pkgerrors.Wrap(ErrBusy, msg)
	}
	return fmt.Errorf("got %d: %s", code, msg)
}

// Get is a method for sending a GET request to the statsval daemon
func (c *Client) Get(path string) (string, error) {
	return c.Send(http.MethodGet, path, "")
}

// Put is a method for sending a PUT request to the statsval daemon
func (c *Client) Put(path string, data string) (string, error) {
	return c.Send(http.MethodPut, path, data)
}

// Post is a method for sending a POST request to the statsval daemon
func (c *Client) Post(path string, data string) (string, error) {
	return c.Send(http.MethodPost, path, data)
}

// Delete is a method for sending a DELETE request to the statsval daemon
func (c *Client) Delete(path string) (string, error) {
	return c.Send(http.MethodDelete, path, "")
}

// SubscribeEvents streams daemon events until ctx is done or the connection
// drops. The returned channel is closed then.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan events.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/events", nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if pkgerrors.Is(err, ErrDaemonNotRunning) {
			return nil, ErrDaemonNotRunning
		}
		if pkgerrors.Is(err, ErrPermissionDenied) {
			return nil, ErrPermissionDenied
		}
		return nil, pkgerrors.Wrap(err, "failed to subscribe to events")
	}
	if err := statusError(resp.StatusCode, ""); err != nil {
		resp.Body.Close()
		return nil, err
	}

	ch := make(chan events.Event, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		err := ReadEvents(resp.Body, func(ev events.Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil && ctx.Err() == nil {
			logrus.WithError(err).Debug("event stream ended")
		}
	}()
	return ch, nil
}

// ReadEvents parses a text/event-stream body and calls fn for every event
// until fn returns false or the stream ends.
func ReadEvents(r io.Reader, fn func(events.Event) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		name string
		data []string
	)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if name == "" && len(data) == 0 {
				continue
			}
			ev := events.Event{Name: name, Data: []byte(strings.Join(data, "\n"))}
			if ev.Name == "" {
				ev.Name = "message"
			}
			name, data = "", nil
			if !fn(ev) {
				return nil
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}
