package httpsse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/turbomcp/turbomcp-go/corelog"
	"github.com/turbomcp/turbomcp-go/transport"
)

// Client is the client-side HTTP+SSE transport. It opens one long-lived
// GET to the events endpoint, learns the POST target from the initial
// "endpoint" event, and sends outgoing messages via individual POSTs.
type Client struct {
	transport.StateHolder
	metrics transport.Metrics

	cfg        Config
	httpClient *http.Client

	mu          sync.Mutex
	msgEndpoint string
	body        io.ReadCloser

	incoming chan transport.Message
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewClient constructs a client-side HTTP+SSE transport from cfg.
// cfg.DialURL must be the full URL of the events endpoint.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		incoming:   make(chan transport.Message, 1000),
		done:       make(chan struct{}),
	}
}

var _ transport.Transport = (*Client)(nil)

// Kind implements transport.Transport.
func (c *Client) Kind() transport.Kind { return transport.KindHTTPSSE }

// Capabilities implements transport.Transport.
func (c *Client) Capabilities() transport.Capabilities {
	return transport.Capabilities{SupportsBidirectional: true, SupportsStreaming: true, MaxMessageSize: c.cfg.MaxMessageSize}
}

// State implements transport.Transport.
func (c *Client) State() transport.State { return c.Load() }

// Metrics implements transport.Transport.
func (c *Client) Metrics() transport.Snapshot { return c.metrics.Snapshot() }

// Endpoint implements transport.Transport.
func (c *Client) Endpoint() string { return c.cfg.DialURL }

// Connect implements transport.Transport: opens the SSE stream and waits
// for the initial "endpoint" event naming the POST target.
func (c *Client) Connect(ctx context.Context) error {
	c.Store(transport.StateConnecting)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.DialURL, nil)
	if err != nil {
		c.Fail(err.Error())
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.Fail(err.Error())
		return err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		err := fmt.Errorf("httpsse: events endpoint returned status %d", resp.StatusCode)
		c.Fail(err.Error())
		return err
	}

	reader := bufio.NewReader(resp.Body)
	evt, err := readOneEvent(reader)
	if err != nil {
		resp.Body.Close()
		c.Fail(err.Error())
		return err
	}
	if evt.name != "endpoint" {
		resp.Body.Close()
		err := fmt.Errorf("httpsse: expected initial \"endpoint\" event, got %q", evt.name)
		c.Fail(err.Error())
		return err
	}

	base, err := url.Parse(c.cfg.DialURL)
	if err != nil {
		resp.Body.Close()
		c.Fail(err.Error())
		return err
	}
	target, err := base.Parse(string(evt.data))
	if err != nil {
		resp.Body.Close()
		c.Fail(err.Error())
		return err
	}

	c.mu.Lock()
	c.msgEndpoint = target.String()
	c.body = resp.Body
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(reader)

	c.Store(transport.StateConnected)
	return nil
}

func (c *Client) readLoop(reader *bufio.Reader) {
	defer c.wg.Done()
	defer close(c.incoming)

	for {
		evt, err := readOneEvent(reader)
		if err != nil {
			if err != io.EOF {
				c.Fail(err.Error())
			}
			return
		}
		switch evt.name {
		case "ping":
			continue
		case "message":
			var env wireEnvelope
			if jsonErr := json.Unmarshal(evt.data, &env); jsonErr != nil {
				corelog.Warn(context.Background(), "httpsse client dropped malformed message", "error", jsonErr.Error())
				continue
			}
			c.metrics.RecordReceive(len(evt.data))
			msg := transport.Message{ID: env.ID, Payload: env.Payload, Metadata: env.Metadata}
			select {
			case c.incoming <- msg:
			case <-c.done:
				return
			}
		}
	}
}

// readOneEvent reads consecutive "event:"/"data:" lines up to the
// terminating blank line, joining multiple data lines with "\n".
func readOneEvent(reader *bufio.Reader) (event, error) {
	var name string
	var data bytes.Buffer
	sawAny := false

	for {
		line, err := reader.ReadString('\n')
		if line == "" && err != nil {
			return event{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if sawAny {
				return event{name: name, data: bytes.TrimRight(data.Bytes(), "\n")}, nil
			}
			if err != nil {
				return event{}, err
			}
			continue
		}

		sawAny = true
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data.WriteString(strings.TrimPrefix(line, "data: "))
			data.WriteByte('\n')
		}

		if err != nil {
			if sawAny {
				return event{name: name, data: bytes.TrimRight(data.Bytes(), "\n")}, nil
			}
			return event{}, err
		}
	}
}

// Send implements transport.Transport: POSTs msg to the learned target.
func (c *Client) Send(ctx context.Context, msg transport.Message) error {
	if c.Load() != transport.StateConnected {
		return transport.ErrNotConnected
	}
	if len(msg.Payload) > c.cfg.MaxMessageSize {
		return &transport.ErrMessageTooLarge{Size: len(msg.Payload), Max: c.cfg.MaxMessageSize}
	}

	env := wireEnvelope{ID: msg.ID, Payload: msg.Payload, Metadata: msg.Metadata}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	target := c.msgEndpoint
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.Fail(err.Error())
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("httpsse: POST to %s returned status %d", target, resp.StatusCode)
	}
	c.metrics.RecordSend(len(body))
	return nil
}

// Receive implements transport.Transport.
func (c *Client) Receive(ctx context.Context) (*transport.Message, error) {
	select {
	case msg, ok := <-c.incoming:
		if !ok {
			return nil, nil
		}
		return &msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, nil
	}
}

// Disconnect implements transport.Transport.
func (c *Client) Disconnect(_ context.Context) error {
	if c.Load() == transport.StateDisconnected {
		return nil
	}
	c.Store(transport.StateDisconnecting)
	close(c.done)

	c.mu.Lock()
	if c.body != nil {
		_ = c.body.Close()
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.Store(transport.StateDisconnected)
	return nil
}
