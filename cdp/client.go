// Package cdp drives Chromium-based browsers over the Chrome DevTools
// Protocol.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/mailru/easyjson"

	"github.com/grafana/browsermatrix/cdp/domains"
	"github.com/grafana/browsermatrix/log"
)

// ErrClientClosed is returned by commands issued after the connection ended.
var ErrClientClosed = errors.New("CDP connection closed")

var _ cdp.Executor = &Client{}

// Client multiplexes CDP commands of many attached targets over one
// websocket connection.
type Client struct {
	logger *log.Logger
	wsURL  string
	conn   *connection

	Browser domains.Browser
	Input   domains.Input
	Page    domains.Page
	Runtime domains.Runtime
	Target  domains.Target

	msgID   int64
	mu      sync.Mutex
	pending map[int64]chan *cdproto.Message

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// Dial connects to the browser exposing a CDP endpoint at wsURL.
func Dial(ctx context.Context, wsURL string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.NullLogger()
	}
	conn, err := dial(ctx, wsURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		logger:  logger,
		wsURL:   wsURL,
		conn:    conn,
		pending: make(map[int64]chan *cdproto.Message),
		done:    make(chan struct{}),
	}
	c.Browser = domains.NewBrowser(c)
	c.Input = domains.NewInput(c)
	c.Page = domains.NewPage(c)
	c.Runtime = domains.NewRuntime(c)
	c.Target = domains.NewTarget(c)

	go c.recvLoop()
	c.logger.Infof("cdp", "established CDP connection to %q", wsURL)

	return c, nil
}

// Close ends the connection. Pending commands fail with ErrClientClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.close()
	})
	<-c.done
	return err
}

// Execute implements cdp.Executor. It sends a command and blocks until the
// matching response arrives. A session ID in ctx routes the command to the
// attached target.
func (c *Client) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf []byte
	if params != nil {
		var err error
		if buf, err = easyjson.Marshal(params); err != nil {
			return fmt.Errorf("encoding %s params: %w", method, err)
		}
	}

	id := atomic.AddInt64(&c.msgID, 1)
	msg := &cdproto.Message{
		ID:     id,
		Method: cdproto.MethodType(method),
		Params: buf,
	}
	if sid, ok := attachedSession(ctx); ok {
		msg.SessionID = sid
	}

	recvCh := make(chan *cdproto.Message, 1)
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return c.closedErr()
	}
	c.pending[id] = recvCh
	c.mu.Unlock()
	defer c.forget(id)

	c.logger.Debugf("cdp:execute", "wsURL:%q sid:%q id:%d method:%q", c.wsURL, msg.SessionID, id, method)
	if err := c.conn.writeMessage(msg); err != nil {
		return err
	}

	select {
	case resp := <-recvCh:
		switch {
		case resp.Error != nil:
			return fmt.Errorf("%s: %w", method, resp.Error)
		case res != nil && len(resp.Result) > 0:
			return easyjson.Unmarshal(resp.Result, res)
		}
		return nil
	case <-c.done:
		return c.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

func (c *Client) closedErr() error {
	if c.err != nil {
		return fmt.Errorf("%w: %v", ErrClientClosed, c.err)
	}
	return ErrClientClosed
}

func (c *Client) recvLoop() {
	defer close(c.done)

	for {
		msg, err := c.conn.readMessage()
		if err != nil {
			c.mu.Lock()
			c.pending = nil
			c.err = err
			c.mu.Unlock()
			c.logger.Debugf("cdp:recv", "wsURL:%q stopped: %v", c.wsURL, err)
			return
		}

		switch {
		case msg.ID > 0:
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			c.mu.Unlock()
			if !ok {
				c.logger.Debugf("cdp:recv", "wsURL:%q no caller waiting for id:%d", c.wsURL, msg.ID)
				continue
			}
			ch <- msg
		case msg.Method != "":
			c.logger.Tracef("cdp:recv", "wsURL:%q sid:%q event:%q", c.wsURL, msg.SessionID, msg.Method)
		default:
			c.logger.Errorf("cdp:recv", "ignoring malformed CDP message without id or method")
		}
	}
}
