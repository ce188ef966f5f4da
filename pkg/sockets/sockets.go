// Package sockets exposes a websocket as a net.Conn so stream protocols
// such as MQTT can run over it unchanged.
package sockets

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var _ net.Conn = (*Conn)(nil)

type Conn struct {
	ws               *websocket.Conn
	sslSkipVerify    bool
	handshakeTimeout time.Duration
	subprotocols     []string
	onError          func(err error)

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex
}

func New(opts ...func(*Conn)) *Conn {
	c := &Conn{
		handshakeTimeout: 15 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Dial opens the websocket. Each Write is sent as one binary message.
func (c *Conn) Dial(ctx context.Context, url string, header http.Header) error {
	dialer := &websocket.Dialer{
		HandshakeTimeout: c.handshakeTimeout,
		Subprotocols:     c.subprotocols,
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.sslSkipVerify,
		},
	}
	conn, res, err := dialer.DialContext(ctx, url, header)
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}
	if err != nil {
		return err
	}
	c.ws = conn
	return nil
}

func (c *Conn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	for {
		if c.reader == nil {
			messageType, r, err := c.ws.NextReader()
			if err != nil {
				c.fail(err)
				return 0, err
			}
			if messageType != websocket.BinaryMessage && messageType != websocket.TextMessage {
				continue
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		c.fail(err)
		return 0, err
	}
	return len(p), nil
}

func (c *Conn) fail(err error) {
	if c.onError != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.onError(err)
	}
}

// Close the connection.
func (c *Conn) Close() error {
	if c.ws == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *Conn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *Conn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}
