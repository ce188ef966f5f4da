package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anicoll/arduino-bridge/internal/pkg/config"
	"github.com/anicoll/arduino-bridge/pkg/sockets"
)

const (
	connectTimeout = 10 * time.Second
	ackTimeout     = 5 * time.Second
)

var (
	ErrNotConnected   = errors.New("mqtt client not connected")
	ErrConnectTimeout = errors.New("unable to connect in time")
)

type service struct {
	client paho_mqtt.Client
	logger *zap.Logger
	onLost func(error)

	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]subscription // keyed by thing id
}

// New builds a client for the broker in cfg. token is read on every
// (re)connect so the latest credential is always presented. onLost is
// called when an established connection drops.
func New(cfg *config.CloudConfig, token func() string, onLost func(error)) *service {
	s := newService(onLost)
	opts := paho_mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID("arduino-bridge-" + uuid.NewString()).
		SetCredentialsProvider(func() (string, string) {
			return "", token()
		}).
		SetAutoReconnect(false).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetKeepAlive(30 * time.Second).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost).
		SetCustomOpenConnectionFn(openConnection)
	s.client = paho_mqtt.NewClient(opts)
	return s
}

func newService(onLost func(error)) *service {
	return &service{
		logger: zap.L(),
		onLost: onLost,
		subs:   map[string]map[uint64]subscription{},
	}
}

// openConnection dials websocket brokers through pkg/sockets and anything else over tcp/tls.
func openConnection(uri *url.URL, options paho_mqtt.ClientOptions) (net.Conn, error) {
	timeout := options.ConnectTimeout
	if timeout <= 0 {
		timeout = connectTimeout
	}
	switch uri.Scheme {
	case "ws", "wss":
		conn := sockets.New(
			sockets.WithSubprotocols("mqtt"),
			sockets.WithHandshakeTimeout(timeout),
		)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := conn.Dial(ctx, uri.String(), nil); err != nil {
			return nil, err
		}
		return conn, nil
	case "ssl", "tls", "mqtts", "tcps":
		return tls.DialWithDialer(&net.Dialer{Timeout: timeout}, "tcp", uri.Host, &tls.Config{ServerName: uri.Hostname()})
	default:
		return net.DialTimeout("tcp", uri.Host, timeout)
	}
}

func wait(ctx context.Context, token paho_mqtt.Token, timeout time.Duration) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return ErrConnectTimeout
	}
}

func (s *service) Connect(ctx context.Context) error {
	if err := wait(ctx, s.client.Connect(), connectTimeout); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	s.logger.Info("connected to iot cloud broker")
	return nil
}

// Reconnect connects the same client again after it was lost.
func (s *service) Reconnect(ctx context.Context) error {
	if s.client.IsConnected() {
		return nil
	}
	return s.Connect(ctx)
}

func (s *service) Disconnect() {
	s.client.Disconnect(250)
}

func (s *service) IsConnected() bool {
	return s.client.IsConnected()
}

func (s *service) onConnectionLost(_ paho_mqtt.Client, err error) {
	s.logger.Warn("connection to iot cloud broker lost", zap.Error(err))
	if s.onLost != nil {
		s.onLost(err)
	}
}

// onConnect restores every subscription, clean sessions drop them on the broker side.
func (s *service) onConnect(c paho_mqtt.Client) {
	s.mu.Lock()
	things := make([]string, 0, len(s.subs))
	for thingID := range s.subs {
		things = append(things, thingID)
	}
	s.mu.Unlock()

	for _, thingID := range things {
		if err := s.subscribeTopic(context.Background(), thingID); err != nil {
			s.logger.Error("failed to restore subscription", zap.String("thing_id", thingID), zap.Error(err))
		}
	}
}
