package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/arduino-bridge/internal/pkg/auth"
	"github.com/anicoll/arduino-bridge/internal/pkg/config"
	"github.com/anicoll/arduino-bridge/internal/pkg/metrics"
	"github.com/anicoll/arduino-bridge/internal/pkg/model"
)

const (
	renewRetry     = time.Minute
	renewTimeout   = 30 * time.Second
	reconnectLimit = 30 * time.Second
)

var ErrClosed = errors.New("connection manager closed")

// Streamer is the publish/subscribe side of the connection.
type Streamer interface {
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	SubscribeProperty(ctx context.Context, thingID, name string, fn func(model.Value)) (func(), error)
}

// Requester is the request/response side of the connection.
type Requester interface {
	ListThings(ctx context.Context) ([]model.Thing, error)
	ListProperties(ctx context.Context, thingID string) ([]model.Property, error)
	GetProperty(ctx context.Context, thingID, propertyID string) (model.Property, error)
	SetProperty(ctx context.Context, thingID, propertyID string, value model.Value) error
	UpdateToken(token string)
}

type credentialProvider interface {
	Acquire(ctx context.Context) (auth.Credential, error)
}

// StreamFactory builds an unconnected streaming client. token returns the
// current bearer token, onLost is invoked when the connection drops.
type StreamFactory func(token func() string, onLost func(error)) Streamer

type RequestFactory func(token string) Requester

type Manager struct {
	cfg        *config.CloudConfig
	provider   credentialProvider
	newStream  StreamFactory
	newRequest RequestFactory
	logger     *zap.Logger
	renewRetry time.Duration
	now        func() time.Time

	// mu serialises establishment and guards the handles.
	mu      sync.Mutex
	stream  Streamer
	request Requester
	closed  bool
	renewal *time.Timer
	ready   atomic.Bool

	credMu sync.RWMutex
	cred   auth.Credential

	stateMu sync.RWMutex
	state   State
	lastErr error
}

func New(cfg *config.CloudConfig, provider credentialProvider, newStream StreamFactory, newRequest RequestFactory) *Manager {
	return &Manager{
		cfg:        cfg,
		provider:   provider,
		newStream:  newStream,
		newRequest: newRequest,
		logger:     zap.L(),
		renewRetry: renewRetry,
		now:        time.Now,
	}
}

// EnsureConnected returns the established handles, establishing whatever is
// missing first. Concurrent callers share one establishment attempt.
func (m *Manager) EnsureConnected(ctx context.Context) (Streamer, Requester, error) {
	if err := m.cfg.Validate(); err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, ErrClosed
	}
	if m.stream != nil && m.request != nil {
		return m.stream, m.request, nil
	}

	// A credential past its renewal deadline is as good as none: the renewal
	// timer only runs once the request client exists.
	cred := m.credential()
	if cred.Token == "" || !m.now().Before(cred.RenewAt()) {
		var err error
		if cred, err = m.provider.Acquire(ctx); err != nil {
			m.logger.Error("failed to acquire credential", zap.Error(err))
			m.setState(m.currentState(), err)
			return nil, nil, err
		}
		m.setCredential(cred)
		if m.request != nil {
			m.request.UpdateToken(cred.Token)
			m.scheduleRenewal(cred.Expiry)
		}
	}

	if m.stream == nil {
		if err := m.connectStream(ctx); err != nil {
			return nil, nil, err
		}
	}

	if m.request == nil {
		m.request = m.newRequest(cred.Token)
		m.ready.Store(true)
		m.scheduleRenewal(cred.Expiry)
		m.logger.Info("request client ready", zap.Time("renew_at", cred.RenewAt()))
	}
	return m.stream, m.request, nil
}

func (m *Manager) connectStream(ctx context.Context) error {
	m.setState(StateConnecting, nil)
	var stream Streamer
	stream = m.newStream(m.token, func(err error) {
		m.handleDisconnect(stream, err)
	})
	if err := stream.Connect(ctx); err != nil {
		err = fmt.Errorf("connecting streaming client: %w", err)
		m.logger.Error("failed to connect streaming client", zap.Error(err))
		m.setState(StateUnconnected, err)
		return err
	}
	m.stream = stream
	m.setState(StateConnected, nil)
	metrics.StreamEvents.WithLabelValues("connected").Inc()
	return nil
}

// handleDisconnect reconnects the same handle. When that fails the handle is
// dropped so the next EnsureConnected re-establishes only the stream.
func (m *Manager) handleDisconnect(stream Streamer, cause error) {
	m.logger.Warn("streaming connection lost", zap.String("client_id", m.cfg.ClientID), zap.Error(cause))
	metrics.StreamEvents.WithLabelValues("lost").Inc()
	m.setState(StateDisconnected, cause)

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}

	m.setState(StateConnecting, cause)
	ctx, cancel := context.WithTimeout(context.Background(), reconnectLimit)
	defer cancel()
	if err := stream.Reconnect(ctx); err != nil {
		m.logger.Error("failed to reconnect streaming client", zap.Error(err))
		metrics.StreamEvents.WithLabelValues("reconnect_failed").Inc()
		m.setState(StateDisconnected, err)

		m.mu.Lock()
		if m.stream == stream {
			m.stream = nil
		}
		m.mu.Unlock()
		return
	}
	m.logger.Info("streaming connection restored")
	metrics.StreamEvents.WithLabelValues("connected").Inc()
	m.setState(StateConnected, nil)
}

// Close stops the renewal loop and disconnects the stream.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.renewal != nil {
		m.renewal.Stop()
		m.renewal = nil
	}
	if m.stream != nil {
		m.stream.Disconnect()
		m.stream = nil
	}
	m.setState(StateUnconnected, nil)
}

func (m *Manager) token() string {
	return m.credential().Token
}

func (m *Manager) credential() auth.Credential {
	m.credMu.RLock()
	defer m.credMu.RUnlock()
	return m.cred
}

func (m *Manager) setCredential(cred auth.Credential) {
	m.credMu.Lock()
	defer m.credMu.Unlock()
	m.cred = cred
}
