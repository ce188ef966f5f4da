package connection

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/arduino-bridge/internal/pkg/metrics"
)

// scheduleRenewal must be called with m.mu held.
func (m *Manager) scheduleRenewal(after time.Duration) {
	if m.closed {
		return
	}
	if m.renewal != nil {
		m.renewal.Stop()
	}
	m.renewal = time.AfterFunc(after, m.renew)
}

func (m *Manager) renew() {
	ctx, cancel := context.WithTimeout(context.Background(), renewTimeout)
	defer cancel()

	cred, err := m.provider.Acquire(ctx)
	metrics.TokenRenewals.WithLabelValues(metrics.Result(err)).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if err != nil {
		m.logger.Error("error updating token", zap.Error(err), zap.Duration("retry_in", m.renewRetry))
		m.scheduleRenewal(m.renewRetry)
		return
	}
	m.setCredential(cred)
	if m.request != nil {
		m.request.UpdateToken(cred.Token)
	}
	m.logger.Info("token renewed", zap.Time("renew_at", cred.RenewAt()))
	m.scheduleRenewal(cred.Expiry)
}
