package connection

import "time"

// State is the lifecycle state of the streaming connection.
type State int

const (
	StateUnconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	}
	return "unconnected"
}

type Status struct {
	State     string    `json:"state"`
	Requester bool      `json:"request_client"`
	RenewAt   time.Time `json:"renew_at,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

func (m *Manager) setState(s State, err error) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.state = s
	m.lastErr = err
}

func (m *Manager) currentState() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// Status reports the connection for diagnostics. It never blocks on establishment.
func (m *Manager) Status() Status {
	m.stateMu.RLock()
	st := Status{State: m.state.String()}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	m.stateMu.RUnlock()

	cred := m.credential()
	if cred.Token != "" {
		st.RenewAt = cred.RenewAt()
	}
	st.Requester = m.ready.Load()
	return st
}
