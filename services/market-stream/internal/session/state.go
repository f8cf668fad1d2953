// services/market-stream/internal/session/state.go
package session

import (
	"errors"
	"time"
)

var (
	// ErrTransportClosed — соединение закрыто сервером или сетью.
	ErrTransportClosed = errors.New("session: transport closed")
	// ErrLoggedOut — команда недопустима после выхода.
	ErrLoggedOut = errors.New("session: logged out")
	// ErrStopped — цикл контроллера не запущен или уже завершён.
	ErrStopped = errors.New("session: controller stopped")
)

// State — состояние сессии.
type State int

const (
	Disconnected State = iota
	Connecting
	Subscribed
	Active
	Paused
	LoggedOut
)

var stateNames = [...]string{
	Disconnected: "disconnected",
	Connecting:   "connecting",
	Subscribed:   "subscribed",
	Active:       "active",
	Paused:       "paused",
	LoggedOut:    "logged_out",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText — имя состояния в JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Status — снимок состояния для API и тестов.
type Status struct {
	State       State     `json:"state"`
	Paused      bool      `json:"paused"`
	SessionID   string    `json:"session_id,omitempty"`
	Subdomain   string    `json:"subdomain,omitempty"`
	Symbols     []string  `json:"symbols"`
	Attempts    int       `json:"reconnect_attempts"`
	Frames      uint64    `json:"frames"`
	Dropped     uint64    `json:"dropped"`
	Records     uint64    `json:"records"`
	Diagnostics uint64    `json:"diagnostics"`
	LastFrame   time.Time `json:"last_frame,omitempty"`
}

// visible — Paused наблюдается только поверх живой подписки.
func visible(s State, paused bool) State {
	if paused && (s == Subscribed || s == Active) {
		return Paused
	}
	return s
}
