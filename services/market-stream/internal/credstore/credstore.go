// services/market-stream/internal/credstore/credstore.go

// Package credstore хранит запись сессии брокера {subdomain, apiKey,
// accessToken, timestamp}: пишется после верификации, читается при старте
// для авто-переподключения, очищается на logout или по истечении срока.
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultTTL — срок жизни записи.
const DefaultTTL = 24 * time.Hour

var (
	// ErrNotFound — записи нет.
	ErrNotFound = errors.New("credstore: not found")
	// ErrInvalidCredentials — запись просрочена или неполна.
	ErrInvalidCredentials = errors.New("credstore: invalid credentials")
)

// Credentials — то, что нужно для открытия стрима.
type Credentials struct {
	Subdomain   string
	APIKey      string
	AccessToken string
	Timestamp   time.Time // момент успешной верификации
}

// Validate проверяет полноту записи.
func (c Credentials) Validate() error {
	switch {
	case c.Subdomain == "":
		return fmt.Errorf("%w: subdomain is empty", ErrInvalidCredentials)
	case c.APIKey == "":
		return fmt.Errorf("%w: api key is empty", ErrInvalidCredentials)
	case c.AccessToken == "":
		return fmt.Errorf("%w: access token is empty", ErrInvalidCredentials)
	}
	return nil
}

// Expired — возраст записи превысил ttl.
func (c Credentials) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.Timestamp) > ttl
}

// Check — запись полна и не просрочена.
func (c Credentials) Check(now time.Time, ttl time.Duration) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Expired(now, ttl) {
		return fmt.Errorf("%w: expired %s ago", ErrInvalidCredentials, now.Sub(c.Timestamp.Add(ttl)).Round(time.Second))
	}
	return nil
}

// String не светит токен в логах.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{subdomain=%s apiKey=%s token=%s ts=%s}",
		c.Subdomain, mask(c.APIKey), mask(c.AccessToken), c.Timestamp.Format(time.RFC3339))
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}

// wireRecord — JSON как у веб-клиента: timestamp в миллисекундах epoch.
type wireRecord struct {
	Subdomain   string `json:"subdomain"`
	APIKey      string `json:"apiKey"`
	AccessToken string `json:"accessToken"`
	Timestamp   int64  `json:"timestamp"`
}

// MarshalJSON кодирует запись в формат хранилища.
func (c Credentials) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRecord{
		Subdomain:   c.Subdomain,
		APIKey:      c.APIKey,
		AccessToken: c.AccessToken,
		Timestamp:   c.Timestamp.UnixMilli(),
	})
}

// UnmarshalJSON разбирает запись хранилища.
func (c *Credentials) UnmarshalJSON(b []byte) error {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*c = Credentials{
		Subdomain:   w.Subdomain,
		APIKey:      w.APIKey,
		AccessToken: w.AccessToken,
		Timestamp:   time.UnixMilli(w.Timestamp),
	}
	return nil
}

// Store — персистентное хранилище одной записи сессии.
type Store interface {
	Load(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, c Credentials) error
	Clear(ctx context.Context) error
}
