// common/kafka/producer/producer_test.go
package producer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/Muritor08/TB-WSS/common/backoff"
	commonkafka "github.com/Muritor08/TB-WSS/common/kafka"
	"github.com/Muritor08/TB-WSS/common/logger"
)

func TestPublish_SendsKeyValueHeaders(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		if m.Topic != "quotes" {
			return errors.New("wrong topic " + m.Topic)
		}
		key, _ := m.Key.Encode()
		if string(key) != "RELIANCE" {
			return errors.New("wrong key " + string(key))
		}
		if len(m.Headers) != 1 || string(m.Headers[0].Key) != "packet_type" || string(m.Headers[0].Value) != "49" {
			return errors.New("unexpected headers")
		}
		return nil
	})

	p := Wrap(sp, backoff.Config{MaxAttempts: 1}, logger.Nop())
	err := p.Publish(context.Background(), commonkafka.Message{
		Topic:   "quotes",
		Key:     []byte("RELIANCE"),
		Value:   []byte("payload"),
		Headers: map[string][]byte{"packet_type": []byte("49")},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublish_RetriesThenFails(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := Wrap(sp, backoff.Config{InitialInterval: time.Millisecond, Constant: true, MaxAttempts: 2}, logger.Nop())
	err := p.Publish(context.Background(), commonkafka.Message{Topic: "quotes", Value: []byte("x")})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected ErrOutOfBrokers, got %v", err)
	}
	_ = p.Close()
}

func TestBuildSaramaConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{RequiredAcks: "all", Compression: "none"}, false},
		{"leader+zstd", Config{RequiredAcks: "leader", Compression: "zstd"}, false},
		{"bad acks", Config{RequiredAcks: "some", Compression: "none"}, true},
		{"bad compression", Config{RequiredAcks: "all", Compression: "brotli"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sc, err := buildSaramaConfig(tc.cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil {
				if verr := sc.Validate(); verr != nil {
					t.Errorf("sarama config invalid: %v", verr)
				}
			}
		})
	}
}

func TestNew_RequiresBrokers(t *testing.T) {
	if _, err := New(context.Background(), Config{}, logger.Nop()); err == nil {
		t.Fatal("expected error without brokers")
	}
}
