// services/market-stream/internal/sink/sink_test.go
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	commonkafka "github.com/Muritor08/TB-WSS/common/kafka"
	"github.com/Muritor08/TB-WSS/common/logger"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/frame"
)

func TestBuffer_TrailingWindow(t *testing.T) {
	b := NewBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Append(fmt.Sprintf("line %d", i))
	}
	got := b.Lines()
	want := []string{"line 3", "line 4", "line 5"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Lines() = %v, want %v", got, want)
	}
	if n := len(NewBuffer(0).lines); n != DefaultBufferLines {
		t.Errorf("default window = %d, want %d", n, DefaultBufferLines)
	}
}

func TestBuffer_Subscribe(t *testing.T) {
	b := NewBuffer(10)
	ch, cancel := b.Subscribe(1)

	b.Emit(Event{Time: time.Date(2024, 1, 1, 9, 15, 0, 0, time.UTC), Message: "Connected"})
	b.Append("dropped for slow subscriber")

	if got := <-ch; got != "09:15:00 Connected" {
		t.Errorf("got %q", got)
	}
	select {
	case extra := <-ch:
		t.Errorf("slow subscriber should have lost the second line, got %q", extra)
	default:
	}

	cancel()
	cancel() // повторная отписка безопасна
	b.Append("after cancel")
	select {
	case got := <-ch:
		t.Errorf("unexpected line after cancel: %q", got)
	default:
	}
	if n := len(b.Lines()); n != 3 {
		t.Errorf("window holds %d lines, want 3", n)
	}
}

func TestFanout(t *testing.T) {
	var a, b []Kind
	f := Fanout{
		Func(func(ev Event) { a = append(a, ev.Kind) }),
		Func(func(ev Event) { b = append(b, ev.Kind) }),
	}
	f.Emit(Event{Kind: KindIdle})
	if len(a) != 1 || len(b) != 1 || a[0] != KindIdle {
		t.Errorf("fanout delivered a=%v b=%v", a, b)
	}
}

func TestAsync_FiltersAndDelivers(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []Kind
	)
	done := make(chan struct{}, 8)
	h := HandlerFunc(func(_ context.Context, ev Event) error {
		mu.Lock()
		seen = append(seen, ev.Kind)
		mu.Unlock()
		done <- struct{}{}
		if ev.Message == "fail" {
			return errors.New("downstream down")
		}
		return nil
	})

	a := NewAsync("test", h, 4, logger.Nop(), KindRecord)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	a.Emit(Event{Kind: KindConnection})
	a.Emit(Event{Kind: KindRecord, Message: "fail"})
	a.Emit(Event{Kind: KindRecord})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("handler not called")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != KindRecord || seen[1] != KindRecord {
		t.Errorf("seen = %v, want two records", seen)
	}
}

func TestAsync_DropsWhenFull(t *testing.T) {
	var calls int
	a := NewAsync("full", HandlerFunc(func(context.Context, Event) error { calls++; return nil }), 2, logger.Nop())
	for i := 0; i < 5; i++ {
		a.Emit(Event{Kind: KindRecord})
	}
	if len(a.q) != 2 {
		t.Errorf("queue len = %d, want 2", len(a.q))
	}
	if calls != 0 {
		t.Error("handler must not run before Run")
	}
}

type fakeProducer struct {
	msgs []commonkafka.Message
}

func (f *fakeProducer) Publish(_ context.Context, msg commonkafka.Message) error {
	f.msgs = append(f.msgs, msg)
	return nil
}
func (f *fakeProducer) Ping(context.Context) error { return nil }
func (f *fakeProducer) Close() error               { return nil }

func TestKafka_PublishesRecords(t *testing.T) {
	prod := &fakeProducer{}
	k := NewKafka(prod, "quotes")
	rec := frame.Record{
		PacketType: 49,
		Name:       "quote",
		Fields:     map[string]any{"symbol": "SBIN-EQ", "ltp": "812.40", "vol": int64(1200)},
	}
	at := time.Date(2024, 6, 10, 9, 15, 0, 0, time.UTC)

	if err := k.Handle(context.Background(), Event{Kind: KindConnection}); err != nil {
		t.Fatal(err)
	}
	if err := k.Handle(context.Background(), Event{Kind: KindRecord, Record: &rec, Time: at, SessionID: "s-1"}); err != nil {
		t.Fatal(err)
	}
	if len(prod.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(prod.msgs))
	}
	msg := prod.msgs[0]
	if msg.Topic != "quotes" || string(msg.Key) != "SBIN-EQ" || string(msg.Headers["packet_type"]) != "49" {
		t.Errorf("unexpected message envelope: %+v", msg)
	}

	var s structpb.Struct
	if err := proto.Unmarshal(msg.Value, &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m := s.AsMap()
	if m["ltp"] != "812.40" || m["vol"] != float64(1200) || m["session_id"] != "s-1" {
		t.Errorf("unexpected payload: %v", m)
	}
	if m["received_at"] != "2024-06-10T09:15:00Z" {
		t.Errorf("received_at = %v", m["received_at"])
	}
}
