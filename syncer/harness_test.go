package syncer

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/mealgrid/realtime/channel"
	"github.com/mealgrid/realtime/connection"
	"github.com/mealgrid/realtime/scheduler"
	"github.com/mealgrid/realtime/transport"
)

// fakeTransport is the minimal scriptable transport the syncer tests drive:
// deliver pushes provider events in, sentMessages captures published ones.
type fakeTransport struct {
	mu   sync.Mutex
	sent []sentMessage
	subs map[string]*fakeSub

	onOpen  func()
	onClose func(error)
	onError func(error)
	onPong  func()
}

type sentMessage struct {
	channel string
	event   string
	payload []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[string]*fakeSub)}
}

func (f *fakeTransport) Connect() error    { return nil }
func (f *fakeTransport) Disconnect() error { return nil }
func (f *fakeTransport) Ping() error       { return nil }

func (f *fakeTransport) Send(ch, event string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{channel: ch, event: event, payload: payload})
	return nil
}

func (f *fakeTransport) Subscribe(ch string) (transport.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub, ok := f.subs[ch]
	if !ok {
		sub = &fakeSub{channel: ch}
		f.subs[ch] = sub
	}
	return sub, nil
}

func (f *fakeTransport) OnOpen(fn func())       { f.onOpen = fn }
func (f *fakeTransport) OnClose(fn func(error)) { f.onClose = fn }
func (f *fakeTransport) OnError(fn func(error)) { f.onError = fn }
func (f *fakeTransport) OnPong(fn func())       { f.onPong = fn }

func (f *fakeTransport) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

// deliver pushes one provider event to the live channel subscription. The
// payload is marshaled from v.
func (f *fakeTransport) deliver(t *testing.T, ch, event string, v any) {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	f.mu.Lock()
	sub := f.subs[ch]
	f.mu.Unlock()

	if sub == nil || sub.handler == nil {
		t.Fatalf("no live subscription for channel %q", ch)
	}
	sub.handler(event, data)
}

type fakeSub struct {
	channel string
	handler transport.EventHandler
}

func (s *fakeSub) Channel() string                  { return s.channel }
func (s *fakeSub) OnEvent(h transport.EventHandler) { s.handler = h }
func (s *fakeSub) Unsubscribe() error               { return nil }

// newTestRegistry returns a registry bound to a connected fake session.
func newTestRegistry(t *testing.T) (*channel.Registry, *fakeTransport) {
	t.Helper()

	tr := newFakeTransport()
	logger := slog.New(slog.DiscardHandler)
	mgr := connection.NewManager(connection.Config{}, tr, scheduler.NewManual(), logger)
	reg := channel.NewRegistry(mgr, tr, logger)
	t.Cleanup(reg.Close)

	mgr.Connect()
	tr.onOpen()
	return reg, tr
}
