package message_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
	"dmchat/internal/metrics"
	"dmchat/internal/pkg/errs"
)

type recordingDeliverer struct {
	mu   sync.Mutex
	msgs []message.Message
}

func (d *recordingDeliverer) Deliver(msg message.Message) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
	return 1
}

func (d *recordingDeliverer) delivered() []message.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]message.Message(nil), d.msgs...)
}

type failingStore struct {
	message.Store
}

func (failingStore) Create(context.Context, message.Message) (message.Message, error) {
	return message.Message{}, errors.New("disk full")
}

type fakeImages struct {
	mu      sync.Mutex
	uploads map[string]int
	deleted []string
	failErr error
}

func (f *fakeImages) Upload(_ context.Context, key, _ string, body io.Reader) error {
	if f.failErr != nil {
		return f.failErr
	}
	data, _ := io.ReadAll(body)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploads == nil {
		f.uploads = make(map[string]int)
	}
	f.uploads[key] = len(data)
	return nil
}

func (f *fakeImages) PublicURL(key string) string { return "https://cdn.test/" + key }

func (f *fakeImages) KeyFromURL(raw string) (string, bool) {
	key, ok := strings.CutPrefix(raw, "https://cdn.test/")
	return key, ok
}

func (f *fakeImages) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

type fixture struct {
	svc       *message.Service
	store     *message.MemoryStore
	users     *user.MemoryStore
	deliverer *recordingDeliverer
	images    *fakeImages
	alice     string
	bob       string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	users := user.NewMemoryStore()

	alice, err := users.Create(ctx, user.NewAccount{Email: "alice@example.com", FullName: "Alice"})
	if err != nil {
		t.Fatalf("Create(alice) error = %v", err)
	}
	bob, err := users.Create(ctx, user.NewAccount{Email: "bob@example.com", FullName: "Bob"})
	if err != nil {
		t.Fatalf("Create(bob) error = %v", err)
	}

	f := &fixture{
		store:     message.NewMemoryStore(),
		users:     users,
		deliverer: &recordingDeliverer{},
		images:    &fakeImages{},
		alice:     alice.ID,
		bob:       bob.ID,
	}
	f.svc = message.NewService(f.store, users, f.images, f.deliverer, nil)
	return f
}

func wantCode(t *testing.T, err error, code int) {
	t.Helper()
	if !errs.Is(err, code) {
		t.Fatalf("error = %v, want code %d", err, code)
	}
}

func TestService_Send_PersistsThenDelivers(t *testing.T) {
	f := newFixture(t)

	msg, err := f.svc.Send(context.Background(), f.alice, message.SendInput{ReceiverID: f.bob, Text: "hi"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Errorf("Send() = %+v, want server-assigned id and timestamp", msg)
	}

	delivered := f.deliverer.delivered()
	if len(delivered) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(delivered))
	}
	if delivered[0] != msg {
		t.Errorf("delivered %+v, want the persisted message %+v", delivered[0], msg)
	}

	stored, err := f.store.Get(context.Background(), msg.ID)
	if err != nil || stored != msg {
		t.Errorf("store.Get() = %+v, %v; want %+v", stored, err, msg)
	}
}

func TestService_Send_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		in   message.SendInput
		code int
	}{
		{"missing receiver", message.SendInput{Text: "hi"}, errs.ErrInvalidParams},
		{"malformed receiver", message.SendInput{ReceiverID: "not-a-uuid", Text: "hi"}, errs.ErrInvalidParams},
		{"self", message.SendInput{ReceiverID: f.alice, Text: "hi"}, errs.ErrInvalidParams},
		{"empty", message.SendInput{ReceiverID: f.bob, Text: "   "}, errs.ErrMessageEmpty},
		{"too long", message.SendInput{ReceiverID: f.bob, Text: strings.Repeat("x", message.MaxContentBytes+1)}, errs.ErrMessageContentTooLong},
		{"unknown receiver", message.SendInput{ReceiverID: "00000000-0000-4000-8000-000000000000", Text: "hi"}, errs.ErrUserNotFound},
		{"bad image", message.SendInput{ReceiverID: f.bob, Image: "ftp://example.com/x.png"}, errs.ErrImageInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Send(context.Background(), f.alice, tt.in)
			wantCode(t, err, tt.code)
		})
	}

	if got := len(f.deliverer.delivered()); got != 0 {
		t.Errorf("deliveries = %d, want 0 after rejected sends", got)
	}
	if msgs, _ := f.store.Thread(context.Background(), f.alice, f.bob); len(msgs) != 0 {
		t.Errorf("stored %d messages, want 0 after rejected sends", len(msgs))
	}
}

func TestService_Send_Blocked(t *testing.T) {
	f := newFixture(t)

	if err := f.users.Block(context.Background(), f.bob, f.alice); err != nil {
		t.Fatalf("Block() error = %v", err)
	}

	_, err := f.svc.Send(context.Background(), f.alice, message.SendInput{ReceiverID: f.bob, Text: "hi"})
	wantCode(t, err, errs.ErrMessagingBlocked)

	_, err = f.svc.Send(context.Background(), f.bob, message.SendInput{ReceiverID: f.alice, Text: "hi"})
	wantCode(t, err, errs.ErrMessagingBlocked)
}

func TestService_Send_PersistenceFailureSkipsDelivery(t *testing.T) {
	f := newFixture(t)
	svc := message.NewService(failingStore{f.store}, f.users, nil, f.deliverer, nil)

	_, err := svc.Send(context.Background(), f.alice, message.SendInput{ReceiverID: f.bob, Text: "hi"})
	wantCode(t, err, errs.ErrPersistenceFailed)

	if got := len(f.deliverer.delivered()); got != 0 {
		t.Errorf("deliveries = %d, want 0 when the write failed", got)
	}
}

func TestService_Send_PersistenceFailureRemovesInlineImage(t *testing.T) {
	f := newFixture(t)
	svc := message.NewService(failingStore{f.store}, f.users, f.images, f.deliverer, nil)

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\nfake"))
	_, err := svc.Send(context.Background(), f.alice, message.SendInput{ReceiverID: f.bob, Image: dataURL})
	wantCode(t, err, errs.ErrPersistenceFailed)

	if len(f.images.uploads) != 1 {
		t.Fatalf("uploads = %v, want one inline upload", f.images.uploads)
	}
	for key := range f.images.uploads {
		if len(f.images.deleted) != 1 || f.images.deleted[0] != key {
			t.Errorf("deleted objects = %v, want [%s]", f.images.deleted, key)
		}
	}
}

func persistedCount(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "dmchat_messages_persisted_total" {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestService_Send_RecordsPersistedMessages(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	recorder := metrics.NewCollector(reg)
	ctx := context.Background()

	svc := message.NewService(f.store, f.users, nil, f.deliverer, recorder)
	if _, err := svc.Send(ctx, f.alice, message.SendInput{ReceiverID: f.bob, Text: "hi"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := persistedCount(t, reg); got != 1 {
		t.Errorf("persisted = %v, want 1", got)
	}

	failing := message.NewService(failingStore{f.store}, f.users, nil, f.deliverer, recorder)
	_, err := failing.Send(ctx, f.alice, message.SendInput{ReceiverID: f.bob, Text: "hi"})
	wantCode(t, err, errs.ErrPersistenceFailed)
	if got := persistedCount(t, reg); got != 1 {
		t.Errorf("persisted after a failed write = %v, want 1", got)
	}
}

func TestService_Send_DeliversInPersistOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := f.svc.Send(ctx, f.alice, message.SendInput{ReceiverID: f.bob, Text: fmt.Sprint(i)}); err != nil {
				t.Errorf("Send(%d) error = %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	stored, err := f.svc.Thread(ctx, f.bob, f.alice)
	if err != nil {
		t.Fatalf("Thread() error = %v", err)
	}
	delivered := f.deliverer.delivered()

	if len(stored) != n || len(delivered) != n {
		t.Fatalf("stored %d, delivered %d; want %d each", len(stored), len(delivered), n)
	}
	for i := range stored {
		if stored[i].ID != delivered[i].ID {
			t.Fatalf("position %d: stored %s, delivered %s", i, stored[i].Text, delivered[i].Text)
		}
	}
}

func TestService_Send_InlineImage(t *testing.T) {
	f := newFixture(t)

	png := []byte("\x89PNG\r\n\x1a\nfake")
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	msg, err := f.svc.Send(context.Background(), f.alice, message.SendInput{ReceiverID: f.bob, Image: dataURL})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	key, ok := f.images.KeyFromURL(msg.Image)
	if !ok || !strings.HasPrefix(key, message.ImageKeyPrefix+"/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("Image = %q, want a public URL for a messages/*.png key", msg.Image)
	}
	if got := f.images.uploads[key]; got != len(png) {
		t.Errorf("uploaded %d bytes, want %d", got, len(png))
	}
}

func TestService_Send_PresignedKey(t *testing.T) {
	f := newFixture(t)

	msg, err := f.svc.Send(context.Background(), f.alice, message.SendInput{ReceiverID: f.bob, Image: "messages/abc.webp"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if want := "https://cdn.test/messages/abc.webp"; msg.Image != want {
		t.Errorf("Image = %q, want %q", msg.Image, want)
	}
}

func TestService_Send_ImageWithoutStorage(t *testing.T) {
	f := newFixture(t)
	svc := message.NewService(f.store, f.users, nil, f.deliverer, nil)

	_, err := svc.Send(context.Background(), f.alice, message.SendInput{ReceiverID: f.bob, Image: "messages/abc.png"})
	wantCode(t, err, errs.ErrImageUploadsDisabled)
}

func TestService_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.Send(ctx, f.alice, message.SendInput{ReceiverID: f.bob, Text: "oops", Image: "messages/x.png"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	wantCode(t, f.svc.Delete(ctx, f.bob, msg.ID), errs.ErrForbidden)

	if err := f.svc.Delete(ctx, f.alice, msg.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(f.images.deleted) != 1 || f.images.deleted[0] != "messages/x.png" {
		t.Errorf("deleted objects = %v, want [messages/x.png]", f.images.deleted)
	}

	wantCode(t, f.svc.Delete(ctx, f.alice, msg.ID), errs.ErrMessageNotFound)
}

func TestService_ClearThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two"} {
		if _, err := f.svc.Send(ctx, f.alice, message.SendInput{ReceiverID: f.bob, Text: text}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	if _, err := f.svc.Send(ctx, f.bob, message.SendInput{ReceiverID: f.alice, Text: "three"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	n, err := f.svc.ClearThread(ctx, f.bob, f.alice)
	if err != nil {
		t.Fatalf("ClearThread() error = %v", err)
	}
	if n != 3 {
		t.Errorf("ClearThread() = %d, want 3", n)
	}

	msgs, err := f.svc.Thread(ctx, f.alice, f.bob)
	if err != nil || len(msgs) != 0 {
		t.Errorf("Thread() = %d messages, %v; want empty", len(msgs), err)
	}
}
