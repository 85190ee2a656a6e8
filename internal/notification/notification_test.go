package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

type recordingNotifier struct {
	mu    sync.Mutex
	msgs  []Message
	fails int
}

func (r *recordingNotifier) Notify(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return errors.New("smtp unavailable")
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestAsync_DeliversAfterRequestContextCancelled(t *testing.T) {
	rec := &recordingNotifier{}
	a := NewAsync(rec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Notify(ctx, Message{Kind: KindOrderPaid, To: []string{"a@example.com"}}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	cancel()

	closeCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	if err := a.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("delivered = %d, want 1", rec.count())
	}
}

func TestAsync_SkipsMessagesWithoutRecipients(t *testing.T) {
	rec := &recordingNotifier{}
	a := NewAsync(rec, nil)
	_ = a.Notify(context.Background(), Message{Kind: KindBookingInbox})
	_ = a.Close(context.Background())
	if rec.count() != 0 {
		t.Errorf("delivered = %d, want 0", rec.count())
	}
}

func TestAsync_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	a := NewAsync(&recordingNotifier{fails: 1}, zap.New(core))
	_ = a.Notify(context.Background(), Message{Kind: KindOrderPaid, TenantID: "t1", To: []string{"a@example.com"}})
	_ = a.Close(context.Background())

	if logs.FilterMessage("notification: async send failed").Len() != 1 {
		t.Errorf("expected one failure log, got %v", logs.All())
	}
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := LogNotifier{Log: zap.New(core)}
	if err := n.Notify(context.Background(), Message{Kind: KindOrderPaid, To: []string{"a@example.com", "b@example.com"}, Subject: "Receipt"}); err != nil {
		t.Fatal(err)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["to"]; got != "a@example.com,b@example.com" {
		t.Errorf("to = %v", got)
	}
}

func TestSMTPMailer_Message(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "localhost", From: "shop@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	m.now = func() time.Time { return time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) }

	msg, err := m.newMsg(Message{To: []string{"a@example.com", "b@example.com"}, Subject: "Receipt RCP-2026-000001", Body: "line1\nline2"})
	if err != nil {
		t.Fatalf("newMsg: %v", err)
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	raw := buf.String()
	for _, want := range []string{
		"From: <shop@example.com>",
		"To: <a@example.com>, <b@example.com>",
		"Subject: Receipt RCP-2026-000001",
		"Date: Wed, 04 Mar 2026 10:00:00 +0000",
		"Message-ID: <",
		"line1",
		"line2",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("message missing %q:\n%s", want, raw)
		}
	}
	if !strings.Contains(strings.ToLower(raw), "content-type: text/plain; charset=utf-8") {
		t.Errorf("message is not utf-8 text/plain:\n%s", raw)
	}
}

func TestSMTPMailer_RejectsBadAddresses(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "localhost", From: "shop@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.newMsg(Message{To: []string{"not an address"}, Subject: "x"}); err == nil {
		t.Error("expected error for malformed recipient")
	}
	bad, err := NewSMTPMailer(SMTPConfig{Host: "localhost", From: "nobody"})
	if err != nil {
		t.Fatal(err)
	}
	if err := bad.Notify(context.Background(), Message{To: []string{"a@example.com"}}); err == nil {
		t.Error("expected error for malformed sender")
	}
}

func TestSMTPMailer_NotifyReportsUnreachableRelay(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	m, err := NewSMTPMailer(SMTPConfig{Host: "127.0.0.1", Port: port, From: "shop@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Notify(ctx, Message{To: []string{"a@example.com"}, Subject: "x", Body: "y"}); err == nil {
		t.Error("expected a send error with no relay listening")
	}
	if err := m.Notify(ctx, Message{Subject: "no recipients"}); err != nil {
		t.Errorf("message without recipients: %v", err)
	}
}

func TestNewSMTPMailer_RequiresHostAndFrom(t *testing.T) {
	if _, err := NewSMTPMailer(SMTPConfig{From: "a@example.com"}); err == nil {
		t.Error("expected error without host")
	}
	m, err := NewSMTPMailer(SMTPConfig{Host: "localhost", From: "a@example.com", User: "u", Pass: "p"})
	if err != nil {
		t.Fatal(err)
	}
	if m.cfg.Port != 587 {
		t.Errorf("Port = %d, want 587", m.cfg.Port)
	}
}

func TestTemplates(t *testing.T) {
	if got := FormatMinor(1000, "gbp"); got != "10.00 GBP" {
		t.Errorf("FormatMinor = %q", got)
	}
	if got := FormatMinor(250005, "GBP"); got != "2500.05 GBP" {
		t.Errorf("FormatMinor = %q", got)
	}

	paid := OrderPaid("t1", "a@example.com", "ORD-20260304-AB12", "RCP-2026-000001", 1000, "GBP")
	if paid.Kind != KindOrderPaid || !strings.Contains(paid.Body, "10.00 GBP") || paid.To[0] != "a@example.com" {
		t.Errorf("OrderPaid = %+v", paid)
	}

	d := BookingDetails{TenantID: "t1", BkgRef: "BKG-AB12CD34", FullName: "Ada", Email: "ada@example.com", ServiceName: "Managed Release", PreferredDate: "2026-04-01"}
	if m := BookingInbox("", d); len(m.To) != 0 {
		t.Errorf("inbox without address should have no recipients, got %v", m.To)
	}
	if m := BookingInbox("bookings@example.com", d); m.To[0] != "bookings@example.com" || !strings.Contains(m.Subject, "Managed Release") {
		t.Errorf("BookingInbox = %+v", m)
	}
	if m := BookingCustomer(d); m.To[0] != "ada@example.com" || !strings.Contains(m.Body, "BKG-AB12CD34") {
		t.Errorf("BookingCustomer = %+v", m)
	}
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return kafka.Message{}, context.Canceled
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func TestConsume(t *testing.T) {
	good, _ := json.Marshal(Message{Kind: KindOrderPaid, TenantID: "t1", To: []string{"a@example.com"}})
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: good},
		{Offset: 2, Value: []byte("not json")},
		{Offset: 3, Value: good},
	}}
	sink := &recordingNotifier{fails: 1}

	if err := Consume(context.Background(), r, sink, nil); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if sink.count() != 2 {
		t.Errorf("delivered = %d, want 2", sink.count())
	}
	if len(r.committed) != 3 {
		t.Errorf("committed = %v, want all three offsets", r.committed)
	}
}

func TestNewKafkaPublisher_NilWithoutBrokers(t *testing.T) {
	if NewKafkaPublisher(nil, "notifications") != nil {
		t.Error("expected nil publisher without brokers")
	}
	var p *KafkaPublisher
	if err := p.Notify(context.Background(), Message{}); err != nil {
		t.Errorf("nil publisher Notify = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil publisher Close = %v", err)
	}
}
