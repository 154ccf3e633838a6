package email

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/quotedprintable"
	"strings"
	"testing"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/deusflow/ainews/internal/metrics"
	"github.com/deusflow/ainews/internal/retry"
)

func TestToken(t *testing.T) {
	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog")
	got := Token("key", "The quick brown fox jumps over the lazy dog")
	want := "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if got != want {
		t.Errorf("Token = %s, want %s", got, want)
	}
	if Token("a", "x@y.z") == Token("b", "x@y.z") {
		t.Error("token should depend on the secret")
	}
}

func TestUnsubscribeLink(t *testing.T) {
	link := UnsubscribeLink("https://example.com/unsubscribe", "s3cret", "alice+news@example.com")
	want := "https://example.com/unsubscribe?email=alice%2Bnews%40example.com&token=" + Token("s3cret", "alice+news@example.com")
	if link != want {
		t.Errorf("got %s\nwant %s", link, want)
	}

	if got := UnsubscribeLink("https://x.io/u?list=ai", "k", "a@b.c"); !strings.HasPrefix(got, "https://x.io/u?list=ai&email=") {
		t.Errorf("existing query not extended: %s", got)
	}
	if UnsubscribeLink("", "k", "a@b.c") != "" || UnsubscribeLink("https://x.io", "", "a@b.c") != "" {
		t.Error("link needs both base and secret")
	}
}

func TestSubject(t *testing.T) {
	day := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	if got := Subject("[AI]", day); got != "[AI] News Report - 2025-06-02" {
		t.Errorf("unexpected %q", got)
	}
	if got := Subject("", day); got != "News Report - 2025-06-02" {
		t.Errorf("unexpected %q", got)
	}
}

func TestBody(t *testing.T) {
	fragment := Body("<h2>Latest</h2><ul></ul>", "https://x.io/u?email=a&token=t")
	if !strings.Contains(fragment, "<h2>Latest</h2><ul></ul>") || !strings.HasSuffix(fragment, "</body></html>") {
		t.Errorf("fragment not wrapped: %s", fragment)
	}
	if !strings.Contains(fragment, `href="https://x.io/u?email=a&amp;token=t"`) {
		t.Errorf("unsubscribe link missing or unescaped: %s", fragment)
	}

	doc := "<!DOCTYPE html><html><body><h1>AI Daily Report</h1></BODY></html>"
	got := Body(doc, "https://x.io/u")
	if !strings.HasPrefix(got, "<!DOCTYPE html><html><body><h1>AI Daily Report</h1><div") ||
		!strings.HasSuffix(got, "</div></BODY></html>") {
		t.Errorf("footer not inserted before </body>: %s", got)
	}

	if strings.Contains(Body("x", ""), "Unsubscribe") {
		t.Error("no footer expected without a link")
	}
}

func render(t *testing.T, m *mail.Msg) []byte {
	t.Helper()
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestBuildMessage(t *testing.T) {
	now := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	body := strings.Repeat("<p>long line é</p>", 100)
	m, err := BuildMessage("AI News <news@example.com>", "bob@example.com", "[AI] News Report - 2025-06-02", body, "https://x.io/u", now)
	if err != nil {
		t.Fatal(err)
	}

	head, encoded, ok := strings.Cut(string(render(t, m)), "\r\n\r\n")
	if !ok {
		t.Fatal("missing header/body separator")
	}
	for _, want := range []string{
		"news@example.com>\r\n",
		"To: <bob@example.com>\r\n",
		"Subject: [AI] News Report - 2025-06-02\r\n",
		"Content-Type: text/html; charset=UTF-8",
		"Content-Transfer-Encoding: quoted-printable\r\n",
		"List-Unsubscribe: <https://x.io/u>\r\n",
		"Date: Mon, 02 Jun 2025 08:00:00 +0000\r\n",
		"@example.com>\r\n",
	} {
		if !strings.Contains(head+"\r\n", want) {
			t.Errorf("header %q missing in:\n%s", want, head)
		}
	}

	for _, line := range strings.Split(encoded, "\r\n") {
		if len(line) > 76 {
			t.Fatalf("encoded line too long (%d)", len(line))
		}
	}
	decoded, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(encoded)))
	if err != nil {
		t.Fatal(err)
	}
	if string(decoded) != body {
		t.Error("body does not round-trip through quoted-printable")
	}
}

func TestBuildMessageRejectsBadAddress(t *testing.T) {
	if _, err := BuildMessage("news@example.com", "not an address", "s", "b", "", time.Now()); err == nil {
		t.Error("expected an error for an invalid recipient")
	}
}

type fakeTransport struct {
	sent   map[string][]byte
	fail   map[string]int // remaining failures per recipient
	calls  int
	closed bool
}

func (f *fakeTransport) Send(m *mail.Msg) error {
	f.calls++
	to := m.GetTo()[0].Address
	if f.fail[to] > 0 {
		f.fail[to]--
		return errors.New("451 try again")
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return err
	}
	f.sent[to] = buf.Bytes()
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func newTestSender(ft *fakeTransport, m *metrics.Metrics) *Sender {
	s := NewSender(Config{
		Username:       "u",
		Password:       "p",
		From:           "news@example.com",
		SubjectPrefix:  "[AI]",
		UnsubscribeURL: "https://example.com/unsubscribe",
		SecretKey:      "k",
	})
	s.dial = func(context.Context, Config) (transport, error) { return ft, nil }
	s.retry = retry.RetryConfig{MaxAttempts: 2}
	s.now = func() time.Time { return time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC) }
	s.metrics = m
	s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	return s
}

func TestSenderPersonalisesAndRetries(t *testing.T) {
	ft := &fakeTransport{
		sent: map[string][]byte{},
		fail: map[string]int{"b@example.com": 1, "c@example.com": 5},
	}
	m := metrics.New()
	s := newTestSender(ft, m)

	n, err := s.Send(context.Background(), "<p>report</p>", []string{"a@example.com", "b@example.com", "c@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 delivered, got %d", n)
	}
	if ft.calls != 5 {
		t.Errorf("expected 5 transport calls (1 + 2 + 2), got %d", ft.calls)
	}
	if !ft.closed {
		t.Error("session not closed")
	}
	if got := m.GetStats()["emails_sent"]; got != int64(2) {
		t.Errorf("emails_sent = %v", got)
	}

	decoded := decodeBody(t, ft.sent["a@example.com"])
	if !bytes.Contains(decoded, []byte("token="+Token("k", "a@example.com"))) {
		t.Error("message for a@ lacks its own token")
	}
	if bytes.Contains(decoded, []byte(Token("k", "b@example.com"))) {
		t.Error("message for a@ carries b@'s token")
	}
}

func decodeBody(t *testing.T, msg []byte) []byte {
	t.Helper()
	_, body, ok := bytes.Cut(msg, []byte("\r\n\r\n"))
	if !ok {
		t.Fatal("missing header/body separator")
	}
	decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(body)))
	if err != nil {
		t.Fatal(err)
	}
	return decoded
}

func TestSenderErrors(t *testing.T) {
	ft := &fakeTransport{sent: map[string][]byte{}, fail: map[string]int{"a@example.com": 9}}
	s := newTestSender(ft, metrics.New())

	if _, err := s.Send(context.Background(), "r", nil); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("expected ErrNoRecipients, got %v", err)
	}
	if _, err := s.Send(context.Background(), "r", []string{"a@example.com"}); err == nil {
		t.Error("expected an error when nothing was delivered")
	}

	s.cfg.Password = ""
	if _, err := s.Send(context.Background(), "r", []string{"x@example.com"}); err == nil {
		t.Error("expected an error without credentials")
	}
}
