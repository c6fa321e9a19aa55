package notify_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/ringwatch/internal/camera"
	"github.com/MrWong99/ringwatch/internal/notify"
	"github.com/MrWong99/ringwatch/internal/notify/mock"
	"github.com/MrWong99/ringwatch/internal/resilience"
)

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tmpl    string
		code    string
		baseURL string
		want    string
	}{
		{
			name:    "both placeholders",
			tmpl:    "Ring! {otp} {url}",
			code:    "123456",
			baseURL: "https://door.example/unlock",
			want:    "Ring! 123456 https://door.example/unlock?otp=123456",
		},
		{
			name:    "existing query",
			tmpl:    "{url}",
			code:    "000001",
			baseURL: "https://door.example/unlock?lang=de",
			want:    "https://door.example/unlock?lang=de&otp=000001",
		},
		{
			name: "no base url",
			tmpl: "code {otp}{url}",
			code: "42",
			want: "code 42",
		},
		{
			name: "default template",
			code: "999999",
			want: "Intercom rang just now. Unlock code 999999: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := notify.Render(tt.tmpl, tt.code, tt.baseURL); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseWebhookURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw       string
		wantID    string
		wantToken string
		wantErr   bool
	}{
		{raw: "https://discord.com/api/webhooks/123/abc-def", wantID: "123", wantToken: "abc-def"},
		{raw: "https://discord.com/api/v10/webhooks/9/tok/", wantID: "9", wantToken: "tok"},
		{raw: "https://discord.com/api/webhooks/123", wantErr: true},
		{raw: "https://example.com/", wantErr: true},
		{raw: "://bad", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			id, token, err := notify.ParseWebhookURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got id=%q token=%q", id, token)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != tt.wantID || token != tt.wantToken {
				t.Errorf("got (%q, %q), want (%q, %q)", id, token, tt.wantID, tt.wantToken)
			}
		})
	}
}

type webhookCall struct {
	id, token string
	wait      bool
	params    *discordgo.WebhookParams
	file      []byte
}

type fakeWebhook struct {
	calls []webhookCall
	err   error
}

func (f *fakeWebhook) WebhookExecute(id, token string, wait bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	c := webhookCall{id: id, token: token, wait: wait, params: data}
	if len(data.Files) > 0 {
		c.file, _ = io.ReadAll(data.Files[0].Reader)
	}
	f.calls = append(f.calls, c)
	if f.err != nil {
		return nil, f.err
	}
	return &discordgo.Message{ID: "1"}, nil
}

func TestDiscord_Notify(t *testing.T) {
	t.Parallel()

	fake := &fakeWebhook{}
	d, err := notify.NewDiscord("https://discord.com/api/webhooks/42/secret", fake)
	if err != nil {
		t.Fatalf("NewDiscord: %v", err)
	}
	if d.Name() != "discord" {
		t.Errorf("Name() = %q", d.Name())
	}

	img := camera.Image{Data: []byte{0xFF, 0xD8, 0xFF}, ContentType: "image/jpeg"}
	if err := d.Notify(context.Background(), notify.Message{Text: "ring", Image: img}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(fake.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(fake.calls))
	}
	c := fake.calls[0]
	if c.id != "42" || c.token != "secret" || !c.wait {
		t.Errorf("call = (%q, %q, %v)", c.id, c.token, c.wait)
	}
	if c.params.Content != "ring" {
		t.Errorf("content = %q", c.params.Content)
	}
	if len(c.params.Files) != 1 {
		t.Fatalf("files = %d, want 1", len(c.params.Files))
	}
	f := c.params.Files[0]
	if f.Name != "door.jpg" || f.ContentType != "image/jpeg" {
		t.Errorf("file = %q %q", f.Name, f.ContentType)
	}
	if diff := cmp.Diff(img.Data, c.file); diff != "" {
		t.Errorf("file data mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscord_NotifyWithoutImage(t *testing.T) {
	t.Parallel()

	fake := &fakeWebhook{}
	d, err := notify.NewDiscord("https://discord.com/api/webhooks/1/t", fake)
	if err != nil {
		t.Fatalf("NewDiscord: %v", err)
	}
	if err := d.Notify(context.Background(), notify.Message{Text: "ring"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if n := len(fake.calls[0].params.Files); n != 0 {
		t.Errorf("files = %d, want 0", n)
	}
}

func TestDiscord_NotifyError(t *testing.T) {
	t.Parallel()

	boom := errors.New("HTTP 404 Not Found")
	d, err := notify.NewDiscord("https://discord.com/api/webhooks/1/t", &fakeWebhook{err: boom})
	if err != nil {
		t.Fatalf("NewDiscord: %v", err)
	}
	err = d.Notify(context.Background(), notify.Message{Text: "ring"})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapping %v", err, boom)
	}
}

func TestLog_Notify(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := notify.NewLog(slog.New(slog.NewTextHandler(&buf, nil)))
	if err := l.Notify(context.Background(), notify.Message{Text: "code 123456"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !strings.Contains(buf.String(), "code 123456") {
		t.Errorf("log output missing text: %s", buf.String())
	}
}

func breakerConfig() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}
}

func TestGroup_PrimaryDelivers(t *testing.T) {
	t.Parallel()

	primary := &mock.Notifier{NameResult: "discord"}
	fallback := &mock.Notifier{NameResult: "log"}
	g := notify.NewGroup(breakerConfig(), []notify.Notifier{primary, fallback})

	if err := g.Notify(context.Background(), notify.Message{Text: "ring"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if primary.CallCount() != 1 || fallback.CallCount() != 0 {
		t.Errorf("calls = (%d, %d), want (1, 0)", primary.CallCount(), fallback.CallCount())
	}
	if diff := cmp.Diff([]string{"discord", "log"}, g.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}

func TestGroup_FallsBack(t *testing.T) {
	t.Parallel()

	primary := &mock.Notifier{NameResult: "discord", NotifyError: errors.New("down")}
	fallback := &mock.Notifier{NameResult: "log"}
	g := notify.NewGroup(breakerConfig(), []notify.Notifier{primary, fallback})

	for range 3 {
		if err := g.Notify(context.Background(), notify.Message{Text: "ring"}); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	// The breaker opens after the first failure so the primary is skipped.
	if primary.CallCount() != 1 {
		t.Errorf("primary calls = %d, want 1", primary.CallCount())
	}
	if fallback.CallCount() != 3 {
		t.Errorf("fallback calls = %d, want 3", fallback.CallCount())
	}
	if got := g.Breaker("discord").State(); got != resilience.StateOpen {
		t.Errorf("breaker state = %v, want open", got)
	}
}

func TestGroup_AllFail(t *testing.T) {
	t.Parallel()

	a := &mock.Notifier{NameResult: "a", NotifyError: errors.New("a down")}
	b := &mock.Notifier{NameResult: "b", NotifyError: errors.New("b down")}
	g := notify.NewGroup(breakerConfig(), []notify.Notifier{a, b})

	err := g.Notify(context.Background(), notify.Message{Text: "ring"})
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Errorf("error = %v, want ErrAllFailed", err)
	}
}
