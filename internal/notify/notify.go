// Package notify tells the operator that the intercom rang.
//
// A [Notifier] delivers a [Message] (text plus an optional camera snapshot)
// over one channel. [Group] chains several notifiers behind per-notifier
// circuit breakers and stops at the first one that succeeds.
package notify

import (
	"context"
	"strings"

	"github.com/MrWong99/ringwatch/internal/camera"
)

// DefaultTemplate is the message sent when none is configured.
const DefaultTemplate = "Intercom rang just now. Unlock code {otp}: {url}"

// Message is one notification.
type Message struct {
	Text  string
	Image camera.Image
}

// Notifier delivers messages over one channel.
type Notifier interface {
	// Name identifies the notifier in logs and metrics.
	Name() string

	// Notify delivers msg. It must respect ctx cancellation.
	Notify(ctx context.Context, msg Message) error
}

// Render substitutes {otp} and {url} in tmpl. The url gets an otp query
// parameter appended when baseURL is non-empty.
func Render(tmpl, code, baseURL string) string {
	if tmpl == "" {
		tmpl = DefaultTemplate
	}
	url := ""
	if baseURL != "" {
		sep := "?"
		if strings.Contains(baseURL, "?") {
			sep = "&"
		}
		url = baseURL + sep + "otp=" + code
	}
	return strings.NewReplacer("{otp}", code, "{url}", url).Replace(tmpl)
}
