// Package camera grabs a still image of the door when the intercom rings.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single capture.
const DefaultTimeout = 10 * time.Second

// maxImage bounds the accepted image size.
const maxImage = 16 << 20

// ErrNoImage is returned when a capture produced no data.
var ErrNoImage = errors.New("camera: capture produced no image")

// Image is an encoded still image.
type Image struct {
	Data        []byte
	ContentType string
}

// Empty reports whether img holds no data.
func (img Image) Empty() bool { return len(img.Data) == 0 }

// Filename returns a file name with an extension matching the content type.
func (img Image) Filename(base string) string {
	switch img.ContentType {
	case "image/png":
		return base + ".png"
	case "image/gif":
		return base + ".gif"
	default:
		return base + ".jpg"
	}
}

// Snapshotter captures one image.
type Snapshotter interface {
	Snapshot(ctx context.Context) (Image, error)
}

// CommandSnapshotter runs a capture program that writes one encoded image to
// stdout, such as "libcamera-still -n -o -" or "fswebcam -q -".
type CommandSnapshotter struct {
	argv    []string
	timeout time.Duration
}

var _ Snapshotter = (*CommandSnapshotter)(nil)

// NewCommandSnapshotter returns a snapshotter running argv. A non-positive
// timeout selects [DefaultTimeout].
func NewCommandSnapshotter(argv []string, timeout time.Duration) (*CommandSnapshotter, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("camera: command must not be empty")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandSnapshotter{argv: append([]string(nil), argv...), timeout: timeout}, nil
}

// Snapshot implements [Snapshotter].
func (c *CommandSnapshotter) Snapshot(ctx context.Context) (Image, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Stdout = &limitedBuffer{buf: &stdout, max: maxImage}
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Image{}, fmt.Errorf("camera: run %s: %w: %s", c.argv[0], err, msg)
		}
		return Image{}, fmt.Errorf("camera: run %s: %w", c.argv[0], err)
	}
	if stdout.Len() == 0 {
		return Image{}, ErrNoImage
	}
	data := stdout.Bytes()
	return Image{Data: data, ContentType: http.DetectContentType(data)}, nil
}

// Nop never captures anything.
type Nop struct{}

// Snapshot implements [Snapshotter] and returns an empty image.
func (Nop) Snapshot(context.Context) (Image, error) { return Image{}, nil }

// limitedBuffer fails writes past max bytes.
type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.buf.Len()+len(p) > b.max {
		return 0, fmt.Errorf("camera: image exceeds %d bytes", b.max)
	}
	return b.buf.Write(p)
}
