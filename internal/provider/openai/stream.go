package openai

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/openai/openai-go/packages/ssestream"
	"github.com/tidwall/gjson"

	"github.com/davidbz/livegpt/internal/domain"
)

// frameStream adapts an SSE decoder to domain.FrameStream.
type frameStream struct {
	decoder   ssestream.Decoder
	current   domain.Frame
	closeOnce sync.Once
	closeErr  error
}

func newFrameStream(resp *http.Response) *frameStream {
	return &frameStream{decoder: ssestream.NewDecoder(resp)}
}

// Next advances to the next non-empty frame.
func (f *frameStream) Next() bool {
	if f.decoder == nil {
		return false
	}

	for f.decoder.Next() {
		event := f.decoder.Event()
		data := strings.TrimRight(string(event.Data), "\n")
		if data == "" && event.Type == "" {
			continue
		}

		f.current = domain.Frame{Event: frameEventType(event.Type, data), Data: data}
		return true
	}

	return false
}

func (f *frameStream) Frame() domain.Frame {
	return f.current
}

func (f *frameStream) Err() error {
	if f.decoder == nil {
		return nil
	}
	if err := f.decoder.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (f *frameStream) Close() error {
	f.closeOnce.Do(func() {
		if f.decoder != nil {
			f.closeErr = f.decoder.Close()
		}
	})
	return f.closeErr
}

// frameEventType flags in-band error objects, which OpenAI sends as ordinary
// data frames without choices, so the session treats them as transport errors.
func frameEventType(eventType, data string) string {
	if eventType != "" {
		return eventType
	}
	if gjson.Get(data, "error").IsObject() && !gjson.Get(data, "choices").Exists() {
		return domain.FrameEventError
	}
	return ""
}
