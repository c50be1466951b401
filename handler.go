package ws2mongo

import (
	"bytes"
	"context"
	"fmt"
	"io"

	gojson "github.com/goccy/go-json"
	"github.com/pkg/errors"
)

type (
	// MessageHandler processes one inbound frame. Errors are reported to the run loop,
	// which logs them and carries on.
	MessageHandler interface {
		HandleMessage(ctx context.Context, m Message) error
	}

	MessageHandlerFunc func(ctx context.Context, m Message) error
)

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, m Message) error {
	return f(ctx, m)
}

// PrettyPrintHandler writes every frame to w. Payload frames are expected to hold JSON
// and are printed indented; a payload that does not parse is reported as an error.
func PrettyPrintHandler(w io.Writer) MessageHandler {
	return MessageHandlerFunc(func(_ context.Context, m Message) error {
		switch m.Type() {
		case TextMessage, BinaryMessage:
			var out bytes.Buffer
			if err := gojson.Indent(&out, bytes.TrimSpace(m.Data()), "", "  "); err != nil {
				return errors.Wrap(ErrMalformedPayload, err.Error())
			}
			label := "Text"
			if m.Type() == BinaryMessage {
				label = "Binary"
			}
			_, err := fmt.Fprintf(w, "%s: %s\n", label, out.String())
			return err
		case PingMessage:
			_, err := fmt.Fprintf(w, "Ping: %v\n", m.Data())
			return err
		case PongMessage:
			_, err := fmt.Fprintf(w, "Pong: %v\n", m.Data())
			return err
		case CloseMessage:
			_, err := fmt.Fprintln(w, describeClose(m))
			return err
		default:
			return errors.Wrapf(ErrUnsupportedMessageFormat, "received %s frame", m.Type())
		}
	})
}

func describeClose(m Message) string {
	if cf, ok := m.(CloseFrame); ok && cf.HasDetails() {
		return fmt.Sprintf("Close: code=%d, reason=%s", cf.Code(), cf.Reason())
	}
	return "Close: no details"
}
