package ws2mongo

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
)

const controlWriteWait = time.Second

type (
	ErrAdapter func(*websocket.Conn, *http.Response, error) error

	ErrorAdapters struct {
		OnDial ErrAdapter
	}

	// WsConnection is a Connection over a websocket. Control frames seen while reading are
	// queued and handed out by Read in arrival order, ahead of the data frame that
	// followed them.
	WsConnection struct {
		logger    logger
		conn      *websocket.Conn
		pending   []Message
		readErr   error
		closeOnce sync.Once
	}
)

// NewWebsocketFactory returns a ConnectionFactory dialing with dialer. Secure endpoints
// get a TLS config when the dialer has none.
func NewWebsocketFactory(
	logger logger,
	dialer *websocket.Dialer,
	errorHandlers ErrorAdapters,
) ConnectionFactory {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	return func(ctx context.Context, p OpenConnectionParams) (Connection, error) {
		d := *dialer
		if p.Secure && d.TLSClientConfig == nil {
			d.TLSClientConfig = &tls.Config{
				MinVersion: tls.VersionTLS12,
				ServerName: p.URL.Hostname(),
			}
		}

		conn, resp, err := d.DialContext(ctx, p.URL.String(), p.Header)
		if err = handleDialError(errorHandlers, conn, resp, err); err != nil {
			logger.Errorf("connection err to %s: %s", p.URL.String(), err)
			return nil, err
		}

		logger.Debugf("success opening connection to %s", p.URL.String())

		return newWebsocketConnection(logger, conn), nil
	}
}

func newWebsocketConnection(logger logger, conn *websocket.Conn) *WsConnection {
	w := &WsConnection{
		conn:   conn,
		logger: logger.WithField("net", "ws_connection"),
	}

	// Handlers run on the reading goroutine, inside ReadMessage.
	conn.SetPingHandler(func(appData string) error {
		w.logger.Debugln("<= [PING]")
		w.pending = append(w.pending, NewPingMessage([]byte(appData)))
		// The peer expects a pong; keep answering it at this layer.
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(controlWriteWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		if e, ok := err.(net.Error); ok && e.Timeout() {
			return nil
		}
		return err
	})

	conn.SetPongHandler(func(appData string) error {
		w.logger.Debugln("<= [PONG]")
		w.pending = append(w.pending, NewPongMessage([]byte(appData)))
		return nil
	})

	conn.SetCloseHandler(func(code int, text string) error {
		w.logger.Debugf("<= [CLOSE] code=%d reason=%s", code, text)
		if code == websocket.CloseNoStatusReceived {
			w.pending = append(w.pending, NewCloseMessage(0, ""))
		} else {
			w.pending = append(w.pending, NewCloseMessage(code, text))
		}
		reply := websocket.FormatCloseMessage(code, "")
		if code == websocket.CloseNoStatusReceived {
			reply = websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		}
		_ = conn.WriteControl(websocket.CloseMessage, reply, time.Now().Add(controlWriteWait))
		return nil
	})

	return w
}

// Read returns the next inbound frame.
func (w *WsConnection) Read(_ context.Context) (Message, error) {
	if m, ok := w.popPending(); ok {
		return m, nil
	}
	if w.readErr != nil {
		return nil, w.readErr
	}

	messageType, bts, err := w.conn.ReadMessage()
	if err != nil {
		w.readErr = classifyReadError(err)
		w.logger.Debugf("websocket read ended: %s", err)
		if m, ok := w.popPending(); ok {
			return m, nil
		}
		return nil, w.readErr
	}

	// message types from ReadMessage are either binary or text
	switch messageType {
	case websocket.BinaryMessage:
		w.logger.Debugln("<= [BIN]")
		w.pending = append(w.pending, NewBinaryMessage(bts))
	default:
		w.logger.Debugf("<= [TEXT] %s", bts)
		w.pending = append(w.pending, NewMessage(TextMessage, bts))
	}

	m, _ := w.popPending()
	return m, nil
}

// Write sends a single frame.
func (w *WsConnection) Write(m Message) error {
	var (
		err      error
		deadline = time.Now().Add(controlWriteWait)
	)

	switch m.Type() {
	case TextMessage:
		w.logger.Debugf("=> [TEXT] %s", m.Data())
		err = w.conn.WriteMessage(websocket.TextMessage, m.Data())
	case BinaryMessage:
		w.logger.Debugln("=> [BIN]")
		err = w.conn.WriteMessage(websocket.BinaryMessage, m.Data())
	case PingMessage:
		w.logger.Debugln("=> [PING]")
		err = w.conn.WriteControl(websocket.PingMessage, m.Data(), deadline)
	case PongMessage:
		w.logger.Debugln("=> [PONG]")
		err = w.conn.WriteControl(websocket.PongMessage, m.Data(), deadline)
	case CloseMessage:
		w.logger.Debugln("=> [CLOSE]")
		payload := []byte{}
		if cf, ok := m.(CloseFrame); ok && cf.HasDetails() {
			payload = websocket.FormatCloseMessage(cf.Code(), cf.Reason())
		}
		err = w.conn.WriteControl(websocket.CloseMessage, payload, deadline)
	default:
		return errors.Wrapf(ErrUnsupportedMessageFormat, "cannot write %s frame", m.Type())
	}

	if err != nil {
		if websocket.IsCloseError(err,
			websocket.CloseGoingAway,
			websocket.CloseAbnormalClosure,
		) {
			return ErrConnectionClosed
		}
		return errors.Wrap(ErrConnectionClosed, err.Error())
	}

	return nil
}

// Close terminates the WebSocket connection. Safe to call more than once.
func (w *WsConnection) Close() (err error) {
	w.closeOnce.Do(func() {
		err = w.conn.Close()
	})
	return
}

func (w *WsConnection) popPending() (Message, bool) {
	if len(w.pending) == 0 {
		return nil, false
	}
	m := w.pending[0]
	w.pending[0] = nil
	w.pending = w.pending[1:]
	return m, true
}

func classifyReadError(err error) error {
	if errors.Is(err, io.EOF) || websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return errors.Wrap(ErrNoMessage, err.Error())
	}
	return errors.Wrap(ErrConnectionClosed, "error occurred on websocket read: "+err.Error())
}

func handleDialError(adapters ErrorAdapters, conn *websocket.Conn, resp *http.Response, err error) error {
	if adapters.OnDial != nil {
		return adapters.OnDial(conn, resp, err)
	}

	if err == nil {
		return nil
	}

	// 1. Check HTTP errors first
	if resp != nil {
		var msg string
		if resp.Body != nil {
			bts, rerr := io.ReadAll(resp.Body)
			if rerr == nil {
				msg = string(bts)
			}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return errors.Wrap(ErrRateLimit, msg)
		}
		return errors.Wrapf(ErrCannotConnect, "handshake rejected with status %d: %s", resp.StatusCode, msg)
	}

	// 2. Network errors
	return errors.Wrap(ErrCannotConnect, err.Error())
}
