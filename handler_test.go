package ws2mongo

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrettyPrintHandler(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		want    string
		wantErr error
	}{
		{
			name: "text object",
			msg:  NewTextMessage(`{"type":"subscribe","symbol":"BTCUSD"}`),
			want: "Text: {\n  \"type\": \"subscribe\",\n  \"symbol\": \"BTCUSD\"\n}\n",
		},
		{
			name: "binary array",
			msg:  NewBinaryMessage([]byte(`[1,2]`)),
			want: "Binary: [\n  1,\n  2\n]\n",
		},
		{
			name: "ping",
			msg:  NewPingMessage([]byte{1, 2}),
			want: "Ping: [1 2]\n",
		},
		{
			name: "pong",
			msg:  NewPongMessage(nil),
			want: "Pong: []\n",
		},
		{
			name: "close with details",
			msg:  NewCloseMessage(1001, "going away"),
			want: "Close: code=1001, reason=going away\n",
		},
		{
			name: "close without details",
			msg:  NewCloseMessage(0, ""),
			want: "Close: no details\n",
		},
		{
			name:    "malformed",
			msg:     NewTextMessage("not json"),
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "unknown frame",
			msg:     NewMessage(MessageType(7), nil),
			wantErr: ErrUnsupportedMessageFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := PrettyPrintHandler(&buf).HandleMessage(context.Background(), tt.msg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, buf.String())
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestMessageString(t *testing.T) {
	assert.Equal(t, "Message{type=text,data=hi}", NewTextMessage("hi").String())
	assert.Equal(t, "Message{type=close}", NewCloseMessage(0, "").String())
	assert.Equal(t, "Message{type=close,code=1000,reason=bye}", NewCloseMessage(1000, "bye").String())
	assert.Equal(t, "unknown(7)", MessageType(7).String())
	assert.True(t, BinaryMessage.IsData())
	assert.False(t, PingMessage.IsData())
}
