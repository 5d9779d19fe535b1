package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyiku/textcaptcha/internal/testutil"
)

func TestPingHandler_Handle(t *testing.T) {
	tests := []struct {
		name        string
		message     string
		wantHandled bool
	}{
		{name: "正常系: ping", message: `{"type":"ping"}`, wantHandled: true},
		{name: "正常系: 余分なフィールド付きのping", message: `{"type":"ping","seq":3}`, wantHandled: true},
		{name: "異常系: pong", message: `{"type":"pong"}`},
		{name: "異常系: typeなし", message: `{"data":"test"}`},
		{name: "異常系: typeが文字列でない", message: `{"type":1}`},
		{name: "異常系: 不正なJSON", message: `invalid json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := testutil.NewMockWebSocketConn()
			handler := NewPingHandler(conn)

			handled := handler.Handle([]byte(tt.message))

			assert.Equal(t, tt.wantHandled, handled)
			assert.Equal(t, tt.wantHandled, IsPingMessage([]byte(tt.message)))
			if !tt.wantHandled {
				assert.Empty(t, conn.GetMessages())
				return
			}
			require.Len(t, conn.GetMessages(), 1)
			assert.Equal(t, "pong", conn.GetLastMessageAsMap()["type"])
			assert.False(t, conn.IsClosed)
		})
	}
}

func TestPingHandler_ViaDatasetStream(t *testing.T) {
	conn := testutil.NewMockWebSocketConn()
	defer conn.Close()
	stream := NewDatasetStream(conn, slowGenerator{}, fixedWords{text: "ABCD"})

	handled := NewPingHandler(stream).Handle([]byte(`{"type":"ping"}`))

	assert.True(t, handled)
	assert.Equal(t, "pong", conn.GetLastMessageAsMap()["type"])
}

func TestDatasetStream_AnswersPingsWhileStreaming(t *testing.T) {
	conn := testutil.NewMockWebSocketConn()
	defer conn.Close()
	for _, msg := range []string{
		`{"type":"ping"}`,
		`{"type":"hello"}`,
		`garbage`,
		`{"type":"ping"}`,
		`{"type":"ping"}`,
	} {
		conn.ReadChan <- []byte(msg)
	}
	stream := NewDatasetStream(conn, slowGenerator{delay: 5 * time.Millisecond}, fixedWords{text: "ABCD"})

	require.NoError(t, stream.Run(context.Background(), 5, 4))

	var msgs []map[string]interface{}
	err := testutil.WaitFor(time.Second, 10*time.Millisecond, func() bool {
		msgs = testutil.WaitForMessages(conn, 9, 10*time.Millisecond)
		return len(messagesOfType(msgs, "pong")) == 3
	})
	require.NoError(t, err)
	assert.Len(t, msgs, 9)
	assert.Len(t, messagesOfType(msgs, "sample"), 5)
	assert.Len(t, messagesOfType(msgs, "done"), 1)
	assert.False(t, conn.IsClosed)
}
