package websocket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	gws "github.com/gorilla/websocket"

	"github.com/kyiku/textcaptcha/internal/captcha"
	"github.com/kyiku/textcaptcha/internal/util"
)

// ErrClientGone is returned by Run when the peer closed the connection.
var ErrClientGone = errors.New("client disconnected")

// Conn is the subset of a WebSocket connection used by DatasetStream.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v interface{}) error
	Close() error
}

// Generator renders labelled captcha images.
type Generator interface {
	GenerateWithBoundingBoxes(text string, opts ...captcha.ColorOption) (*image.NRGBA, []captcha.BoundingBox, error)
	Encode(w io.Writer, img image.Image) error
	Format() captcha.Format
}

// TextSource produces challenge text.
type TextSource interface {
	Generate(length int) (string, error)
}

// Sample is one labelled image sent to the client.
type Sample struct {
	Type   string                `json:"type"`
	Index  int                   `json:"index"`
	Text   string                `json:"text"`
	Image  string                `json:"image"`
	Width  int                   `json:"width"`
	Height int                   `json:"height"`
	Boxes  []captcha.BoundingBox `json:"bounding_boxes"`
}

// Done terminates a stream.
type Done struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// DatasetStream sends generated samples over a connection while answering
// client pings.
type DatasetStream struct {
	conn  Conn
	gen   Generator
	words TextSource

	mu sync.Mutex // serialises writes
}

// NewDatasetStream creates a DatasetStream.
func NewDatasetStream(conn Conn, gen Generator, words TextSource) *DatasetStream {
	return &DatasetStream{
		conn:  conn,
		gen:   gen,
		words: words,
	}
}

// WriteJSON sends v, serialised with every other write on the stream.
func (s *DatasetStream) WriteJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Shutdown sends a close frame with code and reason.
func (s *DatasetStream) Shutdown(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(code, reason))
}

// Run sends count samples of length characters followed by a done message.
// It stops early when ctx is cancelled or the client goes away. The caller
// owns the connection and closes it afterwards, which also ends the reader.
func (s *DatasetStream) Run(ctx context.Context, count, length int) error {
	gone := make(chan struct{})
	go s.readLoop(gone)

	for i := 0; i < count; i++ {
		select {
		case <-gone:
			return ErrClientGone
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sample, err := s.sample(i, length)
		if err != nil {
			return err
		}
		if err := s.WriteJSON(sample); err != nil {
			return fmt.Errorf("failed to send sample: %w", err)
		}
	}

	if err := s.WriteJSON(Done{Type: "done", Count: count}); err != nil {
		return fmt.Errorf("failed to send done: %w", err)
	}
	return nil
}

// readLoop answers pings until the connection fails, then closes gone.
func (s *DatasetStream) readLoop(gone chan<- struct{}) {
	defer close(gone)

	ping := NewPingHandler(s)
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		ping.Handle(message)
	}
}

func (s *DatasetStream) sample(index, length int) (Sample, error) {
	text, err := s.words.Generate(length)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to generate text: %w", err)
	}

	img, boxes, err := s.gen.GenerateWithBoundingBoxes(text)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to generate captcha: %w", err)
	}

	var buf bytes.Buffer
	if err := s.gen.Encode(&buf, img); err != nil {
		return Sample{}, err
	}

	return Sample{
		Type:   "sample",
		Index:  index,
		Text:   text,
		Image:  util.DataURL("image/"+string(s.gen.Format()), buf.Bytes()),
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
		Boxes:  boxes,
	}, nil
}
