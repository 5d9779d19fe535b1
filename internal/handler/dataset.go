package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	gws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/kyiku/textcaptcha/internal/response"
	"github.com/kyiku/textcaptcha/internal/websocket"
)

// Dataset stream limits.
const (
	DefaultDatasetCount = 10
	MaxDatasetCount     = 100
	MaxDatasetLength    = 12
)

// DatasetHandler streams labelled captcha samples over a WebSocket.
type DatasetHandler struct {
	gen      websocket.Generator
	words    websocket.TextSource
	length   int
	upgrader gws.Upgrader
}

// NewDatasetHandler creates a DatasetHandler. checkOrigin may be nil, in
// which case only same-origin upgrades are accepted.
func NewDatasetHandler(gen websocket.Generator, words websocket.TextSource, length int, checkOrigin func(*http.Request) bool) *DatasetHandler {
	return &DatasetHandler{
		gen:    gen,
		words:  words,
		length: length,
		upgrader: gws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Stream upgrades the connection and sends count samples of length
// characters.
func (h *DatasetHandler) Stream(c echo.Context) error {
	count, err := intParam(c, "count", DefaultDatasetCount, 1, MaxDatasetCount)
	if err != nil {
		return response.Error(c, http.StatusBadRequest, "countが不正です")
	}
	length, err := intParam(c, "length", h.length, 1, MaxDatasetLength)
	if err != nil {
		return response.Error(c, http.StatusBadRequest, "lengthが不正です")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		c.Logger().Warnf("websocket upgrade failed: %v", err)
		return nil
	}
	defer conn.Close()

	stream := websocket.NewDatasetStream(conn, h.gen, h.words)
	err = stream.Run(c.Request().Context(), count, length)
	switch {
	case err == nil:
		_ = stream.Shutdown(gws.CloseNormalClosure, "")
	case errors.Is(err, websocket.ErrClientGone), errors.Is(err, context.Canceled):
	default:
		c.Logger().Errorf("dataset stream failed: %v", err)
		_ = stream.Shutdown(gws.CloseInternalServerErr, "generation failed")
	}
	return nil
}

// intParam reads an optional integer query parameter within [lo, hi].
func intParam(c echo.Context, name string, def, lo, hi int) (int, error) {
	s := c.QueryParam(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi {
		return 0, strconv.ErrRange
	}
	return v, nil
}
