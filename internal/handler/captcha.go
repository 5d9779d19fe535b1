package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/kyiku/textcaptcha/internal/captcha"
	"github.com/kyiku/textcaptcha/internal/challenge"
	"github.com/kyiku/textcaptcha/internal/response"
	"github.com/kyiku/textcaptcha/internal/storage"
	"github.com/kyiku/textcaptcha/internal/util"
)

// MaxAnnotateLength bounds the text accepted by Annotate and Image.
const MaxAnnotateLength = 32

// Engine renders captcha images.
type Engine interface {
	Generate(text string, opts ...captcha.ColorOption) ([]byte, error)
	GenerateWithBoundingBoxes(text string, opts ...captcha.ColorOption) (*image.NRGBA, []captcha.BoundingBox, error)
	Encode(w io.Writer, img image.Image) error
	Format() captcha.Format
}

// ChallengeStore keeps issued answers.
type ChallengeStore interface {
	Create(answer string) challenge.Challenge
	Get(id string) (challenge.Challenge, bool)
	Verify(id, answer string) (challenge.Result, error)
	Delete(id string)
}

// WordSource produces challenge text.
type WordSource interface {
	Generate(length int) (string, error)
}

// Uploader stores an image and its annotation.
type Uploader interface {
	UploadCaptcha(img image.Image, text string, boxes []captcha.BoundingBox) (*storage.Upload, error)
}

// CaptchaHandler handles CAPTCHA-related requests.
type CaptchaHandler struct {
	engine   Engine
	store    ChallengeStore
	words    WordSource
	uploader Uploader
	length   int
	ttl      time.Duration
}

// NewCaptchaHandler creates a new CaptchaHandler.
func NewCaptchaHandler(engine Engine, store ChallengeStore, words WordSource) *CaptchaHandler {
	return &CaptchaHandler{
		engine: engine,
		store:  store,
		words:  words,
		length: 4,
		ttl:    5 * time.Minute,
	}
}

// SetUploader enables uploads from Annotate.
func (h *CaptchaHandler) SetUploader(uploader Uploader) {
	h.uploader = uploader
}

// SetTextLength sets the challenge text length.
func (h *CaptchaHandler) SetTextLength(length int) {
	h.length = length
}

// SetTTL sets the lifetime reported to clients.
func (h *CaptchaHandler) SetTTL(ttl time.Duration) {
	h.ttl = ttl
}

// Challenge issues a new captcha with random text.
func (h *CaptchaHandler) Challenge(c echo.Context) error {
	return h.issue(c)
}

// RefreshRequest names the challenge being replaced.
type RefreshRequest struct {
	ID string `json:"id"`
}

// Refresh discards a challenge the user cannot read and issues a new one.
// Unknown IDs are not an error; the old one may already have expired.
func (h *CaptchaHandler) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "リクエストの解析に失敗しました")
	}
	if req.ID == "" {
		return response.Error(c, http.StatusBadRequest, "IDが指定されていません")
	}

	h.store.Delete(req.ID)
	return h.issue(c)
}

// Status reports whether a challenge is still open and how long it lives.
func (h *CaptchaHandler) Status(c echo.Context) error {
	ch, ok := h.store.Get(c.Param("id"))
	if !ok {
		return response.ErrorWithCode(c, http.StatusNotFound, "CHALLENGE_NOT_FOUND", "チャレンジが見つかりません")
	}

	left := h.ttl - time.Since(ch.CreatedAt)
	if left < 0 {
		left = 0
	}
	return response.Success(c, map[string]interface{}{
		"id":                 ch.ID,
		"remaining_attempts": challenge.MaxAttempts - ch.Attempts,
		"expires_in":         int(left / time.Second),
	})
}

func (h *CaptchaHandler) issue(c echo.Context) error {
	text, err := h.words.Generate(h.length)
	if err != nil {
		c.Logger().Errorf("failed to generate challenge text: %v", err)
		return response.Error(c, http.StatusInternalServerError, "CAPTCHA生成に失敗しました")
	}

	data, err := h.engine.Generate(text)
	if err != nil {
		c.Logger().Errorf("failed to generate captcha: %v", err)
		return response.Error(c, http.StatusInternalServerError, "CAPTCHA生成に失敗しました")
	}

	ch := h.store.Create(text)

	return response.Success(c, map[string]interface{}{
		"id":         ch.ID,
		"image":      util.DataURL(h.mime(), data),
		"expires_in": int(h.ttl / time.Second),
	})
}

// VerifyRequest represents the CAPTCHA verification request.
type VerifyRequest struct {
	ID     string `json:"id"`
	Answer string `json:"answer"`
}

// Verify checks the answer to an issued challenge.
func (h *CaptchaHandler) Verify(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "リクエストの解析に失敗しました")
	}
	if req.ID == "" {
		return response.Error(c, http.StatusBadRequest, "IDが指定されていません")
	}

	res, err := h.store.Verify(req.ID, req.Answer)
	switch {
	case errors.Is(err, challenge.ErrNotFound):
		return response.ErrorWithCode(c, http.StatusNotFound, "CHALLENGE_NOT_FOUND", "チャレンジが見つかりません")
	case errors.Is(err, challenge.ErrExpired):
		return response.ErrorWithCode(c, http.StatusGone, "CHALLENGE_EXPIRED", "チャレンジが期限切れです")
	case err != nil:
		return response.Error(c, http.StatusInternalServerError, "検証に失敗しました")
	}

	if res.OK {
		return response.Success(c, map[string]interface{}{
			"message": "CAPTCHA成功！",
		})
	}
	if res.Remaining == 0 {
		return response.ErrorWithAttempts(c, "試行回数の上限に達しました。新しいCAPTCHAを取得してください", 0)
	}
	return response.ErrorWithAttempts(c, "不正解です。もう一度試してください", res.Remaining)
}

// AnnotateRequest asks for an image of Text with its bounding boxes.
// BgColor and FgColor take either a hex string or an [r, g, b] / [r, g, b, a]
// array.
type AnnotateRequest struct {
	Text    string          `json:"text"`
	BgColor json.RawMessage `json:"bg_color,omitempty"`
	FgColor json.RawMessage `json:"fg_color,omitempty"`
	Upload  bool            `json:"upload"`
}

// Annotate renders caller supplied text and returns the character boxes.
func (h *CaptchaHandler) Annotate(c echo.Context) error {
	var req AnnotateRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "リクエストの解析に失敗しました")
	}
	if err := validateText(req.Text); err != nil {
		return response.Error(c, http.StatusBadRequest, err.Error())
	}

	var opts []captcha.ColorOption
	bg, ok, err := parseColor(req.BgColor)
	if err != nil {
		return response.Error(c, http.StatusBadRequest, "背景色が不正です")
	}
	if ok {
		opts = append(opts, captcha.WithBackground(bg))
	}
	fg, ok, err := parseColor(req.FgColor)
	if err != nil {
		return response.Error(c, http.StatusBadRequest, "文字色が不正です")
	}
	if ok {
		opts = append(opts, captcha.WithForeground(fg))
	}

	if req.Upload && h.uploader == nil {
		return response.Error(c, http.StatusServiceUnavailable, "アップロードは利用できません")
	}

	img, boxes, err := h.engine.GenerateWithBoundingBoxes(req.Text, opts...)
	if err != nil {
		return h.generateError(c, err)
	}

	if req.Upload {
		up, err := h.uploader.UploadCaptcha(img, req.Text, boxes)
		if err != nil {
			c.Logger().Errorf("failed to upload captcha: %v", err)
			return response.Error(c, http.StatusInternalServerError, "アップロードに失敗しました")
		}
		return response.Success(c, map[string]interface{}{
			"id":             up.ID,
			"image_url":      up.ImageURL,
			"annotation_url": up.AnnotationURL,
			"bounding_boxes": boxes,
		})
	}

	data, err := encode(h.engine, img)
	if err != nil {
		return response.Error(c, http.StatusInternalServerError, "画像のエンコードに失敗しました")
	}
	return response.Success(c, map[string]interface{}{
		"image":          util.DataURL(h.mime(), data),
		"bounding_boxes": boxes,
	})
}

// Image returns the raw encoded image for the text query parameter.
func (h *CaptchaHandler) Image(c echo.Context) error {
	text := c.QueryParam("text")
	if err := validateText(text); err != nil {
		return response.Error(c, http.StatusBadRequest, err.Error())
	}

	data, err := h.engine.Generate(text)
	if err != nil {
		return h.generateError(c, err)
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, h.mime(), data)
}

func (h *CaptchaHandler) generateError(c echo.Context, err error) error {
	if errors.Is(err, captcha.ErrUnsupportedGlyph) {
		return response.ErrorWithCode(c, http.StatusBadRequest, "UNSUPPORTED_GLYPH", "描画できない文字が含まれています")
	}
	c.Logger().Errorf("failed to generate captcha: %v", err)
	return response.Error(c, http.StatusInternalServerError, "CAPTCHA生成に失敗しました")
}

// parseColor decodes a hex string or channel array. ok is false when the
// field was left out.
func parseColor(raw json.RawMessage) (c color.NRGBA, ok bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return color.NRGBA{}, false, nil
	}

	if raw[0] == '[' {
		var tuple []int
		if err := json.Unmarshal(raw, &tuple); err != nil {
			return color.NRGBA{}, false, err
		}
		c, err = captcha.FromTuple(tuple)
		return c, err == nil, err
	}

	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return color.NRGBA{}, false, err
	}
	if hex == "" {
		return color.NRGBA{}, false, nil
	}
	c, err = captcha.ParseHex(hex)
	return c, err == nil, err
}

func encode(e Engine, img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *CaptchaHandler) mime() string {
	return "image/" + string(h.engine.Format())
}

var (
	errTextRequired = errors.New("テキストが指定されていません")
	errTextTooLong  = errors.New("テキストが長すぎます")
)

func validateText(text string) error {
	if text == "" {
		return errTextRequired
	}
	if utf8.RuneCountInString(text) > MaxAnnotateLength {
		return errTextTooLong
	}
	return nil
}
