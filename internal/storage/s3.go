// Package storage provides S3 storage integration.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"path"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/kyiku/textcaptcha/internal/captcha"
)

// S3ClientInterface defines the interface for S3 operations.
type S3ClientInterface interface {
	GetObject(key string) ([]byte, error)
	PutObject(key string, data []byte) error
	ListObjects(prefix string) ([]string, error)
}

// S3Client wraps S3 operations for fonts and generated captchas.
type S3Client struct {
	client        S3ClientInterface
	bucket        string
	cloudfrontURL string
}

// Annotation is the label file stored next to an uploaded captcha.
type Annotation struct {
	Text   string                `json:"text"`
	Width  int                   `json:"width"`
	Height int                   `json:"height"`
	Boxes  []captcha.BoundingBox `json:"boxes"`
}

// Upload describes an uploaded captcha and its annotation.
type Upload struct {
	ID            string
	ImageURL      string
	AnnotationURL string
}

// NewS3Client creates a new S3Client.
func NewS3Client(client S3ClientInterface, bucket string, cloudfrontURL string) *S3Client {
	return &S3Client{
		client:        client,
		bucket:        bucket,
		cloudfrontURL: strings.TrimSuffix(cloudfrontURL, "/"),
	}
}

// LoadFonts parses every .ttf and .otf object under prefix, in key order.
func (c *S3Client) LoadFonts(prefix string) ([]*captcha.Font, error) {
	keys, err := c.client.ListObjects(prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list fonts: %w", err)
	}
	sort.Strings(keys)

	fonts := make([]*captcha.Font, 0, len(keys))
	for _, key := range keys {
		ext := strings.ToLower(path.Ext(key))
		if ext != ".ttf" && ext != ".otf" {
			continue
		}

		data, err := c.client.GetObject(key)
		if err != nil {
			return nil, fmt.Errorf("failed to get font %s: %w", key, err)
		}

		f, err := captcha.ParseFont(strings.TrimSuffix(path.Base(key), path.Ext(key)), data)
		if err != nil {
			return nil, err
		}
		fonts = append(fonts, f)
	}

	if len(fonts) == 0 {
		return nil, errors.New("no fonts available")
	}
	return fonts, nil
}

// UploadCaptcha uploads a captcha image as PNG together with its annotation
// and returns their CloudFront URLs.
func (c *S3Client) UploadCaptcha(img image.Image, text string, boxes []captcha.BoundingBox) (*Upload, error) {
	// Generate unique filename
	id := uuid.New().String()
	imageKey := "captcha/" + id + ".png"
	annotationKey := "captcha/" + id + ".json"

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode captcha image: %w", err)
	}

	if boxes == nil {
		boxes = []captcha.BoundingBox{}
	}
	annotation, err := json.Marshal(Annotation{
		Text:   text,
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
		Boxes:  boxes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode annotation: %w", err)
	}

	if err := c.client.PutObject(imageKey, buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to upload captcha image: %w", err)
	}
	if err := c.client.PutObject(annotationKey, annotation); err != nil {
		return nil, fmt.Errorf("failed to upload annotation: %w", err)
	}

	return &Upload{
		ID:            id,
		ImageURL:      c.URL(imageKey),
		AnnotationURL: c.URL(annotationKey),
	}, nil
}

// URL returns the CloudFront URL for an object key.
func (c *S3Client) URL(key string) string {
	return fmt.Sprintf("%s/%s", c.cloudfrontURL, key)
}
