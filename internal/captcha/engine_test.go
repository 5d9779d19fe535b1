package captcha

import (
	"bytes"
	"image"
	"image/png"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, width, height int, seed int64) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.Width = width
	opts.Height = height
	opts.Seed = seed
	e, err := New(opts)
	require.NoError(t, err)
	return e
}

func assertBoxes(t *testing.T, text string, boxes []BoundingBox, width, height int) {
	t.Helper()
	runes := []rune(text)
	require.Len(t, boxes, len(runes))
	for i, b := range boxes {
		assert.Equal(t, runes[i], b.Char, "box %d", i)
		assert.Greater(t, b.W, 0, "box %d (%c) has zero width", i, b.Char)
		assert.Greater(t, b.H, 0, "box %d (%c) has zero height", i, b.Char)
		assert.True(t, inBounds(b, width, height), "box %d (%c) out of canvas: %+v", i, b.Char, b)
	}
}

func TestEngine_GenerateWithBoundingBoxes(t *testing.T) {
	t.Run("正常系: 英数字6文字", func(t *testing.T) {
		e := newTestEngine(t, 200, 80, 1)

		img, boxes, err := e.GenerateWithBoundingBoxes("ABC123")

		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 200, 80), img.Bounds())
		assertBoxes(t, "ABC123", boxes, 200, 80)
	})

	t.Run("正常系: 1文字", func(t *testing.T) {
		e := newTestEngine(t, 160, 60, 2)

		img, boxes, err := e.GenerateWithBoundingBoxes("X")

		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 160, 60), img.Bounds())
		assertBoxes(t, "X", boxes, 160, 60)
	})

	t.Run("正常系: 空文字列は背景のみ", func(t *testing.T) {
		e := newTestEngine(t, 160, 60, 3)

		img, boxes, err := e.GenerateWithBoundingBoxes("", WithBackground(white))

		require.NoError(t, err)
		assert.NotNil(t, boxes)
		assert.Empty(t, boxes)
		assert.Equal(t, image.Rect(0, 0, 160, 60), img.Bounds())
		assert.Empty(t, differsFrom(img, white))
	})

	t.Run("正常系: 色を指定", func(t *testing.T) {
		e := newTestEngine(t, 160, 60, 4)

		img, boxes, err := e.GenerateWithBoundingBoxes("TEST",
			WithBackground(RGB(255, 255, 255)),
			WithForeground(RGBA(200, 20, 20, 180)),
		)

		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 160, 60), img.Bounds())
		assertBoxes(t, "TEST", boxes, 160, 60)
	})

	t.Run("正常系: 色の指定は配置に影響しない", func(t *testing.T) {
		a := newTestEngine(t, 160, 60, 5)
		b := newTestEngine(t, 160, 60, 5)

		_, boxesA, err := a.GenerateWithBoundingBoxes("TEST")
		require.NoError(t, err)
		_, boxesB, err := b.GenerateWithBoundingBoxes("TEST",
			WithBackground(RGB(0, 0, 64)),
			WithForeground(RGBA(255, 255, 0, 100)),
		)
		require.NoError(t, err)

		assert.Equal(t, boxesA, boxesB)
	})

	t.Run("正常系: 20回連続で生成", func(t *testing.T) {
		e := newTestEngine(t, 160, 60, 6)
		rng := rand.New(rand.NewSource(6))
		const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

		for i := 0; i < 20; i++ {
			text := make([]byte, 4)
			for j := range text {
				text[j] = alphabet[rng.Intn(len(alphabet))]
			}

			img, boxes, err := e.GenerateWithBoundingBoxes(string(text))

			require.NoError(t, err, "iteration %d", i)
			assert.Equal(t, image.Rect(0, 0, 160, 60), img.Bounds())
			assertBoxes(t, string(text), boxes, 160, 60)
		}
	})

	t.Run("正常系: 同じシードなら同じ結果", func(t *testing.T) {
		a := newTestEngine(t, 160, 60, 99)
		b := newTestEngine(t, 160, 60, 99)

		imgA, boxesA, err := a.GenerateWithBoundingBoxes("Go42")
		require.NoError(t, err)
		imgB, boxesB, err := b.GenerateWithBoundingBoxes("Go42")
		require.NoError(t, err)

		assert.Equal(t, boxesA, boxesB)
		assert.Equal(t, imgA.Pix, imgB.Pix)
	})

	t.Run("異常系: フォントにない文字", func(t *testing.T) {
		e := newTestEngine(t, 160, 60, 7)

		_, _, err := e.GenerateWithBoundingBoxes("日本")

		assert.ErrorIs(t, err, ErrUnsupportedGlyph)
	})
}

func TestEngine_BoxesContainInk(t *testing.T) {
	tests := []struct {
		name   string
		warp   float64
		smooth bool
		seeds  int
	}{
		{name: "正常系: 歪みなし", warp: 0, seeds: 1},
		{name: "正常系: 波形の歪みあり", warp: 3, seeds: 1},
		{name: "正常系: 平滑化あり", warp: 2.5, smooth: true, seeds: 20},
		{name: "正常系: 歪みなしで平滑化", warp: 0, smooth: true, seeds: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for seed := int64(1); seed <= int64(tt.seeds); seed++ {
				opts := plainOptions(200, 80)
				opts.WarpAmplitude = tt.warp
				opts.GlyphWarp = true
				opts.Smooth = tt.smooth
				opts.Seed = seed
				e, err := New(opts)
				require.NoError(t, err)

				img, boxes, err := e.GenerateWithBoundingBoxes("W8kp",
					WithBackground(white), WithForeground(black))

				require.NoError(t, err)
				assertBoxes(t, "W8kp", boxes, 200, 80)
				for _, p := range differsFrom(img, white) {
					assert.True(t, inAnyBox(p, boxes), "seed %d: ink at %v outside every box", seed, p)
				}
			}
		})
	}
}

func TestEngine_Generate(t *testing.T) {
	t.Run("正常系: PNGとして読める", func(t *testing.T) {
		e := newTestEngine(t, 160, 60, 8)

		data, err := e.Generate("PNG1")

		require.NoError(t, err)
		img, err := png.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 160, 60), img.Bounds())
	})

	t.Run("正常系: JPEG", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Format = FormatJPEG
		e, err := New(opts)
		require.NoError(t, err)

		data, err := e.Generate("JPEG")

		require.NoError(t, err)
		assert.Equal(t, []byte{0xff, 0xd8}, data[:2])
	})
}

func TestEngine_Concurrent(t *testing.T) {
	e := newTestEngine(t, 160, 60, 10)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, boxes, err := e.GenerateWithBoundingBoxes("SAFE")
			if err == nil && len(boxes) != 4 {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestNewEngine(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{name: "異常系: 幅がゼロ", modify: func(o *Options) { o.Width = 0 }},
		{name: "異常系: 高さが負", modify: func(o *Options) { o.Height = -1 }},
		{name: "異常系: 回転角が範囲外", modify: func(o *Options) { o.MaxRotation = 181 }},
		{name: "異常系: 重なりが大きすぎる", modify: func(o *Options) { o.Overlap = 0.5 }},
		{name: "異常系: ジッターの範囲が逆", modify: func(o *Options) { o.JitterMin, o.JitterMax = 3, 1 }},
		{name: "異常系: フォントサイズが負", modify: func(o *Options) { o.FontSizes = []float64{20, -1} }},
		{name: "異常系: 歪みの周期がゼロ", modify: func(o *Options) { o.WarpPeriod = 0 }},
		{name: "異常系: ノイズ数が負", modify: func(o *Options) { o.NoiseDots = -1 }},
		{name: "異常系: 未知の形式", modify: func(o *Options) { o.Format = "bmp" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)

			_, err := NewEngine(opts, newRectRenderer(1))

			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	t.Run("異常系: フォントが空", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Fonts = nil

		_, err := New(opts)

		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("異常系: レンダラーがnil", func(t *testing.T) {
		_, err := NewEngine(DefaultOptions(), nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("正常系: フォントサイズは高さから決まる", func(t *testing.T) {
		e, err := NewEngine(Options{Width: 160, Height: 60}, newRectRenderer(1))
		require.NoError(t, err)
		assert.Equal(t, []float64{42, 50, 56}, e.opts.FontSizes)
		assert.Equal(t, FormatPNG, e.Format())
		assert.Equal(t, 160, e.Width())
		assert.Equal(t, 60, e.Height())
	})

	t.Run("正常系: シード指定", func(t *testing.T) {
		e, err := NewSeeded(12)
		require.NoError(t, err)
		assert.Equal(t, 160, e.Width())
	})
}
