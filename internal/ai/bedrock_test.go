package ai

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyiku/textcaptcha/internal/testutil"
)

func TestWordSource_Generate(t *testing.T) {
	tests := []struct {
		name         string
		length       int
		mockResponse string
		mockErr      error
		fallback     bool
		want         string
		wantRandom   bool
		wantErr      bool
	}{
		{
			name:         "正常系: モデルの単語を使う",
			length:       5,
			mockResponse: `{"content":[{"text":"Apple"}]}`,
			want:         "APPLE",
		},
		{
			name:         "正常系: 末尾の句読点を除去",
			length:       4,
			mockResponse: `{"content":[{"text":" tree.\n"}]}`,
			want:         "TREE",
		},
		{
			name:    "異常系: Bedrock APIエラー",
			length:  4,
			mockErr: errors.New("Bedrock API error"),
			wantErr: true,
		},
		{
			name:       "正常系: APIエラー時はフォールバック",
			length:     4,
			mockErr:    errors.New("Bedrock API error"),
			fallback:   true,
			wantRandom: true,
		},
		{
			name:         "異常系: 文字数が違う",
			length:       4,
			mockResponse: `{"content":[{"text":"banana"}]}`,
			wantErr:      true,
		},
		{
			name:         "正常系: 不正な単語はフォールバック",
			length:       4,
			mockResponse: `{"content":[{"text":"c4t!"}]}`,
			fallback:     true,
			wantRandom:   true,
		},
		{
			name:         "異常系: 空のレスポンス",
			length:       4,
			mockResponse: `{"content":[]}`,
			wantErr:      true,
		},
		{
			name:         "異常系: JSONではない",
			length:       4,
			mockResponse: `not json`,
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockBedrock := testutil.NewMockBedrockClient()
			mockBedrock.Response = tt.mockResponse
			mockBedrock.Err = tt.mockErr

			source := NewBedrockWordSource(mockBedrock, "test-model", 1)
			source.EnableFallback(tt.fallback)

			got, err := source.Generate(tt.length)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "test-model", mockBedrock.LastModelID)
			assert.Contains(t, mockBedrock.LastPrompt, "exactly")
			if tt.wantRandom {
				assertFromAlphabet(t, got, tt.length)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWordSource_Local(t *testing.T) {
	t.Run("正常系: ランダムな文字列", func(t *testing.T) {
		source := NewWordSource(7)

		for i := 0; i < 20; i++ {
			got, err := source.Generate(6)
			require.NoError(t, err)
			assertFromAlphabet(t, got, 6)
		}
	})

	t.Run("正常系: 同じシードなら同じ文字列", func(t *testing.T) {
		a, err := NewWordSource(3).Generate(8)
		require.NoError(t, err)
		b, err := NewWordSource(3).Generate(8)
		require.NoError(t, err)

		assert.Equal(t, a, b)
	})

	t.Run("異常系: 長さがゼロ", func(t *testing.T) {
		_, err := NewWordSource(1).Generate(0)
		assert.Error(t, err)
	})
}

func assertFromAlphabet(t *testing.T, s string, length int) {
	t.Helper()
	assert.Len(t, s, length)
	for _, r := range s {
		assert.True(t, strings.ContainsRune(Alphabet, r), "%q は使えない文字", r)
	}
}
