// Package ai provides challenge text generation, optionally backed by Bedrock.
package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/kyiku/textcaptcha/internal/util"
)

// BedrockClientInterface defines the interface for Bedrock client.
type BedrockClientInterface interface {
	InvokeModel(modelID string, prompt string) (string, error)
}

// ClaudeResponse represents the response from Claude.
type ClaudeResponse struct {
	Content []ContentBlock `json:"content"`
}

// ContentBlock represents a content block in Claude's response.
type ContentBlock struct {
	Text string `json:"text"`
}

// Alphabet holds the characters used for random challenge text. Glyphs that
// are easily confused (0/O, 1/I/L, 5/S, 8/B, 2/Z) are left out.
const Alphabet = "ACDEFGHJKMNPQRTUVWXY34679"

// WordSource produces challenge text.
type WordSource struct {
	client          BedrockClientInterface
	modelID         string
	fallbackEnabled bool

	mu  sync.Mutex
	rng *rand.Rand
}

// NewWordSource creates a WordSource generating random text locally.
// Seed 0 seeds from the clock.
func NewWordSource(seed int64) *WordSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &WordSource{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// NewBedrockWordSource creates a WordSource asking modelID for words.
func NewBedrockWordSource(client BedrockClientInterface, modelID string, seed int64) *WordSource {
	s := NewWordSource(seed)
	s.client = client
	s.modelID = modelID
	return s
}

// EnableFallback enables or disables fallback mode.
// When enabled, returns random text instead of error when the model fails.
func (s *WordSource) EnableFallback(enabled bool) {
	s.fallbackEnabled = enabled
}

// Generate returns challenge text of length characters.
func (s *WordSource) Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid text length: %d", length)
	}
	if s.client == nil {
		return s.random(length), nil
	}

	response, err := s.client.InvokeModel(s.modelID, s.buildPrompt(length))
	if err != nil {
		if s.fallbackEnabled {
			return s.random(length), nil
		}
		return "", fmt.Errorf("failed to invoke Bedrock: %w", err)
	}

	word, err := s.parseResponse(response, length)
	if err != nil {
		if s.fallbackEnabled {
			return s.random(length), nil
		}
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return word, nil
}

// buildPrompt creates the prompt asking for a single word.
func (s *WordSource) buildPrompt(length int) string {
	return fmt.Sprintf(`Reply with one common English word of exactly %d letters.
Use only the letters A to Z, no punctuation and no explanation.`, length)
}

// parseResponse extracts and checks the word from the Claude response JSON.
func (s *WordSource) parseResponse(response string, length int) (string, error) {
	var claudeResp ClaudeResponse
	if err := json.Unmarshal([]byte(response), &claudeResp); err != nil {
		return "", err
	}

	if len(claudeResp.Content) == 0 {
		return "", errors.New("empty content in response")
	}

	word := util.NormalizeAnswer(claudeResp.Content[0].Text)
	word = strings.TrimRight(word, ".!")
	if len(word) != length {
		return "", fmt.Errorf("word %q does not have %d letters", word, length)
	}
	for _, r := range word {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("word %q contains %q", word, r)
		}
	}
	return word, nil
}

// random returns length characters drawn from Alphabet.
func (s *WordSource) random(length int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	for i := 0; i < length; i++ {
		b.WriteByte(Alphabet[s.rng.Intn(len(Alphabet))])
	}
	return b.String()
}
