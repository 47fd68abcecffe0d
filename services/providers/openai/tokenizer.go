package openai

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/upb/llm-chat-gateway/services/providers"
)

// The offline loader embeds the BPE ranks so counting never hits the network.
var loaderOnce sync.Once

// tokenizer caches one encoding per encoding family
type tokenizer struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

func newTokenizer() *tokenizer {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	return &tokenizer{encodings: make(map[string]*tiktoken.Tiktoken)}
}

// encodingKey maps a model name onto the model tiktoken knows it by
func encodingKey(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	case strings.HasPrefix(model, "gpt-4o"):
		return "gpt-4o"
	case strings.HasPrefix(model, "gpt-4"):
		return "gpt-4"
	}
	return ""
}

func (t *tokenizer) encoding(model string) (*tiktoken.Tiktoken, error) {
	key := encodingKey(model)

	t.mu.Lock()
	defer t.mu.Unlock()

	if enc, ok := t.encodings[key]; ok {
		return enc, nil
	}

	var (
		enc *tiktoken.Tiktoken
		err error
	)
	if key == "" {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	} else {
		enc, err = tiktoken.EncodingForModel(key)
	}
	if err != nil {
		return nil, err
	}
	t.encodings[key] = enc
	return enc, nil
}

// count falls back to the character heuristic if no encoding can be loaded
func (t *tokenizer) count(model, text string) int {
	enc, err := t.encoding(model)
	if err != nil {
		return providers.ApproxTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}
