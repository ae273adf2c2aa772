package vectorizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DefaultFilters is the character set a Keras tokenizer strips by default.
const DefaultFilters = "!\"#$%&()*+,-./:;<=>?@[\\]^_`{|}~\t\n"

// Tokenizer maps words to the integer ids learnt at training time.
// It is read-only after construction and safe for concurrent use.
type Tokenizer struct {
	wordIndex map[string]int32
	numWords  int // 0 means unbounded
	oovIndex  int32
	hasOOV    bool
	filters   string
	lower     bool
	split     string
	charLevel bool
}

// tokenizerDoc is the document written by Keras Tokenizer.to_json().
type tokenizerDoc struct {
	ClassName string `json:"class_name"`
	Config    struct {
		NumWords  *int            `json:"num_words"`
		Filters   *string         `json:"filters"`
		Lower     *bool           `json:"lower"`
		Split     *string         `json:"split"`
		CharLevel bool            `json:"char_level"`
		OOVToken  *string         `json:"oov_token"`
		WordIndex json.RawMessage `json:"word_index"`
	} `json:"config"`
}

// LoadTokenizer reads a tokenizer JSON artifact from disk.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	return ParseTokenizer(data)
}

// ParseTokenizer decodes a tokenizer JSON document. word_index may be either
// an object or a JSON-encoded string, as Keras writes it.
func ParseTokenizer(data []byte) (*Tokenizer, error) {
	var doc tokenizerDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode tokenizer: %w", err)
	}
	if doc.ClassName != "" && doc.ClassName != "Tokenizer" {
		return nil, fmt.Errorf("unexpected tokenizer class %q", doc.ClassName)
	}
	cfg := doc.Config

	raw := bytes.TrimSpace(cfg.WordIndex)
	if len(raw) == 0 {
		return nil, fmt.Errorf("tokenizer has no word_index")
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("decode word_index: %w", err)
		}
		raw = []byte(inner)
	}
	var wordIndex map[string]int32
	if err := json.Unmarshal(raw, &wordIndex); err != nil {
		return nil, fmt.Errorf("decode word_index: %w", err)
	}

	t := &Tokenizer{
		wordIndex: wordIndex,
		filters:   DefaultFilters,
		lower:     true,
		split:     " ",
		charLevel: cfg.CharLevel,
	}
	if cfg.NumWords != nil {
		t.numWords = *cfg.NumWords
	}
	if cfg.Filters != nil {
		t.filters = *cfg.Filters
	}
	if cfg.Lower != nil {
		t.lower = *cfg.Lower
	}
	if cfg.Split != nil && *cfg.Split != "" {
		t.split = *cfg.Split
	}
	if cfg.OOVToken != nil {
		t.oovIndex, t.hasOOV = wordIndex[*cfg.OOVToken]
	}
	return t, nil
}

// NewTokenizer builds a tokenizer with Keras defaults around a vocabulary.
func NewTokenizer(wordIndex map[string]int32) *Tokenizer {
	return &Tokenizer{wordIndex: wordIndex, filters: DefaultFilters, lower: true, split: " "}
}

// VocabularySize is the number of known words.
func (t *Tokenizer) VocabularySize() int { return len(t.wordIndex) }

// TextsToSequences converts each text to its word ids. Unknown words map to
// the OOV id when the tokenizer has one and are dropped otherwise. Ids at or
// above num_words are treated as unknown.
func (t *Tokenizer) TextsToSequences(texts []string) [][]int32 {
	out := make([][]int32, len(texts))
	for i, text := range texts {
		words := t.words(text)
		seq := make([]int32, 0, len(words))
		for _, w := range words {
			id, ok := t.wordIndex[w]
			if ok && (t.numWords == 0 || int(id) < t.numWords) {
				seq = append(seq, id)
				continue
			}
			if t.hasOOV {
				seq = append(seq, t.oovIndex)
			}
		}
		out[i] = seq
	}
	return out
}

func (t *Tokenizer) words(text string) []string {
	if t.lower {
		text = strings.ToLower(text)
	}
	if t.charLevel {
		chars := make([]string, 0, len(text))
		for _, r := range text {
			chars = append(chars, string(r))
		}
		return chars
	}
	if t.filters != "" {
		var b strings.Builder
		b.Grow(len(text))
		for _, r := range text {
			if strings.ContainsRune(t.filters, r) {
				b.WriteString(t.split)
				continue
			}
			b.WriteRune(r)
		}
		text = b.String()
	}
	var words []string
	for _, w := range strings.Split(text, t.split) {
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}
