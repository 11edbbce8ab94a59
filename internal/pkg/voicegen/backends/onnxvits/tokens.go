package onnxvits

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Tokenizer maps characters to the ids listed in a tokens.txt file, one
// "<token> <id>" pair per line. The space character is written as a line
// starting with a space.
type Tokenizer struct {
	tokenToID map[string]int64
	blankID   int64
	addBlank  bool
}

func NewTokenizer(tokensPath string) (*Tokenizer, error) {
	f, err := os.Open(tokensPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open tokens file: %w", err)
	}
	defer f.Close()

	t := &Tokenizer{tokenToID: make(map[string]int64)}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		idx := strings.LastIndexByte(line, ' ')
		if idx < 0 {
			continue
		}
		token := line[:idx]
		if token == "" {
			token = " "
		}
		id, err := strconv.ParseInt(strings.TrimSpace(line[idx+1:]), 10, 64)
		if err != nil {
			continue
		}
		t.tokenToID[token] = id
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tokens file: %w", err)
	}
	if len(t.tokenToID) == 0 {
		return nil, fmt.Errorf("tokens file %s has no entries", tokensPath)
	}
	if id, ok := t.tokenToID["_"]; ok {
		t.blankID = id
	}

	return t, nil
}

// SetAddBlank interleaves the blank token between characters, as VITS
// models trained with add_blank expect.
func (t *Tokenizer) SetAddBlank(v bool) {
	t.addBlank = v
}

// Encode lower-cases and NFC-normalises text, then drops characters that
// have no token.
func (t *Tokenizer) Encode(text string) []int64 {
	text = strings.ToLower(norm.NFC.String(text))

	tokens := make([]int64, 0, len(text)*2+1)
	if t.addBlank {
		tokens = append(tokens, t.blankID)
	}
	for _, r := range text {
		id, ok := t.tokenToID[string(r)]
		if !ok {
			continue
		}
		tokens = append(tokens, id)
		if t.addBlank {
			tokens = append(tokens, t.blankID)
		}
	}
	if t.addBlank && len(tokens) == 1 {
		return nil
	}
	return tokens
}

func (t *Tokenizer) VocabSize() int {
	return len(t.tokenToID)
}
