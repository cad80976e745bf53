package generation

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"novel-vote-server/internal/models"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

const fallbackEncoding = "cl100k_base"

const systemPrompt = `You are the author of a serialized interactive story. Readers voted on how the story continues.
Write the next chapter so that it follows the winning choice directly and stays consistent with the previous chapters.
Answer with a single JSON object and nothing else:
{"title": string, "body": string, "summary": string, "tags": [string], "nextOptions": [{"id": string, "label": string, "description": string}]}
"summary" is two or three sentences used as context for later chapters.`

const continueInstruction = `Offer exactly three distinct "nextOptions" for the readers' next vote.`

const finalInstruction = `This is the final chapter: bring the story to a satisfying ending and return an empty "nextOptions" array.`

// contextTrimmer обрезает предыдущий контекст до бюджета токенов, оставляя самый свежий текст.
type contextTrimmer struct {
	enc       *tiktoken.Tiktoken
	maxTokens int
}

// newContextTrimmer подбирает кодировку модели. Для неизвестных моделей используется cl100k_base,
// а если кодировку загрузить не удалось, токены оцениваются по длине текста.
func newContextTrimmer(model string, maxTokens int, logger *zap.Logger) *contextTrimmer {
	t := &contextTrimmer{maxTokens: maxTokens}
	if maxTokens <= 0 {
		return t
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		logger.Warn("Tokenizer unavailable, using length-based token estimate", zap.String("model", model), zap.Error(err))
		return t
	}
	t.enc = enc
	return t
}

// Count возвращает число токенов (или оценку, если токенизатора нет).
func (t *contextTrimmer) Count(s string) int {
	if t.enc != nil {
		return len(t.enc.Encode(s, nil, nil))
	}
	return (utf8.RuneCountInString(s) + 3) / 4
}

// Trim оставляет последние maxTokens токенов текста.
func (t *contextTrimmer) Trim(s string) string {
	if t.maxTokens <= 0 {
		return s
	}
	if t.enc != nil {
		tokens := t.enc.Encode(s, nil, nil)
		if len(tokens) <= t.maxTokens {
			return s
		}
		return t.enc.Decode(tokens[len(tokens)-t.maxTokens:])
	}
	runes := []rune(s)
	limit := t.maxTokens * 4
	if len(runes) <= limit {
		return s
	}
	return string(runes[len(runes)-limit:])
}

// buildUserPrompt собирает пользовательскую часть запроса из снимка входных данных.
func buildUserPrompt(input models.GenerationInput, previousContext string, final bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Story: %s\n", input.StoryTitle)
	if input.Genre != "" {
		fmt.Fprintf(&b, "Genre: %s\n", input.Genre)
	}
	b.WriteString("\nPrevious context:\n")
	b.WriteString(previousContext)
	b.WriteString("\n\nWinning choice: ")
	b.WriteString(input.WinningOption.Label)
	if input.WinningOption.Description != "" {
		fmt.Fprintf(&b, " (%s)", input.WinningOption.Description)
	}
	fmt.Fprintf(&b, "\nVotes: %d of %d (%.1f%%)\n\n", input.VoteCount, input.TotalVotes, input.Percentage)
	if final {
		b.WriteString(finalInstruction)
	} else {
		b.WriteString(continueInstruction)
	}
	return b.String()
}

// parseOutput извлекает JSON-объект из ответа модели. Модели иногда оборачивают
// ответ в markdown-блок или добавляют текст вокруг него.
func parseOutput(raw string) (*models.GenerationOutput, error) {
	text := strings.TrimSpace(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in response", models.ErrMalformedOutput)
	}
	var out models.GenerationOutput
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedOutput, err)
	}
	out.Title = strings.TrimSpace(out.Title)
	out.Body = strings.TrimSpace(out.Body)
	out.Summary = strings.TrimSpace(out.Summary)
	return &out, nil
}
