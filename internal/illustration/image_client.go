package illustration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"novel-vote-server/internal/config"
	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/models"

	"go.uber.org/zap"
)

const (
	defaultRatio     = "3:2"
	maxPromptExcerpt = 600
)

// imageAPIRequest - тело запроса к серверу генерации изображений.
type imageAPIRequest struct {
	Prompt string `json:"prompt"`
	Ratio  string `json:"ratio"`
}

// ImageClient вызывает HTTP-сервер генерации изображений.
type ImageClient struct {
	baseURL     string
	styleSuffix string
	client      *http.Client
	logger      *zap.Logger
}

var _ interfaces.ImageGenerator = (*ImageClient)(nil)

// NewImageClient создает клиент генератора изображений.
func NewImageClient(cfg config.ImageServerConfig, logger *zap.Logger) *ImageClient {
	return &ImageClient{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		styleSuffix: cfg.StyleSuffix,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      logger.Named("ImageClient"),
	}
}

// Generate запрашивает изображение для главы. Ответ не 200 считается ошибкой.
func (c *ImageClient) Generate(ctx context.Context, req models.IllustrationRequest) ([]byte, string, error) {
	log := c.logger.With(zap.String("chapterID", req.ChapterID.String()))

	body, err := json.Marshal(imageAPIRequest{Prompt: c.buildPrompt(req), Ratio: defaultRatio})
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	endpoint := c.baseURL + "/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "image/*")

	log.Debug("Sending request to image server", zap.String("url", endpoint))
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Error("Image server returned non-OK status",
			zap.Int("statusCode", resp.StatusCode),
			zap.ByteString("responseBody", truncateBytes(data, 512)),
		)
		return nil, "", fmt.Errorf("image server returned status %d", resp.StatusCode)
	}
	if readErr != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", readErr)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	log.Info("Image received", zap.Int("sizeBytes", len(data)), zap.String("contentType", contentType))
	return data, contentType, nil
}

func (c *ImageClient) buildPrompt(req models.IllustrationRequest) string {
	var b strings.Builder
	b.WriteString(req.Title)
	if req.GenreHint != "" {
		fmt.Fprintf(&b, ", %s story", req.GenreHint)
	}
	if excerpt := excerpt(req.Body, maxPromptExcerpt); excerpt != "" {
		b.WriteString(". ")
		b.WriteString(excerpt)
	}
	if req.Style != "" {
		fmt.Fprintf(&b, ", %s style", req.Style)
	}
	b.WriteString(c.styleSuffix)
	return b.String()
}

func excerpt(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes])
}

func truncateBytes(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
