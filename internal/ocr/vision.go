package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/MimeLyc/page-narrator/pkg/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const visionSystemPrompt = `You transcribe comic and manga pages.
Return only the text that appears on the page, in reading order.
Put each speech balloon or caption box in its own paragraph separated by a blank line.
Do not translate, describe artwork, or add commentary. Return nothing if the page has no text.`

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type VisionConfig struct {
	APIKey      string
	APIURL      string
	Model       string
	Timeout     time.Duration
	Concurrency int
	Language    language.Tag
}

// Vision recognizes pages with an OpenAI-compatible vision model. Pages are
// sent concurrently; results keep page order.
type Vision struct {
	client      chatCompleter
	model       string
	concurrency int
	hint        string
}

func NewVision(cfg VisionConfig) (*Vision, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("vision OCR requires an API key")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.APIURL, "/")
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return newVision(openai.NewClientWithConfig(clientCfg), cfg), nil
}

func newVision(client chatCompleter, cfg VisionConfig) *Vision {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Vision{
		client:      client,
		model:       cfg.Model,
		concurrency: concurrency,
		hint:        languageHint(cfg.Language),
	}
}

func (v *Vision) Recognize(ctx context.Context, pages []pipeline.Page, progress pipeline.ProgressFunc) ([]pipeline.OCRResult, error) {
	results := make([]pipeline.OCRResult, len(pages))

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)

	for i, page := range pages {
		g.Go(func() error {
			text, err := v.recognizePage(gctx, page)
			if err != nil {
				return fmt.Errorf("recognize %s: %w", page.Name, err)
			}
			results[i] = pipeline.OCRResult{PageID: page.ID, Text: text}

			// Reported under the lock so fractions arrive in order.
			mu.Lock()
			done++
			if progress != nil {
				progress(float64(done) / float64(len(pages)))
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (v *Vision) recognizePage(ctx context.Context, page pipeline.Page) (string, error) {
	dataURL, err := imageDataURL(page.Path)
	if err != nil {
		return "", err
	}

	prompt := "Transcribe this page."
	if v.hint != "" {
		prompt += " " + v.hint
	}

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       v.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: visionSystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from model %s", v.model)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	log.Debug("Recognized %s: %d chars", page.Name, len([]rune(text)))
	return text, nil
}

func imageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func languageHint(tag language.Tag) string {
	if tag == language.Und {
		return ""
	}
	name := display.English.Tags().Name(tag)
	if name == "" {
		return ""
	}
	return fmt.Sprintf("The text is most likely in %s.", name)
}
