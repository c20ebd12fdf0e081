package ai

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"

	"github.com/myrjola/misterio/internal/errors"
	"github.com/sashabaranov/go-openai"
)

var ErrEmptyCompletion = errors.NewSentinel("completion has no choices")

const (
	MaxTokens        = 1024
	DefaultChatModel = "gpt-4o-mini"
	DefaultVoice     = openai.VoiceNova
)

type Config struct {
	APIKey    string
	BaseURL   string
	ChatModel string
}

type Client struct {
	client    *openai.Client
	chatModel string
}

func NewClient(cfg Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.ChatModel
	if model == "" {
		model = DefaultChatModel
	}
	return &Client{
		client:    openai.NewClientWithConfig(clientConfig),
		chatModel: model,
	}
}

// SyncCompletion requests a single, non-streamed chat completion.
func (c *Client) SyncCompletion(
	ctx context.Context,
	messages []openai.ChatCompletionMessage,
) (openai.ChatCompletionResponse, error) {
	completion, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
			Model:     c.chatModel,
			MaxTokens: MaxTokens,
			Messages:  messages,
		},
	)
	if err != nil {
		return openai.ChatCompletionResponse{}, errors.Wrap(err, "create chat completion",
			slog.String("model", c.chatModel))
	}
	return completion, nil
}

// Complete returns the content of the first choice of a chat completion.
func Complete(ctx context.Context, c Completer, messages []openai.ChatCompletionMessage) (string, error) {
	completion, err := c.SyncCompletion(ctx, messages)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.Wrap(ErrEmptyCompletion, "read completion")
	}
	return completion.Choices[0].Message.Content, nil
}

// Completer is the chat completion service consumed by case generation and conversations.
type Completer interface {
	SyncCompletion(ctx context.Context, messages []openai.ChatCompletionMessage) (openai.ChatCompletionResponse, error)
}

// Speak synthesizes text into MP3 audio. The caller must close the returned reader.
func (c *Client) Speak(ctx context.Context, text string, voice openai.SpeechVoice, speed float64) (io.ReadCloser, error) {
	if voice == "" {
		voice = DefaultVoice
	}
	audio, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          speed,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create speech", slog.String("voice", string(voice)))
	}
	return audio, nil
}

// GenerateImage renders prompt with DALL-E and returns the PNG bytes.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	response, err := c.client.CreateImage(ctx, openai.ImageRequest{ //nolint:exhaustruct // defaults are fine
		Model:          openai.CreateImageModelDallE3,
		Prompt:         prompt,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		N:              1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create image")
	}
	if len(response.Data) == 0 {
		return nil, errors.New("image response has no data")
	}
	img, err := base64.StdEncoding.DecodeString(response.Data[0].B64JSON)
	if err != nil {
		return nil, errors.Wrap(err, "base64 decode image")
	}
	return img, nil
}
