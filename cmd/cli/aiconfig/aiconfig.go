// Package aiconfig builds the OpenAI client of the command line tools from the environment.
package aiconfig

import (
	"os"

	"github.com/myrjola/misterio/internal/ai"
	"github.com/myrjola/misterio/internal/envstruct"
	"github.com/myrjola/misterio/internal/errors"
)

type config struct {
	APIKey    string `env:"OPENAI_API_KEY"`
	BaseURL   string `env:"OPENAI_BASE_URL" envDefault:""`
	ChatModel string `env:"MISTERIO_CHAT_MODEL" envDefault:"gpt-4o-mini"`
}

// NewClient requires OPENAI_API_KEY.
func NewClient() (*ai.Client, error) {
	var cfg config
	if err := envstruct.Populate(&cfg, os.LookupEnv); err != nil {
		return nil, errors.Wrap(err, "populate config")
	}
	return ai.NewClient(ai.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, ChatModel: cfg.ChatModel}), nil
}
