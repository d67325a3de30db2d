package client

import (
	"github.com/squidcloud/squid-go/internal/codec"
)

// Options configure a client instance. Two clients built from options with
// the same Key are interchangeable.
type Options struct {
	AppID       string `cbor:"appId" json:"appId" mapstructure:"app_id"`
	Region      string `cbor:"region" json:"region" mapstructure:"region"`
	Environment string `cbor:"environment,omitempty" json:"environment,omitempty" mapstructure:"environment"`
	DeveloperID string `cbor:"developerId,omitempty" json:"developerId,omitempty" mapstructure:"developer_id"`
	APIKey      string `cbor:"apiKey,omitempty" json:"-" mapstructure:"api_key"`

	// Endpoint is the URL of the realtime backend.
	Endpoint  string `cbor:"endpoint,omitempty" json:"endpoint,omitempty" mapstructure:"endpoint"`
	Namespace string `cbor:"namespace,omitempty" json:"namespace,omitempty" mapstructure:"namespace"`
	Database  string `cbor:"database,omitempty" json:"database,omitempty" mapstructure:"database"`
	Username  string `cbor:"username,omitempty" json:"username,omitempty" mapstructure:"username"`
	Password  string `cbor:"password,omitempty" json:"-" mapstructure:"password"`

	// OpenAIKey enables the AI agent backend.
	OpenAIKey   string `cbor:"openaiKey,omitempty" json:"-" mapstructure:"openai_key"`
	OpenAIModel string `cbor:"openaiModel,omitempty" json:"openaiModel,omitempty" mapstructure:"openai_model"`
}

// Key identifies the option tuple.
func (o Options) Key() string {
	return codec.Key(o)
}
