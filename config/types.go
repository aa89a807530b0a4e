package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

// Config is the full configuration of an Azure Repos client and the CLI
// built on it. The koanf instance is retained so that sections owned by
// other packages (observability) can be unmarshaled on demand.
type Config struct {
	Azure  AzureConfig  `koanf:"azure" json:"azure" yaml:"azure"`
	Client ClientConfig `koanf:"client" json:"client" yaml:"client"`
	Log    LogConfig    `koanf:"log" json:"log" yaml:"log"`

	k *koanf.Koanf `json:"-" yaml:"-"`
}

// AzureConfig identifies the Azure DevOps repository and the credential
// used to reach it. CollectionURL overrides the dev.azure.com organization
// URL for on-premises servers.
type AzureConfig struct {
	Organization  string `koanf:"organization" json:"organization" yaml:"organization" validate:"required_without=CollectionURL"`
	Project       string `koanf:"project" json:"project" yaml:"project" validate:"required"`
	CollectionURL string `koanf:"collectionurl" json:"collectionurl" yaml:"collectionurl" validate:"omitempty,url"`
	Repository    string `koanf:"repository" json:"repository" yaml:"repository" validate:"required"`
	// Token is the raw personal access token; it is encoded into the
	// Authorization header per request and never pre-encoded here.
	Token string `koanf:"token" json:"-" yaml:"token"`
	// APIVersion overrides the client's default api-version when set.
	APIVersion string `koanf:"apiversion" json:"apiversion" yaml:"apiversion"`
}

// ClientConfig tunes the request executor.
type ClientConfig struct {
	Timeout   time.Duration   `koanf:"timeout" json:"timeout" yaml:"timeout" validate:"gt=0"`
	Retry     RetryConfig     `koanf:"retry" json:"retry" yaml:"retry"`
	RateLimit RateLimitConfig `koanf:"ratelimit" json:"ratelimit" yaml:"ratelimit"`
	Log       ClientLogConfig `koanf:"log" json:"log" yaml:"log"`
}

// RateLimitConfig throttles outbound attempts. RPS of zero disables it.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps" json:"rps" yaml:"rps" validate:"gte=0"`
	Burst int     `koanf:"burst" json:"burst" yaml:"burst" validate:"gte=1"`
}

// RetryConfig holds the retry budget applied to every resource call and the
// fixed delay between attempts.
type RetryConfig struct {
	Count int           `koanf:"count" json:"count" yaml:"count" validate:"gte=0,lte=10"`
	Delay time.Duration `koanf:"delay" json:"delay" yaml:"delay" validate:"gte=0"`
}

// ClientLogConfig controls payload logging of outbound requests.
type ClientLogConfig struct {
	Payloads bool `koanf:"payloads" json:"payloads" yaml:"payloads"`
	MaxBytes int  `koanf:"maxbytes" json:"maxbytes" yaml:"maxbytes" validate:"gte=0"`
}

// LogConfig holds application log settings.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty"`
}
