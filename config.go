package ws2mongo

import (
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/pkg/errors"
)

const redacted = "********"

type (
	// EndpointConfig describes the socket to subscribe to.
	EndpointConfig struct {
		URL          string `json:"url"`
		APIKey       string `json:"api_key,omitempty"`
		APISecret    string `json:"api_secret,omitempty"`
		KeyHeader    string `json:"key_header,omitempty"`
		SecretHeader string `json:"secret_header,omitempty"`
	}

	// StoreConfig describes the document store and where records land.
	StoreConfig struct {
		URI           string `json:"uri"`
		Database      string `json:"database"`
		Collection    string `json:"collection"`
		Username      string `json:"username,omitempty"`
		Password      string `json:"password,omitempty"`
		AuthSource    string `json:"auth_source,omitempty"`
		AuthMechanism string `json:"auth_mechanism,omitempty"`
	}

	LogConfig struct {
		Level       string `json:"level"`
		Encoding    string `json:"encoding"`
		Development bool   `json:"development"`
	}

	MetricsConfig struct {
		Addr string `json:"addr,omitempty"`
	}

	// Config is the fully resolved process configuration. It is built once at the
	// process boundary and passed by value.
	Config struct {
		Endpoint        EndpointConfig `json:"endpoint"`
		Store           StoreConfig    `json:"store"`
		QueueCapacity   int            `json:"queue_capacity"`
		ReconnectDelay  time.Duration  `json:"-"`
		InitialMessages []string       `json:"initial_messages,omitempty"`
		Log             LogConfig      `json:"log"`
		Metrics         MetricsConfig  `json:"metrics"`
	}
)

// DefaultConfig holds the values used when nothing else is configured. Database and
// collection have no default; the auth source is left empty so the mechanism can pick
// it (see ResolvedAuthSource and ResolveCredential).
func DefaultConfig() Config {
	return Config{
		Endpoint: EndpointConfig{
			URL:          "ws://localhost:5678",
			KeyHeader:    DefaultKeyHeader,
			SecretHeader: DefaultSecretHeader,
		},
		Store: StoreConfig{
			URI: "mongodb://localhost:27017",
		},
		QueueCapacity:  DefaultQueueCapacity,
		ReconnectDelay: DefaultReconnectDelay,
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// ResolvedAuthSource returns the auth source, falling back to DefaultAuthSource.
func (c StoreConfig) ResolvedAuthSource() string {
	return orDefault(c.AuthSource, DefaultAuthSource)
}

// Validate reports the first fatal problem with c.
func (c Config) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"endpoint.url", c.Endpoint.URL},
		{"store.uri", c.Store.URI},
		{"store.database", c.Store.Database},
		{"store.collection", c.Store.Collection},
	}
	for _, r := range required {
		if r.value == "" {
			return ErrMissingConfig{Field: r.field}
		}
	}

	if c.Endpoint.APIKey != "" && c.Endpoint.APISecret == "" {
		return ErrMissingConfig{Field: "endpoint.api_secret"}
	}
	if c.Endpoint.APISecret != "" && c.Endpoint.APIKey == "" {
		return ErrMissingConfig{Field: "endpoint.api_key"}
	}

	if _, err := EndpointParamsGetter(c.Endpoint); err != nil {
		return err
	}

	if _, err := ParseAuthMechanism(c.Store.AuthMechanism); err != nil {
		return err
	}

	if c.QueueCapacity < 0 {
		return errors.Errorf("queue capacity must not be negative, got %d", c.QueueCapacity)
	}

	return nil
}

// Messages returns the initial messages as text frames.
func (c Config) Messages() []Message {
	msgs := make([]Message, 0, len(c.InitialMessages))
	for _, m := range c.InitialMessages {
		msgs = append(msgs, NewTextMessage(m))
	}
	return msgs
}

// Redacted returns a copy of c with every secret masked.
func (c Config) Redacted() Config {
	out := c
	out.InitialMessages = append([]string(nil), c.InitialMessages...)
	if out.Endpoint.APIKey != "" {
		out.Endpoint.APIKey = redacted
	}
	if out.Endpoint.APISecret != "" {
		out.Endpoint.APISecret = redacted
	}
	if out.Store.Password != "" {
		out.Store.Password = redacted
	}
	return out
}

// JSON renders the redacted configuration as indented JSON.
func (c Config) JSON() ([]byte, error) {
	type printable struct {
		Config
		ReconnectDelay string `json:"reconnect_delay"`
	}

	r := c.Redacted()
	bts, err := gojson.MarshalIndent(printable{Config: r, ReconnectDelay: r.ReconnectDelay.String()}, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "cannot serialize config")
	}
	return bts, nil
}
