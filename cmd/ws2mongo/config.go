package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/sonirico/ws2mongo"
)

// envBindings maps config keys to the environment variables they are read from.
var envBindings = map[string]string{
	"endpoint.url":           "WEBSOCKET_URL",
	"endpoint.api_key":       "WEBSOCKET_API_KEY",
	"endpoint.api_secret":    "WEBSOCKET_API_SECRET",
	"endpoint.key_header":    "WEBSOCKET_KEY_HEADER",
	"endpoint.secret_header": "WEBSOCKET_SECRET_HEADER",
	"store.uri":              "MONGODB_URI",
	"store.database":         "DATABASE_NAME",
	"store.collection":       "COLLECTION_NAME",
	"store.username":         "MONGODB_USER",
	"store.password":         "MONGODB_PASSWORD",
	"store.auth_source":      "MONGODB_AUTH_SOURCE",
	"store.auth_mechanism":   "MONGODB_AUTH_MECHANISM",
	"queue_capacity":         "QUEUE_CAPACITY",
	"reconnect_delay":        "RECONNECT_DELAY",
	"initial_messages":       "INITIAL_MESSAGES",
	"log.level":              "LOG_LEVEL",
	"log.encoding":           "LOG_ENCODING",
	"log.development":        "LOG_DEVELOPMENT",
	"metrics.addr":           "METRICS_ADDR",
}

func newViper() *viper.Viper {
	v := viper.New()
	def := ws2mongo.DefaultConfig()

	v.SetDefault("endpoint.url", def.Endpoint.URL)
	v.SetDefault("endpoint.key_header", def.Endpoint.KeyHeader)
	v.SetDefault("endpoint.secret_header", def.Endpoint.SecretHeader)
	v.SetDefault("store.uri", def.Store.URI)
	v.SetDefault("queue_capacity", def.QueueCapacity)
	v.SetDefault("reconnect_delay", def.ReconnectDelay)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.encoding", def.Log.Encoding)

	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	return v
}

// loadConfig resolves the configuration from defaults, the optional file and the
// environment, in increasing order of precedence. Validation is left to the command,
// since tail needs no store.
func loadConfig(v *viper.Viper, file string) (ws2mongo.Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return ws2mongo.Config{}, errors.Wrapf(err, "cannot read config file %s", file)
		}
	}

	cfg := ws2mongo.Config{
		Endpoint: ws2mongo.EndpointConfig{
			URL:          v.GetString("endpoint.url"),
			APIKey:       v.GetString("endpoint.api_key"),
			APISecret:    v.GetString("endpoint.api_secret"),
			KeyHeader:    v.GetString("endpoint.key_header"),
			SecretHeader: v.GetString("endpoint.secret_header"),
		},
		Store: ws2mongo.StoreConfig{
			URI:           v.GetString("store.uri"),
			Database:      v.GetString("store.database"),
			Collection:    v.GetString("store.collection"),
			Username:      v.GetString("store.username"),
			Password:      v.GetString("store.password"),
			AuthSource:    v.GetString("store.auth_source"),
			AuthMechanism: v.GetString("store.auth_mechanism"),
		},
		QueueCapacity:   v.GetInt("queue_capacity"),
		ReconnectDelay:  v.GetDuration("reconnect_delay"),
		InitialMessages: initialMessages(v),
		Log: ws2mongo.LogConfig{
			Level:       v.GetString("log.level"),
			Encoding:    v.GetString("log.encoding"),
			Development: v.GetBool("log.development"),
		},
		Metrics: ws2mongo.MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
	}

	return cfg, nil
}

// initialMessages accepts a list from the config file or a newline separated value
// from the environment.
func initialMessages(v *viper.Viper) []string {
	raw := v.Get("initial_messages")
	if s, ok := raw.(string); ok {
		var out []string
		for _, line := range strings.Split(s, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
		return out
	}
	return v.GetStringSlice("initial_messages")
}
