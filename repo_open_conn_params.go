package ws2mongo

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

const (
	DefaultKeyHeader    = "APCA-API-KEY-ID"
	DefaultSecretHeader = "APCA-API-SECRET-KEY"
)

type (
	// OpenConnectionParams is everything the handshake needs. Header only carries
	// application headers; the upgrade headers are generated by the dialer.
	OpenConnectionParams struct {
		URL    url.URL
		Header http.Header
		Secure bool
	}

	OpenConnectionParamsGetter func(ctx context.Context) (OpenConnectionParams, error)

	OpenConnectionParamsRepo struct {
		logger logger
		getter OpenConnectionParamsGetter
	}
)

func (r OpenConnectionParamsRepo) Get(
	ctx context.Context,
) (params OpenConnectionParams, err error) {
	params, err = r.getter(ctx)
	if err != nil {
		r.logger.Errorf("cannot fetch open connection params: %s", err)
	}
	return
}

func NewOpenConnectionParamsRepo(
	logger logger,
	getter OpenConnectionParamsGetter,
) OpenConnectionParamsRepo {
	return OpenConnectionParamsRepo{getter: getter, logger: logger}
}

// EndpointParamsGetter resolves the endpoint once and hands out copies of the result.
// The key and secret headers are attached only when both values are configured.
func EndpointParamsGetter(ep EndpointConfig) (OpenConnectionParamsGetter, error) {
	raw, err := url.Parse(ep.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid endpoint url %q", ep.URL)
	}

	u, secure, err := resolveScheme(*raw)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if ep.APIKey != "" && ep.APISecret != "" {
		header.Set(orDefault(ep.KeyHeader, DefaultKeyHeader), ep.APIKey)
		header.Set(orDefault(ep.SecretHeader, DefaultSecretHeader), ep.APISecret)
	}

	return func(context.Context) (OpenConnectionParams, error) {
		return OpenConnectionParams{URL: u, Header: header.Clone(), Secure: secure}, nil
	}, nil
}

// resolveScheme maps the endpoint scheme to the websocket scheme to dial and reports
// whether the channel must be encrypted.
func resolveScheme(u url.URL) (url.URL, bool, error) {
	switch u.Scheme {
	case "ws", "http":
		u.Scheme = "ws"
		return u, false, nil
	case "wss", "https":
		u.Scheme = "wss"
		return u, true, nil
	default:
		return u, false, errors.Wrapf(ErrUnsupportedScheme, "%q", u.Scheme)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
