// Package secrets extracts and validates client credentials. Parsers try
// extraction strategies in a fixed priority order; validators compare the
// extracted credential against the client's stored secrets.
package secrets

import (
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

// Parsed secret types.
const (
	TypeSharedSecret = "shared_secret"
	// TypeNone marks a request that identified a client without presenting a
	// credential. Valid only for public-client flows.
	TypeNone = "none"
)

// ParsedSecret is a client credential extracted from a request.
type ParsedSecret struct {
	ID         string
	Credential string
	Type       string
}

// Parser extracts a client credential from a request. Returning (nil, nil)
// means this strategy does not apply; the chain moves on.
type Parser interface {
	Parse(r *http.Request) (*ParsedSecret, error)
}

// BasicAuthParser reads RFC 6749 §2.3.1 HTTP basic credentials. Client id and
// secret are form-url-encoded inside the basic auth value.
type BasicAuthParser struct{}

func (BasicAuthParser) Parse(r *http.Request) (*ParsedSecret, error) {
	id, secret, ok := r.BasicAuth()
	if !ok || id == "" {
		return nil, nil
	}
	decodedID, err := url.QueryUnescape(id)
	if err != nil {
		return nil, nil
	}
	decodedSecret, err := url.QueryUnescape(secret)
	if err != nil {
		return nil, nil
	}
	if decodedSecret == "" {
		return &ParsedSecret{ID: decodedID, Type: TypeNone}, nil
	}
	return &ParsedSecret{ID: decodedID, Credential: decodedSecret, Type: TypeSharedSecret}, nil
}

// PostBodyParser reads client_id / client_secret form body parameters.
type PostBodyParser struct{}

func (PostBodyParser) Parse(r *http.Request) (*ParsedSecret, error) {
	id := r.PostFormValue("client_id")
	if id == "" {
		return nil, nil
	}
	secret := r.PostFormValue("client_secret")
	if secret == "" {
		return &ParsedSecret{ID: id, Type: TypeNone}, nil
	}
	return &ParsedSecret{ID: id, Credential: secret, Type: TypeSharedSecret}, nil
}

// ParserChain tries each parser in registration order and returns the first
// successful extraction. Returns (nil, nil) when no parser matches, meaning
// the caller must treat the client as unauthenticated.
type ParserChain struct {
	parsers []Parser
	logger  zerolog.Logger
}

func NewParserChain(logger zerolog.Logger, parsers ...Parser) *ParserChain {
	if len(parsers) == 0 {
		parsers = []Parser{BasicAuthParser{}, PostBodyParser{}}
	}
	return &ParserChain{parsers: parsers, logger: logger}
}

func (c *ParserChain) Parse(r *http.Request) (*ParsedSecret, error) {
	for _, p := range c.parsers {
		parsed, err := p.Parse(r)
		if err != nil {
			return nil, err
		}
		if parsed != nil {
			c.logger.Debug().Str("client_id", parsed.ID).Str("secret_type", parsed.Type).Msg("client credential parsed")
			return parsed, nil
		}
	}
	return nil, nil
}
