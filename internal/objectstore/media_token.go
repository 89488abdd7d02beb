package objectstore

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MediaPathPrefix is the route the service serves signed objects under.
const MediaPathPrefix = "/media/"

// MediaTokenParam is the query parameter that carries the token.
const MediaTokenParam = "token"

const mediaTokenIssuer = "lipsync-service"

var (
	// ErrMediaSecretEmpty indicates a signer without a key.
	ErrMediaSecretEmpty = errors.New("media token secret cannot be empty")
	// ErrMediaTokenInvalid indicates a token that is malformed, expired or for another key.
	ErrMediaTokenInvalid = errors.New("media token invalid")
)

// MediaSigner mints and checks HS256 tokens that grant read access to a
// single object key until they expire.
type MediaSigner struct {
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewMediaSigner creates a signer whose links point at baseURL.
func NewMediaSigner(baseURL, secret string) (*MediaSigner, error) {
	if secret == "" {
		return nil, ErrMediaSecretEmpty
	}

	return &MediaSigner{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		now:     time.Now,
	}, nil
}

// Token returns a token for key valid for ttl.
func (s *MediaSigner) Token(key string, ttl time.Duration) (string, error) {
	issued := s.now()

	claims := jwt.RegisteredClaims{
		Issuer:    mediaTokenIssuer,
		Subject:   key,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign media token for '%s': %w", key, err)
	}

	return signed, nil
}

// Link returns <baseURL>/media/<key>?token=<token>.
func (s *MediaSigner) Link(key string, ttl time.Duration) (string, error) {
	token, err := s.Token(key, ttl)
	if err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set(MediaTokenParam, token)

	return s.baseURL + MediaPathPrefix + key + "?" + query.Encode(), nil
}

// Verify checks that token is a live token for key.
func (s *MediaSigner) Verify(key, token string) error {
	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(mediaTokenIssuer),
		jwt.WithSubject(key),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMediaTokenInvalid, err)
	}

	return nil
}
