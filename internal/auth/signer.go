package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/satriahrh/suara/domain"
)

const (
	signatureAlgorithm = "hmac-sha256"
	signedHeaders      = "host date request-line"
)

// AuthToken is the time-bound authorization for one connection attempt.
// It is recomputed for every attempt and never cached.
type AuthToken struct {
	APIKey        string
	Signature     string // base64 HMAC digest of the canonical string
	Authorization string // base64 of the structured auth string
	Date          string
}

// Signer builds recognizer connection URLs signed with the account credentials
type Signer struct {
	host   string
	path   string
	apiKey string
	secret []byte
}

// NewSigner validates the credentials up front. An empty key or secret is a
// configuration error and no signer is created.
func NewSigner(host, path, apiKey, apiSecret string) (*Signer, error) {
	if host == "" {
		return nil, &domain.ConfigError{Field: "recognizer.host", Reason: "cannot be empty"}
	}
	if path == "" {
		return nil, &domain.ConfigError{Field: "recognizer.path", Reason: "cannot be empty"}
	}
	if apiKey == "" {
		return nil, &domain.ConfigError{Field: "recognizer.api_key", Reason: "cannot be empty"}
	}
	if apiSecret == "" {
		return nil, &domain.ConfigError{Field: "recognizer.api_secret", Reason: "cannot be empty"}
	}

	return &Signer{
		host:   host,
		path:   path,
		apiKey: apiKey,
		secret: []byte(apiSecret),
	}, nil
}

// Sign derives the authorization for the given instant
func (s *Signer) Sign(now time.Time) AuthToken {
	date := now.UTC().Format(http.TimeFormat)

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(s.canonicalString(date)))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	// The recognizer expects the already-encoded signature wrapped and encoded again.
	origin := fmt.Sprintf(`api_key="%s", algorithm="%s", headers="%s", signature="%s"`,
		s.apiKey, signatureAlgorithm, signedHeaders, signature)

	return AuthToken{
		APIKey:        s.apiKey,
		Signature:     signature,
		Authorization: base64.StdEncoding.EncodeToString([]byte(origin)),
		Date:          date,
	}
}

// URL returns the signed connection URL for the given scheme and instant
func (s *Signer) URL(scheme string, now time.Time) string {
	token := s.Sign(now)

	u := url.URL{Scheme: scheme, Host: s.host, Path: s.path}
	q := u.Query()
	q.Set("authorization", token.Authorization)
	q.Set("date", token.Date)
	q.Set("host", s.host)
	u.RawQuery = q.Encode()

	return u.String()
}

func (s *Signer) canonicalString(date string) string {
	return fmt.Sprintf("host: %s\ndate: %s\nGET %s HTTP/1.1", s.host, date, s.path)
}

// RedactURL strips the authorization parameter so a connection URL can be logged
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has("authorization") {
		q.Set("authorization", "REDACTED")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
