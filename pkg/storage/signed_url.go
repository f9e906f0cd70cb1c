package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken is returned for malformed or tampered tokens.
	ErrInvalidToken = errors.New("invalid link token")
	// ErrTokenExpired is returned for well-formed tokens past their expiry.
	ErrTokenExpired = errors.New("link token expired")
)

// Link is the metadata carried by a signed public link.
type Link struct {
	Subject   string
	Path      string
	ExpiresAt time.Time
}

// SignedURLSigner creates and validates HMAC-signed public link tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Sign returns a token binding the subject (a lesson id) to a stored file path.
func (s *SignedURLSigner) Sign(subject, relPath string) (string, time.Time, error) {
	if subject == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("subject and path required")
	}
	if strings.Contains(subject, ".") {
		return "", time.Time{}, fmt.Errorf("subject must not contain '.'")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).UTC()
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	token := strings.Join([]string{subject, ts, encodedPath, s.signature(subject, ts, encodedPath)}, ".")
	return token, expiresAt, nil
}

// Verify checks the signature and expiry of a token and returns its metadata.
func (s *SignedURLSigner) Verify(token string) (*Link, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return nil, ErrInvalidToken
	}
	subject, ts, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	expected := s.signature(subject, ts, encodedPath)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, ErrInvalidToken
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return nil, ErrInvalidToken
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	link := &Link{Subject: subject, Path: string(rawPath), ExpiresAt: time.Unix(expUnix, 0).UTC()}
	if s.now().After(link.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	return link, nil
}

func (s *SignedURLSigner) signature(subject, ts, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(subject + "|" + ts + "|" + encodedPath))
	return hex.EncodeToString(mac.Sum(nil))
}
