package gcal

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	cserrors "github.com/p-blackswan/calsync-agent/internal/errors"
	"github.com/p-blackswan/calsync-agent/internal/retry"
	"github.com/p-blackswan/calsync-agent/pkg/tokenstore"
)

const (
	calendarScope   = "https://www.googleapis.com/auth/calendar"
	defaultTokenURI = "https://oauth2.googleapis.com/token"
	jwtBearerGrant  = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// tokenCacheKey is the tokenstore key for the calendar access token.
	tokenCacheKey = "gcal-access-token"

	// tokenEarlyExpiry is shaved off the reported lifetime so a token is
	// never presented moments before it lapses mid-run.
	tokenEarlyExpiry = 60 * time.Second
)

// ServiceAccount holds the fields of a Google service account key file the
// token exchange needs.
type ServiceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// LoadServiceAccount reads service account credentials from a key file path
// or inline JSON content; the path takes precedence. Both empty is a fatal
// startup condition.
func LoadServiceAccount(path, inline string) (*ServiceAccount, error) {
	var raw []byte
	switch {
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading service account file: %w", err)
		}
		raw = data
	case inline != "":
		raw = []byte(inline)
	default:
		return nil, cserrors.ErrNoCredentials
	}

	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("parsing service account JSON: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, fmt.Errorf("service account JSON missing client_email or private_key: %w", cserrors.ErrNoCredentials)
	}
	if sa.TokenURI == "" {
		sa.TokenURI = defaultTokenURI
	}
	return &sa, nil
}

// JWTTokenSource mints calendar-scoped access tokens by signing a
// service-account assertion and exchanging it at the token endpoint.
// Tokens are cached until shortly before expiry.
type JWTTokenSource struct {
	account    *ServiceAccount
	privateKey *rsa.PrivateKey
	httpClient HTTPClient
	cache      tokenstore.Store
	retryCfg   retry.Config
	logger     zerolog.Logger
}

// NewTokenSource creates a token source from service account credentials.
func NewTokenSource(sa *ServiceAccount, cache tokenstore.Store, logger zerolog.Logger) (*JWTTokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parsing service account private key: %w", err)
	}

	return &JWTTokenSource{
		account:    sa,
		privateKey: key,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
		retryCfg:   retry.DefaultConfig(),
		logger:     logger.With().Str("component", "gcal_auth").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (s *JWTTokenSource) SetHTTPClient(hc HTTPClient) {
	s.httpClient = hc
}

// Token returns a valid access token, minting a new one if the cached token
// is missing or expired.
func (s *JWTTokenSource) Token(ctx context.Context) (string, error) {
	if tok, err := s.cache.Get(ctx, tokenCacheKey); err == nil {
		return tok.Value, nil
	}

	var token string
	var ttl time.Duration
	err := retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		var exchErr error
		token, ttl, exchErr = s.exchange(ctx)
		return exchErr
	})
	if err != nil {
		return "", fmt.Errorf("exchanging service account assertion: %w", err)
	}

	if err := s.cache.Set(ctx, tokenCacheKey, token, ttl); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache access token")
	}
	return token, nil
}

// signAssertion builds the RS256-signed JWT presented to the token endpoint.
func (s *JWTTokenSource) signAssertion() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   s.account.ClientEmail,
		"scope": calendarScope,
		"aud":   s.account.TokenURI,
		"iat":   jwt.NewNumericDate(now),
		"exp":   jwt.NewNumericDate(now.Add(time.Hour)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing assertion: %w", err)
	}
	return signed, nil
}

func (s *JWTTokenSource) exchange(ctx context.Context) (string, time.Duration, error) {
	assertion, err := s.signAssertion()
	if err != nil {
		return "", 0, err
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.account.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("executing token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", 0, cserrors.NewAPIError("oauth", resp.StatusCode, string(respBody))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", 0, fmt.Errorf("decoding token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", 0, fmt.Errorf("token endpoint returned no access_token: %w", cserrors.ErrAuthFailure)
	}

	ttl := time.Duration(payload.ExpiresIn)*time.Second - tokenEarlyExpiry
	if ttl <= 0 {
		ttl = time.Minute
	}

	s.logger.Debug().Dur("ttl", ttl).Msg("access token minted")
	return payload.AccessToken, ttl, nil
}
