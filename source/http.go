package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

const maxGrantBody = 1 << 20

// HTTPConfig configures an [HTTPSource].
type HTTPConfig struct {
	// BaseURL is the service root; requests go to
	// <BaseURL>/organizations/{org}/users/{user}/permissions.
	BaseURL string
	// Token is sent as a bearer credential when set.
	Token   string
	Timeout time.Duration

	// BreakerFailures is the number of consecutive failures that opens the breaker.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open before probing.
	BreakerCooldown time.Duration

	Client *http.Client
	Logger zerolog.Logger
}

type grantPayload struct {
	UserID         string         `json:"user_id" validate:"omitempty,max=256"`
	OrganizationID string         `json:"organization_id" validate:"omitempty,max=256"`
	RoleID         string         `json:"role_id" validate:"omitempty,max=128"`
	RoleName       string         `json:"role_name" validate:"omitempty,max=128,printascii"`
	Permissions    map[string]any `json:"permissions" validate:"omitempty,dive,keys,required,max=128,endkeys"`
}

// HTTPSource fetches grants from a remote permission service.
type HTTPSource struct {
	base     string
	token    string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[*Grant]
	validate *validator.Validate
	log      zerolog.Logger
}

// NewHTTPSource builds an [HTTPSource].
func NewHTTPSource(cfg HTTPConfig) (*HTTPSource, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("source base url required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("source base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}

	log := cfg.Logger.With().Str("component", "source.http").Logger()
	failures := cfg.BreakerFailures

	breaker := gobreaker.NewCircuitBreaker[*Grant](gobreaker.Settings{
		Name:        "permission-source",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Answers from a reachable service do not count against it.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrSourceNotFound) ||
				errors.Is(err, ErrSourceUnauthorized) || errors.Is(err, ErrSourceMalformed)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})

	return &HTTPSource{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		client:   cfg.Client,
		breaker:  breaker,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}, nil
}

// Fetch performs one request through the breaker.
func (s *HTTPSource) Fetch(ctx context.Context, userID, organizationID string) (*Grant, error) {
	grant, err := s.breaker.Execute(func() (*Grant, error) {
		return s.fetch(ctx, userID, organizationID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		return nil, err
	}
	return grant, nil
}

// BreakerState reports the current breaker state name.
func (s *HTTPSource) BreakerState() string {
	return s.breaker.State().String()
}

func (s *HTTPSource) endpoint(userID, organizationID string) string {
	return s.base + "/organizations/" + url.PathEscape(organizationID) +
		"/users/" + url.PathEscape(userID) + "/permissions"
}

func (s *HTTPSource) fetch(ctx context.Context, userID, organizationID string) (*Grant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(userID, organizationID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrSourceUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrSourceNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGrantBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	var payload grantPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceMalformed, err)
	}
	if err := s.validate.Struct(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceMalformed, err)
	}
	if (payload.UserID != "" && payload.UserID != userID) ||
		(payload.OrganizationID != "" && payload.OrganizationID != organizationID) {
		return nil, fmt.Errorf("%w: grant addressed to a different key", ErrSourceMalformed)
	}

	if payload.Permissions == nil {
		s.log.Warn().Str("user_id", userID).Str("organization_id", organizationID).Msg("grant has no permissions map")
	}

	return &Grant{
		RoleID:      payload.RoleID,
		RoleName:    payload.RoleName,
		Permissions: payload.Permissions,
	}, nil
}
