package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cinelog/internal/types"
)

// tmdbAPIBase is the default TMDB API base URL.
// Overridable in tests via TMDBClientConfig.BaseURL.
const tmdbAPIBase = "https://api.themoviedb.org/3"

// TMDBClientConfig holds the configuration for creating a TMDBHTTPClient.
type TMDBClientConfig struct {
	APIKey  string
	BaseURL string // Override for testing; defaults to tmdbAPIBase
	Logger  *slog.Logger
}

// Person is a single person entry from a TMDB people search.
type Person struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CrewCredit is one crew entry from a person's movie credits. Job identifies
// the role ("Director", "Producer", ...); ReleaseDate is "YYYY-MM-DD" and may
// be empty for unscheduled films.
type CrewCredit struct {
	TMDBID      int64  `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
	Job         string `json:"job"`
}

// tmdbProvidersResponse is the response from /movie/{id}/watch/providers.
// Results is keyed by ISO 3166-1 region code.
type tmdbProvidersResponse struct {
	Results map[string]struct {
		Flatrate []struct {
			ProviderName string `json:"provider_name"`
		} `json:"flatrate"`
	} `json:"results"`
}

// tmdbPersonSearchResponse is the response from /search/person.
type tmdbPersonSearchResponse struct {
	Results []Person `json:"results"`
}

// tmdbCreditsResponse is the response from /person/{id}/movie_credits.
type tmdbCreditsResponse struct {
	Crew []CrewCredit `json:"crew"`
}

// TMDBHTTPClient implements MetadataClient by making direct HTTP calls to the
// TMDB REST API through BaseClient. This routes all requests through the
// resilience infrastructure (circuit breaker, retries, error mapping) and
// makes testing with httptest straightforward.
type TMDBHTTPClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewTMDBClient creates a new TMDBHTTPClient. The httpClient timeout should
// be set appropriately for the TMDB API (e.g., 15 seconds).
func NewTMDBClient(
	httpClient *http.Client,
	cfg TMDBClientConfig,
) *TMDBHTTPClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = tmdbAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"tmdb",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    1 * time.Second,
			MaxWait:    10 * time.Second,
		},
		"CineLog/1.0",
	)

	return &TMDBHTTPClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// NewTMDBClientWithBase creates a TMDBHTTPClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration (e.g., disable retries).
func NewTMDBClientWithBase(
	base *BaseClient,
	cfg TMDBClientConfig,
) *TMDBHTTPClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = tmdbAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &TMDBHTTPClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// WatchProviders returns the subscription (flatrate) provider names offering
// the movie in the given region. Rental and purchase offerings are ignored.
// Returns an empty slice when the movie has no subscription availability in
// the region.
//
// GET /movie/{id}/watch/providers
func (c *TMDBHTTPClient) WatchProviders(ctx context.Context, tmdbID int64, region string) ([]string, error) {
	if tmdbID <= 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"catalog id is required for a provider lookup",
			nil,
		)
	}

	endpoint := fmt.Sprintf("%s/movie/%d/watch/providers", c.baseURL, tmdbID)

	var providersResp tmdbProvidersResponse
	if err := c.getJSON(ctx, endpoint, nil, &providersResp, "WatchProviders"); err != nil {
		return nil, err
	}

	regional, ok := providersResp.Results[region]
	if !ok || len(regional.Flatrate) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(regional.Flatrate))
	for _, p := range regional.Flatrate {
		names = append(names, p.ProviderName)
	}

	c.logger.InfoContext(ctx, "watch providers retrieved",
		"tmdb_id", tmdbID,
		"region", region,
		"provider_count", len(names),
	)

	return names, nil
}

// SearchPerson looks up a person by name and returns the first match, which
// TMDB orders by relevance. Returns nil when nothing matches.
//
// GET /search/person?query=...
func (c *TMDBHTTPClient) SearchPerson(ctx context.Context, name string) (*Person, error) {
	if name == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"person name is required for a search",
			nil,
		)
	}

	endpoint := c.baseURL + "/search/person"
	params := url.Values{"query": []string{name}}

	var searchResp tmdbPersonSearchResponse
	if err := c.getJSON(ctx, endpoint, params, &searchResp, "SearchPerson"); err != nil {
		return nil, err
	}

	if len(searchResp.Results) == 0 {
		return nil, nil
	}

	person := searchResp.Results[0]
	return &person, nil
}

// PersonMovieCredits returns the person's movie crew credits. Callers filter
// by Job to isolate directing credits.
//
// GET /person/{id}/movie_credits
func (c *TMDBHTTPClient) PersonMovieCredits(ctx context.Context, personID int64) ([]CrewCredit, error) {
	if personID <= 0 {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"person id is required for a credits lookup",
			nil,
		)
	}

	endpoint := fmt.Sprintf("%s/person/%d/movie_credits", c.baseURL, personID)

	var creditsResp tmdbCreditsResponse
	if err := c.getJSON(ctx, endpoint, nil, &creditsResp, "PersonMovieCredits"); err != nil {
		return nil, err
	}

	return creditsResp.Crew, nil
}

// getJSON performs an authenticated GET against the TMDB API and decodes the
// JSON response into out. The api_key is passed as a query parameter, the
// authentication scheme of TMDB's v3 API.
func (c *TMDBHTTPClient) getJSON(ctx context.Context, endpoint string, params url.Values, out any, operation string) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			fmt.Sprintf("failed to create TMDB %s request", operation),
			err,
		)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return c.wrapError(operation, err)
	}
	defer resp.Body.Close()

	// Handle non-2xx responses that made it past the BaseClient retry logic.
	// BaseClient returns 4xx responses (other than 429) as-is without error.
	if resp.StatusCode >= 400 {
		return c.handleErrorResponse(resp, operation)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			fmt.Sprintf("failed to decode TMDB %s response", operation),
			err,
		)
	}

	return nil
}

// handleErrorResponse reads and logs the error body from a non-2xx response,
// then returns an appropriate AppError.
func (c *TMDBHTTPClient) handleErrorResponse(resp *http.Response, operation string) *types.AppError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	bodyStr := string(bodyBytes)

	c.logger.Error("TMDB API error",
		"operation", operation,
		"status_code", resp.StatusCode,
		"response_body", bodyStr,
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return types.NewAppError(
			types.ErrCodeUpstreamMetadata,
			"TMDB authentication failed (401)",
			fmt.Errorf("TMDB %s returned 401: %s", operation, bodyStr),
		)
	case resp.StatusCode == http.StatusNotFound:
		return types.NewAppError(
			types.ErrCodeUpstreamMetadata,
			fmt.Sprintf("TMDB resource not found (404): %s", operation),
			fmt.Errorf("TMDB %s returned 404: %s", operation, bodyStr),
		)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return types.NewAppError(
			types.ErrCodeUpstreamMetadata,
			fmt.Sprintf("TMDB client error (%d): %s", resp.StatusCode, operation),
			fmt.Errorf("TMDB %s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamMetadata,
			fmt.Sprintf("TMDB server error (%d): %s", resp.StatusCode, operation),
			fmt.Errorf("TMDB %s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	}
}

// wrapError converts errors from BaseClient.Do into domain-specific TMDB errors.
func (c *TMDBHTTPClient) wrapError(operation string, err error) error {
	// If it's already an AppError, enhance the message but preserve the code.
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return types.NewAppError(
			appErr.Code,
			fmt.Sprintf("TMDB %s: %s", operation, appErr.Message),
			appErr.Err,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamMetadata,
		fmt.Sprintf("TMDB %s failed", operation),
		err,
	)
}

// Compile-time interface compliance check.
var _ MetadataClient = (*TMDBHTTPClient)(nil)
