package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/safariworks/tourbooking/config"
	"github.com/safariworks/tourbooking/service"
)

type HTTPTourCatalog struct {
	baseURL    string
	httpClient *http.Client
	jwtSecret  string
}

// NewHTTPTourCatalog creates a tour catalog client with connection pooling
func NewHTTPTourCatalog(cfg *config.TourCatalog, jwtSecret string) *HTTPTourCatalog {
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     time.Duration(cfg.IdleConnTimeout) * time.Second,
		DisableKeepAlives:   false,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPTourCatalog{
		baseURL:   cfg.BaseURL,
		jwtSecret: jwtSecret,
		httpClient: &http.Client{
			Timeout:   time.Duration(cfg.RequestTimeout) * time.Second,
			Transport: transport,
		},
	}
}

// GetTour retrieves pricing and the participant ceiling for a tour
func (s *HTTPTourCatalog) GetTour(ctx context.Context, tourID uuid.UUID) (*service.TourDetails, error) {
	url := fmt.Sprintf("%s/api/tours/%s", s.baseURL, tourID.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Service-Auth", s.jwtSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("tour not found")
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tour catalog error (status %d): %s", resp.StatusCode, string(body))
	}

	var tour service.TourDetails
	if err := json.NewDecoder(resp.Body).Decode(&tour); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &tour, nil
}
