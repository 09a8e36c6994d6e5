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

type HTTPIdentityService struct {
	baseURL    string
	httpClient *http.Client
	jwtSecret  string
}

func NewHTTPIdentityService(cfg *config.Identity, jwtSecret string) *HTTPIdentityService {
	return &HTTPIdentityService{
		baseURL:   cfg.BaseURL,
		jwtSecret: jwtSecret,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeout) * time.Second,
		},
	}
}

type userProfile struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Phone  string    `json:"phone"`
	Roles  []string  `json:"roles"`
}

func (s *HTTPIdentityService) getUser(ctx context.Context, userID uuid.UUID) (*userProfile, error) {
	url := fmt.Sprintf("%s/api/users/%s", s.baseURL, userID.String())

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
		return nil, fmt.Errorf("user not found")
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("identity service error (status %d): %s", resp.StatusCode, string(body))
	}

	var profile userProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &profile, nil
}

// GetContactInfo retrieves default contact details for a user
func (s *HTTPIdentityService) GetContactInfo(ctx context.Context, userID uuid.UUID) (*service.ContactInfo, error) {
	profile, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &service.ContactInfo{Email: profile.Email, Phone: profile.Phone}, nil
}

// GetRoles retrieves the role tags attached to a user
func (s *HTTPIdentityService) GetRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	profile, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return profile.Roles, nil
}
