package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/aerodesk/flight-scheduling-backend/internal/pkg/apperror"
)

var ErrOrganizationNotFound = apperror.NotFound("organization not found in registry")

// OrganizationLimits describes subscription-level caps for an organization.
type OrganizationLimits struct {
	OrganizationID     string `json:"organization_id"`
	MaxActiveBookings  int    `json:"max_active_bookings"`
	MaxResources       int    `json:"max_resources"`
	SubscriptionActive bool   `json:"subscription_active"`
}

// OrganizationRegistry is the contract to the external organization and
// subscription administration service.
type OrganizationRegistry interface {
	GetOrganizationLimits(ctx context.Context, orgID string) (*OrganizationLimits, error)
	CheckResourceLimit(ctx context.Context, orgID, resourceType string) (bool, error)
}

type httpOrganizationRegistry struct {
	baseURL string
	client  *http.Client
}

// NewHTTPOrganizationRegistry creates a registry client with a bounded timeout.
func NewHTTPOrganizationRegistry(baseURL string, timeout time.Duration) OrganizationRegistry {
	return &httpOrganizationRegistry{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *httpOrganizationRegistry) GetOrganizationLimits(ctx context.Context, orgID string) (*OrganizationLimits, error) {
	endpoint := fmt.Sprintf("%s/v1/organizations/%s/limits", r.baseURL, url.PathEscape(orgID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build organization limits request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.KindInternal, http.StatusBadGateway, "organization registry unreachable")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrOrganizationNotFound
	default:
		return nil, apperror.New(apperror.KindInternal, http.StatusBadGateway,
			fmt.Sprintf("organization registry returned status %d", resp.StatusCode))
	}

	var limits OrganizationLimits
	if err := json.NewDecoder(resp.Body).Decode(&limits); err != nil {
		return nil, fmt.Errorf("decode organization limits: %w", err)
	}
	return &limits, nil
}

func (r *httpOrganizationRegistry) CheckResourceLimit(ctx context.Context, orgID, resourceType string) (bool, error) {
	endpoint := fmt.Sprintf("%s/v1/organizations/%s/resource-limit?type=%s",
		r.baseURL, url.PathEscape(orgID), url.QueryEscape(resourceType))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build resource limit request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false, apperror.Wrap(err, apperror.KindInternal, http.StatusBadGateway, "organization registry unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, apperror.New(apperror.KindInternal, http.StatusBadGateway,
			fmt.Sprintf("organization registry returned status %d", resp.StatusCode))
	}

	var body struct {
		Allowed bool `json:"allowed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode resource limit response: %w", err)
	}
	return body.Allowed, nil
}
