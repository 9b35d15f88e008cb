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

var ErrAircraftNotFound = apperror.NotFound("aircraft not found in registry")

// AircraftStatus is the registry's view of a single aircraft.
type AircraftStatus struct {
	AircraftID  string  `json:"aircraft_id"`
	IsAirworthy bool    `json:"is_airworthy"`
	IsAvailable bool    `json:"is_available"`
	HourlyRate  float64 `json:"hourly_rate"`
}

// AircraftRegistry is the contract to the external aircraft registry service.
// The scheduling engine consults it before opening a booking transaction;
// the transaction boundary never spans a registry call.
type AircraftRegistry interface {
	GetAircraftStatus(ctx context.Context, aircraftID string) (*AircraftStatus, error)
}

type httpAircraftRegistry struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAircraftRegistry creates a registry client with a bounded timeout.
func NewHTTPAircraftRegistry(baseURL string, timeout time.Duration) AircraftRegistry {
	return &httpAircraftRegistry{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *httpAircraftRegistry) GetAircraftStatus(ctx context.Context, aircraftID string) (*AircraftStatus, error) {
	endpoint := fmt.Sprintf("%s/v1/aircraft/%s/status", r.baseURL, url.PathEscape(aircraftID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build aircraft status request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.KindInternal, http.StatusBadGateway, "aircraft registry unreachable")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrAircraftNotFound
	default:
		return nil, apperror.New(apperror.KindInternal, http.StatusBadGateway,
			fmt.Sprintf("aircraft registry returned status %d", resp.StatusCode))
	}

	var status AircraftStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode aircraft status: %w", err)
	}
	return &status, nil
}
