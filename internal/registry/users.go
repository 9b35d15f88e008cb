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

// UserDirectory is the contract to the external user/role service.
// Only permission checks cross this boundary; user CRUD stays external.
type UserDirectory interface {
	HasPermission(ctx context.Context, userID, permissionCode string) (bool, error)
}

type httpUserDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPUserDirectory creates a directory client with a bounded timeout.
func NewHTTPUserDirectory(baseURL string, timeout time.Duration) UserDirectory {
	return &httpUserDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (d *httpUserDirectory) HasPermission(ctx context.Context, userID, permissionCode string) (bool, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/permissions/%s",
		d.baseURL, url.PathEscape(userID), url.PathEscape(permissionCode))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build permission request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return false, apperror.Wrap(err, apperror.KindInternal, http.StatusBadGateway, "user directory unreachable")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	default:
		return false, apperror.New(apperror.KindInternal, http.StatusBadGateway,
			fmt.Sprintf("user directory returned status %d", resp.StatusCode))
	}

	var body struct {
		Granted bool `json:"granted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode permission response: %w", err)
	}
	return body.Granted, nil
}
