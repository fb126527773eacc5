// Package his talks to the hospital information system to resolve procedure
// ids into display names at patient intake.
package his

import (
	"fmt"
	"time"

	"station-scheduler/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ProcedureRequest HIS procedure lookup request
type ProcedureRequest struct {
	AppID       string `json:"appId"`
	AppKey      string `json:"appKey"`
	ProcedureID string `json:"procedureId"`
}

// ProcedureResponse HIS procedure lookup response
type ProcedureResponse struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
	Name   string `json:"name"`
}

// Client HIS API client
type Client struct {
	httpClient *resty.Client
	appID      string
	appKey     string
	logger     *zap.Logger
}

// NewClient creates a HIS client
func NewClient(baseURL, appID, appKey string, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		appID:      appID,
		appKey:     appKey,
		logger:     logger,
	}
}

// ResolveProcedureName looks up the display name of a procedure. Returns the
// name and true on success; a placeholder name and false when the HIS has no
// mapping. Transport errors are returned as errors so intake can decide
// whether to proceed.
func (c *Client) ResolveProcedureName(procedureID string) (string, bool, error) {
	request := ProcedureRequest{
		AppID:       c.appID,
		AppKey:      c.appKey,
		ProcedureID: procedureID,
	}

	var response ProcedureResponse
	resp, err := c.httpClient.R().
		SetBody(request).
		SetResult(&response).
		Post("/his/procedure/resolve")

	if err != nil {
		c.logger.Error("HIS procedure lookup failed",
			zap.String("procedure_id", procedureID),
			zap.Error(err),
		)
		return "", false, fmt.Errorf("failed to call HIS API: %w", err)
	}

	if resp.StatusCode() == 404 || response.Status == 1 {
		c.logger.Warn("HIS has no mapping for procedure",
			zap.String("procedure_id", procedureID),
		)
		return domain.PlaceholderProcedureName, false, nil
	}

	if response.Status != 0 {
		c.logger.Error("HIS API returned error",
			zap.String("procedure_id", procedureID),
			zap.Int("status", response.Status),
			zap.String("msg", response.Msg),
		)
		return "", false, fmt.Errorf("HIS API error: %s (status: %d)", response.Msg, response.Status)
	}

	return response.Name, true, nil
}
