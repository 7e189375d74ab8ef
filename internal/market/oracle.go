package market

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/xerrors"

	"github.com/jackiewangjingchun-cpu/wattcoin/models"
)

// Verdict is the verification oracle's judgement of a submitted result.
type Verdict struct {
	Pass       bool    `json:"pass"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// VerificationOracle reviews a task submission before payout. The
// review itself (AI gatekeeper, human reviewer) is a black box.
type VerificationOracle interface {
	Review(ctx context.Context, job *models.Job, result json.RawMessage) (Verdict, error)
}

// ReviewServiceOracle asks the external review service for a verdict.
type ReviewServiceOracle struct {
	url    string
	token  string
	client *http.Client
}

func NewReviewServiceOracle(url, token string, timeout time.Duration) *ReviewServiceOracle {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ReviewServiceOracle{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

func (o *ReviewServiceOracle) Review(ctx context.Context, job *models.Job, result json.RawMessage) (Verdict, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"job_id":     job.JobId,
		"capability": job.Capability,
		"payload":    job.Payload,
		"result":     result,
	})
	if err != nil {
		return Verdict{}, xerrors.Errorf("marshal review request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewBuffer(payload))
	if err != nil {
		return Verdict{}, xerrors.Errorf("create review request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.token)
	req.Header.Add("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return Verdict{}, xerrors.Errorf("review service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Verdict{}, xerrors.Errorf("review service status %d", resp.StatusCode)
	}

	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return Verdict{}, xerrors.Errorf("decode review verdict: %w", err)
	}
	return verdict, nil
}
