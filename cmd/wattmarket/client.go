package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/jackiewangjingchun-cpu/wattcoin/conf"
)

// marketClient talks to a locally running daemon through the public API.
// The admin token from the repo config is attached so operator-only
// endpoints work too.
type marketClient struct {
	baseUrl    string
	adminToken string
	hc         *http.Client
}

type apiEnvelope struct {
	Status  string          `json:"status"`
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Reason  string          `json:"reason"`
	Message string          `json:"message"`
}

func setupClient(cctx *cli.Context) (*marketClient, error) {
	repoPath := cctx.String(FlagMarketRepo)
	if err := conf.InitConfig(repoPath); err != nil {
		return nil, fmt.Errorf("load config file failed, error: %+v", err)
	}
	cfg := conf.GetConfig()

	return &marketClient{
		baseUrl:    fmt.Sprintf("http://localhost:%d/api/v1/market", cfg.API.Port),
		adminToken: cfg.API.AdminToken,
		hc:         &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (mc *marketClient) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, mc.baseUrl+path, nil)
	if err != nil {
		return err
	}
	return mc.do(req, out)
}

func (mc *marketClient) post(path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(http.MethodPost, mc.baseUrl+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return mc.do(req, out)
}

func (mc *marketClient) do(req *http.Request, out interface{}) error {
	if mc.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+mc.adminToken)
	}

	resp, err := mc.hc.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed, error: %+v", req.URL.Path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("unexpected response from %s: %s", req.URL.Path, string(payload))
	}
	if envelope.Status != "success" {
		if envelope.Reason != "" {
			return fmt.Errorf("%s: %s", envelope.Reason, envelope.Message)
		}
		return fmt.Errorf("%s", envelope.Message)
	}
	if out != nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}
