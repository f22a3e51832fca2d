package wrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/ssc-witness/witness/wround"
)

// Client sends proposals to other witnesses.
type Client struct {
	hc *http.Client
}

type ClientConfig struct {
	// Upper bound on a single proposeRoundHash call.
	Timeout time.Duration

	// Optional; defaults to an http.Client with Timeout.
	HTTPClient *http.Client
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout: 10 * time.Second,
	}
}

func NewClient(cfg ClientConfig) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{hc: hc}
}

type proposeRoundHashParams struct {
	Round wround.RoundProposal `json:"round"`
}

// ProposeRoundHash sends p to the witness whose RPC endpoint is at baseURL.
//
// A refusal from the verifier is returned as a *wround.VerificationError.
// Any other error is a transport failure.
func (c *Client) ProposeRoundHash(ctx context.Context, baseURL string, p wround.RoundProposal) (wround.RoundVerification, error) {
	var v wround.RoundVerification

	body, err := json2.EncodeClientRequest(MethodProposeRoundHash, proposeRoundHashParams{Round: p})
	if err != nil {
		return v, fmt.Errorf("failed to encode proposal: %w", err)
	}

	url := strings.TrimSuffix(baseURL, "/") + "/p2p"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return v, fmt.Errorf("failed to build request to %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return v, fmt.Errorf("failed to send proposal to %s: %w", url, err)
	}
	defer resp.Body.Close()

	// Error responses may carry a 4xx status alongside a valid JSON-RPC body,
	// so buffer the body and only fall back to the status if it does not decode.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return v, fmt.Errorf("failed to read response from %s: %w", url, err)
	}

	if err := json2.DecodeClientResponse(bytes.NewReader(raw), &v); err != nil {
		var je *json2.Error
		if errors.As(err, &je) && je.Code != json2.E_SERVER {
			return wround.RoundVerification{}, &wround.VerificationError{
				Code:    wround.ErrorCode(je.Code),
				Message: je.Message,
			}
		}
		if resp.StatusCode != http.StatusOK {
			return wround.RoundVerification{}, fmt.Errorf("unexpected status %s from %s: %w", resp.Status, url, err)
		}
		return wround.RoundVerification{}, fmt.Errorf("invalid response from %s: %w", url, err)
	}

	return v, nil
}
