package wbroadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/ssc-witness/witness/wcrypto"
)

const methodBroadcastCustomJSON = "broadcast_custom_json"

// CustomJSONParams are the params of a broadcast_custom_json request.
type CustomJSONParams struct {
	ID                   string   `json:"id"`
	RequiredAuths        []string `json:"required_auths"`
	RequiredPostingAuths []string `json:"required_posting_auths"`

	// JSON-encoded ContractAction.
	JSON string `json:"json"`

	// Hex signature over the SHA-256 of JSON.
	Signature string `json:"signature"`
}

// JSONRPCClient submits side effects to a backing-chain access point over JSON-RPC 2.0.
type JSONRPCClient struct {
	endpoint string
	signer   wcrypto.Signer

	transport *http.Transport
	hc        *http.Client
}

// NewJSONRPCClientFactory returns a ClientFactory whose clients sign with signer.
// Each client owns its own connection pool, released by Close.
func NewJSONRPCClientFactory(signer wcrypto.Signer, timeout time.Duration) ClientFactory {
	return func(endpoint string) (SideEffectClient, error) {
		if endpoint == "" {
			return nil, fmt.Errorf("empty backing-chain endpoint")
		}

		tr := http.DefaultTransport.(*http.Transport).Clone()
		return &JSONRPCClient{
			endpoint: endpoint,
			signer:   signer,

			transport: tr,
			hc: &http.Client{
				Transport: tr,
				Timeout:   timeout,
			},
		}, nil
	}
}

func (c *JSONRPCClient) SubmitSideEffect(ctx context.Context, se SideEffect) error {
	j, err := json.Marshal(se.Action)
	if err != nil {
		return fmt.Errorf("failed to encode contract action: %w", err)
	}

	sig, err := wcrypto.SignDigest(ctx, c.signer, string(j))
	if err != nil {
		return fmt.Errorf("failed to sign side effect: %w", err)
	}

	body, err := json2.EncodeClientRequest(methodBroadcastCustomJSON, CustomJSONParams{
		ID:                   se.ChainID,
		RequiredAuths:        []string{se.Account},
		RequiredPostingAuths: []string{},
		JSON:                 string(j),
		Signature:            sig,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request to %s: %w", c.endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %s from %s", resp.Status, c.endpoint)
	}

	var result json.RawMessage
	if err := json2.DecodeClientResponse(resp.Body, &result); err != nil {
		return fmt.Errorf("%s rejected side effect: %w", c.endpoint, err)
	}

	return nil
}

func (c *JSONRPCClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
