package dao

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PeerInfo is one member of the naming authority's published peer set.
type PeerInfo struct {
	Name    string `json:"name"`
	BaseURL string `json:"baseUrl"`
}

// Client resolves the current cluster membership. spec.md §1 places the
// real on-chain registry lookup out of scope, so both implementations here
// stand in for it: StaticClient for single-box deployments and tests,
// ContractClient for an environment that actually publishes a peer list.
type Client interface {
	Peers(ctx context.Context) ([]PeerInfo, error)
}

// StaticClient returns a fixed peer list, configured once at startup.
type StaticClient struct {
	peers []PeerInfo
}

// NewStaticClient builds a StaticClient over peers.
func NewStaticClient(peers []PeerInfo) *StaticClient {
	return &StaticClient{peers: peers}
}

func (c *StaticClient) Peers(_ context.Context) ([]PeerInfo, error) {
	return append([]PeerInfo(nil), c.peers...), nil
}

// ContractClient reads the peer list from an HTTP endpoint shaped like the
// DCL_API_URL config variable — a JSON array of PeerInfo — rather than
// querying a chain RPC node directly, since chain RPC access is out of
// scope for this repository.
type ContractClient struct {
	endpoint string
	client   *http.Client
}

// NewContractClient builds a ContractClient that polls endpoint for the
// current peer list.
func NewContractClient(endpoint string, client *http.Client) *ContractClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ContractClient{endpoint: endpoint, client: client}
}

func (c *ContractClient) Peers(ctx context.Context) ([]PeerInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dao: build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dao: fetch peer list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dao: peer list endpoint returned %s", resp.Status)
	}

	var peers []PeerInfo
	if err := json.NewDecoder(resp.Body).Decode(&peers); err != nil {
		return nil, fmt.Errorf("dao: decode peer list: %w", err)
	}
	return peers, nil
}
