package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cocoonstack/localnet/utils"
)

// InfoPath is the node RPC endpoint answering health probes.
const InfoPath = "/node/info"

var ErrNoPeerID = errors.New("node reported no peer id")

// NodeInfo is what a live node reports about itself.
type NodeInfo struct {
	PeerID         string   `json:"peer_id"`
	ListenAddrs    []string `json:"listen_addrs,omitempty"`
	ConnectedPeers int      `json:"connected_peers"`
	Version        string   `json:"version,omitempty"`
}

// P2PAddr returns the address other nodes should dial: the first loopback
// listen address, suffixed with /p2p/<peer id> when it is not already.
func (i *NodeInfo) P2PAddr() string {
	if i == nil || len(i.ListenAddrs) == 0 {
		return ""
	}
	addr := i.ListenAddrs[0]
	for _, a := range i.ListenAddrs {
		if strings.HasPrefix(a, "/ip4/127.0.0.1/") {
			addr = a
			break
		}
	}
	if strings.Contains(addr, "/p2p/") || i.PeerID == "" {
		return addr
	}
	return strings.TrimSuffix(addr, "/") + "/p2p/" + i.PeerID
}

// Prober queries a freshly started node.
type Prober interface {
	Probe(ctx context.Context, rpcAddr string) (*NodeInfo, error)
}

// HTTP probes nodes over their loopback JSON RPC.
type HTTP struct {
	hc *http.Client
}

// NewHTTP returns an HTTP prober whose single request is bounded by timeout.
func NewHTTP(timeout time.Duration) *HTTP {
	return &HTTP{hc: utils.NewLoopbackHTTPClient(timeout)}
}

// Probe performs one GET against rpcAddr. A node that answers without a
// peer id has not finished starting and is reported as an error.
func (p *HTTP) Probe(ctx context.Context, rpcAddr string) (*NodeInfo, error) {
	if rpcAddr == "" {
		return nil, fmt.Errorf("probe: empty rpc address")
	}
	var info NodeInfo
	if err := utils.GetJSON(ctx, p.hc, "http://"+rpcAddr+InfoPath, &info); err != nil {
		return nil, err
	}
	if info.PeerID == "" {
		return nil, fmt.Errorf("probe %s: %w", rpcAddr, ErrNoPeerID)
	}
	return &info, nil
}
