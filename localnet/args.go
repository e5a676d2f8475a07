package localnet

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/cocoonstack/localnet/types"
)

const (
	faucetName   = "faucet"
	nodeLogFile  = "stdout.log"
	nodeBaseName = "node-%d"
)

// baseName is the un-prefixed name: node-<idx> or faucet.
func baseName(role types.Role, idx int) string {
	if role == types.RoleFaucet {
		return faucetName
	}
	return fmt.Sprintf(nodeBaseName, idx)
}

// serviceName namespaces baseName with the owner prefix so several node
// groups can share one service directory.
func serviceName(prefix string, role types.Role, idx int) string {
	if prefix == "" {
		return baseName(role, idx)
	}
	return prefix + "-" + baseName(role, idx)
}

// nodeArgs is the node command line. The data dir doubles as the marker
// the process controller uses to tell sibling nodes apart.
func nodeArgs(rec *types.NodeRecord, opts *types.LocalNetworkOptions, genesis bool, peers []string) []string {
	args := []string{
		"--root-dir", rec.DataDir,
		"--log-output-dest", rec.LogDir,
		"--port", strconv.Itoa(rec.Port),
		"--rpc", rec.RPCAddr(),
		"--local",
	}
	if genesis {
		args = append(args, "--first")
	}
	for _, p := range peers {
		args = append(args, "--peer", p)
	}
	if opts.LogFormat == types.LogFormatJSON {
		args = append(args, "--log-format", string(types.LogFormatJSON))
	}
	if opts.Owner != "" {
		args = append(args, "--owner", opts.Owner)
	}
	return args
}

func faucetArgs(peers []string) []string {
	args := make([]string, 0, 2*len(peers)+1)
	for _, p := range peers {
		args = append(args, "--peer", p)
	}
	return append(args, "server")
}

func logFile(rec *types.NodeRecord) string {
	return filepath.Join(rec.LogDir, nodeLogFile)
}
