// Package handlers implements the node's RPC commands on top of the chain
// view and the optional wallet.
package handlers

import (
	"time"

	"github.com/marmos91/honeyd/pkg/chain"
	"github.com/marmos91/honeyd/pkg/rpc"
)

// Scheduler runs a callback later under a replaceable key.
type Scheduler interface {
	RunLater(key string, delay time.Duration, fn func()) error
}

// Deps are the node services commands reach.
type Deps struct {
	Chain chain.View

	// Shutdown asks the node to stop. It must not block.
	Shutdown func()

	// Scheduler and Guard are used by walletpassphrase to relock later.
	Scheduler Scheduler
	Guard     *rpc.Guard

	Version string
}

// Commands returns the full command list, ready for rpc.NewTable.
func Commands(deps Deps) []rpc.Command {
	h := &handlers{deps: deps}

	var cmds []rpc.Command
	cmds = append(cmds, h.controlCommands()...)
	cmds = append(cmds, h.blockchainCommands()...)
	cmds = append(cmds, h.walletCommands()...)
	return cmds
}

type handlers struct {
	deps Deps
}
