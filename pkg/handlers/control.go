package handlers

import (
	"context"

	"github.com/marmos91/honeyd/internal/logger"
	"github.com/marmos91/honeyd/pkg/rpc"
)

func (h *handlers) controlCommands() []rpc.Command {
	return []rpc.Command{
		{
			Name:           "help",
			Handler:        h.help,
			Usage:          "help [command]\nList commands, or get help for a command.",
			MaxParams:      1,
			SafeModeExempt: true,
			ThreadSafe:     true,
		},
		{
			Name:    "stop",
			Handler: h.stop,
			Usage:   "stop\nStop Honey server.",
			// The deprecated 'detach' argument is accepted and ignored.
			MaxParams:      1,
			SafeModeExempt: true,
			ThreadSafe:     true,
		},
	}
}

func (h *handlers) help(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	if err := params.Check(rpc.KindString); err != nil {
		return nil, err
	}
	return env.Table.Help(params.At(0).String(), env), nil
}

func (h *handlers) stop(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	logger.Info("Shutdown requested over RPC")
	if h.deps.Shutdown != nil {
		h.deps.Shutdown()
	}
	return "Honey server stopping", nil
}
