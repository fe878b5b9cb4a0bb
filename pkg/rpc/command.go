package rpc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/marmos91/honeyd/pkg/wallet"
)

// Capability names an optional node subsystem a command depends on.
type Capability string

const (
	CapabilityNone   Capability = ""
	CapabilityWallet Capability = "wallet"
)

// Env is the per-dispatch state handed to the dispatcher and on to handlers.
//
// It replaces any ambient global the handlers would otherwise consult: the
// caller decides, per call, which capabilities exist and which safe-mode
// warning is in force.
type Env struct {
	// Warning is the node's current safe-mode advisory, empty when healthy.
	Warning string

	// Wallet is nil when the wallet capability is not configured.
	Wallet wallet.Wallet

	// Table is filled in by the dispatcher before a handler runs.
	Table *Table
}

// Has reports whether capability c is configured in this env.
func (e Env) Has(c Capability) bool {
	switch c {
	case CapabilityNone:
		return true
	case CapabilityWallet:
		return e.Wallet != nil
	default:
		return false
	}
}

// HandlerFunc executes one command. It returns a JSON-encodable result or an
// error; errors that are not *Error are reported as ErrCodeMisc.
type HandlerFunc func(ctx context.Context, params Params, env Env) (any, error)

// Command describes one RPC method. Commands are plain data and must not be
// modified after being handed to NewTable.
type Command struct {
	Name    string
	Handler HandlerFunc

	// Usage is the help text: the first line is the one-line summary and the
	// rest is detail.
	Usage string

	// MinParams and MaxParams bound the positional argument count. A
	// negative MaxParams means unbounded. Calls outside the bounds fail with
	// the usage text.
	MinParams int
	MaxParams int

	SafeModeExempt bool
	ThreadSafe     bool
	Requires       Capability
}

// Describe returns the full usage text without executing anything.
func (c *Command) Describe() string {
	return c.Usage
}

// Summary returns the first line of the usage text.
func (c *Command) Summary() string {
	if i := strings.IndexByte(c.Usage, '\n'); i >= 0 {
		return c.Usage[:i]
	}
	return c.Usage
}

func (c *Command) arityOK(n int) bool {
	if n < c.MinParams {
		return false
	}
	return c.MaxParams < 0 || n <= c.MaxParams
}

// Table is the immutable method name to Command mapping.
type Table struct {
	commands map[string]*Command
	names    []string
}

// NewTable builds a table from a fixed list of commands, rejecting empty,
// duplicate, or handler-less entries.
func NewTable(cmds ...Command) (*Table, error) {
	t := &Table{commands: make(map[string]*Command, len(cmds))}

	for i := range cmds {
		c := cmds[i]
		if c.Name == "" {
			return nil, errors.New("command with empty name")
		}
		if c.Handler == nil {
			return nil, fmt.Errorf("command %q has no handler", c.Name)
		}
		if _, dup := t.commands[c.Name]; dup {
			return nil, fmt.Errorf("duplicate command %q", c.Name)
		}
		t.commands[c.Name] = &c
		t.names = append(t.names, c.Name)
	}

	sort.Strings(t.names)
	return t, nil
}

// Lookup returns the command registered under name.
func (t *Table) Lookup(name string) (*Command, bool) {
	c, ok := t.commands[name]
	return c, ok
}

// Names returns every registered method name in sorted order.
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// deprecatedPattern marks aliases kept for compatibility but hidden from help.
const deprecatedPattern = "label"

// Help renders help text. With an empty name it lists the summary of every
// visible command; otherwise it returns that command's full usage.
//
// Commands whose capability is missing from env are treated as unknown, the
// same way dispatch treats them.
func (t *Table) Help(name string, env Env) string {
	var b strings.Builder

	for _, n := range t.names {
		c := t.commands[n]
		if strings.Contains(n, deprecatedPattern) {
			continue
		}
		if !env.Has(c.Requires) {
			continue
		}
		if name != "" && n != name {
			continue
		}

		if name == "" {
			b.WriteString(c.Summary())
		} else {
			b.WriteString(c.Describe())
		}
		b.WriteByte('\n')
	}

	if b.Len() == 0 {
		return fmt.Sprintf("help: unknown command: %s", name)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
