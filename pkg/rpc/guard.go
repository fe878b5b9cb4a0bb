package rpc

import "sync"

// Guard serializes non-thread-safe handlers.
//
// The node lock is always taken first and the wallet lock second, and both
// are released when the scope returns, including on panic. Call sites never
// touch the mutexes directly, so the order cannot be inverted.
type Guard struct {
	node   sync.Mutex
	wallet sync.Mutex
}

// NewGuard returns a ready Guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Do runs fn holding the node lock, plus the wallet lock when withWallet
// is set.
func (g *Guard) Do(withWallet bool, fn func() (any, error)) (any, error) {
	g.node.Lock()
	defer g.node.Unlock()

	if withWallet {
		g.wallet.Lock()
		defer g.wallet.Unlock()
	}

	return fn()
}

// WithWallet runs fn holding only the wallet lock. Thread-safe wallet
// handlers and scheduled wallet callbacks use it to self-synchronize
// against the serialized path.
func (g *Guard) WithWallet(fn func()) {
	g.wallet.Lock()
	defer g.wallet.Unlock()
	fn()
}
