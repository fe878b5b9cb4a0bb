package wallet

import (
	"crypto/subtle"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type credit struct {
	address       string
	amount        int64
	confirmations int
}

// MemoryWallet keeps accounts, addresses and credits in process memory.
//
// It exists so a development node and the test suite can exercise the
// wallet-gated commands; nothing is persisted and no keys exist.
type MemoryWallet struct {
	mu sync.RWMutex

	passphrase string
	unlocked   bool

	accounts map[string]string // address -> account
	current  map[string]string // account -> current receiving address
	credits  []credit
	txFee    int64
}

// NewMemoryWallet creates a wallet. A non-empty passphrase makes it
// encrypted and initially locked.
func NewMemoryWallet(passphrase string) *MemoryWallet {
	return &MemoryWallet{
		passphrase: passphrase,
		accounts:   make(map[string]string),
		current:    make(map[string]string),
	}
}

func newAddress() string {
	return "H" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func validAccount(account string) error {
	if account == "*" {
		return ErrInvalidAccountName
	}
	return nil
}

func (w *MemoryWallet) NewAddress(account string) (string, error) {
	if err := validAccount(account); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	addr := newAddress()
	w.accounts[addr] = account
	w.current[account] = addr
	return addr, nil
}

func (w *MemoryWallet) AccountAddress(account string) (string, error) {
	if err := validAccount(account); err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if addr, ok := w.current[account]; ok {
		return addr, nil
	}
	addr := newAddress()
	w.accounts[addr] = account
	w.current[account] = addr
	return addr, nil
}

func (w *MemoryWallet) SetAccount(address, account string) error {
	if err := validAccount(account); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	old, ok := w.accounts[address]
	if !ok {
		return ErrUnknownAddress
	}
	// Moving the current receiving address away rotates the old account.
	if w.current[old] == address {
		delete(w.current, old)
	}
	w.accounts[address] = account
	return nil
}

func (w *MemoryWallet) Account(address string) (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	account, ok := w.accounts[address]
	if !ok {
		return "", ErrUnknownAddress
	}
	return account, nil
}

func (w *MemoryWallet) Balance(account string, minConf int) (int64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	all := account == "" || account == "*"
	var total int64
	for _, c := range w.credits {
		if c.confirmations < minConf {
			continue
		}
		if all || w.accounts[c.address] == account {
			total += c.amount
		}
	}
	return total, nil
}

// Credit records an incoming payment to one of the wallet's addresses.
func (w *MemoryWallet) Credit(address string, amount int64, confirmations int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.accounts[address]; !ok {
		return ErrUnknownAddress
	}
	w.credits = append(w.credits, credit{address: address, amount: amount, confirmations: confirmations})
	return nil
}

func (w *MemoryWallet) SetTxFee(amount int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.txFee = amount
	return nil
}

func (w *MemoryWallet) TxFee() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.txFee
}

func (w *MemoryWallet) Unlock(passphrase string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.passphrase == "" {
		return ErrNotEncrypted
	}
	if subtle.ConstantTimeCompare([]byte(passphrase), []byte(w.passphrase)) != 1 {
		return ErrWrongPassphrase
	}
	w.unlocked = true
	return nil
}

func (w *MemoryWallet) Lock() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.passphrase == "" {
		return ErrNotEncrypted
	}
	w.unlocked = false
	return nil
}

func (w *MemoryWallet) IsLocked() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.passphrase != "" && !w.unlocked
}

func (w *MemoryWallet) IsCrypted() bool {
	return w.passphrase != ""
}
