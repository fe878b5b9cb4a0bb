// Package wallet defines the optional wallet capability of the node.
//
// The RPC server only needs the account bookkeeping surface below; key
// management and signing live behind it and are not part of this module.
package wallet

import "errors"

var (
	ErrWrongPassphrase    = errors.New("the wallet passphrase entered was incorrect")
	ErrNotEncrypted       = errors.New("wallet is not encrypted")
	ErrUnknownAddress     = errors.New("address not found in wallet")
	ErrInvalidAccountName = errors.New("invalid account name")
)

// Wallet is the capability handed to wallet commands.
//
// Implementations must be safe for concurrent use: several wallet commands
// are dispatched without the node lock.
type Wallet interface {
	// NewAddress creates a fresh receiving address assigned to account.
	NewAddress(account string) (string, error)

	// AccountAddress returns the current receiving address of account,
	// creating one if the account has none.
	AccountAddress(account string) (string, error)

	// SetAccount moves address to account.
	SetAccount(address, account string) error

	// Account returns the account an address belongs to.
	Account(address string) (string, error)

	// Balance sums credits with at least minConf confirmations. The empty
	// account or "*" means every account.
	Balance(account string, minConf int) (int64, error)

	SetTxFee(amount int64) error
	TxFee() int64

	// Unlock decrypts the wallet for signing until Lock is called. Unlocking
	// an already unlocked wallet with the right passphrase succeeds.
	Unlock(passphrase string) error
	Lock() error
	IsLocked() bool
	IsCrypted() bool
}
