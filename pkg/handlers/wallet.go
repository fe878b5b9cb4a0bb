package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/honeyd/internal/logger"
	"github.com/marmos91/honeyd/pkg/rpc"
	"github.com/marmos91/honeyd/pkg/wallet"
)

// relockKey is the scheduler key of the pending automatic wallet lock.
const relockKey = "lockwallet"

func (h *handlers) walletCommands() []rpc.Command {
	setAccountUsage := "setaccount <honeyaddress> <account>\nSets the account associated with the given address."

	return []rpc.Command{
		{
			Name:    "getnewaddress",
			Handler: h.getNewAddress,
			Usage: "getnewaddress [account]\n" +
				"Returns a new Honey address for receiving payments.  " +
				"If [account] is specified, it is added to the address book " +
				"so payments received with the address will be credited to [account].",
			MaxParams:      1,
			SafeModeExempt: true,
			Requires:       rpc.CapabilityWallet,
		},
		{
			Name:           "getaccountaddress",
			Handler:        h.getAccountAddress,
			Usage:          "getaccountaddress <account>\nReturns the current Honey address for receiving payments to this account.",
			MinParams:      1,
			MaxParams:      1,
			SafeModeExempt: true,
			Requires:       rpc.CapabilityWallet,
		},
		{
			Name:           "setaccount",
			Handler:        h.setAccount,
			Usage:          setAccountUsage,
			MinParams:      1,
			MaxParams:      2,
			SafeModeExempt: true,
			Requires:       rpc.CapabilityWallet,
		},
		{
			// Deprecated alias of setaccount; hidden from help.
			Name:           "setlabel",
			Handler:        h.setAccount,
			Usage:          setAccountUsage,
			MinParams:      1,
			MaxParams:      2,
			SafeModeExempt: true,
			Requires:       rpc.CapabilityWallet,
		},
		{
			Name:      "getaccount",
			Handler:   h.getAccount,
			Usage:     "getaccount <honeyaddress>\nReturns the account associated with the given address.",
			MinParams: 1,
			MaxParams: 1,
			Requires:  rpc.CapabilityWallet,
		},
		{
			Name:    "getbalance",
			Handler: h.getBalance,
			Usage: "getbalance [account] [minconf=1]\n" +
				"If [account] is not specified, returns the server's total available balance.\n" +
				"If [account] is specified, returns the balance in the account.",
			MaxParams: 2,
			Requires:  rpc.CapabilityWallet,
		},
		{
			Name:      "settxfee",
			Handler:   h.setTxFee,
			Usage:     "settxfee <amount>\n<amount> is a real and is rounded to the nearest 0.000001",
			MinParams: 1,
			MaxParams: 1,
			Requires:  rpc.CapabilityWallet,
		},
		{
			Name:    "walletlock",
			Handler: h.walletLock,
			Usage: "walletlock\n" +
				"Removes the wallet encryption key from memory, locking the wallet.\n" +
				"After calling this method, you will need to call walletpassphrase again\n" +
				"before being able to call any methods which require the wallet to be unlocked.",
			SafeModeExempt: true,
			Requires:       rpc.CapabilityWallet,
		},
		{
			Name:    "walletpassphrase",
			Handler: h.walletPassphrase,
			Usage: "walletpassphrase <passphrase> <timeout> [stakingonly]\n" +
				"Stores the wallet decryption key in memory for <timeout> seconds.\n" +
				"if [stakingonly] is true sending functions are disabled.",
			MinParams:      2,
			MaxParams:      3,
			SafeModeExempt: true,
			Requires:       rpc.CapabilityWallet,
		},
	}
}

// walletError maps wallet failures onto the wallet error codes.
func walletError(err error) error {
	switch {
	case errors.Is(err, wallet.ErrWrongPassphrase):
		return rpc.NewError(rpc.ErrCodeWalletPassphraseIncorrect, "Error: The wallet passphrase entered was incorrect.")
	case errors.Is(err, wallet.ErrNotEncrypted):
		return rpc.NewError(rpc.ErrCodeWalletWrongEncState, "Error: running with an unencrypted wallet.")
	case errors.Is(err, wallet.ErrUnknownAddress):
		return rpc.NewError(rpc.ErrCodeInvalidAddressOrKey, "Invalid Honey address")
	case errors.Is(err, wallet.ErrInvalidAccountName):
		return rpc.NewError(rpc.ErrCodeWalletInvalidAccountName, "Invalid account name")
	default:
		return err
	}
}

func (h *handlers) getNewAddress(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	if err := params.Check(rpc.KindString); err != nil {
		return nil, err
	}
	addr, err := env.Wallet.NewAddress(params.At(0).String())
	if err != nil {
		return nil, walletError(err)
	}
	return addr, nil
}

func (h *handlers) getAccountAddress(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	if err := params.Check(rpc.KindString); err != nil {
		return nil, err
	}
	addr, err := env.Wallet.AccountAddress(params.At(0).String())
	if err != nil {
		return nil, walletError(err)
	}
	return addr, nil
}

func (h *handlers) setAccount(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	if err := params.Check(rpc.KindString, rpc.KindString); err != nil {
		return nil, err
	}
	if err := env.Wallet.SetAccount(params.At(0).String(), params.At(1).String()); err != nil {
		return nil, walletError(err)
	}
	return nil, nil
}

func (h *handlers) getAccount(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	if err := params.Check(rpc.KindString); err != nil {
		return nil, err
	}
	account, err := env.Wallet.Account(params.At(0).String())
	if err != nil {
		return nil, walletError(err)
	}
	return account, nil
}

func (h *handlers) getBalance(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	if err := params.Check(rpc.KindString, rpc.KindInt); err != nil {
		return nil, err
	}

	account := "*"
	if v := params.At(0); v.Exists() {
		account = v.String()
	}
	minConf := 1
	if v := params.At(1); v.Exists() {
		minConf = int(v.Int())
	}

	balance, err := env.Wallet.Balance(account, minConf)
	if err != nil {
		return nil, walletError(err)
	}
	return rpc.ValueFromAmount(balance), nil
}

func (h *handlers) setTxFee(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	amount, err := rpc.AmountFromValue(params.At(0))
	if err != nil {
		return nil, err
	}
	if err := env.Wallet.SetTxFee(amount); err != nil {
		return nil, walletError(err)
	}
	return true, nil
}

func (h *handlers) walletLock(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	if !env.Wallet.IsCrypted() {
		return nil, rpc.NewError(rpc.ErrCodeWalletWrongEncState,
			"Error: running with an unencrypted wallet, but walletlock was called.")
	}
	if err := env.Wallet.Lock(); err != nil {
		return nil, walletError(err)
	}
	return nil, nil
}

func (h *handlers) walletPassphrase(ctx context.Context, params rpc.Params, env rpc.Env) (any, error) {
	if err := params.Check(rpc.KindString, rpc.KindInt, rpc.KindBool); err != nil {
		return nil, err
	}
	w := env.Wallet
	if !w.IsCrypted() {
		return nil, rpc.NewError(rpc.ErrCodeWalletWrongEncState,
			"Error: running with an unencrypted wallet, but walletpassphrase was called.")
	}

	passphrase := params.At(0).String()
	if passphrase == "" {
		return nil, rpc.NewError(rpc.ErrCodeMisc, "walletpassphrase <passphrase> <timeout>\n"+
			"Stores the wallet decryption key in memory for <timeout> seconds.")
	}
	if err := w.Unlock(passphrase); err != nil {
		return nil, walletError(err)
	}

	timeout := params.At(1).Int()
	if timeout > 0 && h.deps.Scheduler != nil {
		relock := func() {
			h.withWalletLock(func() {
				if err := w.Lock(); err != nil {
					logger.Warn("Automatic wallet relock failed: %v", err)
					return
				}
				logger.Info("Wallet relocked after %ds", timeout)
			})
		}
		if err := h.deps.Scheduler.RunLater(relockKey, time.Duration(timeout)*time.Second, relock); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (h *handlers) withWalletLock(fn func()) {
	if h.deps.Guard == nil {
		fn()
		return
	}
	h.deps.Guard.WithWallet(fn)
}
