package flashloan

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrRepaymentFailed is returned when the lender cannot pull back
	// amount plus fee after the receiver callback.
	ErrRepaymentFailed = errors.New("flash loan repayment failed")

	// ErrLoanRejected is returned when the lender refuses to lend
	ErrLoanRejected = errors.New("flash loan rejected")

	// ErrReceiverFailed wraps an error returned by the receiver callback
	ErrReceiverFailed = errors.New("flash loan receiver failed")
)

// Lender defines a single-asset flash loan facility
type Lender interface {
	// Address returns the lender's account on the ledger
	Address() common.Address

	// FlashLoanSimple lends amount of asset to receiver, invokes its
	// callback and pulls back amount plus fee before returning.
	FlashLoanSimple(ctx context.Context, initiator common.Address, receiver Receiver, asset common.Address, amount *uint256.Int, params []byte) error

	// GetLoanFee returns the fee charged for borrowing amount of asset
	GetLoanFee(asset common.Address, amount *uint256.Int) (*uint256.Int, error)

	String() string
}

// Receiver is the borrower side of a flash loan
type Receiver interface {
	Address() common.Address

	// OnFundsReceived is called once the funds are delivered. Returning an
	// error aborts the loan.
	OnFundsReceived(ctx context.Context, d Delivery) error
}

// Delivery describes funds handed to a receiver
type Delivery struct {
	Lender    common.Address
	Asset     common.Address
	Amount    *uint256.Int
	Fee       *uint256.Int
	Initiator common.Address
	Params    []byte
}
