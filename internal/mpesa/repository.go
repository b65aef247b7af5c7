package mpesa

import (
	"errors"
	"fmt"
	"time"

	"github.com/tumapay/sacco-wallet/internal/user"
	"github.com/tumapay/sacco-wallet/internal/wallet"
	"github.com/tumapay/sacco-wallet/pkg/events"
	"github.com/tumapay/sacco-wallet/pkg/phone"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	CreatePending(tx *Transaction) error
	FindByCheckoutID(checkoutRequestID string) (*Transaction, error)

	// Settle applies one callback result to its gateway transaction and, on
	// success, credits the wallet — all inside a single database
	// transaction. A terminal row returns ErrAlreadySettled and changes
	// nothing.
	Settle(event events.CallbackEvent) error

	// ManualCredit records an out-of-band M-Pesa payment keyed by the
	// receipt number. Reposting the same receipt returns
	// wallet.ErrDuplicateReference.
	ManualCredit(rawPhone string, amount int64, receiptNumber string, transactionDate string) (int64, error)
}

type repository struct {
	db         *gorm.DB
	walletRepo wallet.Repository
}

func NewRepository(db *gorm.DB, walletRepo wallet.Repository) Repository {
	return &repository{db: db, walletRepo: walletRepo}
}

func (r *repository) CreatePending(tx *Transaction) error {
	tx.Status = StatusPending
	return r.db.Create(tx).Error
}

func (r *repository) FindByCheckoutID(checkoutRequestID string) (*Transaction, error) {
	var record Transaction
	if err := r.db.Where("checkout_request_id = ?", checkoutRequestID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) Settle(event events.CallbackEvent) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var record Transaction
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("checkout_request_id = ?", event.CheckoutRequestID).
			First(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}

		if record.Status.IsTerminal() {
			return ErrAlreadySettled
		}

		if event.ResultCode != 0 {
			return tx.Model(&record).Updates(map[string]interface{}{
				"status":      StatusFailed,
				"result_code": event.ResultCode,
				"result_desc": event.ResultDesc,
			}).Error
		}

		uid, err := r.resolveUser(tx, &record, event.PhoneNumber)
		if err != nil {
			return err
		}

		amount := event.Amount
		if amount == 0 {
			amount = record.Amount
		}

		reference := event.ReceiptNumber
		if reference == "" {
			reference = record.CheckoutRequestID
		}

		description := fmt.Sprintf("M-Pesa top up, receipt %s", event.ReceiptNumber)
		// a duplicate reference means the receipt was already posted via the
		// manual path; the gateway row still moves to completed, without a
		// second credit
		_, err = r.walletRepo.CreditTx(tx, uid, amount, reference, wallet.TransactionTopUp, wallet.MethodMpesa, description)
		if err != nil && !errors.Is(err, wallet.ErrDuplicateReference) {
			return err
		}

		now := time.Now()
		return tx.Model(&record).Updates(map[string]interface{}{
			"status":         StatusCompleted,
			"result_code":    event.ResultCode,
			"result_desc":    event.ResultDesc,
			"receipt_number": event.ReceiptNumber,
			"completed_at":   &now,
		}).Error
	})
}

// resolveUser prefers the user bound at initiation; phone lookup is the
// fallback for rows created without one (QR and legacy pushes), since phone
// numbers can collide or arrive reformatted.
func (r *repository) resolveUser(tx *gorm.DB, record *Transaction, msisdn string) (string, error) {
	if record.UserID != nil {
		return record.UserID.String(), nil
	}

	if msisdn == "" {
		return "", ErrUserNotFound
	}

	var usr user.User
	err := tx.Where("phone = ?", phone.Format(msisdn)).First(&usr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return usr.ID.String(), nil
}

func (r *repository) ManualCredit(rawPhone string, amount int64, receiptNumber string, transactionDate string) (int64, error) {
	var newBalance int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing wallet.Transaction
		err := tx.Where("reference = ?", receiptNumber).First(&existing).Error
		if err == nil {
			return wallet.ErrDuplicateReference
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var usr user.User
		if err := tx.Where("phone = ?", phone.Format(rawPhone)).First(&usr).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		description := fmt.Sprintf("Manual M-Pesa reconciliation, receipt %s dated %s", receiptNumber, transactionDate)
		newBalance, err = r.walletRepo.CreditTx(tx, usr.ID.String(), amount, receiptNumber, wallet.TransactionCredit, wallet.MethodManual, description)
		return err
	})
	return newBalance, err
}
