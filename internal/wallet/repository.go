package wallet

import (
	"errors"

	"github.com/google/uuid"
	"github.com/tumapay/sacco-wallet/internal/user"
	"gorm.io/gorm"
)

type Repository interface {
	// Credit and Debit run the ledger insert and the balance update in one
	// database transaction and return the new balance.
	Credit(userID string, amount int64, reference string, txType TransactionType, method PaymentMethod, description string) (int64, error)
	Debit(userID string, amount int64, reference string, txType TransactionType, method PaymentMethod, description string) (int64, error)

	// CreditTx composes inside a caller-owned transaction, so settlement
	// flows can update their own records and the ledger atomically.
	CreditTx(tx *gorm.DB, userID string, amount int64, reference string, txType TransactionType, method PaymentMethod, description string) (int64, error)

	GetBalance(userID string) (int64, error)
	FindByReference(ref string) (*Transaction, error)
	GetTransactions(userID string, limit, offset int) ([]Transaction, error)
	CountTransactions(userID string) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Credit(userID string, amount int64, reference string, txType TransactionType, method PaymentMethod, description string) (int64, error) {
	var newBalance int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var err error
		newBalance, err = r.CreditTx(tx, userID, amount, reference, txType, method, description)
		return err
	})
	return newBalance, err
}

func (r *repository) CreditTx(tx *gorm.DB, userID string, amount int64, reference string, txType TransactionType, method PaymentMethod, description string) (int64, error) {
	if tx == nil || userID == "" || amount <= 0 || reference == "" || txType == "" {
		return 0, ErrMissingParameter
	}

	uid, err := uuid.Parse(userID)
	if err != nil {
		return 0, err
	}

	record := Transaction{
		UserID:        uid,
		Reference:     reference,
		Type:          txType,
		Amount:        amount,
		Status:        StatusCompleted,
		PaymentMethod: method,
		Description:   description,
	}

	if err := tx.Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, ErrDuplicateReference
		}
		return 0, err
	}

	if err := tx.Model(&user.User{}).
		Where("id = ?", uid).
		UpdateColumn("balance", gorm.Expr("balance + ?", amount)).Error; err != nil {
		return 0, err
	}

	return r.readBalance(tx, uid)
}

func (r *repository) Debit(userID string, amount int64, reference string, txType TransactionType, method PaymentMethod, description string) (int64, error) {
	if userID == "" || amount <= 0 || reference == "" || txType == "" {
		return 0, ErrMissingParameter
	}

	uid, err := uuid.Parse(userID)
	if err != nil {
		return 0, err
	}

	var newBalance int64
	err = r.db.Transaction(func(tx *gorm.DB) error {

		// conditional update closes the read-then-write race between
		// concurrent debits against the same user
		res := tx.Model(&user.User{}).
			Where("id = ? AND balance >= ?", uid, amount).
			UpdateColumn("balance", gorm.Expr("balance - ?", amount))

		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			return ErrInsufficientBalance
		}

		record := Transaction{
			UserID:        uid,
			Reference:     reference,
			Type:          txType,
			Amount:        amount,
			Status:        StatusCompleted,
			PaymentMethod: method,
			Description:   description,
		}

		if err := tx.Create(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateReference
			}
			return err
		}

		newBalance, err = r.readBalance(tx, uid)
		return err
	})

	return newBalance, err
}

// readBalance loads through the model so a missing user surfaces as
// gorm.ErrRecordNotFound instead of a zero balance.
func (r *repository) readBalance(tx *gorm.DB, uid uuid.UUID) (int64, error) {
	var owner user.User
	err := tx.Select("balance").
		Where("id = ?", uid).
		Take(&owner).Error
	if err != nil {
		return 0, err
	}
	return owner.Balance, nil
}

func (r *repository) GetBalance(userID string) (int64, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return 0, err
	}
	return r.readBalance(r.db, uid)
}

func (r *repository) FindByReference(ref string) (*Transaction, error) {
	var tx Transaction
	if err := r.db.Where("reference = ?", ref).First(&tx).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *repository) GetTransactions(userID string, limit, offset int) ([]Transaction, error) {
	var txs []Transaction
	err := r.db.Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	return txs, err
}

func (r *repository) CountTransactions(userID string) (int64, error) {
	var count int64
	err := r.db.Model(&Transaction{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
