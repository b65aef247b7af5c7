package wallet

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/tumapay/sacco-wallet/internal/user"
	"github.com/tumapay/sacco-wallet/pkg/config"
	"github.com/tumapay/sacco-wallet/pkg/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// fakeLedger mimics the atomicity contract of the real repository: a debit
// either fully applies or leaves the balance untouched.
type fakeLedger struct {
	balances map[string]int64
	refs     map[string]bool
	txs      []Transaction
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: map[string]int64{}, refs: map[string]bool{}}
}

func (f *fakeLedger) record(userID string, amount int64, reference string, txType TransactionType, method PaymentMethod, description string) {
	f.refs[reference] = true
	f.txs = append(f.txs, Transaction{
		UserID:        uuid.MustParse(userID),
		Reference:     reference,
		Type:          txType,
		Amount:        amount,
		Status:        StatusCompleted,
		PaymentMethod: method,
		Description:   description,
	})
}

func (f *fakeLedger) Credit(userID string, amount int64, reference string, txType TransactionType, method PaymentMethod, description string) (int64, error) {
	if f.refs[reference] {
		return 0, ErrDuplicateReference
	}
	f.balances[userID] += amount
	f.record(userID, amount, reference, txType, method, description)
	return f.balances[userID], nil
}

func (f *fakeLedger) CreditTx(tx *gorm.DB, userID string, amount int64, reference string, txType TransactionType, method PaymentMethod, description string) (int64, error) {
	return f.Credit(userID, amount, reference, txType, method, description)
}

func (f *fakeLedger) Debit(userID string, amount int64, reference string, txType TransactionType, method PaymentMethod, description string) (int64, error) {
	if f.balances[userID] < amount {
		return 0, ErrInsufficientBalance
	}
	if f.refs[reference] {
		return 0, ErrDuplicateReference
	}
	f.balances[userID] -= amount
	f.record(userID, amount, reference, txType, method, description)
	return f.balances[userID], nil
}

func (f *fakeLedger) GetBalance(userID string) (int64, error) {
	balance, ok := f.balances[userID]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	return balance, nil
}

func (f *fakeLedger) FindByReference(ref string) (*Transaction, error) {
	for i := range f.txs {
		if f.txs[i].Reference == ref {
			return &f.txs[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLedger) GetTransactions(userID string, limit, offset int) ([]Transaction, error) {
	var out []Transaction
	for _, tx := range f.txs {
		if tx.UserID.String() == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeLedger) CountTransactions(userID string) (int64, error) {
	txs, _ := f.GetTransactions(userID, 0, 0)
	return int64(len(txs)), nil
}

type fakeUserRepo struct {
	pins        map[string]string
	phones      map[string]string
	setPhoneErr error
}

func (f *fakeUserRepo) FindByGoogleID(string) (*user.User, error) { return nil, gorm.ErrRecordNotFound }
func (f *fakeUserRepo) FindByPhone(string) (*user.User, error)    { return nil, gorm.ErrRecordNotFound }
func (f *fakeUserRepo) FindByID(string) (*user.User, error)       { return nil, gorm.ErrRecordNotFound }
func (f *fakeUserRepo) CreateUser(*user.User) error               { return nil }
func (f *fakeUserRepo) SetPhone(id string, phone string) error {
	if f.setPhoneErr != nil {
		return f.setPhoneErr
	}
	if f.phones == nil {
		f.phones = map[string]string{}
	}
	f.phones[id] = phone
	return nil
}
func (f *fakeUserRepo) SetPinHash(id string, pinHash string) error {
	if f.pins == nil {
		f.pins = map[string]string{}
	}
	f.pins[id] = pinHash
	return nil
}

func newPaymentRequest(body string, usr user.User) *http.Request {
	req := httptest.NewRequest("POST", "/api/payments", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(context.WithValue(req.Context(), utils.UserKey, usr))
}

func TestMakePayment(t *testing.T) {
	usr := user.User{ID: uuid.New()}
	validBody := `{"sacco_id": "s-1", "vehicle_id": "KDA 123X", "route": "CBD-Rongai", "amount": 150}`

	t.Run("insufficient balance leaves balance unchanged", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.balances[usr.ID.String()] = 100
		h := NewHandler(config.Config{}, ledger, &fakeUserRepo{})

		rr := httptest.NewRecorder()
		h.MakePayment(rr, newPaymentRequest(validBody, usr))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "Insufficient balance")
		assert.Equal(t, int64(100), ledger.balances[usr.ID.String()])
		assert.Empty(t, ledger.txs)
	})

	t.Run("successful payment debits and records one ledger row", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.balances[usr.ID.String()] = 500
		h := NewHandler(config.Config{}, ledger, &fakeUserRepo{})

		rr := httptest.NewRecorder()
		h.MakePayment(rr, newPaymentRequest(validBody, usr))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, int64(350), ledger.balances[usr.ID.String()])
		if assert.Len(t, ledger.txs, 1) {
			assert.Equal(t, TransactionPayment, ledger.txs[0].Type)
			assert.Contains(t, ledger.txs[0].Reference, "Payment-")
		}
		assert.Contains(t, rr.Body.String(), "transaction_ref")
	})

	t.Run("missing fields rejected before any debit", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.balances[usr.ID.String()] = 500
		h := NewHandler(config.Config{}, ledger, &fakeUserRepo{})

		rr := httptest.NewRecorder()
		h.MakePayment(rr, newPaymentRequest(`{"amount": 150}`, usr))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, int64(500), ledger.balances[usr.ID.String()])
	})

	t.Run("zero amount rejected", func(t *testing.T) {
		ledger := newFakeLedger()
		h := NewHandler(config.Config{}, ledger, &fakeUserRepo{})

		body := `{"sacco_id": "s-1", "vehicle_id": "KDA 123X", "route": "CBD-Rongai", "amount": 0}`
		rr := httptest.NewRecorder()
		h.MakePayment(rr, newPaymentRequest(body, usr))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("wrong PIN rejected when one is set", func(t *testing.T) {
		hashed, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
		assert.NoError(t, err)
		pinned := user.User{ID: usr.ID, PinHash: string(hashed)}

		ledger := newFakeLedger()
		ledger.balances[usr.ID.String()] = 500
		h := NewHandler(config.Config{}, ledger, &fakeUserRepo{})

		body := `{"sacco_id": "s-1", "vehicle_id": "KDA 123X", "route": "CBD-Rongai", "amount": 150, "pin": "9999"}`
		rr := httptest.NewRecorder()
		h.MakePayment(rr, newPaymentRequest(body, pinned))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, int64(500), ledger.balances[usr.ID.String()])
	})
}

func TestGetBalance(t *testing.T) {
	t.Run("returns the stored balance", func(t *testing.T) {
		usr := user.User{ID: uuid.New()}
		ledger := newFakeLedger()
		ledger.balances[usr.ID.String()] = 420
		h := NewHandler(config.Config{}, ledger, &fakeUserRepo{})

		req := httptest.NewRequest("GET", "/api/wallet/balance", nil)
		req = req.WithContext(context.WithValue(req.Context(), utils.UserKey, usr))
		rr := httptest.NewRecorder()
		h.GetBalance(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "420")
	})

	t.Run("unknown user is not reported as an empty wallet", func(t *testing.T) {
		usr := user.User{ID: uuid.New()}
		h := NewHandler(config.Config{}, newFakeLedger(), &fakeUserRepo{})

		req := httptest.NewRequest("GET", "/api/wallet/balance", nil)
		req = req.WithContext(context.WithValue(req.Context(), utils.UserKey, usr))
		rr := httptest.NewRecorder()
		h.GetBalance(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestSetPin(t *testing.T) {
	usr := user.User{ID: uuid.New()}
	userRepo := &fakeUserRepo{}
	h := NewHandler(config.Config{}, newFakeLedger(), userRepo)

	t.Run("valid pin stored hashed", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/wallet/pin", bytes.NewReader([]byte(`{"pin": "1234"}`)))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(context.WithValue(req.Context(), utils.UserKey, usr))
		rr := httptest.NewRecorder()
		h.SetPin(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		stored := userRepo.pins[usr.ID.String()]
		assert.NotEmpty(t, stored)
		assert.NotEqual(t, "1234", stored)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored), []byte("1234")))
	})

	t.Run("short pin rejected", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/wallet/pin", bytes.NewReader([]byte(`{"pin": "12"}`)))
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(context.WithValue(req.Context(), utils.UserKey, usr))
		rr := httptest.NewRecorder()
		h.SetPin(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestSetPhone(t *testing.T) {
	usr := user.User{ID: uuid.New()}

	newSetPhoneRequest := func(body string) *http.Request {
		req := httptest.NewRequest("POST", "/api/wallet/phone", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		return req.WithContext(context.WithValue(req.Context(), utils.UserKey, usr))
	}

	t.Run("international input stored in canonical local form", func(t *testing.T) {
		userRepo := &fakeUserRepo{}
		h := NewHandler(config.Config{}, newFakeLedger(), userRepo)

		rr := httptest.NewRecorder()
		h.SetPhone(rr, newSetPhoneRequest(`{"phone_number": "+254712345678"}`))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "0712345678", userRepo.phones[usr.ID.String()])
	})

	t.Run("invalid number rejected", func(t *testing.T) {
		userRepo := &fakeUserRepo{}
		h := NewHandler(config.Config{}, newFakeLedger(), userRepo)

		rr := httptest.NewRecorder()
		h.SetPhone(rr, newSetPhoneRequest(`{"phone_number": "12345"}`))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, userRepo.phones)
	})

	t.Run("number bound to another account returns conflict", func(t *testing.T) {
		userRepo := &fakeUserRepo{setPhoneErr: gorm.ErrDuplicatedKey}
		h := NewHandler(config.Config{}, newFakeLedger(), userRepo)

		rr := httptest.NewRecorder()
		h.SetPhone(rr, newSetPhoneRequest(`{"phone_number": "0712345678"}`))

		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}
