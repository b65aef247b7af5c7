package wallet

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/tumapay/sacco-wallet/internal/user"
	"github.com/tumapay/sacco-wallet/pkg/config"
	"github.com/tumapay/sacco-wallet/pkg/phone"
	"github.com/tumapay/sacco-wallet/pkg/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Handler struct {
	Config   config.Config
	Repo     Repository
	UserRepo user.Repository
}

func NewHandler(cfg config.Config, repo Repository, userRepo user.Repository) *Handler {
	return &Handler{Config: cfg, Repo: repo, UserRepo: userRepo}
}

type PaymentRequest struct {
	SaccoID   string `json:"sacco_id"`
	VehicleID string `json:"vehicle_id"`
	Route     string `json:"route"`
	Amount    int64  `json:"amount"`
	Pin       string `json:"pin"`
}

// MakePayment debits the fare from the passenger wallet. The debit and the
// ledger row commit together; a failed request leaves the balance untouched.
func (h *Handler) MakePayment(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req PaymentRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	fieldErrs := map[string]string{}
	if req.SaccoID == "" {
		fieldErrs["sacco_id"] = "sacco_id is required"
	}
	if req.VehicleID == "" {
		fieldErrs["vehicle_id"] = "vehicle_id is required"
	}
	if req.Route == "" {
		fieldErrs["route"] = "route is required"
	}
	if req.Amount <= 0 {
		fieldErrs["amount"] = "amount must be greater than zero"
	}
	if len(fieldErrs) > 0 {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid payment request", fieldErrs)
		return
	}

	if usr.PinHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(usr.PinHash), []byte(req.Pin)); err != nil {
			utils.BuildErrorResponse(w, http.StatusUnauthorized, "Invalid PIN", nil)
			return
		}
	}

	reference := fmt.Sprintf("Payment-%d", time.Now().UnixNano())
	description := fmt.Sprintf("Fare payment sacco=%s vehicle=%s route=%s", req.SaccoID, req.VehicleID, req.Route)

	newBalance, err := h.Repo.Debit(usr.ID.String(), req.Amount, reference, TransactionPayment, MethodWallet, description)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			utils.BuildErrorResponse(w, http.StatusBadRequest, "Insufficient balance", nil)
		} else {
			utils.BuildErrorResponse(w, http.StatusInternalServerError, "Payment failed", nil)
		}
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Payment successful", map[string]interface{}{
		"new_balance":     newBalance,
		"transaction_ref": reference,
	})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	balance, err := h.Repo.GetBalance(usr.ID.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.BuildErrorResponse(w, http.StatusNotFound, "User not found", nil)
			return
		}
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to fetch balance", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallet Balance", map[string]any{
		"balance": balance,
	})
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	limit, offset, page := utils.GetPaginationDetails(r)

	txs, err := h.Repo.GetTransactions(usr.ID.String(), limit, offset)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to fetch transactions", nil)
		return
	}

	count, _ := h.Repo.CountTransactions(usr.ID.String())
	totalPages := int(math.Ceil(float64(count) / float64(limit)))

	utils.BuildSuccessResponse(w, http.StatusOK, "Transaction History", map[string]interface{}{
		"transactions": txs,
		"meta": map[string]interface{}{
			"total_items":  count,
			"total_pages":  totalPages,
			"current_page": page,
			"limit":        limit,
		},
	})
}

type SetPinRequest struct {
	Pin string `json:"pin"`
}

func (h *Handler) SetPin(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req SetPinRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	if len(req.Pin) != 4 {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "PIN must be 4 digits", nil)
		return
	}

	hashedPin, err := bcrypt.GenerateFromPassword([]byte(req.Pin), bcrypt.DefaultCost)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to secure PIN", nil)
		return
	}

	if err := h.UserRepo.SetPinHash(usr.ID.String(), string(hashedPin)); err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to save PIN", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "PIN updated", nil)
}

type SetPhoneRequest struct {
	PhoneNumber string `json:"phone_number"`
}

// SetPhone binds an M-Pesa number to the account. The number is stored in
// canonical local form so callback and reconciliation lookups match it.
func (h *Handler) SetPhone(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req SetPhoneRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	if _, err := phone.To254(req.PhoneNumber); err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid phone number", nil)
		return
	}

	canonical := phone.Format(req.PhoneNumber)
	if err := h.UserRepo.SetPhone(usr.ID.String(), canonical); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.BuildErrorResponse(w, http.StatusConflict, "Phone number already in use", nil)
			return
		}
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to save phone number", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Phone number updated", map[string]interface{}{
		"phone": canonical,
	})
}
