package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/tumapay/sacco-wallet/internal/user"
	"github.com/tumapay/sacco-wallet/internal/wallet"
	"github.com/tumapay/sacco-wallet/pkg/config"
	"github.com/tumapay/sacco-wallet/pkg/events"
	"github.com/tumapay/sacco-wallet/pkg/id"
	"github.com/tumapay/sacco-wallet/pkg/logger"
	"github.com/tumapay/sacco-wallet/pkg/phone"
	"github.com/tumapay/sacco-wallet/pkg/utils"
)

// Publisher hands validated callbacks to the settlement queue.
type Publisher interface {
	PublishEvent(ctx context.Context, event events.CallbackEvent) error
}

type Handler struct {
	Config   config.Config
	Repo     Repository
	Gateway  Gateway
	Queue    Publisher
	UserRepo user.Repository
}

func NewHandler(cfg config.Config, repo Repository, gateway Gateway, queue Publisher, userRepo user.Repository) *Handler {
	return &Handler{Config: cfg, Repo: repo, Gateway: gateway, Queue: queue, UserRepo: userRepo}
}

type StkPushRequest struct {
	PhoneNumber string `json:"phone_number"`
	Amount      int64  `json:"amount"`
}

// StkPush initiates a wallet top up. No balance is touched here; the credit
// lands when the gateway callback confirms the payment, so an abandoned push
// leaves no ledger trace.
func (h *Handler) StkPush(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req StkPushRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	if req.Amount < h.Config.MinTopupAmount {
		utils.BuildErrorResponse(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid amount, minimum top up is KES %d", h.Config.MinTopupAmount), nil)
		return
	}

	msisdn, err := phone.To254(req.PhoneNumber)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid phone number", nil)
		return
	}

	accountRef := fmt.Sprintf("topup-%s", id.Generate())

	pushResp, err := h.Gateway.InitiateSTKPush(r.Context(), msisdn, req.Amount, accountRef)
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			utils.BuildErrorResponse(w, http.StatusBadGateway, "M-Pesa gateway error", nil)
		} else {
			utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to initiate STK push", nil)
		}
		return
	}

	userID := usr.ID
	record := Transaction{
		MerchantRequestID: pushResp.MerchantRequestID,
		CheckoutRequestID: pushResp.CheckoutRequestID,
		AccountReference:  accountRef,
		Amount:            req.Amount,
		PhoneNumber:       msisdn,
		UserID:            &userID,
	}

	if err := h.Repo.CreatePending(&record); err != nil {
		logger.Error("Failed to persist pending STK push", logger.Fields{
			logger.CheckoutKey: pushResp.CheckoutRequestID,
			logger.ErrorKey:    err.Error(),
		})
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to register transaction", nil)
		return
	}

	// first push from an account without a bound number also binds it, so
	// phone-keyed reconciliation can find the user later; a bind failure
	// (number already taken) must not block the top up
	if usr.Phone == nil {
		if err := h.UserRepo.SetPhone(usr.ID.String(), phone.Format(req.PhoneNumber)); err != nil {
			logger.Warn("Failed to bind phone number at STK push", logger.Fields{
				"user_id":       usr.ID.String(),
				logger.ErrorKey: err.Error(),
			})
		}
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "STK push initiated", map[string]interface{}{
		"checkout_request_id": pushResp.CheckoutRequestID,
		"merchant_request_id": pushResp.MerchantRequestID,
		"customer_message":    pushResp.CustomerMessage,
	})
}

func (h *Handler) StkStatus(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	vars := mux.Vars(r)
	checkoutRequestID := vars["checkoutRequestID"]

	record, err := h.Repo.FindByCheckoutID(checkoutRequestID)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Transaction not found", nil)
		return
	}

	if record.UserID == nil || *record.UserID != usr.ID {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Transaction not found", nil)
		return
	}

	response := map[string]interface{}{
		"checkout_request_id": record.CheckoutRequestID,
		"status":              record.Status,
		"amount":              record.Amount,
		"receipt_number":      record.ReceiptNumber,
	}

	if record.Status == StatusPending {
		queryResp, err := h.Gateway.QuerySTKStatus(r.Context(), checkoutRequestID)
		if err == nil {
			response["gateway_result_code"] = queryResp.ResultCode
			response["gateway_result_desc"] = queryResp.ResultDesc
		} else {
			response["gateway_result_code"] = "unknown"
		}
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Transaction status retrieved", response)
}

// gateway acknowledgment envelope; Daraja reads these fields, not our JSON
// response wrapper
func writeCallbackAck(w http.ResponseWriter, statusCode int, resultCode interface{}, resultDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ResultCode": resultCode,
		"ResultDesc": resultDesc,
	})
}

// Callback receives the asynchronous STK result. It only validates the
// envelope and enqueues; settlement runs in the worker, and redelivery is
// harmless because settlement refuses terminal checkout requests.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	logger.Info("STK callback received", logger.Fields{"remote_addr": r.RemoteAddr})

	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeCallbackAck(w, http.StatusOK, "C2B00016", "Bad Request")
		return
	}

	event, err := ParseCallback(body)
	if err != nil {
		logger.Warn("Malformed STK callback", logger.Fields{logger.ErrorKey: err.Error()})
		writeCallbackAck(w, http.StatusOK, "C2B00016", "Bad Request")
		return
	}

	if err := h.Queue.PublishEvent(r.Context(), *event); err != nil {
		logger.Error("Failed to enqueue STK callback", logger.Fields{
			logger.CheckoutKey: event.CheckoutRequestID,
			logger.ErrorKey:    err.Error(),
		})
		// non-success so the gateway redelivers; settlement is idempotent
		writeCallbackAck(w, http.StatusInternalServerError, 1, "Internal Error")
		return
	}

	writeCallbackAck(w, http.StatusOK, 0, "Accepted")
}

type QRRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req QRRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	if req.Amount < h.Config.MinTopupAmount {
		utils.BuildErrorResponse(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid amount, minimum top up is KES %d", h.Config.MinTopupAmount), nil)
		return
	}

	accountRef := fmt.Sprintf("qr-%s", id.Generate())

	qrResp, err := h.Gateway.GenerateQRCode(r.Context(), req.Amount, accountRef)
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			utils.BuildErrorResponse(w, http.StatusBadGateway, "M-Pesa gateway error", nil)
		} else {
			utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to generate QR code", nil)
		}
		return
	}

	userID := usr.ID
	record := Transaction{
		CheckoutRequestID: qrResp.RequestID,
		AccountReference:  accountRef,
		Amount:            req.Amount,
		UserID:            &userID,
	}

	if err := h.Repo.CreatePending(&record); err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to register transaction", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "QR code generated", map[string]interface{}{
		"qr_code":   qrResp.QRCode,
		"reference": qrResp.RequestID,
	})
}

func (h *Handler) QRStatus(w http.ResponseWriter, r *http.Request) {
	usr, _ := r.Context().Value(utils.UserKey).(user.User)

	vars := mux.Vars(r)
	reference := vars["reference"]

	record, err := h.Repo.FindByCheckoutID(reference)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Transaction not found", nil)
		return
	}

	if record.UserID == nil || *record.UserID != usr.ID {
		utils.BuildErrorResponse(w, http.StatusNotFound, "Transaction not found", nil)
		return
	}

	response := map[string]interface{}{
		"reference":      record.CheckoutRequestID,
		"status":         record.Status,
		"amount":         record.Amount,
		"receipt_number": record.ReceiptNumber,
	}

	if record.Status == StatusPending {
		qrStatus, err := h.Gateway.QueryQRStatus(r.Context(), reference)
		if err != nil {
			response["gateway_result_code"] = "unknown"
			utils.BuildSuccessResponse(w, http.StatusOK, "QR status retrieved", response)
			return
		}

		response["gateway_result_code"] = qrStatus.ResultCode
		response["gateway_result_desc"] = qrStatus.ResultDesc

		// QR payments confirm gateway-side without a push callback, so a
		// paid result here is the first we hear of it; route it through
		// the settlement queue like any other confirmation
		if qrStatus.ResultCode == "0" && qrStatus.ReceiptNumber != "" {
			event := events.CallbackEvent{
				CheckoutRequestID: record.CheckoutRequestID,
				ResultCode:        0,
				ResultDesc:        qrStatus.ResultDesc,
				Amount:            qrStatus.Amount,
				PhoneNumber:       qrStatus.PhoneNumber,
				ReceiptNumber:     qrStatus.ReceiptNumber,
				Timestamp:         time.Now(),
			}
			if err := h.Queue.PublishEvent(r.Context(), event); err != nil {
				logger.Error("Failed to enqueue QR settlement", logger.Fields{
					logger.CheckoutKey: record.CheckoutRequestID,
					logger.ErrorKey:    err.Error(),
				})
			}
		}
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "QR status retrieved", response)
}

type ManualTransactionRequest struct {
	PhoneNumber     string `json:"phone_number"`
	Amount          int64  `json:"amount"`
	TransactionID   string `json:"transaction_id"`
	TransactionDate string `json:"transaction_date"`
}

// ManualTransaction reconciles a payment that reached the paybill outside
// the STK flow, keyed by the M-Pesa receipt number.
func (h *Handler) ManualTransaction(w http.ResponseWriter, r *http.Request) {
	var req ManualTransactionRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	fieldErrs := map[string]string{}
	if req.PhoneNumber == "" {
		fieldErrs["phone_number"] = "phone_number is required"
	}
	if req.Amount <= 0 {
		fieldErrs["amount"] = "amount must be greater than zero"
	}
	if req.TransactionID == "" {
		fieldErrs["transaction_id"] = "transaction_id is required"
	}
	if len(fieldErrs) > 0 {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid manual transaction", fieldErrs)
		return
	}

	newBalance, err := h.Repo.ManualCredit(req.PhoneNumber, req.Amount, req.TransactionID, req.TransactionDate)
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrDuplicateReference):
			utils.BuildErrorResponse(w, http.StatusConflict, "Transaction already processed", nil)
		case errors.Is(err, ErrUserNotFound):
			utils.BuildErrorResponse(w, http.StatusNotFound, "No user matches that phone number", nil)
		default:
			utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to record transaction", nil)
		}
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Transaction recorded", map[string]interface{}{
		"new_balance": newBalance,
	})
}
