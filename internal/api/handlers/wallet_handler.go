package handlers

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"exchange/internal/api/middleware"
	"exchange/internal/ledger"
	"exchange/internal/models"
	"exchange/internal/service"
)

// WalletHandler отвечает за балансы и движение средств
//
// Endpoints:
// - GET /api/v1/wallet/balances        - балансы аккаунта
// - POST /api/v1/wallet/deposits       - зачислить средства
// - POST /api/v1/wallet/withdrawals    - вывести средства
// - GET /api/v1/wallet/transactions    - история вводов/выводов
type WalletHandler struct {
	walletService service.WalletServiceInterface
}

// NewWalletHandler создает новый WalletHandler с внедрением зависимостей
func NewWalletHandler(walletService service.WalletServiceInterface) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
	}
}

// TransferRequest структура запроса ввода/вывода
type TransferRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// GetBalances возвращает балансы аккаунта по всем активам
// GET /api/v1/wallet/balances
func (h *WalletHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	balances := h.walletService.Balances(middleware.AccountID(r))
	if balances == nil {
		balances = []models.Balance{}
	}
	respondWithJSON(w, http.StatusOK, balances)
}

// Deposit зачисляет средства на свободный баланс
// POST /api/v1/wallet/deposits
//
// Request Body:
//
//	{"asset": "USDT", "amount": "1000.00"}
//
// Response:
// - 201 Created: транзакция проведена
// - 400 Bad Request: невалидная сумма
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	asset, amount, ok := h.decodeTransfer(w, r)
	if !ok {
		return
	}

	tx, err := h.walletService.Deposit(r.Context(), middleware.AccountID(r), asset, amount)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, tx)
}

// Withdraw выводит средства со свободного баланса
// POST /api/v1/wallet/withdrawals
//
// Response:
// - 201 Created: транзакция проведена
// - 400 Bad Request: невалидная сумма или недостаточно свободных средств
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	asset, amount, ok := h.decodeTransfer(w, r)
	if !ok {
		return
	}

	tx, err := h.walletService.Withdraw(r.Context(), middleware.AccountID(r), asset, amount)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, tx)
}

// GetTransactions возвращает историю вводов/выводов аккаунта
// GET /api/v1/wallet/transactions?limit=100
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.walletService.Transactions(middleware.AccountID(r), queryInt(r, "limit", 100))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	respondWithJSON(w, http.StatusOK, txs)
}

func (h *WalletHandler) decodeTransfer(w http.ResponseWriter, r *http.Request) (string, decimal.Decimal, bool) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", err.Error())
		return "", decimal.Zero, false
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_amount", "Amount must be a decimal string", "")
		return "", decimal.Zero, false
	}

	return req.Asset, amount, true
}

func (h *WalletHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAccount):
		respondWithError(w, http.StatusUnauthorized, "missing_account", "Account is required", "")

	case errors.Is(err, service.ErrInvalidAsset):
		respondWithError(w, http.StatusBadRequest, "invalid_asset", "Asset is required", "")

	case errors.Is(err, ledger.ErrInvalidAmount):
		respondWithError(w, http.StatusBadRequest, "invalid_amount", "Amount must be positive", "")

	case errors.Is(err, ledger.ErrInsufficientBalance):
		respondWithError(w, http.StatusBadRequest, "insufficient_balance", "Insufficient available balance", "")

	default:
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
	}
}
