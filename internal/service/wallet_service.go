package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"exchange/internal/ledger"
	"exchange/internal/models"
	"exchange/pkg/retry"
)

// Ошибки кошелькового сервиса
var (
	ErrInvalidAsset = errors.New("asset is required")
)

// WalletService - вводы, выводы и балансы.
//
// Ledger - источник истины по балансам; таблица transactions -
// журнал границы системы для аудита и сверки.
type WalletService struct {
	ledger *ledger.Ledger
	txRepo TransactionRepositoryInterface
}

var _ WalletServiceInterface = (*WalletService)(nil)

// NewWalletService создает новый экземпляр кошелькового сервиса
func NewWalletService(l *ledger.Ledger, txRepo TransactionRepositoryInterface) *WalletService {
	return &WalletService{ledger: l, txRepo: txRepo}
}

// Deposit зачисляет средства на свободный баланс
func (s *WalletService) Deposit(ctx context.Context, accountID, asset string, amount decimal.Decimal) (*models.Transaction, error) {
	if err := validateWalletArgs(accountID, asset); err != nil {
		return nil, err
	}

	if err := s.ledger.Deposit(accountID, asset, amount); err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Asset:     asset,
		Type:      models.TransactionTypeDeposit,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	s.persist(ctx, tx)
	return tx, nil
}

// Withdraw списывает средства со свободного баланса.
// Зарезервированные открытыми ордерами средства вывести нельзя.
func (s *WalletService) Withdraw(ctx context.Context, accountID, asset string, amount decimal.Decimal) (*models.Transaction, error) {
	if err := validateWalletArgs(accountID, asset); err != nil {
		return nil, err
	}

	if err := s.ledger.Withdraw(accountID, asset, amount); err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Asset:     asset,
		Type:      models.TransactionTypeWithdrawal,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	s.persist(ctx, tx)
	return tx, nil
}

// persist записывает транзакцию в БД с retry. Средства уже проведены
// через ledger, поэтому сбой записи не откатывает операцию - только
// логируется для сверки.
func (s *WalletService) persist(ctx context.Context, tx *models.Transaction) {
	err := retry.Do(ctx, func() error {
		return s.txRepo.Create(tx)
	}, retry.DefaultConfig())
	if err != nil {
		log.Printf("ERROR: failed to persist transaction %s (%s %s %s): %v",
			tx.ID, tx.Type, tx.Amount, tx.Asset, err)
	}
}

// Balances возвращает балансы аккаунта по всем активам
func (s *WalletService) Balances(accountID string) []models.Balance {
	return s.ledger.Balances(accountID)
}

// Transactions возвращает последние транзакции аккаунта
func (s *WalletService) Transactions(accountID string, limit int) ([]*models.Transaction, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, ErrInvalidAccount
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.txRepo.GetByAccount(accountID, limit)
}

func validateWalletArgs(accountID, asset string) error {
	if strings.TrimSpace(accountID) == "" {
		return ErrInvalidAccount
	}
	if strings.TrimSpace(asset) == "" {
		return ErrInvalidAsset
	}
	return nil
}
