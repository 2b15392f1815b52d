// Package service реализует бизнес-логику бэк-офиса модельного агентства.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/mmeshcher/agency-backoffice/internal/imagehost"
	"github.com/mmeshcher/agency-backoffice/internal/model"
	"github.com/mmeshcher/agency-backoffice/internal/payment"
)

// ErrUnknownTrack возвращается при попытке создать плательщика с неизвестным направлением.
var (
	ErrUnknownTrack = errors.New("unknown payer track")
	// ErrImageHostUnavailable возвращается, если клиент фотохостинга не сконфигурирован.
	ErrImageHostUnavailable = errors.New("image host is not configured")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateAdmin(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetAdminByLogin(ctx context.Context, login string) (*model.Admin, error)
	CreatePayer(ctx context.Context, p model.Payer) (int64, error)
	GetPayerByID(ctx context.Context, id int64) (*model.Payer, error)
	ListPayers(ctx context.Context) ([]model.Payer, error)
	UpdatePayerPhoto(ctx context.Context, id int64, photoURL string) error
	CommitPayment(ctx context.Context, payerID int64, st model.PaymentStatus, txn model.AccountingTransaction) (int64, error)
	OverrideStatus(ctx context.Context, payerID int64, st model.PaymentStatus) error
	ListTransactions(ctx context.Context) ([]model.AccountingTransaction, error)
	ListTransactionsByPayer(ctx context.Context, payerID int64) ([]model.AccountingTransaction, error)
	GetOverduePayers(ctx context.Context, now time.Time, limit int) ([]int64, error)
	ResetDuesStatus(ctx context.Context, ids []int64) error
}

// Service содержит бизнес-логику бэк-офиса.
type Service struct {
	repo   Repository
	images *imagehost.Client
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом фотохостинга.
func NewService(repo Repository, images *imagehost.Client) *Service {
	return &Service{
		repo:   repo,
		images: images,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterAdmin регистрирует нового администратора.
func (s *Service) RegisterAdmin(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateAdmin(ctx, login, hashed)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateAdmin проверяет логин и пароль администратора и возвращает его идентификатор.
func (s *Service) AuthenticateAdmin(ctx context.Context, login, password string) (int64, error) {
	a, err := s.repo.GetAdminByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(a.PasswordHash) {
		return 0, errors.New("invalid credentials")
	}

	return a.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// CreatePayer создаёт нового плательщика.
func (s *Service) CreatePayer(ctx context.Context, p model.Payer) (int64, error) {
	if p.Track != model.TrackProfessional && p.Track != model.TrackBeginner {
		return 0, ErrUnknownTrack
	}
	return s.repo.CreatePayer(ctx, p)
}

// GetPayer возвращает плательщика по идентификатору.
func (s *Service) GetPayer(ctx context.Context, id int64) (*model.Payer, error) {
	return s.repo.GetPayerByID(ctx, id)
}

// ListPayers возвращает всех плательщиков.
func (s *Service) ListPayers(ctx context.Context) ([]model.Payer, error) {
	return s.repo.ListPayers(ctx)
}

// PaymentOutcome описывает результат обработки платёжного события.
// При отклонении события Reason содержит причину, хранилище не изменяется.
type PaymentOutcome struct {
	Accepted    bool
	Reason      error
	Status      model.PaymentStatus
	Transaction *model.AccountingTransaction
}

// RecordPayment применяет платёжное событие к плательщику. Принятое событие
// сохраняется одной транзакцией вместе с записью журнала; отклонённое не
// изменяет ничего. Инфраструктурные ошибки возвращаются отдельно от отклонений.
func (s *Service) RecordPayment(ctx context.Context, payerID int64, e model.PaymentEvent, createdBy string) (*PaymentOutcome, error) {
	p, err := s.repo.GetPayerByID(ctx, payerID)
	if err != nil {
		return nil, err
	}

	res := payment.ApplyPayment(*p, e)
	if !res.Accepted {
		return &PaymentOutcome{
			Accepted: false,
			Reason:   res.Reason,
			Status:   p.Status,
		}, nil
	}

	txn, err := payment.NewTransaction(*p, e, createdBy, time.Now())
	if err != nil {
		return nil, err
	}

	txnID, err := s.repo.CommitPayment(ctx, payerID, res.Status, txn)
	if err != nil {
		return nil, err
	}
	txn.ID = txnID

	return &PaymentOutcome{
		Accepted:    true,
		Status:      res.Status,
		Transaction: &txn,
	}, nil
}

// ForcePaymentStatus выставляет платёжное состояние напрямую, минуя проверки
// дубликатов. Запись журнала не создаётся.
func (s *Service) ForcePaymentStatus(ctx context.Context, payerID int64, target payment.TargetStatus) (*model.PaymentStatus, error) {
	p, err := s.repo.GetPayerByID(ctx, payerID)
	if err != nil {
		return nil, err
	}

	st := payment.ForceStatus(*p, target, time.Now())

	if err := s.repo.OverrideStatus(ctx, payerID, st); err != nil {
		return nil, err
	}

	return &st, nil
}

// ListTransactions возвращает все записи журнала.
func (s *Service) ListTransactions(ctx context.Context) ([]model.AccountingTransaction, error) {
	return s.repo.ListTransactions(ctx)
}

// ListTransactionsByPayer возвращает записи журнала одного плательщика.
func (s *Service) ListTransactionsByPayer(ctx context.Context, payerID int64) ([]model.AccountingTransaction, error) {
	return s.repo.ListTransactionsByPayer(ctx, payerID)
}

// UploadPayerPhoto загружает фотографию на внешний фотохостинг и сохраняет
// полученную ссылку у плательщика.
func (s *Service) UploadPayerPhoto(ctx context.Context, payerID int64, image []byte, name string) (string, error) {
	if s.images == nil {
		return "", ErrImageHostUnavailable
	}

	if _, err := s.repo.GetPayerByID(ctx, payerID); err != nil {
		return "", err
	}

	url, err := s.images.Upload(ctx, image, name)
	if err != nil {
		return "", err
	}

	if err := s.repo.UpdatePayerPhoto(ctx, payerID, url); err != nil {
		return "", err
	}

	return url, nil
}

const (
	duesCheckInterval = 1 * time.Hour
	duesBatchSize     = 100
)

// StartDueStatusUpdates снимает флаг оплаты членского взноса у плательщиков с
// истёкшим оплаченным периодом. Блокируется до отмены контекста.
func (s *Service) StartDueStatusUpdates(ctx context.Context) {
	ticker := time.NewTicker(duesCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.processOverdueBatch(ctx, time.Now())
		}
	}
}

func (s *Service) processOverdueBatch(ctx context.Context, now time.Time) {
	ids, err := s.repo.GetOverduePayers(ctx, now, duesBatchSize)
	if err != nil {
		return
	}
	if len(ids) == 0 {
		return
	}

	_ = s.repo.ResetDuesStatus(ctx, ids)
}
