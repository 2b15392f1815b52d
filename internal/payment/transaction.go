package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/agency-backoffice/internal/model"
)

// CategoryRevenue — категория журнала для всех платежей плательщиков.
const CategoryRevenue = "revenue"

// Подкатегории журнала в том виде, в каком их ожидает бухгалтерия агентства.
const (
	SubcategoryEnrollment  = "Frais d'inscription"
	SubcategoryMonthlyDues = "Cotisations mensuelles"
	SubcategoryCombined    = "Cotisations + Inscriptions"
	SubcategoryAdvance     = "Paiements en avance"
)

// Subcategory возвращает подкатегорию журнала для типа платёжного события.
func Subcategory(kind model.EventKind) (string, error) {
	switch kind {
	case model.EventEnrollment:
		return SubcategoryEnrollment, nil
	case model.EventMonthlyDues:
		return SubcategoryMonthlyDues, nil
	case model.EventEnrollmentAndDues:
		return SubcategoryCombined, nil
	case model.EventAdvance:
		return SubcategoryAdvance, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventKind, kind)
}

// NewTransaction строит неизменяемую запись журнала для принятого платёжного
// события. Вызывается только для принятых событий; для отклонённых запись
// не создаётся. Идентификатор присваивает хранилище при вставке.
func NewTransaction(p model.Payer, e model.PaymentEvent, createdBy string, now time.Time) (model.AccountingTransaction, error) {
	if !e.Amount.IsPositive() {
		return model.AccountingTransaction{}, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidTransaction, e.Amount)
	}

	sub, err := Subcategory(e.Kind)
	if err != nil {
		return model.AccountingTransaction{}, fmt.Errorf("%w: %s", ErrInvalidTransaction, err)
	}

	description := e.Description
	if description == "" {
		description = fmt.Sprintf("%s - %s", sub, p.FullName)
	}

	currency := e.Currency
	if currency == "" {
		currency = model.DefaultCurrency
	}

	y, m, d := e.OccurredAt.Date()

	return model.AccountingTransaction{
		Reference:   uuid.NewString(),
		Date:        time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Category:    CategoryRevenue,
		Subcategory: sub,
		Amount:      e.Amount,
		Currency:    currency,
		Method:      string(e.Method),
		Description: description,
		Notes:       e.Notes,
		PayerID:     p.ID,
		PayerName:   p.FullName,
		CreatedBy:   createdBy,
		CreatedAt:   now,
	}, nil
}
