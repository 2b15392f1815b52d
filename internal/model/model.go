// Package model содержит доменные сущности бэк-офиса модельного агентства.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Admin представляет администратора бэк-офиса.
type Admin struct {
	ID           int64
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Track описывает направление плательщика: профессиональная модель или начинающая.
type Track string

const (
	TrackProfessional Track = "professional"
	TrackBeginner     Track = "beginner"
)

// EventKind описывает тип платёжного события.
type EventKind string

const (
	EventEnrollment        EventKind = "enrollment"
	EventMonthlyDues       EventKind = "monthly_dues"
	EventEnrollmentAndDues EventKind = "enrollment_and_dues"
	EventAdvance           EventKind = "advance"
)

// PaymentMethod описывает способ оплаты, принимаемый агентством.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

// DefaultCurrency — валюта по умолчанию для всех сумм.
const DefaultCurrency = "XOF"

// PaymentStatus содержит платёжное состояние одного плательщика.
// Флаг IsUpToDate производный и пересчитывается при каждом принятом событии.
type PaymentStatus struct {
	InscriptionPaid    bool            `json:"inscription_paid"`
	InscriptionDate    *time.Time      `json:"inscription_date,omitempty"`
	CotisationPaid     bool            `json:"cotisation_paid"`
	LastCotisationDate *time.Time      `json:"last_cotisation_date,omitempty"`
	IsUpToDate         bool            `json:"is_up_to_date"`
	LastPaymentDate    *time.Time      `json:"last_payment_date,omitempty"`
	NextDueDate        *time.Time      `json:"next_due_date,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	PaymentMethod      string          `json:"payment_method"`
	Notes              string          `json:"notes"`
}

// Payer представляет плательщика агентства: модель или начинающую ученицу.
// Единая коллекция с дискриминантом Track заменяет раздельные списки моделей и учениц.
type Payer struct {
	ID        int64
	FullName  string
	Track     Track
	Phone     string
	PhotoURL  string
	Status    PaymentStatus
	CreatedAt time.Time
}

// PaymentEvent описывает одно платёжное событие, введённое администратором.
type PaymentEvent struct {
	Kind        EventKind
	Amount      decimal.Decimal
	Currency    string
	Method      PaymentMethod
	Notes       string
	Description string
	OccurredAt  time.Time
}

// AccountingTransaction описывает одну запись бухгалтерского журнала.
// Запись создаётся ровно один раз на принятое событие и никогда не изменяется.
type AccountingTransaction struct {
	ID          int64
	Reference   string
	Date        time.Time
	Category    string
	Subcategory string
	Amount      decimal.Decimal
	Currency    string
	Method      string
	Description string
	Notes       string
	PayerID     int64
	PayerName   string
	CreatedBy   string
	CreatedAt   time.Time
}
