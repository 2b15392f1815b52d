// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/agency-backoffice/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrAdminExists возвращается при попытке создать администратора с уже существующим логином.
var (
	ErrAdminExists = errors.New("admin already exists")
	// ErrAdminNotFound возвращается, если администратор не найден.
	ErrAdminNotFound = errors.New("admin not found")
	// ErrPayerNotFound возвращается, если плательщик не найден.
	ErrPayerNotFound = errors.New("payer not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при временных ошибках сериализации и дедлоках.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewConstant(1*time.Second))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				return retry.RetryableError(err)
			}
		}

		return err
	})
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateAdmin создаёт нового администратора.
func (r *PostgresRepository) CreateAdmin(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO admins (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrAdminExists, login)
		}
		return 0, fmt.Errorf("create admin: %w", err)
	}
	return id, nil
}

// GetAdminByLogin возвращает администратора по логину.
func (r *PostgresRepository) GetAdminByLogin(ctx context.Context, login string) (*model.Admin, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, created_at FROM admins WHERE login = $1`,
		login,
	)

	var a model.Admin
	err := row.Scan(&a.ID, &a.Login, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}

	return &a, nil
}

const payerColumns = `id, full_name, track, phone, photo_url,
	inscription_paid, inscription_date, cotisation_paid, last_cotisation_date,
	is_up_to_date, last_payment_date, next_due_date,
	amount::text, currency, payment_method, notes, created_at`

func scanPayer(row pgx.Row) (*model.Payer, error) {
	var (
		p         model.Payer
		amountStr string
	)

	err := row.Scan(
		&p.ID, &p.FullName, &p.Track, &p.Phone, &p.PhotoURL,
		&p.Status.InscriptionPaid, &p.Status.InscriptionDate,
		&p.Status.CotisationPaid, &p.Status.LastCotisationDate,
		&p.Status.IsUpToDate, &p.Status.LastPaymentDate, &p.Status.NextDueDate,
		&amountStr, &p.Status.Currency, &p.Status.PaymentMethod, &p.Status.Notes,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}

	return &p, nil
}

// CreatePayer создаёт нового плательщика и возвращает его идентификатор.
func (r *PostgresRepository) CreatePayer(ctx context.Context, p model.Payer) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO payers (full_name, track, phone, photo_url, currency)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		p.FullName, string(p.Track), p.Phone, p.PhotoURL, model.DefaultCurrency,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create payer: %w", err)
	}
	return id, nil
}

// GetPayerByID возвращает плательщика по идентификатору.
func (r *PostgresRepository) GetPayerByID(ctx context.Context, id int64) (*model.Payer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+payerColumns+` FROM payers WHERE id = $1`,
		id,
	)

	p, err := scanPayer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPayerNotFound
		}
		return nil, fmt.Errorf("get payer: %w", err)
	}

	return p, nil
}

// ListPayers возвращает всех плательщиков, отсортированных по имени.
func (r *PostgresRepository) ListPayers(ctx context.Context) ([]model.Payer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+payerColumns+` FROM payers ORDER BY full_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("select payers: %w", err)
	}
	defer rows.Close()

	var payers []model.Payer
	for rows.Next() {
		p, err := scanPayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payer: %w", err)
		}
		payers = append(payers, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return payers, nil
}

// UpdatePayerPhoto обновляет ссылку на фотографию плательщика.
func (r *PostgresRepository) UpdatePayerPhoto(ctx context.Context, id int64, photoURL string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE payers SET photo_url = $2 WHERE id = $1`,
		id, photoURL,
	)
	if err != nil {
		return fmt.Errorf("update payer photo: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrPayerNotFound
	}
	return nil
}

func updateStatusTx(ctx context.Context, tx pgx.Tx, payerID int64, st model.PaymentStatus) error {
	_, err := tx.Exec(ctx,
		`UPDATE payers SET
			inscription_paid = $2,
			inscription_date = $3,
			cotisation_paid = $4,
			last_cotisation_date = $5,
			is_up_to_date = $6,
			last_payment_date = $7,
			next_due_date = $8,
			amount = $9::numeric,
			currency = $10,
			payment_method = $11,
			notes = $12
		 WHERE id = $1`,
		payerID,
		st.InscriptionPaid, st.InscriptionDate,
		st.CotisationPaid, st.LastCotisationDate,
		st.IsUpToDate, st.LastPaymentDate, st.NextDueDate,
		st.Amount.String(), st.Currency, st.PaymentMethod, st.Notes,
	)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

// CommitPayment атомарно сохраняет новое платёжное состояние плательщика и
// запись журнала: либо фиксируются оба изменения, либо ни одно. Строка
// плательщика блокируется для сериализации одновременных оплат.
func (r *PostgresRepository) CommitPayment(ctx context.Context, payerID int64, st model.PaymentStatus, txn model.AccountingTransaction) (int64, error) {
	var txnID int64

	err := r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var dummy int
		err = tx.QueryRow(ctx, `SELECT 1 FROM payers WHERE id = $1 FOR UPDATE`, payerID).Scan(&dummy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPayerNotFound
			}
			return fmt.Errorf("lock payer for update: %w", err)
		}

		if err := updateStatusTx(ctx, tx, payerID, st); err != nil {
			return err
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO accounting_transactions
				(reference, date, category, subcategory, amount, currency,
				 payment_method, description, notes, payer_id, payer_name, created_by, created_at)
			 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12, $13)
			 RETURNING id`,
			txn.Reference, txn.Date, txn.Category, txn.Subcategory,
			txn.Amount.String(), txn.Currency, txn.Method, txn.Description, txn.Notes,
			payerID, txn.PayerName, txn.CreatedBy, txn.CreatedAt,
		).Scan(&txnID)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return txnID, nil
}

// OverrideStatus сохраняет платёжное состояние без записи журнала.
// Используется только административной корректировкой.
func (r *PostgresRepository) OverrideStatus(ctx context.Context, payerID int64, st model.PaymentStatus) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var dummy int
		err = tx.QueryRow(ctx, `SELECT 1 FROM payers WHERE id = $1 FOR UPDATE`, payerID).Scan(&dummy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPayerNotFound
			}
			return fmt.Errorf("lock payer for update: %w", err)
		}

		if err := updateStatusTx(ctx, tx, payerID, st); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

const transactionColumns = `id, reference, date, category, subcategory,
	amount::text, currency, payment_method, description, notes,
	payer_id, payer_name, created_by, created_at`

func scanTransaction(row pgx.Row) (*model.AccountingTransaction, error) {
	var (
		t         model.AccountingTransaction
		amountStr string
	)

	err := row.Scan(
		&t.ID, &t.Reference, &t.Date, &t.Category, &t.Subcategory,
		&amountStr, &t.Currency, &t.Method, &t.Description, &t.Notes,
		&t.PayerID, &t.PayerName, &t.CreatedBy, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}

	return &t, nil
}

func (r *PostgresRepository) listTransactions(ctx context.Context, query string, args ...any) ([]model.AccountingTransaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.AccountingTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListTransactions возвращает все записи журнала, новые первыми.
func (r *PostgresRepository) ListTransactions(ctx context.Context) ([]model.AccountingTransaction, error) {
	return r.listTransactions(ctx,
		`SELECT `+transactionColumns+`
		 FROM accounting_transactions
		 ORDER BY id DESC`,
	)
}

// ListTransactionsByPayer возвращает записи журнала одного плательщика, новые первыми.
func (r *PostgresRepository) ListTransactionsByPayer(ctx context.Context, payerID int64) ([]model.AccountingTransaction, error) {
	return r.listTransactions(ctx,
		`SELECT `+transactionColumns+`
		 FROM accounting_transactions
		 WHERE payer_id = $1
		 ORDER BY id DESC`,
		payerID,
	)
}

// GetOverduePayers возвращает идентификаторы плательщиков, у которых оплаченный
// период членского взноса уже истёк.
func (r *PostgresRepository) GetOverduePayers(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM payers
		 WHERE cotisation_paid AND next_due_date IS NOT NULL AND next_due_date < $1
		 ORDER BY next_due_date
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select overdue payers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan payer id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

// ResetDuesStatus сбрасывает флаг оплаты членского взноса у указанных плательщиков.
// Флаг is_up_to_date гаснет вместе с ним: без членского взноса актуальность
// недостижима для обоих направлений.
func (r *PostgresRepository) ResetDuesStatus(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE payers SET cotisation_paid = FALSE, is_up_to_date = FALSE WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("reset dues status: %w", err)
	}
	return nil
}
