// Package store は台帳と認証が必要とするレコード操作を PostgreSQL 上に実装します。
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect登録
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourusername/book-ledger/internal/ledger"
)

const (
	tableUsers = "users"
	tableBooks = "books"

	pgErrUniqueViolation = "23505"
)

var dialect = goqu.Dialect("postgres")

// Postgres は pgx コネクションプール上のストア実装です。
// 2レコードにまたがる状態遷移は単一トランザクション内の条件付き UPDATE で行い、
// 対象行が 0 件の場合は ledger の番兵エラーへ変換します。
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres は Postgres ストアを作成します。
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// FindUserByEmail はメールアドレスで利用者を検索します。存在しない場合は (nil, nil) を返します。
func (p *Postgres) FindUserByEmail(ctx context.Context, email string) (*ledger.User, error) {
	query, _, err := buildFindUser(goqu.Ex{"email": email})
	if err != nil {
		return nil, fmt.Errorf("failed to build user query: %w", err)
	}
	return p.scanUser(ctx, query)
}

// FindUserByID はIDで利用者を検索します。存在しない場合は (nil, nil) を返します。
func (p *Postgres) FindUserByID(ctx context.Context, id uuid.UUID) (*ledger.User, error) {
	query, _, err := buildFindUser(goqu.Ex{"id": id.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to build user query: %w", err)
	}
	return p.scanUser(ctx, query)
}

// FindBookByName は蔵書名で検索します。存在しない場合は (nil, nil) を返します。
func (p *Postgres) FindBookByName(ctx context.Context, name string) (*ledger.Book, error) {
	query, _, err := buildFindBook(goqu.Ex{"name": name})
	if err != nil {
		return nil, fmt.Errorf("failed to build book query: %w", err)
	}
	return p.scanBook(ctx, query)
}

// FindBookByBorrower は指定利用者が現在借りている蔵書を返します。
// 貸出中の蔵書がない場合は (nil, nil) を返します。
func (p *Postgres) FindBookByBorrower(ctx context.Context, userID uuid.UUID) (*ledger.Book, error) {
	query, _, err := buildFindBook(goqu.Ex{"borrower_id": userID.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to build book query: %w", err)
	}
	return p.scanBook(ctx, query)
}

// CreateUser は利用者を作成します。メールアドレス重複は ledger.ErrEmailTaken を返します。
func (p *Postgres) CreateUser(ctx context.Context, user *ledger.User) error {
	query, _, err := dialect.Insert(tableUsers).Rows(goqu.Record{
		"id":            user.ID.String(),
		"name":          user.Name,
		"email":         user.Email,
		"password_hash": user.PasswordHash,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build user insert: %w", err)
	}

	if _, err := p.pool.Exec(ctx, query); err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrEmailTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// CreateBook は蔵書を作成します。
// 借り手付きの場合は利用者側の参照も同一トランザクションで設定します。
func (p *Postgres) CreateBook(ctx context.Context, book *ledger.Book) error {
	insert, _, err := buildInsertBook(book)
	if err != nil {
		return fmt.Errorf("failed to build book insert: %w", err)
	}

	if book.BorrowerID == nil {
		if _, err := p.pool.Exec(ctx, insert); err != nil {
			return fmt.Errorf("failed to insert book: %w", err)
		}
		return nil
	}

	claimUser, _, err := buildClaimUser(book.ID, *book.BorrowerID)
	if err != nil {
		return fmt.Errorf("failed to build user update: %w", err)
	}

	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insert); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, claimUser)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ledger.ErrUserAlreadyBorrowing
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrUserAlreadyBorrowing) || isUniqueViolation(err) {
			return ledger.ErrUserAlreadyBorrowing
		}
		return fmt.Errorf("failed to insert book with borrower: %w", err)
	}
	return nil
}

// BorrowBook は貸出の状態遷移を行います。
// 蔵書が貸出中なら ledger.ErrBookAlreadyRented、利用者が別の蔵書を
// 借りていれば ledger.ErrUserAlreadyBorrowing を返し、状態は変更されません。
func (p *Postgres) BorrowBook(ctx context.Context, bookID, userID uuid.UUID) error {
	claimBook, _, err := buildClaimBook(bookID, userID)
	if err != nil {
		return fmt.Errorf("failed to build book update: %w", err)
	}
	claimUser, _, err := buildClaimUser(bookID, userID)
	if err != nil {
		return fmt.Errorf("failed to build user update: %w", err)
	}

	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, claimBook)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ledger.ErrBookAlreadyRented
		}

		tag, err = tx.Exec(ctx, claimUser)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ledger.ErrUserAlreadyBorrowing
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrBookAlreadyRented) {
			return ledger.ErrBookAlreadyRented
		}
		if errors.Is(err, ledger.ErrUserAlreadyBorrowing) || isUniqueViolation(err) {
			return ledger.ErrUserAlreadyBorrowing
		}
		return fmt.Errorf("failed to borrow book: %w", err)
	}
	return nil
}

// ReturnBook は返却の状態遷移を行います。
// 指定利用者が借り手でない場合は ledger.ErrNotBorrower を返します。
func (p *Postgres) ReturnBook(ctx context.Context, bookID, userID uuid.UUID) error {
	releaseBook, _, err := buildReleaseBook(bookID, userID)
	if err != nil {
		return fmt.Errorf("failed to build book update: %w", err)
	}
	releaseUser, _, err := buildReleaseUser(userID)
	if err != nil {
		return fmt.Errorf("failed to build user update: %w", err)
	}

	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, releaseBook)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ledger.ErrNotBorrower
		}

		if _, err := tx.Exec(ctx, releaseUser); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrNotBorrower) {
			return ledger.ErrNotBorrower
		}
		return fmt.Errorf("failed to return book: %w", err)
	}
	return nil
}

func (p *Postgres) scanUser(ctx context.Context, query string) (*ledger.User, error) {
	var user ledger.User
	row := p.pool.QueryRow(ctx, query)
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.BorrowedBookID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

func (p *Postgres) scanBook(ctx context.Context, query string) (*ledger.Book, error) {
	var book ledger.Book
	row := p.pool.QueryRow(ctx, query)
	err := row.Scan(&book.ID, &book.Name, &book.CoverImage, &book.Rented, &book.BorrowerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan book: %w", err)
	}
	return &book, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}
