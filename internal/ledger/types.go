// Package ledger は貸出台帳のコア機能を提供します。
package ledger

import (
	"github.com/google/uuid"
)

// User は利用者レコードを表します。
// PasswordHash は台帳にとって不透明な資格情報です。
type User struct {
	ID             uuid.UUID
	Name           string
	Email          string
	PasswordHash   string
	BorrowedBookID *uuid.UUID
}

// Book は蔵書レコードを表します。
// Rented が true のときに限り BorrowerID が設定されます（不変条件）。
type Book struct {
	ID         uuid.UUID
	Name       string
	CoverImage string
	Rented     bool
	BorrowerID *uuid.UUID
}

// AddBookInput は蔵書登録の入力です。
// UserID を指定する場合は Rented も true でなければなりません。
type AddBookInput struct {
	Name       string
	CoverImage string
	Rented     bool
	UserID     *uuid.UUID
}
