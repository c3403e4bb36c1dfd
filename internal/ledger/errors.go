package ledger

import (
	"errors"
	"fmt"
)

// エラーコードは HTTP 層でステータスコードへ変換されます。
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeUserNotFound     = "USER_NOT_FOUND"
	CodeBookNotFound     = "BOOK_NOT_FOUND"
	CodeAlreadyBorrowing = "ALREADY_BORROWING"
	CodeAlreadyRented    = "ALREADY_RENTED"
	CodeNotBorrower      = "NOT_BORROWER"
	CodeInternal         = "INTERNAL_ERROR"
)

// ストア実装が状態遷移の失敗を伝えるための番兵エラーです。
// 条件付き UPDATE の対象行が 0 件だった場合に返されます。
var (
	ErrEmailTaken           = errors.New("email already in use")
	ErrBookAlreadyRented    = errors.New("book already rented")
	ErrUserAlreadyBorrowing = errors.New("user already borrowing")
	ErrNotBorrower          = errors.New("book not borrowed by this user")
)

// Error は台帳操作が返す分類済みエラーです。
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}
