package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Store は台帳が依存する永続化コラボレーターです。
// Find 系は該当レコードが存在しない場合に (nil, nil) を返します。
// BorrowBook / ReturnBook / CreateBook は両レコードの更新を単一トランザクション
// で行い、状態遷移の前提が満たされない場合は番兵エラーを返します。
type Store interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindBookByName(ctx context.Context, name string) (*Book, error)
	FindBookByBorrower(ctx context.Context, userID uuid.UUID) (*Book, error)
	CreateBook(ctx context.Context, book *Book) error
	BorrowBook(ctx context.Context, bookID, userID uuid.UUID) error
	ReturnBook(ctx context.Context, bookID, userID uuid.UUID) error
}

// Service は貸出・返却・蔵書登録の状態遷移を実装します。
type Service struct {
	store Store
}

// NewService は Service を作成します。
func NewService(store Store) *Service {
	return &Service{store: store}
}

// BorrowBook は蔵書名と利用者メールアドレスで貸出を行います。
// 成功すると両レコードの貸出関係が設定された状態で返ります。
func (s *Service) BorrowBook(ctx context.Context, bookName, email string) (*Book, *User, error) {
	bookName = strings.TrimSpace(bookName)
	email = strings.TrimSpace(email)
	if bookName == "" || email == "" {
		return nil, nil, newError(CodeInvalidInput, "Book Name and Email are required.", nil)
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, nil, newError(CodeInternal, "Something went wrong.", err)
	}
	if user == nil {
		return nil, nil, newError(CodeUserNotFound, "User not found.", nil)
	}

	holding, err := s.store.FindBookByBorrower(ctx, user.ID)
	if err != nil {
		return nil, nil, newError(CodeInternal, "Something went wrong.", err)
	}
	if holding != nil {
		return nil, nil, newError(CodeAlreadyBorrowing, "You can only borrow one book at a time.", nil)
	}

	book, err := s.store.FindBookByName(ctx, bookName)
	if err != nil {
		return nil, nil, newError(CodeInternal, "Something went wrong.", err)
	}
	if book == nil {
		return nil, nil, newError(CodeBookNotFound, "Book not found.", nil)
	}
	if book.Rented {
		return nil, nil, newError(CodeAlreadyRented, "This book is already rented.", nil)
	}

	// 事前チェックは案内用で、並行時の最終判定はストアの条件付き更新が行う。
	if err := s.store.BorrowBook(ctx, book.ID, user.ID); err != nil {
		switch {
		case errors.Is(err, ErrBookAlreadyRented):
			return nil, nil, newError(CodeAlreadyRented, "This book is already rented.", nil)
		case errors.Is(err, ErrUserAlreadyBorrowing):
			return nil, nil, newError(CodeAlreadyBorrowing, "You can only borrow one book at a time.", nil)
		default:
			return nil, nil, newError(CodeInternal, "Something went wrong.", err)
		}
	}

	borrowerID := user.ID
	book.Rented = true
	book.BorrowerID = &borrowerID
	bookID := book.ID
	user.BorrowedBookID = &bookID
	return book, user, nil
}

// ReturnBook は蔵書名と利用者メールアドレスで返却を行います。
// 借りていない蔵書の返却は状態を変更せずに失敗します。
func (s *Service) ReturnBook(ctx context.Context, bookName, email string) (*Book, *User, error) {
	bookName = strings.TrimSpace(bookName)
	email = strings.TrimSpace(email)
	if bookName == "" || email == "" {
		return nil, nil, newError(CodeInvalidInput, "Book Name and Email are required.", nil)
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, nil, newError(CodeInternal, "Something went wrong.", err)
	}
	if user == nil {
		return nil, nil, newError(CodeUserNotFound, "User not found.", nil)
	}

	book, err := s.store.FindBookByName(ctx, bookName)
	if err != nil {
		return nil, nil, newError(CodeInternal, "Something went wrong.", err)
	}
	if book == nil {
		return nil, nil, newError(CodeBookNotFound, "Book not found.", nil)
	}
	if book.BorrowerID == nil || *book.BorrowerID != user.ID {
		return nil, nil, newError(CodeNotBorrower, "You cannot return a book you haven't borrowed.", nil)
	}

	if err := s.store.ReturnBook(ctx, book.ID, user.ID); err != nil {
		if errors.Is(err, ErrNotBorrower) {
			return nil, nil, newError(CodeNotBorrower, "You cannot return a book you haven't borrowed.", nil)
		}
		return nil, nil, newError(CodeInternal, "Something went wrong.", err)
	}

	book.Rented = false
	book.BorrowerID = nil
	user.BorrowedBookID = nil
	return book, user, nil
}

// AddBook は新しい蔵書を登録します。
// 借り手付きで登録する場合も BorrowBook と同じ不変条件を通します。
func (s *Service) AddBook(ctx context.Context, input AddBookInput) (*Book, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" || input.CoverImage == "" {
		return nil, newError(CodeInvalidInput, "Book name and image are required.", nil)
	}

	if input.UserID == nil && input.Rented {
		return nil, newError(CodeInvalidInput, "A rented book must have a borrower.", nil)
	}

	book := &Book{
		ID:         uuid.New(),
		Name:       name,
		CoverImage: input.CoverImage,
	}

	if input.UserID != nil {
		user, err := s.store.FindUserByID(ctx, *input.UserID)
		if err != nil {
			return nil, newError(CodeInternal, "Something went wrong.", err)
		}
		if user == nil {
			return nil, newError(CodeUserNotFound, "User not found.", nil)
		}

		holding, err := s.store.FindBookByBorrower(ctx, user.ID)
		if err != nil {
			return nil, newError(CodeInternal, "Something went wrong.", err)
		}
		if holding != nil {
			return nil, newError(CodeAlreadyBorrowing, "You can only borrow one book at a time.", nil)
		}

		borrowerID := *input.UserID
		book.Rented = true
		book.BorrowerID = &borrowerID
	}

	if err := s.store.CreateBook(ctx, book); err != nil {
		if errors.Is(err, ErrUserAlreadyBorrowing) {
			return nil, newError(CodeAlreadyBorrowing, "You can only borrow one book at a time.", nil)
		}
		return nil, newError(CodeInternal, "Something went wrong while adding the book.", err)
	}

	return book, nil
}
