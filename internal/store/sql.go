package store

import (
	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/yourusername/book-ledger/internal/ledger"
)

// 状態遷移のSQLはここで組み立てます。貸出・返却の UPDATE は遷移前の状態を
// WHERE 句の条件に含むため、対象行が 0 件なら遷移は競合で失敗したと判断できます。

func buildFindUser(where goqu.Ex) (string, []interface{}, error) {
	return dialect.From(tableUsers).
		Select("id", "name", "email", "password_hash", "borrowed_book_id").
		Where(where).
		Limit(1).
		ToSQL()
}

func buildFindBook(where goqu.Ex) (string, []interface{}, error) {
	return dialect.From(tableBooks).
		Select("id", "name", "cover_image", "rented", "borrower_id").
		Where(where).
		Limit(1).
		ToSQL()
}

func buildInsertBook(book *ledger.Book) (string, []interface{}, error) {
	rec := goqu.Record{
		"id":          book.ID.String(),
		"name":        book.Name,
		"cover_image": book.CoverImage,
		"rented":      book.Rented,
	}
	if book.BorrowerID != nil {
		rec["borrower_id"] = book.BorrowerID.String()
	}
	return dialect.Insert(tableBooks).Rows(rec).ToSQL()
}

// buildClaimBook は「貸出中でない蔵書にのみ」借り手を設定する UPDATE を組み立てます。
func buildClaimBook(bookID, userID uuid.UUID) (string, []interface{}, error) {
	return dialect.Update(tableBooks).
		Set(goqu.Record{
			"rented":      true,
			"borrower_id": userID.String(),
		}).
		Where(goqu.Ex{
			"id":     bookID.String(),
			"rented": false,
		}).
		ToSQL()
}

// buildClaimUser は「何も借りていない利用者にのみ」蔵書参照を設定する UPDATE を組み立てます。
func buildClaimUser(bookID, userID uuid.UUID) (string, []interface{}, error) {
	return dialect.Update(tableUsers).
		Set(goqu.Record{
			"borrowed_book_id": bookID.String(),
		}).
		Where(goqu.Ex{
			"id":               userID.String(),
			"borrowed_book_id": nil,
		}).
		ToSQL()
}

// buildReleaseBook は「指定利用者が借り手である蔵書にのみ」効く返却 UPDATE を組み立てます。
func buildReleaseBook(bookID, userID uuid.UUID) (string, []interface{}, error) {
	return dialect.Update(tableBooks).
		Set(goqu.Record{
			"rented":      false,
			"borrower_id": nil,
		}).
		Where(goqu.Ex{
			"id":          bookID.String(),
			"borrower_id": userID.String(),
		}).
		ToSQL()
}

func buildReleaseUser(userID uuid.UUID) (string, []interface{}, error) {
	return dialect.Update(tableUsers).
		Set(goqu.Record{
			"borrowed_book_id": nil,
		}).
		Where(goqu.Ex{
			"id": userID.String(),
		}).
		ToSQL()
}
