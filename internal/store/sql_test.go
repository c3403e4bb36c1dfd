package store

import (
	"strings"
	"testing"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/yourusername/book-ledger/internal/ledger"
)

func mustContain(t *testing.T, sql string, parts ...string) {
	t.Helper()
	for _, part := range parts {
		if !strings.Contains(sql, part) {
			t.Fatalf("sql %q does not contain %q", sql, part)
		}
	}
}

func TestBuildClaimBookGuardsRentedFlag(t *testing.T) {
	bookID := uuid.New()
	userID := uuid.New()

	sql, _, err := buildClaimBook(bookID, userID)
	if err != nil {
		t.Fatalf("buildClaimBook returned error: %v", err)
	}

	// 未貸出の行だけを対象にするのが競合検出の要
	mustContain(t, sql,
		`UPDATE "books"`,
		`"rented"`,
		bookID.String(),
		userID.String(),
	)
}

func TestBuildClaimUserGuardsEmptyHand(t *testing.T) {
	bookID := uuid.New()
	userID := uuid.New()

	sql, _, err := buildClaimUser(bookID, userID)
	if err != nil {
		t.Fatalf("buildClaimUser returned error: %v", err)
	}

	mustContain(t, sql,
		`UPDATE "users"`,
		`"borrowed_book_id" IS NULL`,
		bookID.String(),
		userID.String(),
	)
}

func TestBuildReleaseBookRequiresBorrowerMatch(t *testing.T) {
	bookID := uuid.New()
	userID := uuid.New()

	sql, _, err := buildReleaseBook(bookID, userID)
	if err != nil {
		t.Fatalf("buildReleaseBook returned error: %v", err)
	}

	mustContain(t, sql,
		`UPDATE "books"`,
		`"borrower_id"`,
		bookID.String(),
		userID.String(),
	)
}

func TestBuildInsertBookWithoutBorrower(t *testing.T) {
	book := &ledger.Book{
		ID:         uuid.New(),
		Name:       "Dune",
		CoverImage: "uploads/123.png",
	}

	sql, _, err := buildInsertBook(book)
	if err != nil {
		t.Fatalf("buildInsertBook returned error: %v", err)
	}

	mustContain(t, sql, `INSERT INTO "books"`, book.ID.String(), "Dune")
	if strings.Contains(sql, "borrower_id") {
		t.Fatalf("insert without borrower must not set borrower_id: %q", sql)
	}
}

func TestBuildFindUserLimitsToOneRow(t *testing.T) {
	sql, _, err := buildFindUser(goqu.Ex{"email": "a@x.com"})
	if err != nil {
		t.Fatalf("buildFindUser returned error: %v", err)
	}

	mustContain(t, sql, `FROM "users"`, "a@x.com", "LIMIT 1")
}
