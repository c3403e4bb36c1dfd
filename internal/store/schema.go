package store

import "context"

// books.borrower_id の部分ユニークインデックスが「1人の利用者につき貸出中の
// 蔵書は1冊まで」をスキーマレベルで保証します。
const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id uuid PRIMARY KEY,
	name text NOT NULL,
	email text NOT NULL UNIQUE,
	password_hash text NOT NULL,
	borrowed_book_id uuid
);

CREATE TABLE IF NOT EXISTS books (
	id uuid PRIMARY KEY,
	name text NOT NULL,
	cover_image text NOT NULL,
	rented boolean NOT NULL DEFAULT false,
	borrower_id uuid REFERENCES users (id)
);

CREATE UNIQUE INDEX IF NOT EXISTS books_borrower_id_idx
	ON books (borrower_id)
	WHERE borrower_id IS NOT NULL;
`

// Migrate はテーブルとインデックスを作成します（存在する場合は何もしません）。
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}
