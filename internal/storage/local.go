// Package storage は表紙画像のストレージ抽象化レイヤーを提供します。
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Storage はアップロードされたファイルを保存し、保存先の参照を返します。
type Storage interface {
	Save(ctx context.Context, originalName string, r io.Reader) (string, error)
}

// Local はローカルファイルシステムへの保存実装です（開発環境用）。
// 保存名はミリ秒タイムスタンプ + 元ファイルの拡張子です。
type Local struct {
	dir string
	now func() time.Time
}

// NewLocal は保存先ディレクトリを作成して Local を返します。
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &Local{
		dir: dir,
		now: time.Now,
	}, nil
}

// Save はファイルを書き込み、"<dir>/<name>" 形式の参照を返します。
func (l *Local) Save(ctx context.Context, originalName string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := strconv.FormatInt(l.now().UnixMilli(), 10) + sanitizeExt(originalName)
	path := filepath.Join(l.dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, r); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return filepath.ToSlash(filepath.Join(filepath.Base(l.dir), name)), nil
}

// sanitizeExt は拡張子以外のパス要素を取り除きます。
func sanitizeExt(originalName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	for _, r := range ext {
		if r != '.' && !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') {
			return ""
		}
	}
	return ext
}
