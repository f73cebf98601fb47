package blob

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

var ErrNotFound = errors.New("blob not found")

// blake3 keyed hash のドメイン鍵。変更すると既存キーが全て無効になる。
var domainKey = [32]byte{
	'k', 'u', 'r', 'a', '.', 'b', 'l', 'o', 'b', 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Store はローカルディスク上の内容アドレス型ストア。
// キーは "<blake3 hex>.<ext>"。同じ内容は同じキーになる。
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("保存先ディレクトリの作成に失敗: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Key は内容とファイル名の拡張子からキーを計算する。
func Key(data []byte, filename string) (string, error) {
	h, err := blake3.NewKeyed(domainKey[:])
	if err != nil {
		return "", err
	}
	_, _ = h.Write(data)
	sum := hex.EncodeToString(h.Sum(nil))
	if ext := normalizeExt(filename); ext != "" {
		return sum + "." + ext, nil
	}
	return sum, nil
}

func (s *Store) Put(ctx context.Context, data []byte, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := Key(data, filename)
	if err != nil {
		return "", err
	}
	p := s.pathFor(key)
	if _, err := os.Stat(p); err == nil {
		return key, nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}

	// 一時ファイルに書いてから rename
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ValidKey(key) {
		return nil, ErrNotFound
	}
	b, err := os.ReadFile(s.pathFor(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

// Path はキーに対応するファイルパスを返す（配信用）。
func (s *Store) Path(key string) (string, bool) {
	if !ValidKey(key) {
		return "", false
	}
	return s.pathFor(key), true
}

func (s *Store) pathFor(key string) string {
	return filepath.Join(s.dir, key[:2], key)
}

func ValidKey(key string) bool {
	sum, ext, _ := strings.Cut(key, ".")
	if len(sum) != 64 {
		return false
	}
	if _, err := hex.DecodeString(sum); err != nil {
		return false
	}
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func normalizeExt(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	switch ext {
	case "jpeg":
		return "jpg"
	case "tiff":
		return "tif"
	}
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	if len(ext) > 8 {
		return ""
	}
	return ext
}
