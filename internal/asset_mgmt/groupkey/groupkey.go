// Package groupkey は貸出エンジンとインポートで共有するグループキー正規化。
package groupkey

import "strings"

// Normalize は前後の空白を除き、連続する空白（全角スペース含む）を半角スペース1つにまとめる。
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
