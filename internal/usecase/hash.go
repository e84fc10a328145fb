package usecase

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// shortHashLength はログに出すハッシュの桁数。
const shortHashLength = 7

// CalculateHash は更新内容のSHA-1ハッシュを大文字16進で返す。
func CalculateHash(content []byte) string {
	sum := sha1.Sum(content)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func shortHash(hash string) string {
	if len(hash) > shortHashLength {
		return hash[:shortHashLength]
	}
	return hash
}
