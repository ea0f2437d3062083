package util

import "strings"

// DigitsOnly 去掉非数字字符并截断到 max 位，max<=0 表示不截断
func DigitsOnly(s string, max int) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			if max > 0 && b.Len() >= max {
				break
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
