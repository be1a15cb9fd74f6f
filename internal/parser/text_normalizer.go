package parser

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// 这些字符不一定能被类别过滤掉（或者在 NFKC 之后仍然存在），单独剔除
var invisibleRunes = map[rune]struct{}{
	'\u200b': {}, '\u200c': {}, '\u200d': {}, '\u200e': {}, '\u200f': {}, // zero-width, LRM/RLM
	'\u202a': {}, '\u202b': {}, '\u202c': {}, '\u202d': {}, '\u202e': {}, // bidi embedding/override
	'\u2066': {}, '\u2067': {}, '\u2068': {}, '\u2069': {}, // bidi isolate
	'\ufeff': {}, // BOM
}

// NormalizeText 把 PDF 或模型输出的文本转换成规范化的单行字符串:
// NFKC 归一化（越南语声调字符依赖这一步）、只保留字母/数字/标点/分隔符、
// 去掉零宽和双向控制字符、合并空白。空字符串原样返回。
func NormalizeText(text string) string {
	if text == "" {
		return text
	}

	text = norm.NFKC.String(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if _, drop := invisibleRunes[r]; drop {
			continue
		}
		// 换行、制表符等属于 Cc 类别，先映射为空格，避免把上下两行的词粘在一起
		if unicode.IsSpace(r) {
			b.WriteRune(' ')
			continue
		}
		if keepRune(r) {
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func keepRune(r rune) bool {
	switch r {
	case ' ', '-', '_', '@', '.':
		return true
	}
	return unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsPunct(r) || unicode.In(r, unicode.Z)
}
