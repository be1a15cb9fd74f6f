package parser

import (
	"regexp"
	"strings"
)

// LayoutRule 一条版面修复规则。规则是有损且有顺序的，后面的规则假设前面的已经执行过。
type LayoutRule struct {
	Name  string
	Apply func(string) string
}

var (
	reLowerUpper    = regexp.MustCompile(`(\p{Ll})(\p{Lu})`)
	reDigitLetter   = regexp.MustCompile(`(\p{Nd})(\p{L})`)
	reLetterDigit   = regexp.MustCompile(`(\p{L})(\p{Nd})`)
	reSentenceBreak = regexp.MustCompile(`([.!?])\s*([\p{L}\p{N}_])`)
	reBullet        = regexp.MustCompile(`(•|\*|-|\d+\.)\s*`)
	reManyNewlines  = regexp.MustCompile(`\n{5,}`)
	reManySpaces    = regexp.MustCompile(` {2,}`)
)

// LayoutRules 单页文本的修复规则，按顺序执行
var LayoutRules = []LayoutRule{
	// 分栏排版常把两个词粘在一起: "JohnDoe" -> "John Doe"
	{Name: "split-case", Apply: func(s string) string {
		return reLowerUpper.ReplaceAllString(s, "$1 $2")
	}},
	{Name: "split-digit-letter", Apply: func(s string) string {
		s = reDigitLetter.ReplaceAllString(s, "$1 $2")
		return reLetterDigit.ReplaceAllString(s, "$1 $2")
	}},
	{Name: "promote-newlines", Apply: promoteSingleNewlines},
	{Name: "sentence-break", Apply: func(s string) string {
		return reSentenceBreak.ReplaceAllString(s, "$1\n\n$2")
	}},
	{Name: "bullet-break", Apply: func(s string) string {
		return reBullet.ReplaceAllString(s, "\n$1 ")
	}},
	// 保证页与页之间不会粘连
	{Name: "page-terminator", Apply: func(s string) string {
		return s + "\n\n\n"
	}},
}

// promoteSingleNewlines 两个非空行之间的单个换行升级为空行分隔
func promoteSingleNewlines(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 16)
	for i, r := range runes {
		b.WriteRune(r)
		if r != '\n' || i == 0 || i == len(runes)-1 {
			continue
		}
		if runes[i-1] != '\n' && runes[i+1] != '\n' {
			b.WriteRune('\n')
		}
	}
	return b.String()
}

// RepairPage 对单页文本依次执行全部规则
func RepairPage(page string) string {
	for _, rule := range LayoutRules {
		page = rule.Apply(page)
	}
	return page
}

// RepairDocument 逐页修复后拼接，并做全文级别的清理。空白页被跳过。
func RepairDocument(pages []string) string {
	var b strings.Builder
	for _, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		b.WriteString(RepairPage(page))
	}
	text := reManyNewlines.ReplaceAllString(b.String(), "\n\n\n\n")
	return reManySpaces.ReplaceAllString(text, " ")
}
