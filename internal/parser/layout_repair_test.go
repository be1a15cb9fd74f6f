package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func applyRule(t *testing.T, name, in string) string {
	t.Helper()
	for _, r := range LayoutRules {
		if r.Name == name {
			return r.Apply(in)
		}
	}
	t.Fatalf("未找到规则 %s", name)
	return ""
}

func TestLayoutRules_Order(t *testing.T) {
	names := make([]string, 0, len(LayoutRules))
	for _, r := range LayoutRules {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{
		"split-case",
		"split-digit-letter",
		"promote-newlines",
		"sentence-break",
		"bullet-break",
		"page-terminator",
	}, names)
}

func TestLayoutRule_SplitCase(t *testing.T) {
	assert.Equal(t, "John Doe", applyRule(t, "split-case", "JohnDoe"))
	assert.Equal(t, "Nguyễn Văn", applyRule(t, "split-case", "NguyễnVăn"))
	assert.Equal(t, "ABC", applyRule(t, "split-case", "ABC"), "连续大写不拆分")
}

func TestLayoutRule_SplitDigitLetter(t *testing.T) {
	assert.Equal(t, "Doe 2023 Experience", applyRule(t, "split-digit-letter", "Doe2023Experience"))
	assert.Equal(t, "abc 123 def", applyRule(t, "split-digit-letter", "abc123def"))
}

func TestLayoutRule_PromoteNewlines(t *testing.T) {
	assert.Equal(t, "a\n\nb", applyRule(t, "promote-newlines", "a\nb"))
	assert.Equal(t, "a\n\nb", applyRule(t, "promote-newlines", "a\n\nb"), "已是双换行的不变")
	assert.Equal(t, "a\n\nb\n\nc", applyRule(t, "promote-newlines", "a\nb\nc"))
}

func TestLayoutRule_SentenceBreak(t *testing.T) {
	assert.Equal(t, "Done.\n\nNext", applyRule(t, "sentence-break", "Done. Next"))
	assert.Equal(t, "Why?\n\nBecause", applyRule(t, "sentence-break", "Why?Because"))
}

func TestLayoutRule_BulletBreak(t *testing.T) {
	assert.Equal(t, "Skills:\n• Go", applyRule(t, "bullet-break", "Skills:•Go"))
}

func TestLayoutRule_PageTerminator(t *testing.T) {
	assert.Equal(t, "page\n\n\n", applyRule(t, "page-terminator", "page"))
}

func TestRepairPage_SplitsRunTogetherWords(t *testing.T) {
	out := RepairPage("JohnDoe2023Experience")
	assert.Contains(t, out, "John Doe 2023 Experience")
	assert.True(t, strings.HasSuffix(out, "\n\n\n"), "每页末尾应有分页符")
}

func TestRepairDocument(t *testing.T) {
	t.Run("跳过空白页", func(t *testing.T) {
		out := RepairDocument([]string{"First", "   \n ", "Second"})
		assert.Contains(t, out, "First")
		assert.Contains(t, out, "Second")
	})

	t.Run("折叠过多换行和空格", func(t *testing.T) {
		out := RepairDocument([]string{"Alpha", "Beta"})
		assert.NotContains(t, out, "\n\n\n\n\n")
		assert.NotContains(t, out, "  ")
	})

	t.Run("全部空白返回空串", func(t *testing.T) {
		assert.Equal(t, "", RepairDocument([]string{"", " "}))
	})
}
