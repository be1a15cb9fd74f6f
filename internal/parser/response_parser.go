package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"cv-ingest-go/internal/constants"
)

var (
	// 贪婪匹配：第一个 { 到最后一个 }
	reJSONObject = regexp.MustCompile(`(?s)\{.*\}`)

	// 字符串值后面紧跟下一个键却缺少逗号: "a": "b" "c": ...
	reMissingComma  = regexp.MustCompile(`("\s*:\s*"(?:[^"\\]|\\.)*")(\s*)([^,}\]\s])`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)

	quoteFolder = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "″", `"`,
		"‘", "'", "’", "'", "‚", "'", "‛", "'", "′", "'",
	)
)

// ParseResponse 从模型的自由文本回复中取出 JSON 对象并转换为字段表。
// 严格解析失败时做一次修复（统一引号、补齐字段间逗号、去掉尾逗号）再解析。
// 无法解析时返回 nil，不返回错误，由调用方决定是否重试。
func ParseResponse(responseText string) map[string]string {
	candidate := reJSONObject.FindString(responseText)
	if candidate == "" {
		return nil
	}

	if fields, err := decodeObject(candidate); err == nil {
		return fields
	}

	if fields, err := decodeObject(repairJSON(candidate)); err == nil {
		return fields
	}
	return nil
}

// repairJSON 修复模型常见的 JSON 格式错误
func repairJSON(s string) string {
	s = quoteFolder.Replace(s)
	s = reMissingComma.ReplaceAllString(s, "$1,$2$3")
	return reTrailingComma.ReplaceAllString(s, "$1")
}

func decodeObject(s string) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		fields[k] = flattenValue(v)
	}
	return fields, nil
}

// flattenValue 多维表格只接受字符串，数组、对象等都压平成一行文本
func flattenValue(v any) string {
	switch val := v.(type) {
	case nil:
		return constants.NoData
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := flattenValue(item); s != "" && s != constants.NoData {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return constants.NoData
		}
		return strings.Join(parts, "; ")
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return constants.NoData
		}
		return string(b)
	}
}

// IsDegenerate 除 Job Title 外每个字段都是 NO DATA（或根本没有字段）时视为无效回复。
// 模型给出的 Job Title 最终会被丢弃，不参与判断。
func IsDegenerate(fields map[string]string) bool {
	for k, v := range fields {
		if k == constants.KeyJobTitle {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(v), constants.NoData) {
			return false
		}
	}
	return true
}
