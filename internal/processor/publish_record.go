package processor

import (
	"cv-ingest-go/internal/constants"
	"cv-ingest-go/internal/parser"
	"cv-ingest-go/internal/types"
)

// BuildPublishRecord 把候选人记录和路径元数据合并为多维表格的一行。
// 每个值再过一遍 NormalizeText，模型可能回显了未规范化的文本。
// file 为 nil（dry-run）时不包含 File CV 列。
func BuildPublishRecord(rec types.CandidateRecord, doc types.DocumentHandle, file *types.FileRef) types.PublishRecord {
	clean := func(v types.FieldValue) string {
		return parser.NormalizeText(v.String())
	}

	email := clean(rec.Email)
	out := types.PublishRecord{
		constants.ColumnName:           clean(rec.FullName),
		constants.ColumnEmail:          types.LinkCell{Text: email, Link: "mailto:" + email},
		constants.ColumnPhone:          clean(rec.PhoneNumber),
		constants.ColumnPosition:       parser.NormalizeText(doc.JobTitle),
		constants.ColumnSource:         parser.NormalizeText(doc.Source),
		constants.ColumnDateOfBirth:    clean(rec.DateOfBirth),
		constants.ColumnGender:         clean(rec.Gender),
		constants.ColumnWorkExperience: clean(rec.WorkExperience),
		constants.ColumnEducation:      clean(rec.Education),
		constants.ColumnNote:           clean(rec.Note),
	}
	if file != nil {
		out[constants.ColumnFileCV] = types.LinkCell{Text: file.Name, Link: file.Link}
	}
	return out
}
