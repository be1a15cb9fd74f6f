package types

import (
	"strings"
	"time"

	"cv-ingest-go/internal/constants"
)

// FieldKind 字段取值的状态
type FieldKind int

const (
	// FieldPresent 模型给出了实际内容
	FieldPresent FieldKind = iota
	// FieldMissing 简历中没有该信息，对外渲染为 NO DATA
	FieldMissing
	// FieldFailed 抽取失败，对外渲染为 ERROR: <原因>
	FieldFailed
)

// FieldValue 候选人字段的带标签取值。
// 内部只比较 Kind，哨兵字符串只在发布到多维表格时才生成。
type FieldValue struct {
	Kind   FieldKind
	Text   string
	Reason string
}

// Present 构造一个有内容的字段
func Present(text string) FieldValue {
	return FieldValue{Kind: FieldPresent, Text: text}
}

// Missing 构造一个"无数据"字段
func Missing() FieldValue {
	return FieldValue{Kind: FieldMissing}
}

// Failed 构造一个失败字段
func Failed(reason string) FieldValue {
	return FieldValue{Kind: FieldFailed, Reason: reason}
}

// FieldFromModel 把模型返回的字符串转换为带标签的取值
func FieldFromModel(raw string) FieldValue {
	s := strings.TrimSpace(raw)
	switch {
	case s == "" || strings.EqualFold(s, constants.NoData):
		return Missing()
	case strings.HasPrefix(s, constants.ErrorPrefix):
		return Failed(strings.TrimSpace(strings.TrimPrefix(s, constants.ErrorPrefix)))
	default:
		return Present(s)
	}
}

// String 返回字段的线上字面值
func (v FieldValue) String() string {
	switch v.Kind {
	case FieldMissing:
		return constants.NoData
	case FieldFailed:
		return constants.ErrorPrefix + v.Reason
	default:
		return v.Text
	}
}

// IsPresent 是否有实际内容
func (v FieldValue) IsPresent() bool {
	return v.Kind == FieldPresent
}

// CandidateRecord 从一份简历中抽取出的结构化候选人信息。
// 所有字段都必须赋值，缺失信息用 Missing/Failed 表示，不能留空。
type CandidateRecord struct {
	FullName       FieldValue
	Email          FieldValue
	PhoneNumber    FieldValue
	DateOfBirth    FieldValue
	Gender         FieldValue
	WorkExperience FieldValue
	Education      FieldValue
	Note           FieldValue
	JobTitle       FieldValue
}

// uniformRecord 所有模型字段取同一个值，岗位取调用方传入的值
func uniformRecord(v FieldValue, jobTitle string) CandidateRecord {
	return CandidateRecord{
		FullName:       v,
		Email:          v,
		PhoneNumber:    v,
		DateOfBirth:    v,
		Gender:         v,
		WorkExperience: v,
		Education:      v,
		Note:           v,
		JobTitle:       Present(jobTitle),
	}
}

// NoTextRecord PDF 没有可用文本时返回的记录
func NoTextRecord(jobTitle string) CandidateRecord {
	return uniformRecord(Failed(constants.ReasonNoCVText), jobTitle)
}

// FailedRecord 重试耗尽后返回的记录
func FailedRecord(jobTitle string) CandidateRecord {
	return uniformRecord(Failed(constants.ReasonExtractFailed), jobTitle)
}

// ExtractionFailed 是否为重试耗尽后的失败记录
func (r CandidateRecord) ExtractionFailed() bool {
	return r.FullName.Kind == FieldFailed && r.FullName.Reason == constants.ReasonExtractFailed
}

// RecordFromFields 把解析后的模型输出映射为候选人记录。
// 模型给出的 Job Title 会被丢弃，始终使用 jobTitle。
func RecordFromFields(fields map[string]string, jobTitle string) CandidateRecord {
	get := func(key string) FieldValue {
		raw, ok := fields[key]
		if !ok {
			return Failed(constants.ReasonMissingField)
		}
		return FieldFromModel(raw)
	}

	return CandidateRecord{
		FullName:       get(constants.KeyFullName),
		Email:          get(constants.KeyEmail),
		PhoneNumber:    get(constants.KeyPhoneNumber),
		DateOfBirth:    get(constants.KeyDateOfBirth),
		Gender:         NormalizeGender(get(constants.KeyGender)),
		WorkExperience: get(constants.KeyWorkExperience),
		Education:      get(constants.KeyEducation),
		Note:           get(constants.KeyNote),
		JobTitle:       Present(jobTitle),
	}
}

// Render 按模型键输出线上字面值
func (r CandidateRecord) Render() map[string]string {
	return map[string]string{
		constants.KeyFullName:       r.FullName.String(),
		constants.KeyEmail:          r.Email.String(),
		constants.KeyPhoneNumber:    r.PhoneNumber.String(),
		constants.KeyJobTitle:       r.JobTitle.String(),
		constants.KeyDateOfBirth:    r.DateOfBirth.String(),
		constants.KeyGender:         r.Gender.String(),
		constants.KeyWorkExperience: r.WorkExperience.String(),
		constants.KeyEducation:      r.Education.String(),
		constants.KeyNote:           r.Note.String(),
	}
}

// Gender 取值
const (
	GenderMale   = "Male"
	GenderFemale = "Female"
)

// NormalizeGender 统一性别写法，越南语 Nam/Nữ 也折叠为 Male/Female。
// 其他无法识别的值原样保留。
func NormalizeGender(v FieldValue) FieldValue {
	if !v.IsPresent() {
		return v
	}
	switch strings.ToLower(strings.TrimSpace(v.Text)) {
	case "male", "nam", "m":
		return Present(GenderMale)
	case "female", "nữ", "nu", "f":
		return Present(GenderFemale)
	}
	return v
}

// DocumentHandle 一份待处理简历及其由目录结构推出的元数据
type DocumentHandle struct {
	Path     string // 绝对或相对于工作目录的路径
	RelPath  string // 相对于数据根目录的路径
	FileName string
	JobTitle string
	Source   string
}

// LinkCell 多维表格中的超链接单元格
type LinkCell struct {
	Text string `json:"text"`
	Link string `json:"link"`
}

// PublishRecord 发送给多维表格的字段集合，值为 string 或 LinkCell
type PublishRecord map[string]any

// ExistingRecord 多维表格中已存在的记录
type ExistingRecord struct {
	RecordID string
	FileCV   *LinkCell
}

// FileRef 上传成功的文件
type FileRef struct {
	Token string
	Name  string
	Link  string
}

// PublishedEvent 一份简历成功写入多维表格后发出的事件
type PublishedEvent struct {
	EventID     string    `json:"event_id"`
	RunID       string    `json:"run_id"`
	FileName    string    `json:"file_name"`
	RelPath     string    `json:"rel_path"`
	JobTitle    string    `json:"job_title"`
	Source      string    `json:"source"`
	RecordID    string    `json:"record_id"`
	FileToken   string    `json:"file_token"`
	ContentMD5  string    `json:"content_md5,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}
