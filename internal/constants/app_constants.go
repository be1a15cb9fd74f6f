package constants

import "time"

const (
	// AppName 用于日志、tracing 的服务名
	AppName = "cv-ingest-go"

	// NoData 模型未找到数据时使用的哨兵值，同时也是写入多维表格的字面值
	NoData = "NO DATA"
	// ErrorPrefix 错误哨兵值前缀，渲染形式为 "ERROR: <原因>"
	ErrorPrefix = "ERROR: "

	// ReasonNoCVText PDF 无法读取时每个字段的错误原因
	ReasonNoCVText = "No CV text provided"
	// ReasonExtractFailed 重试耗尽后每个字段的错误原因
	ReasonExtractFailed = "Failed to extract data"
	// ReasonMissingField 模型输出缺少某个键时的错误原因
	ReasonMissingField = "Missing data"

	// DefaultJobTitle 直接放在根目录下的简历使用的岗位名
	DefaultJobTitle = "Không nằm trong thư mục nào"
	// DefaultSource 无法从目录结构推断来源时使用的渠道名
	DefaultSource = "Unknown"

	// PDFExtension 需要处理的文件扩展名
	PDFExtension = ".pdf"

	// DefaultMaxAttempts 抽取的最大尝试次数
	DefaultMaxAttempts = 3

	// SuspiciousEmailDigits 邮箱中连续数字达到该长度时视为混入了电话号码
	SuspiciousEmailDigits = 9
)

// 模型输出 JSON 中使用的键
const (
	KeyFullName       = "Full Name"
	KeyEmail          = "Email"
	KeyPhoneNumber    = "Phone Number"
	KeyJobTitle       = "Job Title"
	KeyDateOfBirth    = "Date of Birth"
	KeyGender         = "Gender"
	KeyWorkExperience = "Work Experience"
	KeyEducation      = "Education"
	KeyNote           = "Note"
)

// ModelKeys 按 prompt 中的顺序列出模型需要返回的全部九个键
var ModelKeys = []string{
	KeyFullName, KeyEmail, KeyPhoneNumber, KeyJobTitle, KeyDateOfBirth,
	KeyGender, KeyWorkExperience, KeyEducation, KeyNote,
}

// Lark 多维表格中的列名，与现有表格保持兼容，不要随意修改
const (
	ColumnName           = "Name"
	ColumnEmail          = "Email"
	ColumnPhone          = "Phone"
	ColumnPosition       = "Position Applied (Tool)"
	ColumnSource         = "Source"
	ColumnDateOfBirth    = "Ngày sinh (Tool)"
	ColumnGender         = "Giới tính (Tool)"
	ColumnWorkExperience = "Working Experience"
	ColumnEducation      = "Education"
	ColumnNote           = "Note"
	ColumnFileCV         = "File CV"
)

const (
	// DefaultLarkAPIBase Lark 开放平台 API 根地址
	DefaultLarkAPIBase = "https://open.larksuite.com/open-apis"
	// DefaultLarkFileLinkBase 上传文件后拼接展示链接使用的前缀
	DefaultLarkFileLinkBase = "https://www.larksuite.com/file/"
	// LarkListPageSize 拉取已有记录时的分页大小（接口上限 500）
	LarkListPageSize = 500
	// LarkTokenRefreshMargin token 过期前提前刷新的余量
	LarkTokenRefreshMargin = 60 * time.Second

	// DefaultLLMAPIURL Gemini 的 OpenAI 兼容接口
	DefaultLLMAPIURL = "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions"
	// DefaultLLMModel 默认模型
	DefaultLLMModel = "gemini-1.5-flash"
	// DefaultLLMTimeout 单次模型调用的 HTTP 超时
	DefaultLLMTimeout = 120 * time.Second

	// DefaultPDFParseTimeout 单个 PDF 解析超时
	DefaultPDFParseTimeout = 30 * time.Second

	// DefaultArchiveBucket MinIO 中保存规范化文本的桶
	DefaultArchiveBucket = "cv-texts"
	// DefaultNotifyExchange RabbitMQ 事件交换机
	DefaultNotifyExchange = "cv.events.exchange"
	// DefaultNotifyRoutingKey 发布成功事件的路由键
	DefaultNotifyRoutingKey = "cv.published"
)
