package processor

import (
	"context"

	"cv-ingest-go/internal/types"
)

// PageExtractor 按页提取 PDF 文本
type PageExtractor interface {
	ExtractPages(ctx context.Context, filePath string) ([]string, error)
}

// CandidateExtractor 从规范化文本抽取候选人记录。
// cvText 为 nil 表示 PDF 没有可用文本；实现不返回错误，失败体现在字段值上。
type CandidateExtractor interface {
	Extract(ctx context.Context, cvText *string, jobTitle string) types.CandidateRecord
}

// RecordStore 远端记录存储（Lark 多维表格 + 云空间）
type RecordStore interface {
	// ListRecords 拉取表中全部记录，用于构建文件名去重索引
	ListRecords(ctx context.Context) ([]types.ExistingRecord, error)
	// UploadFile 上传原始 PDF，返回文件引用
	UploadFile(ctx context.Context, path string) (types.FileRef, error)
	// CreateRecord 新建一条记录，返回记录 ID
	CreateRecord(ctx context.Context, fields types.PublishRecord) (string, error)
}

// ContentLedger 基于内容哈希的去重账本（可选）
type ContentLedger interface {
	Seen(ctx context.Context, md5Hex string) (bool, error)
	Record(ctx context.Context, md5Hex string) error
}

// TextArchiver 归档规范化文本（可选）
type TextArchiver interface {
	ArchiveText(ctx context.Context, objectName, text string) (string, error)
}

// EventNotifier 入库事件通知（可选）
type EventNotifier interface {
	NotifyPublished(ctx context.Context, event types.PublishedEvent) error
}
