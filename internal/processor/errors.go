package processor

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrRootDir     = errors.New("数据目录不可用")
	ErrListRecords = errors.New("拉取多维表格现有记录失败")
	ErrReadPDF     = errors.New("读取PDF文本失败")
	ErrUpload      = errors.New("上传简历文件失败")
	ErrPublish     = errors.New("写入多维表格失败")
	ErrExtract     = errors.New("模型抽取失败，已使用失败记录")
	ErrCancelled   = errors.New("运行被取消，未写入多维表格")
)

// IngestError 单个文件处理失败的详细信息
type IngestError struct {
	File string
	Op   string
	Err  error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("%s (操作:%s, 文件:%s)", e.Err, e.Op, e.File)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

func newIngestError(file, op string, base, cause error) error {
	return &IngestError{
		File: file,
		Op:   op,
		Err:  fmt.Errorf("%w: %w", base, cause),
	}
}
