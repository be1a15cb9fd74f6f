package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cv-ingest-go/internal/constants"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// ErrNoText PDF 中没有任何可提取的文本（常见于扫描件）
var ErrNoText = errors.New("pdf contains no extractable text")

type parseResult struct {
	docs []*schema.Document
	err  error
}

// EinoPDFExtractor 使用 Eino PDF Parser 按页提取文本
type EinoPDFExtractor struct {
	parser  *pdf.PDFParser
	timeout time.Duration
	logger  zerolog.Logger
}

// EinoPDFOption PDF提取器的配置选项
type EinoPDFOption func(*EinoPDFExtractor)

// WithEinoLogger 配置自定义日志记录器
func WithEinoLogger(logger zerolog.Logger) EinoPDFOption {
	return func(e *EinoPDFExtractor) {
		e.logger = logger
	}
}

// WithParseTimeout 单个文件的解析超时
func WithParseTimeout(d time.Duration) EinoPDFOption {
	return func(e *EinoPDFExtractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEinoPDFExtractor 初始化 Eino PDF 文本提取器。
// 配置为按页分割，版面修复需要逐页进行。
func NewEinoPDFExtractor(ctx context.Context, options ...EinoPDFOption) (*EinoPDFExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}

	extractor := &EinoPDFExtractor{
		parser:  p,
		timeout: constants.DefaultPDFParseTimeout,
		logger:  zerolog.Nop(),
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor, nil
}

// ExtractPages 打开文件并返回每页的原始文本。文件在返回前一定会被关闭。
func (e *EinoPDFExtractor) ExtractPages(ctx context.Context, filePath string) ([]string, error) {
	startTime := time.Now()

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF file %s: %w", filePath, err)
	}
	defer file.Close()

	pages, err := e.ExtractPagesFromReader(ctx, file, filePath)
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("file", filePath).
		Int("pages", len(pages)).
		Dur("duration", time.Since(startTime)).
		Msg("PDF处理完成")
	return pages, nil
}

// ExtractPagesFromReader 从 io.Reader 中按页提取文本。
// 底层解析器不检查 ctx，解析放在单独的 goroutine 中，超时或取消时直接返回，
// 该 goroutine 会在解析结束后自行退出。
func (e *EinoPDFExtractor) ExtractPagesFromReader(ctx context.Context, reader io.Reader, uri string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan parseResult, 1)
	go func() {
		// 第三方 PDF 库遇到损坏文件可能 panic，这里转成普通错误，保证批处理继续
		defer func() {
			if r := recover(); r != nil {
				done <- parseResult{err: fmt.Errorf("eino PDF parser panicked for URI %s: %v", uri, r)}
			}
		}()
		docs, err := e.parser.Parse(ctx, reader, einoParser.WithURI(uri))
		done <- parseResult{docs: docs, err: err}
	}()

	var res parseResult
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("eino PDF parser aborted for URI %s: %w", uri, ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return nil, fmt.Errorf("eino PDF parser failed for URI %s: %w", uri, res.err)
	}
	docs := res.docs
	if len(docs) == 0 {
		return nil, fmt.Errorf("eino PDF parser returned no documents for URI %s: %w", uri, ErrNoText)
	}

	pages := make([]string, 0, len(docs))
	blank := true
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		if strings.TrimSpace(doc.Content) != "" {
			blank = false
		}
		pages = append(pages, doc.Content)
	}
	if blank {
		return nil, fmt.Errorf("%s: %w", uri, ErrNoText)
	}
	return pages, nil
}
