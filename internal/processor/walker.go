package processor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"cv-ingest-go/internal/parser"
	"cv-ingest-go/internal/storage"
	"cv-ingest-go/internal/tracing"
	"cv-ingest-go/internal/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// outcome 单个文件的处理结果
type outcome int

const (
	outcomePublished outcome = iota
	outcomeDryRun
	outcomeDuplicate
)

// Summary 一次运行的统计
type Summary struct {
	RunID      string
	Scanned    int      // 遍历到的普通文件数
	Matched    int      // 其中的 PDF 数
	Published  int      // 成功写入多维表格
	DryRun     int      // dry-run 模式下完成抽取
	Skipped    []string // 文件名已存在于多维表格
	Duplicates []string // 内容哈希已发布过
	Failed     []string // 处理失败，已跳过
	Elapsed    time.Duration
}

// WalkerOption Walker 的配置选项
type WalkerOption func(*Walker)

// WithWalkerLogger 设置日志记录器
func WithWalkerLogger(logger zerolog.Logger) WalkerOption {
	return func(w *Walker) {
		w.logger = logger
	}
}

// WithDryRun 只抽取不上传、不写表
func WithDryRun(dryRun bool) WalkerOption {
	return func(w *Walker) {
		w.dryRun = dryRun
	}
}

// WithRunID 设置本次运行的 ID，写入日志和事件
func WithRunID(runID string) WalkerOption {
	return func(w *Walker) {
		w.runID = runID
	}
}

// WithContentLedger 启用内容哈希去重
func WithContentLedger(l ContentLedger) WalkerOption {
	return func(w *Walker) {
		w.ledger = l
	}
}

// WithTextArchiver 发布成功后归档规范化文本
func WithTextArchiver(a TextArchiver) WalkerOption {
	return func(w *Walker) {
		w.archiver = a
	}
}

// WithEventNotifier 发布成功后发送入库事件
func WithEventNotifier(n EventNotifier) WalkerOption {
	return func(w *Walker) {
		w.notifier = n
	}
}

// WithTracer 替换默认 tracer，测试中使用
func WithTracer(t trace.Tracer) WalkerOption {
	return func(w *Walker) {
		w.tracer = t
	}
}

// Walker 遍历数据目录，逐个把简历 PDF 抽取后写入多维表格。
// 文件严格串行处理，单个文件失败不会中断整个运行。
type Walker struct {
	pdf       PageExtractor
	extractor CandidateExtractor
	store     RecordStore

	ledger   ContentLedger
	archiver TextArchiver
	notifier EventNotifier

	dryRun bool
	runID  string
	logger zerolog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewWalker 创建遍历器
func NewWalker(pdf PageExtractor, extractor CandidateExtractor, store RecordStore, opts ...WalkerOption) *Walker {
	w := &Walker{
		pdf:       pdf,
		extractor: extractor,
		store:     store,
		logger:    zerolog.Nop(),
		tracer:    tracing.Tracer(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.runID == "" {
		w.runID = uuid.NewString()
	}
	return w
}

// Run 处理 root 下的全部 PDF。
// 只有数据目录不可用或无法拉取现有记录时返回错误；ctx 取消时返回已完成部分的统计和 ctx.Err()。
func (w *Walker) Run(ctx context.Context, root string) (*Summary, error) {
	start := w.now()
	summary := &Summary{RunID: w.runID}
	log := w.logger.With().Str("run_id", w.runID).Logger()

	info, err := os.Stat(root)
	if err != nil {
		return summary, fmt.Errorf("%w: %w", ErrRootDir, err)
	}
	if !info.IsDir() {
		return summary, fmt.Errorf("%w: %s 不是目录", ErrRootDir, root)
	}

	existing, err := w.store.ListRecords(ctx)
	if err != nil {
		return summary, fmt.Errorf("%w: %w", ErrListRecords, err)
	}
	index := BuildFileIndex(existing)
	log.Info().Str("root", root).Int("existing", len(index)).Bool("dry_run", w.dryRun).Msg("开始处理简历目录")

	files, err := w.collect(root, summary, log)
	if err != nil {
		return summary, err
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Msg("运行被取消，停止处理剩余文件")
			summary.Elapsed = w.now().Sub(start)
			return summary, err
		}

		doc, err := DeriveDocumentHandle(root, path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("无法解析文件路径")
			summary.Failed = append(summary.Failed, path)
			continue
		}

		if index.Contains(doc.FileName) {
			log.Info().Str("file", doc.FileName).Msg("文件已存在于多维表格，跳过")
			summary.Skipped = append(summary.Skipped, doc.RelPath)
			continue
		}

		res, err := w.processDocument(ctx, doc)
		if errors.Is(err, ErrCancelled) {
			log.Warn().Str("file", doc.RelPath).Msg("运行被取消，当前文件未写入多维表格")
			summary.Elapsed = w.now().Sub(start)
			return summary, ctx.Err()
		}
		if err != nil {
			log.Error().Err(err).Str("file", doc.RelPath).Msg("处理简历失败，继续下一个")
			summary.Failed = append(summary.Failed, doc.RelPath)
			continue
		}
		switch res {
		case outcomePublished:
			summary.Published++
		case outcomeDryRun:
			summary.DryRun++
		case outcomeDuplicate:
			summary.Duplicates = append(summary.Duplicates, doc.RelPath)
		}
	}

	summary.Elapsed = w.now().Sub(start)
	log.Info().
		Int("scanned", summary.Scanned).
		Int("matched", summary.Matched).
		Int("published", summary.Published).
		Int("dry_run", summary.DryRun).
		Int("skipped", len(summary.Skipped)).
		Int("duplicates", len(summary.Duplicates)).
		Int("failed", len(summary.Failed)).
		Dur("elapsed", summary.Elapsed).
		Msg("简历目录处理完成")
	return summary, nil
}

// collect 按字典序收集 root 下的 PDF，无法读取的子目录记录日志后跳过
func (w *Walker) collect(root string, summary *Summary, log zerolog.Logger) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			log.Warn().Err(err).Str("path", path).Msg("无法访问，跳过")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		summary.Scanned++
		if IsPDF(d.Name()) {
			summary.Matched++
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRootDir, err)
	}
	return files, nil
}

// processDocument 处理单个文件：去重、读取、抽取、上传、写表
func (w *Walker) processDocument(ctx context.Context, doc types.DocumentHandle) (res outcome, err error) {
	ctx, span := w.tracer.Start(ctx, "ingest.document", trace.WithAttributes(
		attribute.String("file.path", tracing.SafePath(doc.RelPath)),
		attribute.String("cv.job_title", tracing.SafeAttributeValue("job_title", doc.JobTitle, tracing.DefaultMaxLength)),
		attribute.String("cv.source", tracing.SafeAttributeValue("source", doc.Source, tracing.DefaultMaxLength)),
		attribute.Bool("dry_run", w.dryRun),
	))
	defer span.End()

	log := w.logger.With().Str("run_id", w.runID).Str("file", doc.RelPath).Logger()

	var md5Hex string
	if w.ledger != nil {
		if md5Hex, err = storage.FileMD5(doc.Path); err != nil {
			log.Warn().Err(err).Msg("计算文件MD5失败，跳过内容去重")
		} else if seen, err := w.ledger.Seen(ctx, md5Hex); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeRedis)
			log.Warn().Err(err).Msg("查询内容去重账本失败，按新文件处理")
		} else if seen {
			log.Info().Str("md5", md5Hex).Msg("内容已发布过，跳过")
			span.SetAttributes(attribute.Bool("cv.duplicate", true))
			return outcomeDuplicate, nil
		}
	}

	text := w.readText(ctx, span, doc, log)
	record := w.extractor.Extract(ctx, text, doc.JobTitle)
	// 取消时抽取结果是失败记录，写入后文件名去重会让这份简历再也不被处理
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = newIngestError(doc.RelPath, "extract", ErrCancelled, ctxErr)
		tracing.RecordError(span, err, tracing.ErrorTypeCancelled)
		return 0, err
	}
	if record.ExtractionFailed() {
		tracing.RecordError(span, ErrExtract, tracing.ErrorTypeLLM)
		log.Warn().Msg("模型抽取失败，将发布失败记录")
	}

	if w.dryRun {
		fields := BuildPublishRecord(record, doc, nil)
		log.Info().
			Str("job_title", doc.JobTitle).
			Str("source", doc.Source).
			Int("fields", len(fields)).
			Bool("name_present", record.FullName.IsPresent()).
			Msg("dry-run: 抽取完成，未写入多维表格")
		return outcomeDryRun, nil
	}

	file, err := w.store.UploadFile(ctx, doc.Path)
	if err != nil {
		err = newIngestError(doc.RelPath, "upload", ErrUpload, err)
		tracing.RecordError(span, err, tracing.ErrorTypeLark)
		return 0, err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		err = newIngestError(doc.RelPath, "upload", ErrCancelled, ctxErr)
		tracing.RecordError(span, err, tracing.ErrorTypeCancelled)
		return 0, err
	}

	fields := BuildPublishRecord(record, doc, &file)
	recordID, err := w.store.CreateRecord(ctx, fields)
	if err != nil {
		err = newIngestError(doc.RelPath, "create_record", ErrPublish, err)
		tracing.RecordError(span, err, tracing.ErrorTypeLark)
		return 0, err
	}
	span.SetAttributes(attribute.String("lark.record_id", recordID))
	log.Info().Str("record_id", recordID).Str("file_token", file.Token).Msg("简历已写入多维表格")

	w.afterPublish(ctx, span, doc, text, file, recordID, md5Hex, log)
	return outcomePublished, nil
}

// readText 读取并规范化 PDF 文本，读取失败或没有内容时返回 nil
func (w *Walker) readText(ctx context.Context, span trace.Span, doc types.DocumentHandle, log zerolog.Logger) *string {
	pages, err := w.pdf.ExtractPages(ctx, doc.Path)
	if err != nil {
		err = newIngestError(doc.RelPath, "read_pdf", ErrReadPDF, err)
		tracing.RecordError(span, err, tracing.ErrorTypePDF)
		if errors.Is(err, parser.ErrNoText) {
			log.Warn().Msg("PDF 没有可提取的文本")
		} else {
			log.Warn().Err(err).Msg("读取PDF失败")
		}
		return nil
	}

	text := parser.NormalizeText(parser.RepairDocument(pages))
	if text == "" {
		log.Warn().Int("pages", len(pages)).Msg("规范化后文本为空")
		return nil
	}
	span.SetAttributes(attribute.Int("pdf.pages", len(pages)), attribute.Int("cv.text_length", len(text)))
	return &text
}

// afterPublish 写表成功后的附加动作，失败只记录日志
func (w *Walker) afterPublish(ctx context.Context, span trace.Span, doc types.DocumentHandle, text *string, file types.FileRef, recordID, md5Hex string, log zerolog.Logger) {
	if w.ledger != nil && md5Hex != "" {
		if err := w.ledger.Record(ctx, md5Hex); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeRedis)
			log.Warn().Err(err).Msg("写入内容去重账本失败")
		}
	}

	if w.archiver != nil && text != nil {
		objectName := storage.ArchiveObjectName(doc.JobTitle, doc.Source, doc.FileName)
		if _, err := w.archiver.ArchiveText(ctx, objectName, *text); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeMinIO)
			log.Warn().Err(err).Str("object", objectName).Msg("归档规范化文本失败")
		}
	}

	if w.notifier != nil {
		event := types.PublishedEvent{
			EventID:     uuid.NewString(),
			RunID:       w.runID,
			FileName:    doc.FileName,
			RelPath:     doc.RelPath,
			JobTitle:    doc.JobTitle,
			Source:      doc.Source,
			RecordID:    recordID,
			FileToken:   file.Token,
			ContentMD5:  md5Hex,
			PublishedAt: w.now().UTC(),
		}
		if err := w.notifier.NotifyPublished(ctx, event); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeRabbitMQ)
			log.Warn().Err(err).Msg("发送入库事件失败")
		}
	}
}
