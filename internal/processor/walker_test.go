package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cv-ingest-go/internal/constants"
	"cv-ingest-go/internal/parser"
	"cv-ingest-go/internal/storage"
	"cv-ingest-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// --- fakes ---

type fakePDF struct {
	errs  map[string]error // 按文件名
	calls []string
}

func (f *fakePDF) ExtractPages(_ context.Context, path string) ([]string, error) {
	name := filepath.Base(path)
	f.calls = append(f.calls, name)
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	return []string{"Nguyễn Văn A\nKỹ sư phần mềm", "Kinh nghiệm: 3 năm"}, nil
}

type extractCall struct {
	text     *string
	jobTitle string
}

type fakeExtractor struct {
	calls []extractCall
}

func (f *fakeExtractor) Extract(_ context.Context, cvText *string, jobTitle string) types.CandidateRecord {
	f.calls = append(f.calls, extractCall{text: cvText, jobTitle: jobTitle})
	if cvText == nil {
		return types.NoTextRecord(jobTitle)
	}
	return types.RecordFromFields(map[string]string{
		constants.KeyFullName:       "Nguyễn Văn A",
		constants.KeyEmail:          "a@x.com",
		constants.KeyPhoneNumber:    constants.NoData,
		constants.KeyJobTitle:       "ignored",
		constants.KeyDateOfBirth:    constants.NoData,
		constants.KeyGender:         "Nam",
		constants.KeyWorkExperience: "3 năm",
		constants.KeyEducation:      constants.NoData,
		constants.KeyNote:           constants.NoData,
	}, jobTitle)
}

type fakeStore struct {
	existing   []types.ExistingRecord
	listErr    error
	uploadErrs map[string]error
	createErrs map[string]error

	uploads []string
	created []types.PublishRecord
}

func (f *fakeStore) ListRecords(context.Context) ([]types.ExistingRecord, error) {
	return f.existing, f.listErr
}

func (f *fakeStore) UploadFile(_ context.Context, path string) (types.FileRef, error) {
	name := filepath.Base(path)
	f.uploads = append(f.uploads, name)
	if err, ok := f.uploadErrs[name]; ok {
		return types.FileRef{}, err
	}
	return types.FileRef{Token: "tok-" + name, Name: name, Link: "https://lark/file/tok-" + name}, nil
}

func (f *fakeStore) CreateRecord(_ context.Context, fields types.PublishRecord) (string, error) {
	if cell, ok := fields[constants.ColumnFileCV].(types.LinkCell); ok {
		if err, ok := f.createErrs[cell.Text]; ok {
			return "", err
		}
	}
	f.created = append(f.created, fields)
	return "rec" + string(rune('0'+len(f.created))), nil
}

type fakeLedger struct {
	seen     map[string]bool
	seenErr  error
	recorded []string
}

func (f *fakeLedger) Seen(_ context.Context, md5Hex string) (bool, error) {
	return f.seen[md5Hex], f.seenErr
}

func (f *fakeLedger) Record(_ context.Context, md5Hex string) error {
	f.recorded = append(f.recorded, md5Hex)
	return nil
}

type fakeArchiver struct {
	objects map[string]string
}

func (f *fakeArchiver) ArchiveText(_ context.Context, objectName, text string) (string, error) {
	if f.objects == nil {
		f.objects = map[string]string{}
	}
	f.objects[objectName] = text
	return objectName, nil
}

type fakeNotifier struct {
	events []types.PublishedEvent
	err    error
}

func (f *fakeNotifier) NotifyPublished(_ context.Context, event types.PublishedEvent) error {
	f.events = append(f.events, event)
	return f.err
}

// writeFiles 在 root 下创建文件，内容为相对路径，保证 MD5 各不相同
func writeFiles(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(rel), 0o644))
	}
}

func newTestWalker(pdf *fakePDF, ext CandidateExtractor, store *fakeStore, opts ...WalkerOption) *Walker {
	opts = append([]WalkerOption{WithRunID("run-1")}, opts...)
	return NewWalker(pdf, ext, store, opts...)
}

// --- tests ---

func TestWalker_SkipsFileNamesAlreadyPublished(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "X.pdf", "Y.pdf", "Engineer/LinkedIn/X.pdf")

	pdf, ext := &fakePDF{}, &fakeExtractor{}
	store := &fakeStore{existing: []types.ExistingRecord{
		{RecordID: "old", FileCV: &types.LinkCell{Text: "X.pdf", Link: "https://lark/file/old"}},
	}}

	summary, err := newTestWalker(pdf, ext, store).Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"Engineer/LinkedIn/X.pdf", "X.pdf"}, summary.Skipped, "同名文件不论在哪个目录都跳过")
	assert.Equal(t, 1, summary.Published)
	assert.Equal(t, []string{"Y.pdf"}, pdf.calls, "已存在的文件不应读取")
	assert.Len(t, ext.calls, 1, "已存在的文件不应调用模型")
	assert.Equal(t, []string{"Y.pdf"}, store.uploads)
}

func TestWalker_PublishesWithPathMetadata(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "Engineer/LinkedIn/cv.pdf", "root.pdf")

	pdf, ext, store := &fakePDF{}, &fakeExtractor{}, &fakeStore{}
	summary, err := newTestWalker(pdf, ext, store).Run(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, store.created, 2)
	assert.Equal(t, 2, summary.Published)

	// WalkDir 按字典序遍历: Engineer/ 在 root.pdf 之前
	first, second := store.created[0], store.created[1]
	assert.Equal(t, "Engineer", first[constants.ColumnPosition])
	assert.Equal(t, "LinkedIn", first[constants.ColumnSource])
	assert.Equal(t, types.LinkCell{Text: "cv.pdf", Link: "https://lark/file/tok-cv.pdf"}, first[constants.ColumnFileCV])
	assert.Equal(t, types.LinkCell{Text: "a@x.com", Link: "mailto:a@x.com"}, first[constants.ColumnEmail])
	assert.Equal(t, "Male", first[constants.ColumnGender])

	assert.Equal(t, constants.DefaultJobTitle, second[constants.ColumnPosition])
	assert.Equal(t, constants.DefaultSource, second[constants.ColumnSource])

	assert.Equal(t, "Engineer", ext.calls[0].jobTitle)
	require.NotNil(t, ext.calls[0].text)
	assert.Equal(t, "Nguyễn Văn A Kỹ sư phần mềm Kinh nghiệm: 3 năm", *ext.calls[0].text)
}

func TestWalker_IgnoresNonPDFFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.pdf", "b.PDF", "notes.txt", "Engineer/LinkedIn/c.docx")

	pdf, ext, store := &fakePDF{}, &fakeExtractor{}, &fakeStore{}
	summary, err := newTestWalker(pdf, ext, store).Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Scanned)
	assert.Equal(t, 2, summary.Matched)
	assert.Equal(t, 2, summary.Published)
}

func TestWalker_FailureContinuesWithNextDocument(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.pdf", "b.pdf", "c.pdf")

	pdf, ext := &fakePDF{}, &fakeExtractor{}
	store := &fakeStore{
		uploadErrs: map[string]error{"a.pdf": errors.New("network down")},
		createErrs: map[string]error{"b.pdf": &storage.LarkError{Op: "create record", Code: 1254001, Msg: "WrongRequestBody"}},
	}

	summary, err := newTestWalker(pdf, ext, store).Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.pdf", "b.pdf"}, summary.Failed)
	assert.Equal(t, 1, summary.Published)
	require.Len(t, store.created, 1)
	assert.Equal(t, types.LinkCell{Text: "c.pdf", Link: "https://lark/file/tok-c.pdf"}, store.created[0][constants.ColumnFileCV])
}

func TestWalker_ProcessDocumentErrors(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.pdf")

	store := &fakeStore{uploadErrs: map[string]error{"a.pdf": errors.New("boom")}}
	w := newTestWalker(&fakePDF{}, &fakeExtractor{}, store)
	doc, err := DeriveDocumentHandle(root, filepath.Join(root, "a.pdf"))
	require.NoError(t, err)

	_, err = w.processDocument(context.Background(), doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpload)

	var ingestErr *IngestError
	require.ErrorAs(t, err, &ingestErr)
	assert.Equal(t, "upload", ingestErr.Op)
	assert.Equal(t, "a.pdf", ingestErr.File)

	store.uploadErrs = nil
	store.createErrs = map[string]error{"a.pdf": &storage.LarkError{Op: "create record", Code: 99}}
	_, err = w.processDocument(context.Background(), doc)
	assert.ErrorIs(t, err, ErrPublish)
	var larkErr *storage.LarkError
	require.ErrorAs(t, err, &larkErr)
	assert.Equal(t, 99, larkErr.Code)
}

func TestWalker_UnreadablePDFStillPublished(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "scan.pdf")

	pdf := &fakePDF{errs: map[string]error{"scan.pdf": parser.ErrNoText}}
	ext, store := &fakeExtractor{}, &fakeStore{}

	summary, err := newTestWalker(pdf, ext, store).Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Published)

	require.Len(t, ext.calls, 1)
	assert.Nil(t, ext.calls[0].text)
	require.Len(t, store.created, 1)
	assert.Equal(t, "ERROR: No CV text provided", store.created[0][constants.ColumnName])
}

func TestWalker_DryRunDoesNotPublish(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.pdf", "Engineer/TopCV/b.pdf")

	ledger, notifier := &fakeLedger{}, &fakeNotifier{}
	pdf, ext, store := &fakePDF{}, &fakeExtractor{}, &fakeStore{}
	w := newTestWalker(pdf, ext, store, WithDryRun(true), WithContentLedger(ledger), WithEventNotifier(notifier))

	summary, err := w.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.DryRun)
	assert.Zero(t, summary.Published)
	assert.Len(t, ext.calls, 2)
	assert.Empty(t, store.uploads)
	assert.Empty(t, store.created)
	assert.Empty(t, ledger.recorded)
	assert.Empty(t, notifier.events)
}

func TestWalker_RootErrors(t *testing.T) {
	store := &fakeStore{}
	_, err := newTestWalker(&fakePDF{}, &fakeExtractor{}, store).Run(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrRootDir)

	file := filepath.Join(t.TempDir(), "a.pdf")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = newTestWalker(&fakePDF{}, &fakeExtractor{}, store).Run(context.Background(), file)
	assert.ErrorIs(t, err, ErrRootDir)
}

func TestWalker_ListRecordsFailureIsFatal(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.pdf")

	listErr := &storage.LarkError{Op: "list records", Code: 91402, Msg: "NOTEXIST"}
	ext := &fakeExtractor{}
	_, err := newTestWalker(&fakePDF{}, ext, &fakeStore{listErr: listErr}).Run(context.Background(), root)

	assert.ErrorIs(t, err, ErrListRecords)
	assert.ErrorIs(t, err, listErr)
	assert.Empty(t, ext.calls)
}

func TestWalker_ContentLedgerAndSideEffects(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "Engineer/LinkedIn/a.pdf", "Engineer/LinkedIn/b.pdf")

	dupMD5, err := storage.FileMD5(filepath.Join(root, "Engineer", "LinkedIn", "b.pdf"))
	require.NoError(t, err)
	newMD5, err := storage.FileMD5(filepath.Join(root, "Engineer", "LinkedIn", "a.pdf"))
	require.NoError(t, err)

	ledger := &fakeLedger{seen: map[string]bool{dupMD5: true}}
	archiver := &fakeArchiver{}
	notifier := &fakeNotifier{err: errors.New("channel closed")}
	ext, store := &fakeExtractor{}, &fakeStore{}

	w := newTestWalker(&fakePDF{}, ext, store,
		WithContentLedger(ledger), WithTextArchiver(archiver), WithEventNotifier(notifier))
	summary, err := w.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"Engineer/LinkedIn/b.pdf"}, summary.Duplicates)
	assert.Equal(t, 1, summary.Published)
	assert.Empty(t, summary.Failed, "通知失败不影响发布结果")
	assert.Len(t, ext.calls, 1)
	assert.Equal(t, []string{newMD5}, ledger.recorded)

	assert.Equal(t, "Nguyễn Văn A Kỹ sư phần mềm Kinh nghiệm: 3 năm", archiver.objects["Engineer/LinkedIn/a.txt"])

	require.Len(t, notifier.events, 1)
	ev := notifier.events[0]
	assert.Equal(t, "run-1", ev.RunID)
	assert.Equal(t, "a.pdf", ev.FileName)
	assert.Equal(t, "Engineer/LinkedIn/a.pdf", ev.RelPath)
	assert.Equal(t, "rec1", ev.RecordID)
	assert.Equal(t, "tok-a.pdf", ev.FileToken)
	assert.Equal(t, newMD5, ev.ContentMD5)
	assert.NotEmpty(t, ev.EventID)
}

func TestWalker_LedgerErrorTreatsAsNew(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.pdf")

	ledger := &fakeLedger{seenErr: errors.New("redis down")}
	store := &fakeStore{}
	summary, err := newTestWalker(&fakePDF{}, &fakeExtractor{}, store, WithContentLedger(ledger)).Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Published)
	assert.Len(t, ledger.recorded, 1)
}

func TestWalker_StopsWhenContextCancelled(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.pdf", "b.pdf")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ext := &fakeExtractor{}
	summary, err := newTestWalker(&fakePDF{}, ext, &fakeStore{}).Run(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, summary.Matched)
	assert.Empty(t, ext.calls)
}

func TestWalker_RecordsDocumentSpans(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "Engineer/LinkedIn/a.pdf", "b.pdf")

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	store := &fakeStore{uploadErrs: map[string]error{"b.pdf": errors.New("boom")}}
	_, err := newTestWalker(&fakePDF{}, &fakeExtractor{}, store, WithTracer(tp.Tracer("test"))).Run(context.Background(), root)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	for _, s := range spans {
		assert.Equal(t, "ingest.document", s.Name())
	}
	assert.Empty(t, spans[0].Events(), "成功的文件不应记录错误")
	assert.NotEmpty(t, spans[1].Events())
}

// cancellingGenerator 模拟模型调用期间收到 SIGINT
type cancellingGenerator struct {
	cancel context.CancelFunc
	calls  int
}

func (g *cancellingGenerator) Generate(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	g.calls++
	g.cancel()
	return nil, ctx.Err()
}

func TestWalker_CancelDuringExtractionDoesNotPublish(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.pdf", "b.pdf")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen := &cancellingGenerator{cancel: cancel}
	extractor := parser.NewCVExtractor(gen)
	ledger, notifier := &fakeLedger{}, &fakeNotifier{}
	store := &fakeStore{}

	summary, err := newTestWalker(&fakePDF{}, extractor, store,
		WithContentLedger(ledger), WithEventNotifier(notifier)).Run(ctx, root)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, gen.calls)
	assert.Zero(t, summary.Published)
	assert.Empty(t, summary.Failed)
	assert.Empty(t, store.uploads, "取消后不应上传文件")
	assert.Empty(t, store.created, "取消后不应写入失败记录")
	assert.Empty(t, ledger.recorded)
	assert.Empty(t, notifier.events)
}

func TestWalker_ProcessDocumentCancelledAfterExtract(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.pdf")
	doc, err := DeriveDocumentHandle(root, filepath.Join(root, "a.pdf"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	gen := &cancellingGenerator{cancel: cancel}
	store := &fakeStore{}

	_, err = newTestWalker(&fakePDF{}, parser.NewCVExtractor(gen), store).processDocument(ctx, doc)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)

	var ingestErr *IngestError
	require.ErrorAs(t, err, &ingestErr)
	assert.Equal(t, "extract", ingestErr.Op)
	assert.Empty(t, store.uploads)
}

type failedExtractor struct{}

func (failedExtractor) Extract(_ context.Context, _ *string, jobTitle string) types.CandidateRecord {
	return types.FailedRecord(jobTitle)
}

func TestWalker_ExtractionFailureMarksSpan(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "Engineer/LinkedIn/a.pdf")

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	store := &fakeStore{}
	summary, err := NewWalker(&fakePDF{}, failedExtractor{}, store, WithTracer(tp.Tracer("test"))).Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Published, "失败记录仍然发布")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "llm", attrs["error.type"])
	assert.Equal(t, "Engineer", attrs["cv.job_title"])
	assert.Equal(t, "LinkedIn", attrs["cv.source"])
}
