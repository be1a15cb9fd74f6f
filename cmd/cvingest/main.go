package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cv-ingest-go/internal/agent"
	"cv-ingest-go/internal/config"
	"cv-ingest-go/internal/logger"
	"cv-ingest-go/internal/parser"
	"cv-ingest-go/internal/processor"
	"cv-ingest-go/internal/storage"
	"cv-ingest-go/internal/tracing"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

var (
	version     = "1.0.0"        //nolint:gochecknoglobals
	serviceName = "cv-ingest-go" //nolint:gochecknoglobals
)

// 退出码
const (
	exitOK     = 0
	exitFatal  = 1
	exitFailed = 2 // 运行完成但有文件处理失败
)

type options struct {
	configPath  string
	dataDir     string
	dryRun      bool
	logLevel    string
	showVersion bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "配置文件路径，默认在当前目录和 config/ 下查找 config.yaml")
	fs.StringVarP(&opts.dataDir, "data-dir", "d", "", "简历根目录，覆盖 ingest.data_dir")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "只抽取不上传、不写入多维表格")
	fs.StringVar(&opts.logLevel, "log-level", "", "日志级别，覆盖 logger.level")
	fs.BoolVarP(&opts.showVersion, "version", "v", false, "打印版本号")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(os.Stderr, err)
		return exitFatal
	}
	if opts.showVersion {
		fmt.Printf("%s %s\n", serviceName, version)
		return exitOK
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		return exitFatal
	}
	applyOverrides(cfg, opts)

	logCloser, err := logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
		File:         cfg.Logger.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		return exitFatal
	}
	defer logCloser.Close()

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("配置校验失败")
		return exitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	log := logger.Logger.With().Str("run_id", runID).Logger()
	log.Info().Str("version", version).Str("data_dir", cfg.Ingest.DataDir).Bool("dry_run", cfg.Ingest.DryRun).Msg("启动简历批量入库")

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, runID)
	if err != nil {
		log.Error().Err(err).Msg("初始化 tracing 失败")
		return exitFatal
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("关闭 tracing 失败")
		}
	}()

	walker, closeDeps, err := buildWalker(ctx, cfg, runID)
	if err != nil {
		log.Error().Err(err).Msg("初始化依赖失败")
		return exitFatal
	}
	defer closeDeps()

	summary, err := walker.Run(ctx, cfg.Ingest.DataDir)
	if summary != nil {
		printSummary(os.Stdout, summary, cfg.Ingest.DryRun)
	}
	if err != nil {
		log.Error().Err(err).Msg("批量入库中止")
		return exitFatal
	}
	if len(summary.Failed) > 0 {
		return exitFailed
	}
	return exitOK
}

// applyOverrides 命令行参数优先于配置文件
func applyOverrides(cfg *config.Config, opts options) {
	if opts.dataDir != "" {
		cfg.Ingest.DataDir = opts.dataDir
	}
	if opts.dryRun {
		cfg.Ingest.DryRun = true
	}
	if opts.logLevel != "" {
		cfg.Logger.Level = opts.logLevel
	}
}

// buildWalker 组装存储、模型、PDF 解析器和遍历器
func buildWalker(ctx context.Context, cfg *config.Config, runID string) (*processor.Walker, func(), error) {
	st, err := storage.NewStorage(ctx, cfg, logger.Component("storage"))
	if err != nil {
		return nil, nil, err
	}

	chatModel, err := agent.NewChatModel(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.APIURL,
		agent.WithRateLimit(cfg.LLM.QPM),
		agent.WithTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
		agent.WithLogger(logger.Component("llm")),
	)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("初始化模型客户端失败: %w", err)
	}

	promptTemplate, err := cfg.LoadPromptTemplate()
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	extractor := parser.NewCVExtractor(chatModel,
		parser.WithMaxAttempts(cfg.LLM.MaxAttempts),
		parser.WithRetryWait(cfg.RetryWait()),
		parser.WithPromptTemplate(promptTemplate),
		parser.WithExtractorLogger(logger.Component("extractor")),
	)

	pdfExtractor, err := parser.NewEinoPDFExtractor(ctx,
		parser.WithEinoLogger(logger.Component("pdf")),
		parser.WithParseTimeout(time.Duration(cfg.Ingest.PDFTimeoutSeconds)*time.Second),
	)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("初始化PDF解析器失败: %w", err)
	}

	walkerOpts := []processor.WalkerOption{
		processor.WithWalkerLogger(logger.Component("walker")),
		processor.WithDryRun(cfg.Ingest.DryRun),
		processor.WithRunID(runID),
	}
	// 未启用的组件为 nil 指针，不能直接作为接口传入
	if st.Redis != nil {
		walkerOpts = append(walkerOpts, processor.WithContentLedger(st.Redis))
	}
	if st.MinIO != nil {
		walkerOpts = append(walkerOpts, processor.WithTextArchiver(st.MinIO))
	}
	if st.RabbitMQ != nil {
		walkerOpts = append(walkerOpts, processor.WithEventNotifier(st.RabbitMQ))
	}

	return processor.NewWalker(pdfExtractor, extractor, st.Lark, walkerOpts...), st.Close, nil
}
