package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-live-translator/internal/config"
	"github.com/nerdneilsfield/go-live-translator/internal/logger"
	"github.com/nerdneilsfield/go-live-translator/internal/preview"
	"github.com/nerdneilsfield/go-live-translator/pkg/livetrans"
)

// previewShutdownTimeout 预览服务关闭的宽限时间
const previewShutdownTimeout = 3 * time.Second

var (
	// 命令行标志变量
	cfgFile      string
	outputPath   string
	htmlPath     string
	targetLang   string
	model        string
	concurrency  int
	maxRetries   int
	forceRefresh bool
	serveAddr    string
	noCache      bool
	debugMode    bool
	quietMode    bool // 不渲染进度条与告警
	logFile      string
)

// NewRootCommand 创建根命令
func NewRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "livetrans [flags] input_file",
		Short: "livetrans 按分段增量翻译 Markdown 文档",
		Long: `livetrans 把 Markdown 文档切分为语义分段后并发翻译，
严格按分段顺序输出结果，支持两级缓存与分段级失败恢复。

分段翻译结果可通过 --serve 推送到浏览器预览页面实时查看。`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd.Context(), args[0])
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径 (默认 ~/.livetrans.yaml)")
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "翻译后 Markdown 输出路径 (默认输出到标准输出)")
	rootCmd.Flags().StringVar(&htmlPath, "html", "", "同时输出渲染后的 HTML 到指定路径")
	rootCmd.Flags().StringVarP(&targetLang, "target", "t", "", "目标语言 (BCP-47 标签，覆盖配置)")
	rootCmd.Flags().StringVarP(&model, "model", "m", "", "使用的模型 (覆盖配置)")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 0, "分段翻译并发上限 (覆盖配置)")
	rootCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "单个分段最大尝试次数 (覆盖配置)")
	rootCmd.Flags().BoolVar(&forceRefresh, "refresh", false, "忽略并清除该文档的缓存后重新翻译")
	rootCmd.Flags().StringVar(&serveAddr, "serve", "", "启动预览服务并推送事件 (如 127.0.0.1:8090)")
	rootCmd.Flags().BoolVar(&noCache, "no-cache", false, "禁用磁盘缓存")
	rootCmd.Flags().BoolVar(&debugMode, "debug", false, "输出调试日志")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "同时把日志写入指定文件")
	rootCmd.Flags().BoolVarP(&quietMode, "quiet", "q", false, "不渲染进度条与分段告警")

	return rootCmd
}

// runTranslate 执行单文件翻译
func runTranslate(ctx context.Context, inputPath string) error {
	var log *zap.Logger
	if logFile != "" {
		log = logger.NewFileLogger(debugMode, logFile)
	} else {
		log = logger.NewLogger(debugMode)
	}
	defer func() {
		_ = log.Sync()
	}()

	appCfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		log.Error("加载配置失败", zap.Error(err))
		return err
	}
	applyFlagOverrides(appCfg)

	data, err := os.ReadFile(inputPath)
	if err != nil {
		log.Error("读取输入文件失败", zap.String("file", inputPath), zap.Error(err))
		return err
	}

	absPath, err := filepath.Abs(inputPath)
	if err != nil {
		absPath = inputPath
	}

	// 终端输出 + 可选的浏览器预览共用一条消息流
	emitters := multiEmitter{newTerminalEmitter(quietMode)}
	var previewServer *preview.Server
	if serveAddr != "" {
		previewServer = preview.NewServer(serveAddr, log)
		emitters = append(emitters, previewServer)
		go func() {
			if err := previewServer.ListenAndServe(); err != nil {
				log.Error("预览服务异常退出", zap.Error(err))
			}
		}()
		fmt.Printf("预览页面: http://%s/\n", serveAddr)
	}

	opts := []livetrans.Option{
		livetrans.WithLogger(log),
		livetrans.WithEmitter(emitters),
		livetrans.WithSegmenter(appCfg.Segmenter()),
		livetrans.WithSegmentCache(livetrans.NewSegmentCache(appCfg.CacheMaxEntries, appCfg.CacheTTL())),
		livetrans.WithDocumentCache(livetrans.NewDocumentCache(appCfg.CacheMaxEntries, appCfg.CacheTTL(), log)),
		livetrans.WithWorkspaceDir(filepath.Dir(absPath)),
	}
	if appCfg.UseCache && !noCache {
		if err := os.MkdirAll(appCfg.CacheDir, 0o755); err != nil {
			log.Error("创建缓存目录失败", zap.String("dir", appCfg.CacheDir), zap.Error(err))
			return err
		}
		opts = append(opts, livetrans.WithCacheDir(appCfg.CacheDir))
	}

	svc, err := livetrans.NewService(appCfg.Resolve(), opts...)
	if err != nil {
		log.Error("创建翻译服务失败", zap.Error(err))
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := svc.TranslateDocument(runCtx, &livetrans.Request{
		Text:         string(data),
		FileName:     filepath.Base(absPath),
		DocumentID:   absPath,
		ForceRefresh: forceRefresh,
	})
	if err != nil {
		log.Error("翻译文档失败", zap.String("file", inputPath), zap.Error(err))
		return err
	}

	if err := writeOutputs(result); err != nil {
		log.Error("写出结果失败", zap.Error(err))
		return err
	}

	printSummary(result)

	// 预览模式下保持服务直到中断，便于刷新页面查看结果
	if previewServer != nil {
		fmt.Println("按 Ctrl-C 结束预览服务")
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), previewShutdownTimeout)
		defer cancel()
		_ = previewServer.Shutdown(shutdownCtx)
	}
	return nil
}

// applyFlagOverrides 命令行标志覆盖配置文件
func applyFlagOverrides(cfg *config.Config) {
	if targetLang != "" {
		cfg.TargetLanguage = targetLang
	}
	if model != "" {
		cfg.Model = model
	}
	if concurrency > 0 {
		cfg.Concurrency = concurrency
	}
	if maxRetries > 0 {
		cfg.MaxRetries = maxRetries
	}
	if debugMode {
		cfg.Debug = true
	}
}

// writeOutputs 写出 Markdown 与可选的 HTML
func writeOutputs(result *livetrans.Result) error {
	if outputPath == "" {
		fmt.Println(result.Markdown)
	} else {
		if err := os.WriteFile(outputPath, []byte(result.Markdown), 0o644); err != nil {
			return err
		}
	}
	if htmlPath != "" {
		if err := os.WriteFile(htmlPath, []byte(result.HTML), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// printSummary 汇总表格：整体信息与分段恢复明细
func printSummary(result *livetrans.Result) {
	if quietMode {
		return
	}

	tw := table.NewWriter()
	tw.AppendRow(table.Row{"项", "值"})
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"目标语言", result.TargetLanguage})
	tw.AppendRow(table.Row{"提供方", result.ProviderID})
	tw.AppendRow(table.Row{"耗时", livetrans.FormatLatency(result.Latency)})
	tw.AppendRow(table.Row{"命中缓存", result.WasCached})
	tw.AppendRow(table.Row{"分段恢复数", len(result.Recoveries)})
	tw.SetStyle(table.StyleLight)
	fmt.Println(tw.Render())

	if len(result.Recoveries) == 0 {
		return
	}

	warn := color.New(color.FgYellow, color.Bold)
	warn.Println("以下分段未获得新鲜翻译:")
	rt := table.NewWriter()
	rt.AppendRow(table.Row{"分段", "方式", "错误码", "尝试次数"})
	rt.AppendSeparator()
	for _, rec := range result.Recoveries {
		rt.AppendRow(table.Row{rec.SegmentIndex, rec.Type, rec.Code, rec.Attempts})
	}
	rt.SetStyle(table.StyleLight)
	fmt.Println(rt.Render())
}
