package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/filtering"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/pipeline"
	"github.com/spigell/cv-screener/internal/posting"
	"github.com/spigell/cv-screener/internal/report"
)

const (
	PromptYes                 = "Yes"
	PromptNo                  = "No"
	PromptListDocuments       = "List documents"
	PromptShowFilters         = "Show filters"
	PromptDone                = "Done"
	PromptAppendToExcludeFile = "Append analyzed documents to exclude file"
	PromptResultsToFile       = "Dump results to file"
)

var errExit = errors.New("exit requested")

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze every CV in the uploads folder against a job description",
	Run: func(cmd *cobra.Command, _ []string) {
		analyze(cmd)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringP("uploads", "u", "", "folder with CV files (default is ./uploads)")
	analyzeCmd.Flags().String("job-file", "", "file with the job description")
	analyzeCmd.Flags().StringP("output", "o", "", "CSV results file")
	analyzeCmd.Flags().String("xlsx", "", "XLSX results file. Default is unset.")
	analyzeCmd.Flags().IntP("concurrency", "c", 0, "documents analyzed in parallel")
	analyzeCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before and after the analysis")
	analyzeCmd.Flags().BoolP("reanalyze", "f", false, "analyze documents already present in the results history")

	viper.BindPFlag("uploads", analyzeCmd.Flags().Lookup("uploads"))
	viper.BindPFlag("job-file", analyzeCmd.Flags().Lookup("job-file"))
	viper.BindPFlag("output.csv", analyzeCmd.Flags().Lookup("output"))
	viper.BindPFlag("output.xlsx", analyzeCmd.Flags().Lookup("xlsx"))
	viper.BindPFlag("batch.concurrency", analyzeCmd.Flags().Lookup("concurrency"))
}

// analyze is the batch command for the cli.
func analyze(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync() //nolint:errcheck

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the cv-screener", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	job, err := resolveJob(config)
	if err != nil {
		logger.Fatal("loading the job description",
			zap.Error(err),
			zap.String("hint", "set job-file or job.description in the configuration file"),
		)
	}

	docs, err := pipeline.LoadDir(config.Uploads, config.Batch.MaxFiles)
	if err != nil {
		logger.Fatal("loading documents", zap.Error(err))
	}
	logger.Info("documents found", zap.String("uploads", config.Uploads), zap.Int("count", len(docs)))

	items := make([]pipeline.Item, 0, len(docs))
	for _, doc := range docs {
		items = append(items, pipeline.Item{Document: doc, Applicant: config.applicantFor(doc.Filename)})
	}

	steps := prepareFilters(cmd, config)
	items, err = filtering.Run(ctx, filtering.Deps{Logger: logger}, steps, items)
	if err != nil {
		logger.Fatal("filtering failed", zap.Error(err))
	}
	if len(items) == 0 {
		logger.Info("exiting", zap.String("reason", "no documents left after filters"))
		return
	}

	autoApprove := cmd.Flag("auto-approve").Value.String() == "true"
	if !autoApprove {
		if err := confirm(job, items, steps); err != nil {
			if errors.Is(err, errExit) {
				logger.Info("exiting", zap.String("reason", "got no from prompt"))
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}

	pool, closePool, err := newScorePool(ctx, config.Scores, logger)
	if err != nil {
		logger.Fatal("preparing the score registry", zap.Error(err))
	}
	defer closePool()

	batch := pipeline.NewBatch(newAnalyzer(ctx, config, logger), pool,
		pipeline.WithConcurrency(config.Batch.Concurrency),
		pipeline.WithDelay(config.Batch.Delay),
		pipeline.WithBatchLogger(logger),
	)

	result, err := batch.Run(ctx, job, items)
	if err != nil {
		if result == nil {
			logger.Fatal("running the batch", zap.Error(err))
		}
		logger.Warn("batch stopped early, writing partial results", zap.Error(err))
	}

	if err := report.Summarize(result.Rows).Write(os.Stdout); err != nil {
		logger.Error("printing the summary", zap.Error(err))
	}

	if err := saveResults(config, result, job, logger); err != nil {
		logger.Fatal("saving results", zap.Error(err))
	}

	if autoApprove {
		return
	}
	if err := afterRun(config, result, logger); err != nil {
		logger.Fatal("exiting", zap.Error(err))
	}
}

func resolveJob(config *Config) (posting.Job, error) {
	base := config.Job
	if strings.TrimSpace(base.ID) == "" {
		base.ID = pipeline.DefaultPostingID
	}

	if path := strings.TrimSpace(config.JobFile); path != "" {
		return posting.LoadJob(path, base)
	}

	base.Description = strings.TrimSpace(base.Description)
	if n := utf8.RuneCountInString(base.Description); n < posting.MinDescriptionLength {
		return posting.Job{}, fmt.Errorf("%w: %d characters, need %d", posting.ErrDescriptionTooShort, n, posting.MinDescriptionLength)
	}
	return base, nil
}

func prepareFilters(cmd *cobra.Command, config *Config) []filtering.Filter {
	reanalyze := false
	if cmd != nil {
		flag := cmd.Flag("reanalyze")
		if flag != nil && strings.EqualFold(flag.Value.String(), "true") {
			reanalyze = true
		}
	}

	steps := []filtering.Filter{
		filtering.NewEmpty(),
		filtering.NewDuplicates(),
		filtering.NewExcludePatterns(config.Filtering.ExcludePatterns),
		filtering.NewExcludeFile(config.Filtering.ExcludeFile),
		filtering.NewAnalyzedHistory(config.Filtering.History, reanalyze),
	}
	if strings.TrimSpace(config.Filtering.History) == "" {
		filtering.DisableByName(steps, "analyzed_history", "no results history configured")
	}
	if strings.TrimSpace(config.Filtering.ExcludeFile) == "" {
		filtering.DisableByName(steps, "exclude_file", "no exclude file configured")
	}
	return steps
}

func confirm(job posting.Job, items []pipeline.Item, steps []filtering.Filter) error {
	prompt := promptui.Select{
		Label: fmt.Sprintf("Analyze %d documents for the %s position?", len(items), job.DisplayTitle()),
		Items: []string{PromptYes, PromptNo, PromptListDocuments, PromptShowFilters},
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			return err
		}

		switch action {
		case PromptYes:
			return nil
		case PromptNo:
			return errExit
		case PromptListDocuments:
			for _, item := range items {
				fmt.Printf("  %s (%d bytes)\n", item.Document.Filename, len(item.Document.Data))
			}
		case PromptShowFilters:
			pretty, _ := json.MarshalIndent(filtering.Describe(steps), "", "  ")
			fmt.Println(string(pretty))
		default:
			return fmt.Errorf("invalid action: %s", action)
		}
	}
}

func saveResults(config *Config, result *pipeline.BatchResult, job posting.Job, logger *zap.Logger) error {
	if path := strings.TrimSpace(config.Output.CSV); path != "" {
		if err := report.SaveCSV(path, result.Rows); err != nil {
			return err
		}
		logger.Info("results saved", zap.String("format", "csv"), zap.String("filename", path))
	}
	if path := strings.TrimSpace(config.Output.XLSX); path != "" {
		if err := report.SaveXLSX(path, result, job); err != nil {
			return err
		}
		logger.Info("results saved", zap.String("format", "xlsx"), zap.String("filename", path))
	}
	return nil
}

func afterRun(config *Config, result *pipeline.BatchResult, logger *zap.Logger) error {
	excludeFile := strings.TrimSpace(config.Filtering.ExcludeFile)

	items := []string{PromptDone, PromptResultsToFile}
	if excludeFile != "" && result.Succeeded() > 0 {
		items = append(items, PromptAppendToExcludeFile)
	}
	prompt := promptui.Select{Label: "Anything else?", Items: items}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			return err
		}

		switch action {
		case PromptDone:
			return nil
		case PromptResultsToFile:
			filename, err := dumpResults(result)
			if err != nil {
				return fmt.Errorf("dump results to file: %w", err)
			}
			logger.Info("dumping result to file", zap.String("filename", filename))
		case PromptAppendToExcludeFile:
			excluded, err := filtering.LoadExcluded(excludeFile)
			if err != nil {
				return err
			}
			var names []string
			for _, row := range result.Rows {
				if row.Status == pipeline.StatusSuccess {
					names = append(names, row.Filename)
				}
			}
			excluded.Append("analyzed in batch "+result.ID, names...)
			if err := excluded.ToFile(excludeFile); err != nil {
				return err
			}
			logger.Info("appended to exclude file", zap.String("filename", excludeFile), zap.Int("count", len(names)))
		default:
			return fmt.Errorf("invalid action: %s", action)
		}
	}
}

func dumpResults(result *pipeline.BatchResult) (string, error) {
	file, err := os.CreateTemp("", "cv_results_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// redacted returns a copy of config safe for debug logging.
func redacted(config *Config) Config {
	c := *config
	if c.AI != nil && c.AI.Gemini != nil {
		ai := *c.AI
		gem := *ai.Gemini
		if gem.APIKey != "" {
			gem.APIKey = "***"
		}
		ai.Gemini = &gem
		c.AI = &ai
	}
	if c.Scores.Redis.Password != "" {
		c.Scores.Redis.Password = "***"
	}
	if c.Extraction.UniofficeLicenseKey != "" {
		c.Extraction.UniofficeLicenseKey = "***"
	}
	return c
}
