package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/invoice-rules/constants"
	"github.com/joseph-ayodele/invoice-rules/internal/app"
	"github.com/joseph-ayodele/invoice-rules/internal/async"
	"github.com/joseph-ayodele/invoice-rules/internal/common"
	"github.com/joseph-ayodele/invoice-rules/internal/entity"
	"github.com/joseph-ayodele/invoice-rules/internal/regression"
	repo "github.com/joseph-ayodele/invoice-rules/internal/repository"
	"github.com/joseph-ayodele/invoice-rules/internal/utils"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir          = flag.String("dir", "", "directory with document views, images and ground_truth.json (required)")
		dbPath       = flag.String("db", "", "SQLite file to keep results in (default in-memory)")
		out          = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		field        = flag.String("field", "", "field name under test (required)")
		originalType = flag.String("original-type", "regex", "extraction type of the current pattern")
		original     = flag.String("original", "", "current pattern as JSON, or @file (required)")
		testType     = flag.String("test-type", "", "extraction type of the candidate (defaults to -original-type)")
		candidate    = flag.String("test", "", "candidate pattern as JSON, or @file (required)")
		mode         = flag.String("mode", string(entity.CorpusAll), "corpus mode: all, recent or explicit")
		recent       = flag.Int("recent", 0, "number of newest documents for -mode recent")
		ids          = flag.String("ids", "", "comma-separated document IDs for -mode explicit")
		fromStr      = flag.String("from", "", "from date YYYY-MM-DD")
		toStr        = flag.String("to", "", "to date YYYY-MM-DD")
		maxDocs      = flag.Int("max", 0, "cap on corpus size (0 uses CORPUS_MAX_DOCUMENTS)")
		parallel     = flag.Int("parallel", 0, "documents processed concurrently (0 uses TASK_PARALLELISM)")
	)
	flag.Parse()

	if *dir == "" || *field == "" || *original == "" || *candidate == "" {
		printError("Error: --dir, --field, --original and --test are required\n")
		flag.Usage()
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "rule-test.xlsx")
	}
	from, to, err := utils.ParseDateRange(*fromStr, *toStr)
	if err != nil {
		printError("Error: invalid date, use YYYY-MM-DD: %v\n", err)
		os.Exit(1)
	}
	originalJSON, err := readPattern(*original)
	if err != nil {
		printError("Error: --original: %v\n", err)
		os.Exit(1)
	}
	testJSON, err := readPattern(*candidate)
	if err != nil {
		printError("Error: --test: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load .env", "error", err)
	}
	cfg := common.LoadConfig()
	if *parallel > 0 {
		cfg.Worker.Parallelism = *parallel
	}
	if *maxDocs > 0 {
		cfg.Regression.MaxDocuments = *maxDocs
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx := context.Background()
	db, err := repo.OpenSQLite(ctx, *dbPath, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repo.Close(db, logger)
	if err := repo.Migrate(ctx, db, logger); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	a := app.New(cfg, db, nil, logger)
	a.Attach(async.Inline{Exec: a.Executor})

	_, stats, err := a.Loader.LoadDirectory(ctx, *dir, true)
	if err != nil {
		logger.Error("failed to load directory", "error", err)
		os.Exit(1)
	}

	sel := entity.CorpusSelection{
		Mode:         entity.CorpusMode(*mode),
		From:         from,
		To:           to,
		Recent:       *recent,
		MaxDocuments: *maxDocs,
	}
	for _, id := range strings.Split(*ids, ",") {
		if id = strings.TrimSpace(id); id != "" {
			sel.DocumentIDs = append(sel.DocumentIDs, id)
		}
	}

	task, err := a.Service.Submit(ctx, regression.SubmitRequest{
		FieldName:       *field,
		OriginalType:    *originalType,
		OriginalPattern: originalJSON,
		TestType:        *testType,
		TestPattern:     testJSON,
		Corpus:          sel,
	})
	if err != nil {
		logger.Error("failed to run regression test", "error", err)
		os.Exit(1)
	}
	if task.Status != constants.TaskStatusCompleted {
		logger.Error("regression test did not complete", "task_id", task.ID, "status", task.Status, "error", utils.StrOrEmpty(task.ErrorMessage))
		os.Exit(1)
	}

	rec, _, err := a.Service.Recommendation(ctx, task.ID)
	if err != nil {
		logger.Error("failed to build recommendation", "error", err)
		os.Exit(1)
	}

	xlsxBytes, err := a.Exporter.ExportTestXLSX(ctx, task.ID)
	if err != nil {
		logger.Error("failed to export results", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsxBytes, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	s := task.Summary
	fmt.Printf("Regression test complete!\n")
	fmt.Printf("- Documents loaded: %d (ground truth for %d, %d files failed)\n", stats.Documents, stats.Truths, stats.Failed)
	fmt.Printf("- Tested: %d, errors: %d\n", task.TestedDocuments, task.ErrorCount)
	fmt.Printf("- Improved: %d, regressed: %d, both right: %d, both wrong: %d\n", s.Improved, s.Regressed, s.BothRight, s.BothWrong)
	fmt.Printf("- Accuracy: %.1f%% -> %.1f%%\n", s.OriginalAccuracy*100, s.TestAccuracy*100)
	fmt.Printf("- Verdict: %s (%s)\n", rec.Verdict, rec.Rationale)
	fmt.Printf("- Output: %s\n", *out)
}

// readPattern accepts inline JSON or @path.
func readPattern(v string) ([]byte, error) {
	if path, ok := strings.CutPrefix(v, "@"); ok {
		return os.ReadFile(path)
	}
	return []byte(v), nil
}
