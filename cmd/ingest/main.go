package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/expense-etl/internal/ingest"
	"github.com/dvloznov/expense-etl/internal/logger"
	"github.com/dvloznov/expense-etl/internal/mailbox"
	"github.com/dvloznov/expense-etl/internal/objectstore"
	"github.com/dvloznov/expense-etl/internal/warehouse"
)

func main() {
	log := logger.New()

	family := flag.String("family", "", "document family: BANK_EMAIL, RECEIPT_PDF or SETTLEMENT_REPORT")
	stage := flag.String("stage", "all", "pipeline stage: extract, transform, load or all")
	project := flag.String("project", os.Getenv("EXPENSE_ETL_PROJECT"), "GCP project of the warehouse")
	dataset := flag.String("dataset", envOr("EXPENSE_ETL_DATASET", "expenses"), "warehouse dataset")
	bucket := flag.String("bucket", os.Getenv("EXPENSE_ETL_BUCKET"), "staging bucket")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall run timeout")
	flag.Parse()

	fam := ingest.Family(strings.ToUpper(*family))
	switch fam {
	case ingest.FamilyBankEmail, ingest.FamilyReceiptPDF, ingest.FamilySettlementReport:
	default:
		log.Fatal().Str("family", *family).Msg("unknown or missing -family")
	}
	if *project == "" || *bucket == "" {
		log.Fatal().Msg("-project and -bucket are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	runID := uuid.NewString()
	log = log.With().Str("run_id", runID).Str("family", string(fam)).Logger()
	ctx = logger.WithContext(ctx, log)

	exec, err := warehouse.NewBigQueryExecutor(ctx, *project)
	if err != nil {
		log.Fatal().Err(err).Msg("creating warehouse executor")
	}
	defer exec.Close()

	store, err := objectstore.NewGCS(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("creating object store")
	}
	defer store.Close()

	runner := &ingest.Runner{
		Exec:     exec,
		Store:    store,
		Database: *dataset,
		Bucket:   *bucket,
	}

	needsMailbox := fam == ingest.FamilyBankEmail && (*stage == "all" || *stage == "extract")
	if needsMailbox {
		mail, err := mailbox.NewGmailSource(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("creating mailbox source")
		}
		runner.Mail = mail
	}

	state := &ingest.RunState{Family: fam}
	pipeline, err := buildPipeline(runner, fam, *stage)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid stage")
	}

	if err := pipeline.Execute(ctx, state); err != nil {
		log.Fatal().Err(err).Msg("run failed")
	}

	summary := state.Summary()
	log.Info().
		Int("fetched", summary.Fetched).
		Int("parsed", summary.Parsed).
		Int("loaded", summary.Loaded).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("run finished")
	for _, msg := range summary.Messages {
		log.Warn().Msg(msg)
	}

	fmt.Println("Ingestion completed.")
}

func buildPipeline(r *ingest.Runner, family ingest.Family, stage string) (*ingest.Pipeline, error) {
	switch stage {
	case "all":
		return ingest.NewFamilyPipeline(r, family), nil
	case "extract":
		if family != ingest.FamilyBankEmail {
			return nil, fmt.Errorf("family %s has no extract stage here; its documents arrive via the raw area", family)
		}
		return ingest.NewPipeline(&ingest.ExtractStep{Runner: r}), nil
	case "transform":
		return ingest.NewPipeline(&ingest.TransformStep{Runner: r}), nil
	case "load":
		return ingest.NewPipeline(&ingest.LoadStep{Runner: r}), nil
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
