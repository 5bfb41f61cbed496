package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/expense-etl/internal/logger"
	"github.com/dvloznov/expense-etl/internal/mailbox"
	"github.com/dvloznov/expense-etl/internal/objectstore"
	"github.com/dvloznov/expense-etl/internal/warehouse"
)

// Defaults for the bank-notification mailbox query.
const (
	DefaultBankSender  = "mensajesyavisos@mails.santander.com.ar"
	DefaultBankSubject = "Pagaste"
)

// RunSummary is the structured outcome a stage returns instead of raising:
// the pipeline self-heals on the next scheduled invocation, so per-document
// and per-row failures are counted and reported, not thrown.
type RunSummary struct {
	Family   Family
	Fetched  int
	Parsed   int
	Loaded   int
	Skipped  int
	Failed   int
	Messages []string
}

func (s *RunSummary) note(format string, args ...any) {
	s.Messages = append(s.Messages, fmt.Sprintf(format, args...))
}

// Runner wires the pipeline components for one warehouse database and one
// staging bucket. All collaborators come in explicitly so tests substitute
// fakes.
type Runner struct {
	Mail     mailbox.Source
	Exec     warehouse.Executor
	Store    objectstore.Store
	Database string
	Bucket   string

	BankSender  string
	BankSubject string
}

func (r *Runner) relay() *Relay     { return NewRelay(r.Store, r.Bucket) }
func (r *Runner) tracker() *Tracker { return NewTracker(r.Exec, r.Database) }
func (r *Runner) filter() *Filter   { return NewFilter(r.Exec, r.Database) }
func (r *Runner) loader() *Loader   { return NewLoader(r.Exec, r.Database) }

// ExtractBankEmails fetches bank notification emails newer than the
// watermark, drops message ids the warehouse already has, and stages the
// rest as raw envelopes. Failures talking to the mailbox surface as
// SourceFetchError; a dedup query failure only widens the fetch, since the
// loader dedups again.
func (r *Runner) ExtractBankEmails(ctx context.Context) (*RunSummary, error) {
	log := logger.FromContext(ctx)
	summary := &RunSummary{Family: FamilyBankEmail}

	since := r.tracker().Watermark(ctx, FamilyBankEmail)
	query := fmt.Sprintf(`from:%s subject:"%s" after:%04d/%02d/%02d`,
		r.bankSender(), r.bankSubject(), since.Year, since.Month, since.Day)

	ids, err := r.Mail.Search(ctx, query)
	if err != nil {
		return summary, &SourceFetchError{Op: "search", Err: err}
	}
	log.Info().Str("query", query).Int("matches", len(ids)).Msg("mailbox searched")

	fresh, err := r.filter().FilterNew(ctx, FamilyBankEmail, ids)
	if err != nil {
		log.Warn().Err(err).Msg("dedup filter unavailable, proceeding with all candidates")
		summary.note("dedup filter unavailable: %v", err)
		fresh = ids
	}

	relay := r.relay()
	for _, id := range fresh {
		msg, err := r.Mail.Fetch(ctx, id)
		if err != nil {
			summary.Failed++
			summary.note("fetch %s: %v", id, err)
			log.Warn().Str("message_id", id).Err(err).Msg("fetch failed, continuing")
			continue
		}
		env := &RawEnvelope{
			MessageID: msg.ID,
			Date:      msg.InternalDate.Format(time.RFC3339),
			Subject:   msg.Subject,
			HTMLBody:  string(msg.HTMLBody),
		}
		if _, err := relay.StageRaw(ctx, env); err != nil {
			summary.Failed++
			summary.note("stage %s: %v", id, err)
			continue
		}
		summary.Fetched++
	}

	skippedExisting := len(ids) - len(fresh)
	summary.Skipped += skippedExisting
	log.Info().Int("fetched", summary.Fetched).Int("already_loaded", skippedExisting).Msg("bank email extraction finished")
	return summary, nil
}

// Transform parses every raw artifact of a family, stages the normalized
// records and retires the raw artifact. A document that fails to parse is
// logged and counted; the batch continues, and the failed document stays in
// the raw area for inspection.
func (r *Runner) Transform(ctx context.Context, family Family) (*RunSummary, error) {
	log := logger.FromContext(ctx)
	summary := &RunSummary{Family: family}
	relay := r.relay()

	keys, err := relay.ListRaw(ctx, family)
	if err != nil {
		return summary, &SourceFetchError{Op: "list raw", Err: err}
	}

	for _, key := range keys {
		records, identity, err := r.normalizeRawArtifact(ctx, relay, family, key)
		if err != nil {
			summary.Failed++
			summary.note("%v", err)
			log.Warn().Str("key", key).Err(err).Msg("document rejected, continuing batch")
			continue
		}
		if _, err := relay.Stage(ctx, family, identity, records); err != nil {
			summary.Failed++
			summary.note("stage %s: %v", identity, err)
			continue
		}
		summary.Parsed++

		// A retire failure leaves the raw artifact for the next run; identity
		// dedup absorbs the resulting re-parse.
		if err := relay.Retire(ctx, key); err != nil {
			summary.note("retire %s: %v", key, err)
			log.Warn().Str("key", key).Err(err).Msg("raw artifact not retired")
		}
	}

	log.Info().Str("family", string(family)).Int("parsed", summary.Parsed).Int("failed", summary.Failed).Msg("transform finished")
	return summary, nil
}

// normalizeRawArtifact dispatches one raw object to its family's parser.
func (r *Runner) normalizeRawArtifact(ctx context.Context, relay *Relay, family Family, key string) ([]*NormalizedRecord, string, error) {
	switch family {
	case FamilyBankEmail:
		env, err := relay.ReadRaw(ctx, key)
		if err != nil {
			return nil, "", err
		}
		retrieved, _ := time.Parse(time.RFC3339, env.Date)
		doc := &SourceDocument{
			Family:      family,
			Payload:     []byte(env.HTMLBody),
			SourceID:    env.MessageID,
			RetrievedAt: retrieved,
		}
		payment, err := ParseBankEmail(doc)
		if err != nil {
			return nil, "", &ParseError{Family: family, DocID: env.MessageID, Err: err}
		}
		return []*NormalizedRecord{payment.Record()}, payment.ID, nil

	case FamilyReceiptPDF:
		data, err := r.Store.Get(ctx, r.Bucket, key)
		if err != nil {
			return nil, "", err
		}
		doc := &SourceDocument{Family: family, Payload: data, SourceID: key, RetrievedAt: time.Now()}
		ticket, err := ParseReceipt(ctx, doc)
		if err != nil {
			return nil, "", &ParseError{Family: family, DocID: key, Err: err}
		}
		if len(ticket.Items) == 0 {
			return nil, "", &ParseError{Family: family, DocID: key, Err: fmt.Errorf("ticket %s has no items", ticket.Number)}
		}
		return ticket.Records(), ticket.Number, nil

	case FamilySettlementReport:
		data, err := r.Store.Get(ctx, r.Bucket, key)
		if err != nil {
			return nil, "", err
		}
		_, reportID, reportDate, err := ParseReportKey(key)
		if err != nil {
			return nil, "", &ParseError{Family: family, DocID: key, Err: err}
		}
		doc := &SourceDocument{Family: family, Payload: data, SourceID: reportID, RetrievedAt: time.Now()}
		records, err := ParseSettlementReport(doc, reportID, reportDate)
		if err != nil {
			return nil, "", err
		}
		return records, reportID, nil
	}
	return nil, "", fmt.Errorf("unknown family %q", family)
}

// Load reads every staged artifact of a family and loads it idempotently.
// The loaded-id index is recomputed once per run, before any artifact.
func (r *Runner) Load(ctx context.Context, family Family) (*RunSummary, error) {
	log := logger.FromContext(ctx)
	summary := &RunSummary{Family: family}
	relay := r.relay()
	loader := r.loader()

	index, err := loader.LoadedIDIndex(ctx, family)
	if err != nil {
		return summary, err
	}

	keys, err := relay.ListStaged(ctx, family)
	if err != nil {
		return summary, &SourceFetchError{Op: "list staged", Err: err}
	}

	for _, key := range keys {
		records, err := relay.ReadStaged(ctx, family, key)
		if err != nil {
			summary.Failed++
			summary.note("read staged %s: %v", key, err)
			log.Warn().Str("key", key).Err(err).Msg("unreadable staged artifact, continuing")
			continue
		}

		batch := loader.Load(ctx, family, records, index)
		summary.Loaded += batch.Loaded
		summary.Skipped += batch.Skipped
		summary.Failed += batch.Failed
		for _, e := range batch.Errors {
			summary.note("%v", e)
		}

		// Rows inserted in this run dedup later artifacts of the same
		// document within the same invocation. A document with zero inserted
		// rows left nothing in the warehouse, so it stays retryable.
		if batch.Loaded > 0 {
			for _, rec := range records {
				index[rec.Identity] = struct{}{}
			}
		}
	}

	return summary, nil
}

func (r *Runner) bankSender() string {
	if r.BankSender != "" {
		return r.BankSender
	}
	return DefaultBankSender
}

func (r *Runner) bankSubject() string {
	if r.BankSubject != "" {
		return r.BankSubject
	}
	return DefaultBankSubject
}
