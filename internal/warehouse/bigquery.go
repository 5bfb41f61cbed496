package warehouse

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

// BigQueryExecutor implements Executor on top of the BigQuery jobs API.
// Submit runs the statement as a job and returns the job ID; Poll maps the
// job status onto the RUNNING/FINISHED/FAILED lifecycle.
type BigQueryExecutor struct {
	client *bigquery.Client
}

// NewBigQueryExecutor creates an executor with a shared BigQuery client.
// Application Default Credentials are assumed to be configured.
func NewBigQueryExecutor(ctx context.Context, projectID string) (*BigQueryExecutor, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryExecutor: creating client: %w", err)
	}
	return &BigQueryExecutor{client: client}, nil
}

// Close closes the underlying BigQuery client.
func (e *BigQueryExecutor) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Submit starts the statement as a BigQuery job against the given dataset
// and returns the job ID without waiting for completion.
func (e *BigQueryExecutor) Submit(ctx context.Context, database, sql string) (string, error) {
	q := e.client.Query(sql)
	q.DefaultDatasetID = database

	job, err := q.Run(ctx)
	if err != nil {
		return "", fmt.Errorf("warehouse: submitting statement: %w", err)
	}
	return job.ID(), nil
}

// Poll reports the current status of a previously submitted statement.
func (e *BigQueryExecutor) Poll(ctx context.Context, statementID string) (StatementStatus, error) {
	job, err := e.client.JobFromID(ctx, statementID)
	if err != nil {
		return StatementStatus{}, fmt.Errorf("warehouse: looking up statement %s: %w", statementID, err)
	}

	st, err := job.Status(ctx)
	if err != nil {
		return StatementStatus{}, fmt.Errorf("warehouse: polling statement %s: %w", statementID, err)
	}

	status := StatementStatus{State: StateRunning}
	if st.Done() {
		if jobErr := st.Err(); jobErr != nil {
			status.State = StateFailed
			status.ErrorMessage = jobErr.Error()
		} else {
			status.State = StateFinished
			if qs, ok := st.Statistics.Details.(*bigquery.QueryStatistics); ok {
				status.HasResultSet = qs.StatementType == "SELECT"
			}
		}
	}
	return status, nil
}

// FetchResults reads all result rows of a finished statement into typed cells.
func (e *BigQueryExecutor) FetchResults(ctx context.Context, statementID string) ([]Row, error) {
	job, err := e.client.JobFromID(ctx, statementID)
	if err != nil {
		return nil, fmt.Errorf("warehouse: looking up statement %s: %w", statementID, err)
	}

	it, err := job.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("warehouse: reading results of %s: %w", statementID, err)
	}

	var rows []Row
	for {
		var raw []bigquery.Value
		err := it.Next(&raw)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("warehouse: iterating results of %s: %w", statementID, err)
		}

		row := make(Row, len(raw))
		for i, cell := range raw {
			row[i] = fromBigQueryValue(cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// fromBigQueryValue maps a BigQuery cell onto the typed Value variants.
// Temporal types are rendered as strings; the callers treat dates as text
// the same way the warehouse tables store them.
func fromBigQueryValue(v bigquery.Value) Value {
	switch cell := v.(type) {
	case nil:
		return Null()
	case string:
		return String(cell)
	case int64:
		return Int(cell)
	case float64:
		return Float(cell)
	case bool:
		return Bool(cell)
	case civil.Date:
		return String(cell.String())
	case civil.Time:
		return String(cell.String())
	case civil.DateTime:
		return String(cell.String())
	case time.Time:
		return String(cell.Format(time.RFC3339))
	default:
		return String(fmt.Sprint(cell))
	}
}
