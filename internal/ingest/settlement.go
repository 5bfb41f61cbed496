package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// settlementColumns is the canonical mp_data row layout minus the report id
// and date, which the pipeline injects from the report itself.
var settlementColumns = []string{
	"source_id", "settlement_date", "payment_method_type", "transaction_type",
	"transaction_amount", "transaction_date", "real_amount", "pos_id",
	"store_id", "store_name", "payer_name", "business_unit", "sub_unit",
}

// headerVocabulary maps one known header revision onto canonical columns.
type headerVocabulary struct {
	name    string
	mapping map[string]string // source header -> canonical column
}

// The processor has shipped two header revisions. Anything else rejects the
// whole report: loading under wrong column positions would silently corrupt
// values.
var headerVocabularies = []headerVocabulary{
	{
		name: "current",
		mapping: map[string]string{
			"SOURCE_ID":           "source_id",
			"SETTLEMENT_DATE":     "settlement_date",
			"PAYMENT_METHOD_TYPE": "payment_method_type",
			"TRANSACTION_TYPE":    "transaction_type",
			"TRANSACTION_AMOUNT":  "transaction_amount",
			"TRANSACTION_DATE":    "transaction_date",
			"REAL_AMOUNT":         "real_amount",
			"POS_ID":              "pos_id",
			"STORE_ID":            "store_id",
			"STORE_NAME":          "store_name",
			"PAYER_NAME":          "payer_name",
			"BUSINESS_UNIT":       "business_unit",
			"SUB_UNIT":            "sub_unit",
		},
	},
	{
		name: "legacy",
		mapping: map[string]string{
			"ID DE OPERACIÓN EN MERCADO PAGO": "source_id",
			"FECHA DE APROBACIÓN":             "settlement_date",
			"TIPO DE MEDIO DE PAGO":           "payment_method_type",
			"TIPO DE OPERACIÓN":               "transaction_type",
			"VALOR DE LA COMPRA":              "transaction_amount",
			"FECHA DE ORIGEN":                 "transaction_date",
			"MONTO NETO DE OPERACIÓN":         "real_amount",
			"ID DE CAJA":                      "pos_id",
			"ID DE LA SUCURSAL":               "store_id",
			"NOMBRE DE LA SUCURSAL":           "store_name",
			"PAGADOR":                         "payer_name",
			"CANAL DE VENTA":                  "business_unit",
			"PLATAFORMA DE COBRO":             "sub_unit",
		},
	},
}

// ParseSettlementReport parses a settlement report into mp_data records. The
// processor ships reports both as semicolon-delimited CSV and as xlsx
// workbooks; both feed the same header vocabularies. The report id is the
// source-assigned identity shared by every row, so a previously loaded report
// skips as a unit.
func ParseSettlementReport(doc *SourceDocument, reportID, reportDate string) ([]*NormalizedRecord, error) {
	rows, err := reportRows(doc.Payload)
	if err != nil {
		return nil, &ParseError{Family: FamilySettlementReport, DocID: reportID, Err: fmt.Errorf("reading report: %w", err)}
	}
	if len(rows) == 0 {
		return nil, &ParseError{Family: FamilySettlementReport, DocID: reportID, Err: fmt.Errorf("empty report")}
	}

	header := rows[0]
	positions, ok := matchHeader(header)
	if !ok {
		return nil, &SchemaMismatchError{ReportID: reportID, Header: header}
	}

	records := make([]*NormalizedRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		fields := make([]Field, 0, len(settlementColumns)+2)
		for _, col := range settlementColumns {
			value := ""
			if pos, ok := positions[col]; ok && pos < len(row) {
				value = strings.TrimSpace(row[pos])
			}
			fields = append(fields, Field{Name: col, Value: value})
			if col == "source_id" {
				fields = append(fields,
					Field{Name: "report_id", Value: reportID},
					Field{Name: "report_date", Value: reportDate},
				)
			}
		}
		records = append(records, &NormalizedRecord{
			Family:   FamilySettlementReport,
			Identity: reportID,
			Fields:   fields,
		})
	}
	return records, nil
}

// xlsxMagic is the zip signature xlsx workbooks start with.
var xlsxMagic = []byte("PK\x03\x04")

// reportRows reads the report into rows of cells, dispatching on the payload
// container format.
func reportRows(payload []byte) ([][]string, error) {
	if bytes.HasPrefix(payload, xlsxMagic) {
		return xlsxRows(payload)
	}
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}

// xlsxRows reads the first sheet of an xlsx workbook. Trailing empty cells
// are omitted per row; the caller already tolerates short rows.
func xlsxRows(payload []byte) ([][]string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// matchHeader tries each known vocabulary against the header row and returns
// canonical column positions on a full match.
func matchHeader(header []string) (map[string]int, bool) {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = strings.ToUpper(strings.TrimSpace(h))
	}

	for _, vocab := range headerVocabularies {
		positions := make(map[string]int, len(vocab.mapping))
		for i, h := range normalized {
			if col, ok := vocab.mapping[h]; ok {
				positions[col] = i
			}
		}
		if len(positions) == len(vocab.mapping) {
			return positions, true
		}
	}
	return nil, false
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ParseReportKey splits a staged report key like
// "raw/SETTLEMENT_REPORT/settlement-report_2025-06-08_12345678.csv" into the
// report's original file name, its id and its date, following the
// <name>_<date>_<id>.<ext> staging convention.
func ParseReportKey(key string) (fileName, reportID, reportDate string, err error) {
	base := key
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}

	dot := strings.LastIndex(base, ".")
	if dot < 0 {
		return "", "", "", fmt.Errorf("report key %q has no extension", key)
	}
	ext := base[dot+1:]
	stem := base[:dot]

	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return "", "", "", fmt.Errorf("report key %q does not follow <name>_<date>_<id>", key)
	}
	reportID = parts[len(parts)-1]
	reportDate = parts[len(parts)-2]
	fileName = strings.Join(parts[:len(parts)-2], "_") + "." + ext
	return fileName, reportID, reportDate, nil
}
