package ingest

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
)

// Labels the bank's notification template puts immediately before each value.
const (
	labelAmount       = "Monto"
	labelDate         = "Fecha"
	labelTime         = "Hora"
	labelMerchant     = "Comercio"
	labelInstallments = "Cuotas"
	cardSuffixMarker  = "terminada en"
	cardLabelMarker   = "Tarjeta Santander"
)

// BankPayment is one card payment parsed out of a bank notification email.
type BankPayment struct {
	ID           string
	MessageID    string
	PaymentDate  string
	PaymentTime  string
	Amount       decimal.Decimal
	Currency     string
	CardLabel    string
	CardSuffix   string
	Merchant     string
	Installments int
	ExtractedAt  time.Time
}

// ParseBankEmail extracts a payment from the HTML body of a bank
// notification. The template provides no stable transaction id, so the
// identity is a content hash over the six defining fields; a document missing
// any of them is rejected with IdentityIncompleteError.
func ParseBankEmail(doc *SourceDocument) (*BankPayment, error) {
	tokens := visibleTokens(doc.Payload)

	rawAmount := tokenAfter(tokens, labelAmount)
	fecha := tokenAfter(tokens, labelDate)
	hora := tokenAfter(tokens, labelTime)
	comercio := tokenAfter(tokens, labelMerchant)

	suffix := ""
	for i, t := range tokens {
		if strings.HasPrefix(t, cardSuffixMarker) && i+1 < len(tokens) {
			suffix = tokens[i+1]
			break
		}
	}

	cardLabel := ""
	for _, t := range tokens {
		if strings.Contains(t, cardLabelMarker) {
			cardLabel = t
			break
		}
	}

	divisa := DetectCurrency(rawAmount)

	var monto decimal.Decimal
	montoOK := false
	if rawAmount != "" {
		if d, err := ParseAmount(rawAmount); err == nil {
			monto = d
			montoOK = true
		}
	}

	var missing []string
	if fecha == "" {
		missing = append(missing, "date")
	}
	if hora == "" {
		missing = append(missing, "time")
	}
	if !montoOK {
		missing = append(missing, "amount")
	}
	if comercio == "" {
		missing = append(missing, "merchant")
	}
	if suffix == "" {
		missing = append(missing, "card suffix")
	}
	if divisa == "" {
		missing = append(missing, "currency")
	}
	if len(missing) > 0 {
		return nil, &IdentityIncompleteError{Family: FamilyBankEmail, Missing: missing}
	}

	installments := 1
	if raw := tokenAfter(tokens, labelInstallments); raw != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			installments = n
		}
	}

	return &BankPayment{
		ID:           paymentIdentity(fecha, hora, monto, comercio, suffix, divisa),
		MessageID:    doc.SourceID,
		PaymentDate:  fecha,
		PaymentTime:  hora,
		Amount:       monto,
		Currency:     divisa,
		CardLabel:    cardLabel,
		CardSuffix:   suffix,
		Merchant:     comercio,
		Installments: installments,
		ExtractedAt:  doc.RetrievedAt,
	}, nil
}

// paymentIdentity is the deterministic content hash over the six defining
// fields. The amount renders in canonical decimal form without trailing
// zeros, so "45.000,00" and "45.000" hash identically. Identities already
// loaded here depend on this exact rendering, so the scheme must not change.
func paymentIdentity(fecha, hora string, monto decimal.Decimal, comercio, suffix, divisa string) string {
	base := strings.Join([]string{fecha, hora, monto.String(), comercio, suffix, divisa}, "_")
	sum := md5.Sum([]byte(base))
	return hex.EncodeToString(sum[:])
}

// Record maps the payment onto the bank_payments row layout.
func (p *BankPayment) Record() *NormalizedRecord {
	return &NormalizedRecord{
		Family:   FamilyBankEmail,
		Identity: p.ID,
		Fields: []Field{
			{Name: "id", Value: p.ID},
			{Name: "message_id", Value: p.MessageID},
			{Name: "payment_date", Value: p.PaymentDate},
			{Name: "payment_time", Value: p.PaymentTime},
			{Name: "amount", Value: p.Amount.String()},
			{Name: "currency", Value: p.Currency},
			{Name: "card_label", Value: p.CardLabel},
			{Name: "card_suffix", Value: p.CardSuffix},
			{Name: "merchant", Value: p.Merchant},
			{Name: "installments", Value: strconv.Itoa(p.Installments)},
			{Name: "extracted_at", Value: p.ExtractedAt.Format(time.RFC3339)},
		},
	}
}

// visibleTokens flattens the HTML body into its visible text tokens in
// document order, so labeled values can be found by label → next token.
func visibleTokens(payload []byte) []string {
	z := html.NewTokenizer(bytes.NewReader(payload))
	var tokens []string
	skipDepth := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return tokens
		case html.StartTagToken:
			name, _ := z.TagName()
			if n := string(name); n == "script" || n == "style" {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if n := string(name); (n == "script" || n == "style") && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := strings.TrimSpace(string(z.Text()))
			if text != "" {
				tokens = append(tokens, text)
			}
		}
	}
}

// tokenAfter returns the token following the first exact match of label.
func tokenAfter(tokens []string, label string) string {
	for i, t := range tokens {
		if t == label && i+1 < len(tokens) {
			return tokens[i+1]
		}
	}
	return ""
}
