package warehouse

import "testing"

func TestInsertBuilderSQL(t *testing.T) {
	tests := []struct {
		name  string
		build func() *InsertBuilder
		want  string
	}{
		{
			name: "string escaping doubles single quotes",
			build: func() *InsertBuilder {
				return NewInsert("bank_payments").
					Set("id", String("abc")).
					Set("merchant", String("O'Higgins"))
			},
			want: "INSERT INTO bank_payments (id, merchant) VALUES ('abc', 'O''Higgins')",
		},
		{
			name: "null and numeric cells",
			build: func() *InsertBuilder {
				return NewInsert("receipt_items").
					Set("ticket_id", String("00123")).
					Set("weight", Null()).
					Set("quantity", Int(2)).
					Set("unit_price", Float(1200.5))
			},
			want: "INSERT INTO receipt_items (ticket_id, weight, quantity, unit_price) VALUES ('00123', NULL, 2, 1200.5)",
		},
		{
			name: "bool cell",
			build: func() *InsertBuilder {
				return NewInsert("t").Set("flag", Bool(true))
			},
			want: "INSERT INTO t (flag) VALUES (TRUE)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.build().SQL()
			if got != tt.want {
				t.Errorf("SQL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderValueWholeFloat(t *testing.T) {
	if got := renderValue(Float(45000)); got != "45000" {
		t.Errorf("renderValue(45000) = %q, want %q", got, "45000")
	}
}
