package fuel

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeTotal(t *testing.T) {
	cases := []struct {
		name      string
		liters    string
		unitPrice int64
		total     int64
		want      int64
	}{
		{"computed when total omitted", "50.00", 599, 0, 29950},
		{"provided total within tolerance kept", "50.00", 599, 29920, 29920},
		{"provided total too far off recomputed", "50.00", 599, 31000, 29950},
		{"total only, no unit price", "50.00", 0, 28000, 28000},
		{"fractional liters rounded to centavo", "33.33", 600, 0, 19998},
		{"small volume tolerance floor is one centavo", "0.40", 600, 242, 240},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			liters, err := decimal.NewFromString(tc.liters)
			if err != nil {
				t.Fatalf("parse liters: %v", err)
			}
			got := normalizeTotal(liters, tc.unitPrice, tc.total)
			if got != tc.want {
				t.Fatalf("normalizeTotal(%s, %d, %d) = %d, want %d", tc.liters, tc.unitPrice, tc.total, got, tc.want)
			}
		})
	}
}
