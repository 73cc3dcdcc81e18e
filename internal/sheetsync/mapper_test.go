package sheetsync

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/fuel"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/reading"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/vehicle"
)

func TestParseDecimalBR(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.234,56", "1234.56"},
		{"1234,5", "1234.5"},
		{"1,234.56", "1234.56"},
		{"1234.5", "1234.5"},
		{"R$ 5,49", "5.49"},
		{"R$ 1.234,00", "1234"},
		{" 42 ", "42"},
	}
	for _, c := range cases {
		got, err := parseDecimalBR(c.in)
		if err != nil {
			t.Errorf("parseDecimalBR(%q): %v", c.in, err)
			continue
		}
		want := decimal.RequireFromString(c.want)
		if !got.Equal(want) {
			t.Errorf("parseDecimalBR(%q) = %s, want %s", c.in, got, want)
		}
	}

	for _, bad := range []string{"", "   ", "abc", "12,34,56a"} {
		if _, err := parseDecimalBR(bad); err == nil {
			t.Errorf("parseDecimalBR(%q) should fail", bad)
		}
	}
}

func TestParseCentsBR(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"5,49", 549},
		{"1.234,56", 123456},
		{"R$ 3,799", 380}, // 油价常带三位小数，四舍五入到分
	}
	for _, c := range cases {
		got, err := parseCentsBR(c.in)
		if err != nil {
			t.Fatalf("parseCentsBR(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("parseCentsBR(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseDateBR(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"10/01/2026", time.Date(2026, 1, 10, 0, 0, 0, 0, time.Local)},
		{"5/1/2026", time.Date(2026, 1, 5, 0, 0, 0, 0, time.Local)},
		{"10/01/2026 14:30", time.Date(2026, 1, 10, 14, 30, 0, 0, time.Local)},
		{"2026-01-10", time.Date(2026, 1, 10, 0, 0, 0, 0, time.Local)},
		{"2026-01-10T14:30:00Z", time.Date(2026, 1, 10, 14, 30, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got, err := parseDateBR(c.in)
		if err != nil {
			t.Errorf("parseDateBR(%q): %v", c.in, err)
			continue
		}
		if !got.Equal(c.want) {
			t.Errorf("parseDateBR(%q) = %s, want %s", c.in, got, c.want)
		}
	}

	for _, bad := range []string{"", "10-01-2026", "hoje"} {
		if _, err := parseDateBR(bad); err == nil {
			t.Errorf("parseDateBR(%q) should fail", bad)
		}
	}
}

func TestNormalizeMeter(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Horímetro", vehicle.MeterHorimeter},
		{"horimetro", vehicle.MeterHorimeter},
		{"H", vehicle.MeterHorimeter},
		{"KM", vehicle.MeterOdometer},
		{"Odômetro", vehicle.MeterOdometer},
		{"hodometro", vehicle.MeterOdometer},
		{"odometer", vehicle.MeterOdometer},
	}
	for _, c := range cases {
		got, err := normalizeMeter(c.in)
		if err != nil {
			t.Errorf("normalizeMeter(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("normalizeMeter(%q) = %q, want %q", c.in, got, c.want)
		}
	}

	for _, bad := range []string{"", "banana"} {
		if _, err := normalizeMeter(bad); err == nil {
			t.Errorf("normalizeMeter(%q) should fail", bad)
		}
	}
}

func TestFormatCentsBR(t *testing.T) {
	if got := formatCentsBR(0); got != "" {
		t.Errorf("formatCentsBR(0) = %q, want empty", got)
	}
	if got := formatCentsBR(549); got != "5,49" {
		t.Errorf("formatCentsBR(549) = %q, want 5,49", got)
	}
	if got := formatCentsBR(123456); got != "1234,56" {
		t.Errorf("formatCentsBR(123456) = %q, want 1234,56", got)
	}
}

func TestEqualCells(t *testing.T) {
	cases := []struct {
		a, b []string
		want bool
	}{
		{[]string{"a", "b"}, []string{"a", "b"}, true},
		{[]string{"a", "b", "", ""}, []string{"a", "b"}, true},
		{[]string{" a ", "b"}, []string{"a", "b"}, true},
		{[]string{"a", "b"}, []string{"a", "c"}, false},
		{[]string{"a"}, []string{"a", "x"}, false},
		{nil, nil, true},
	}
	for i, c := range cases {
		if got := EqualCells(c.a, c.b); got != c.want {
			t.Errorf("case %d: EqualCells(%v, %v) = %v, want %v", i, c.a, c.b, got, c.want)
		}
	}
}

func TestFuelCodecRoundTrip(t *testing.T) {
	vehID, supID, opID := uuid.NewString(), uuid.NewString(), uuid.NewString()
	dict := NewDict()
	dict.AddVehicle(vehID, "CB-07", vehicle.MeterBoth)
	dict.AddSupplier(supID, "Posto Ipiranga")
	dict.AddUser(opID, "João Silva")
	codec := FuelCodec{Dict: dict}

	rec := &fuel.Record{
		ID:             uuid.NewString(),
		VehicleID:      vehID,
		SupplierID:     supID,
		OperatorID:     opID,
		FilledAt:       time.Date(2026, 1, 10, 0, 0, 0, 0, time.Local),
		Liters:         decimal.RequireFromString("150.5"),
		UnitPriceCents: 549,
		TotalCents:     82625,
		Horimeter:      decimal.NewNullDecimal(decimal.RequireFromString("1234.5")),
		Notes:          "tanque cheio",
	}

	cells := codec.Encode(rec)
	if len(cells) != fuelCols {
		t.Fatalf("encoded %d cells, want %d", len(cells), fuelCols)
	}
	if cells[1] != "CB-07" || cells[2] != "10/01/2026" || cells[3] != "150,50" {
		t.Fatalf("unexpected header cells: %v", cells[1:4])
	}
	if cells[4] != "5,49" || cells[5] != "826,25" {
		t.Fatalf("unexpected price cells: %v", cells[4:6])
	}
	if cells[7] != "" {
		t.Fatalf("odometer cell should be empty, got %q", cells[7])
	}

	data, err := codec.Decode(cells)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if data.ID != rec.ID || data.VehicleCode != "CB-07" {
		t.Errorf("decoded id/vehicle = %q/%q", data.ID, data.VehicleCode)
	}
	if !data.FilledAt.Equal(rec.FilledAt) {
		t.Errorf("decoded date = %s, want %s", data.FilledAt, rec.FilledAt)
	}
	if !data.Liters.Equal(rec.Liters) {
		t.Errorf("decoded liters = %s, want %s", data.Liters, rec.Liters)
	}
	if data.UnitPriceCents != 549 || data.TotalCents != 82625 {
		t.Errorf("decoded prices = %d/%d", data.UnitPriceCents, data.TotalCents)
	}
	if !data.Horimeter.Valid || !data.Horimeter.Decimal.Equal(rec.Horimeter.Decimal) {
		t.Errorf("decoded horimeter = %+v", data.Horimeter)
	}
	if data.Odometer.Valid {
		t.Errorf("odometer should stay null")
	}
	if data.SupplierName != "Posto Ipiranga" || data.OperatorName != "João Silva" {
		t.Errorf("decoded names = %q/%q", data.SupplierName, data.OperatorName)
	}
	if data.Notes != "tanque cheio" {
		t.Errorf("decoded notes = %q", data.Notes)
	}
}

func TestFuelCodecDecodeRejects(t *testing.T) {
	cases := []struct {
		name  string
		cells []string
	}{
		{"no vehicle", []string{"", "", "10/01/2026", "100,0"}},
		{"bad date", []string{"", "CB-07", "terça-feira", "100,0"}},
		{"zero liters", []string{"", "CB-07", "10/01/2026", "0,00"}},
		{"negative liters", []string{"", "CB-07", "10/01/2026", "-10,0"}},
	}
	codec := FuelCodec{Dict: NewDict()}
	for _, c := range cases {
		if _, err := codec.Decode(c.cells); err == nil {
			t.Errorf("%s: Decode should fail", c.name)
		}
	}
}

func TestReadingCodecRoundTrip(t *testing.T) {
	vehID := uuid.NewString()
	dict := NewDict()
	dict.AddVehicle(vehID, "EX-03", vehicle.MeterHorimeter)
	codec := ReadingCodec{Dict: dict}

	rd := &reading.Reading{
		ID:        uuid.NewString(),
		VehicleID: vehID,
		Meter:     vehicle.MeterHorimeter,
		ReadAt:    time.Date(2026, 2, 1, 0, 0, 0, 0, time.Local),
		Value:     decimal.RequireFromString("5230.5"),
	}

	cells := codec.Encode(rd)
	if cells[3] != "horimetro" {
		t.Fatalf("meter cell = %q, want horimetro", cells[3])
	}
	if cells[4] != "5230,5" {
		t.Fatalf("value cell = %q, want 5230,5", cells[4])
	}

	data, err := codec.Decode(cells)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if data.Meter != vehicle.MeterHorimeter {
		t.Errorf("decoded meter = %q", data.Meter)
	}
	if !data.Value.Equal(rd.Value) {
		t.Errorf("decoded value = %s, want %s", data.Value, rd.Value)
	}
	if !data.ReadAt.Equal(rd.ReadAt) {
		t.Errorf("decoded date = %s, want %s", data.ReadAt, rd.ReadAt)
	}
}

func TestReadingCodecDecodeRejects(t *testing.T) {
	codec := ReadingCodec{Dict: NewDict()}
	cases := []struct {
		name  string
		cells []string
	}{
		{"unknown meter", []string{"", "EX-03", "01/02/2026", "tacômetro", "100,0"}},
		{"negative value", []string{"", "EX-03", "01/02/2026", "horimetro", "-1,0"}},
		{"no vehicle", []string{"", "", "01/02/2026", "horimetro", "100,0"}},
	}
	for _, c := range cases {
		if _, err := codec.Decode(c.cells); err == nil {
			t.Errorf("%s: Decode should fail", c.name)
		}
	}
}

func TestDictUserAlias(t *testing.T) {
	dict := NewDict()
	id := uuid.NewString()
	dict.AddUser(id, "João Silva")
	dict.AddUserAlias("joao", id)

	for _, name := range []string{"João Silva", "joao", "JOAO"} {
		got, ok := dict.UserID(name)
		if !ok || got != id {
			t.Errorf("UserID(%q) = %q, %v", name, got, ok)
		}
	}
	if dict.UserName(id) != "João Silva" {
		t.Errorf("UserName = %q", dict.UserName(id))
	}
}
