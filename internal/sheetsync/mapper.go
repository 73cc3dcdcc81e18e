package sheetsync

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/fuel"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/reading"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/vehicle"
)

// 表格列布局。镜像表是给报表用的，放的是车辆编号和名称而不是 ID。
const (
	fuelCols    = 11 // id, 车辆编号, 日期, 升数, 单价, 总价, 小时表, 里程表, 供应商, 操作员, 备注
	readingCols = 7  // id, 车辆编号, 日期, 表类型, 读数, 操作员, 备注
)

const dateLayout = "02/01/2006"

// Dict ID 与表格里人类可读标识的双向映射。
// 对账每轮开始时由 runner 从库里整表加载。
type Dict struct {
	vehicleCodeByID  map[string]string
	vehicleIDByCode  map[string]string
	vehicleMeterByID map[string]string
	supNameByID      map[string]string
	supIDByName      map[string]string
	userNameByID     map[string]string
	userIDByName     map[string]string
}

func NewDict() *Dict {
	return &Dict{
		vehicleCodeByID:  map[string]string{},
		vehicleIDByCode:  map[string]string{},
		vehicleMeterByID: map[string]string{},
		supNameByID:      map[string]string{},
		supIDByName:      map[string]string{},
		userNameByID:     map[string]string{},
		userIDByName:     map[string]string{},
	}
}

func (d *Dict) AddVehicle(id, code, meterKind string) {
	d.vehicleCodeByID[id] = code
	d.vehicleIDByCode[strings.ToUpper(strings.TrimSpace(code))] = id
	d.vehicleMeterByID[id] = meterKind
}

func (d *Dict) AddSupplier(id, name string) {
	d.supNameByID[id] = name
	d.supIDByName[strings.ToLower(strings.TrimSpace(name))] = id
}

func (d *Dict) AddUser(id, name string) {
	d.userNameByID[id] = name
	d.userIDByName[strings.ToLower(strings.TrimSpace(name))] = id
}

// AddUserAlias 给同一个人多挂一个可反查的名字（比如用户名和姓名都认）。
func (d *Dict) AddUserAlias(name, id string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	if _, taken := d.userIDByName[name]; !taken {
		d.userIDByName[name] = id
	}
}

// VehicleCode 查不到时原样放 ID，保证镜像行不丢信息。
func (d *Dict) VehicleCode(id string) string {
	if id == "" {
		return ""
	}
	if code, ok := d.vehicleCodeByID[id]; ok {
		return code
	}
	return id
}

func (d *Dict) VehicleID(code string) (string, bool) {
	id, ok := d.vehicleIDByCode[strings.ToUpper(strings.TrimSpace(code))]
	return id, ok
}

// VehicleMeterKind 车辆的计量方式（horimeter / odometer / both）。
func (d *Dict) VehicleMeterKind(id string) string {
	return d.vehicleMeterByID[id]
}

func (d *Dict) SupplierName(id string) string {
	if id == "" {
		return ""
	}
	if name, ok := d.supNameByID[id]; ok {
		return name
	}
	return id
}

func (d *Dict) SupplierID(name string) (string, bool) {
	id, ok := d.supIDByName[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}

func (d *Dict) UserName(id string) string {
	if id == "" {
		return ""
	}
	if name, ok := d.userNameByID[id]; ok {
		return name
	}
	return id
}

func (d *Dict) UserID(name string) (string, bool) {
	id, ok := d.userIDByName[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}

// FuelCodec 加油记录与表格行的编解码。
type FuelCodec struct {
	Dict *Dict
}

func (c FuelCodec) Encode(rec *fuel.Record) []string {
	return []string{
		rec.ID,
		c.Dict.VehicleCode(rec.VehicleID),
		rec.FilledAt.Format(dateLayout),
		formatDecimalBR(rec.Liters, 2),
		formatCentsBR(rec.UnitPriceCents),
		formatCentsBR(rec.TotalCents),
		formatNullDecimalBR(rec.Horimeter, 1),
		formatNullDecimalBR(rec.Odometer, 1),
		c.Dict.SupplierName(rec.SupplierID),
		c.Dict.UserName(rec.OperatorID),
		rec.Notes,
	}
}

// FuelRowData 从表格行解析出的加油数据（ID 解析为业务标识仍由调用方做）。
type FuelRowData struct {
	ID             string
	VehicleCode    string
	FilledAt       time.Time
	Liters         decimal.Decimal
	UnitPriceCents int64
	TotalCents     int64
	Horimeter      decimal.NullDecimal
	Odometer       decimal.NullDecimal
	SupplierName   string
	OperatorName   string
	Notes          string
}

func (c FuelCodec) Decode(cells []string) (*FuelRowData, error) {
	get := cellGetter(cells)

	out := &FuelRowData{
		ID:           strings.TrimSpace(get(0)),
		VehicleCode:  strings.TrimSpace(get(1)),
		SupplierName: strings.TrimSpace(get(8)),
		OperatorName: strings.TrimSpace(get(9)),
		Notes:        strings.TrimSpace(get(10)),
	}
	if out.VehicleCode == "" {
		return nil, fmt.Errorf("vehicle code is empty")
	}

	var err error
	if out.FilledAt, err = parseDateBR(get(2)); err != nil {
		return nil, fmt.Errorf("date: %w", err)
	}
	if out.Liters, err = parseDecimalBR(get(3)); err != nil {
		return nil, fmt.Errorf("liters: %w", err)
	}
	if !out.Liters.IsPositive() {
		return nil, fmt.Errorf("liters must be positive, got %s", out.Liters)
	}
	if out.UnitPriceCents, err = parseCentsBR(get(4)); err != nil {
		return nil, fmt.Errorf("unit price: %w", err)
	}
	if out.TotalCents, err = parseCentsBR(get(5)); err != nil {
		return nil, fmt.Errorf("total: %w", err)
	}
	if out.Horimeter, err = parseNullDecimalBR(get(6)); err != nil {
		return nil, fmt.Errorf("horimeter: %w", err)
	}
	if out.Odometer, err = parseNullDecimalBR(get(7)); err != nil {
		return nil, fmt.Errorf("odometer: %w", err)
	}
	return out, nil
}

// ReadingCodec 表读数与表格行的编解码。
type ReadingCodec struct {
	Dict *Dict
}

func (c ReadingCodec) Encode(rd *reading.Reading) []string {
	return []string{
		rd.ID,
		c.Dict.VehicleCode(rd.VehicleID),
		rd.ReadAt.Format(dateLayout),
		meterLabel(rd.Meter),
		formatDecimalBR(rd.Value, 1),
		c.Dict.UserName(rd.OperatorID),
		rd.Notes,
	}
}

// ReadingRowData 从表格行解析出的读数数据。
type ReadingRowData struct {
	ID           string
	VehicleCode  string
	ReadAt       time.Time
	Meter        string
	Value        decimal.Decimal
	OperatorName string
	Notes        string
}

func (c ReadingCodec) Decode(cells []string) (*ReadingRowData, error) {
	get := cellGetter(cells)

	out := &ReadingRowData{
		ID:           strings.TrimSpace(get(0)),
		VehicleCode:  strings.TrimSpace(get(1)),
		OperatorName: strings.TrimSpace(get(5)),
		Notes:        strings.TrimSpace(get(6)),
	}
	if out.VehicleCode == "" {
		return nil, fmt.Errorf("vehicle code is empty")
	}

	var err error
	if out.ReadAt, err = parseDateBR(get(2)); err != nil {
		return nil, fmt.Errorf("date: %w", err)
	}
	if out.Meter, err = normalizeMeter(get(3)); err != nil {
		return nil, err
	}
	if out.Value, err = parseDecimalBR(get(4)); err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	if out.Value.IsNegative() {
		return nil, fmt.Errorf("value must not be negative, got %s", out.Value)
	}
	return out, nil
}

// EqualCells 判断两行内容是否一致（尾部空单元格不算差异）。
func EqualCells(a, b []string) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		av, bv := "", ""
		if i < len(a) {
			av = strings.TrimSpace(a[i])
		}
		if i < len(b) {
			bv = strings.TrimSpace(b[i])
		}
		if av != bv {
			return false
		}
	}
	return true
}

func cellGetter(cells []string) func(int) string {
	return func(i int) string {
		if i < 0 || i >= len(cells) {
			return ""
		}
		return cells[i]
	}
}

// meterLabel 写入表格的表类型标签（表是葡语报表）。
func meterLabel(meter string) string {
	switch meter {
	case vehicle.MeterHorimeter:
		return "horimetro"
	case vehicle.MeterOdometer:
		return "odometro"
	}
	return meter
}

func normalizeMeter(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "horimeter", "horimetro", "horímetro", "h":
		return vehicle.MeterHorimeter, nil
	case "odometer", "odometro", "odômetro", "hodometro", "hodômetro", "km":
		return vehicle.MeterOdometer, nil
	}
	return "", fmt.Errorf("unknown meter type: %q", s)
}

// parseDecimalBR 接受葡语和英语两种数字写法：
// "1.234,56"、"1234,5"、"1,234.56"、"1234.5" 都解析成同一个值。
func parseDecimalBR(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("empty number")
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	if lastComma > lastDot {
		// 逗号是小数分隔符，点是千位
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	return decimal.NewFromString(s)
}

func parseNullDecimalBR(s string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseDecimalBR(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// parseCentsBR 金额列解析为分。空单元格按 0 算。
func parseCentsBR(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := parseDecimalBR(s)
	if err != nil {
		return 0, err
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}

// formatDecimalBR 统一写成逗号小数、不带千位分隔的形式。
func formatDecimalBR(d decimal.Decimal, places int32) string {
	return strings.Replace(d.StringFixed(places), ".", ",", 1)
}

func formatNullDecimalBR(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return ""
	}
	return formatDecimalBR(d.Decimal, places)
}

func formatCentsBR(cents int64) string {
	if cents == 0 {
		return ""
	}
	return formatDecimalBR(decimal.New(cents, -2), 2)
}

func parseDateBR(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	layouts := []string{
		dateLayout,
		"2/1/2006",
		"02/01/2006 15:04",
		"2006-01-02",
		time.RFC3339,
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date: %q", s)
}
