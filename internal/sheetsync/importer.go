package sheetsync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/logger"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/vehicle"
)

// ImportResult 一次工作簿导入的结果。
type ImportResult struct {
	Imported int          `json:"imported"`
	Skipped  []RowProblem `json:"skipped,omitempty"`
}

// RowProblem 落不了库的行：行号（工作簿里 1 起算）和原因。
type RowProblem struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Importer 历史工作簿导入（.xlsx / .xls）。
// 列按表头名字对，行走和表格镜像同一套解析，坏行收集起来不中断。
type Importer struct {
	loader   DictLoader
	fuels    Dataset
	readings Dataset
	log      logger.Logger
}

func NewImporter(loader DictLoader, fuels, readings Dataset, log logger.Logger) *Importer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Importer{loader: loader, fuels: fuels, readings: readings, log: log}
}

// ImportFuel 导入加油历史。表头认葡语和英语两套叫法。
func (im *Importer) ImportFuel(ctx context.Context, r io.Reader, filename string) (*ImportResult, error) {
	rows, err := readWorkbookRows(r, filename)
	if err != nil {
		return nil, err
	}

	headerAt, index := locateHeader(rows, "veiculo", "veículo", "vehicle", "prefixo")
	if headerAt < 0 {
		return nil, fmt.Errorf("missing required column: veiculo")
	}
	vehicleIdx := firstOf(index, "veiculo", "veículo", "vehicle", "prefixo")
	dateIdx := firstOf(index, "data", "date")
	litersIdx := firstOf(index, "litros", "liters", "quantidade", "qtd")
	unitIdx := firstOf(index, "preco unitario", "preço unitário", "valor unitario", "valor unitário", "preco", "preço", "unit price")
	totalIdx := firstOf(index, "valor total", "total", "valor")
	horiIdx := firstOf(index, "horimetro", "horímetro", "horimeter")
	odoIdx := firstOf(index, "odometro", "odômetro", "hodometro", "hodômetro", "km", "odometer")
	supplierIdx := firstOf(index, "fornecedor", "posto", "supplier")
	operatorIdx := firstOf(index, "operador", "motorista", "operator")
	notesIdx := firstOf(index, "obs", "observacao", "observação", "observacoes", "observações", "notes")

	if dateIdx < 0 {
		return nil, fmt.Errorf("missing required column: data")
	}
	if litersIdx < 0 {
		return nil, fmt.Errorf("missing required column: litros")
	}

	dict, err := im.loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{}
	for i, row := range rows[headerAt+1:] {
		rowNum := headerAt + i + 2
		if isBlankRow(Row{Cells: row}) {
			continue
		}

		cells := make([]string, fuelCols)
		cells[1] = cellValue(row, vehicleIdx)
		cells[2] = normalizeWorkbookDate(cellValue(row, dateIdx))
		cells[3] = cellValue(row, litersIdx)
		cells[4] = cellValue(row, unitIdx)
		cells[5] = cellValue(row, totalIdx)
		cells[6] = cellValue(row, horiIdx)
		cells[7] = cellValue(row, odoIdx)
		cells[8] = cellValue(row, supplierIdx)
		cells[9] = cellValue(row, operatorIdx)
		cells[10] = cellValue(row, notesIdx)

		if _, err := im.fuels.CreateFromRow(ctx, dict, Row{Cells: cells}); err != nil {
			res.Skipped = append(res.Skipped, RowProblem{Row: rowNum, Reason: err.Error()})
			continue
		}
		res.Imported++
	}

	im.log.Infof("fuel workbook %s imported: %d rows, %d skipped", filename, res.Imported, len(res.Skipped))
	return res, nil
}

// ImportReadings 导入表读数历史。没有"类型"列时按数值列的表头推断是小时表还是里程表。
func (im *Importer) ImportReadings(ctx context.Context, r io.Reader, filename string) (*ImportResult, error) {
	rows, err := readWorkbookRows(r, filename)
	if err != nil {
		return nil, err
	}

	headerAt, index := locateHeader(rows, "veiculo", "veículo", "vehicle", "prefixo")
	if headerAt < 0 {
		return nil, fmt.Errorf("missing required column: veiculo")
	}
	vehicleIdx := firstOf(index, "veiculo", "veículo", "vehicle", "prefixo")
	dateIdx := firstOf(index, "data", "date")
	meterIdx := firstOf(index, "tipo", "medidor", "meter")
	valueIdx := firstOf(index, "leitura", "valor", "value")
	operatorIdx := firstOf(index, "operador", "motorista", "operator")
	notesIdx := firstOf(index, "obs", "observacao", "observação", "observacoes", "observações", "notes")

	fixedMeter := ""
	if valueIdx < 0 {
		if idx := firstOf(index, "horimetro", "horímetro"); idx >= 0 {
			valueIdx, fixedMeter = idx, vehicle.MeterHorimeter
		} else if idx := firstOf(index, "odometro", "odômetro", "hodometro", "hodômetro", "km"); idx >= 0 {
			valueIdx, fixedMeter = idx, vehicle.MeterOdometer
		}
	}

	if dateIdx < 0 {
		return nil, fmt.Errorf("missing required column: data")
	}
	if valueIdx < 0 {
		return nil, fmt.Errorf("missing required column: leitura")
	}
	if meterIdx < 0 && fixedMeter == "" {
		return nil, fmt.Errorf("missing required column: tipo")
	}

	dict, err := im.loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{}
	for i, row := range rows[headerAt+1:] {
		rowNum := headerAt + i + 2
		if isBlankRow(Row{Cells: row}) {
			continue
		}

		cells := make([]string, readingCols)
		cells[1] = cellValue(row, vehicleIdx)
		cells[2] = normalizeWorkbookDate(cellValue(row, dateIdx))
		cells[3] = fixedMeter
		if meterIdx >= 0 {
			cells[3] = cellValue(row, meterIdx)
		}
		cells[4] = cellValue(row, valueIdx)
		cells[5] = cellValue(row, operatorIdx)
		cells[6] = cellValue(row, notesIdx)

		if _, err := im.readings.CreateFromRow(ctx, dict, Row{Cells: cells}); err != nil {
			res.Skipped = append(res.Skipped, RowProblem{Row: rowNum, Reason: err.Error()})
			continue
		}
		res.Imported++
	}

	im.log.Infof("reading workbook %s imported: %d rows, %d skipped", filename, res.Imported, len(res.Skipped))
	return res, nil
}

// readWorkbookRows 读出第一个工作表的所有行。.xls 老格式和 .xlsx 都认。
func readWorkbookRows(reader io.Reader, filename string) ([][]string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xls":
		workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, err
		}
		if workbook.NumSheets() == 0 {
			return nil, fmt.Errorf("no worksheet found")
		}
		if workbook.NumSheets() > 1 {
			// ReadAllCells 会把多个工作表拼到一起，没法分开
			return nil, fmt.Errorf("workbook has multiple sheets, upload one sheet at a time")
		}
		rows := workbook.ReadAllCells(100000)
		if len(rows) == 0 {
			return nil, fmt.Errorf("worksheet is empty")
		}
		return rows, nil
	default:
		file, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer func() { _ = file.Close() }()

		sheetName := file.GetSheetName(0)
		if sheetName == "" {
			return nil, fmt.Errorf("no worksheet found")
		}
		rows, err := file.GetRows(sheetName)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("worksheet is empty")
		}
		return rows, nil
	}
}

// locateHeader 在前几行里找表头（有的表第一行是标题，第二行才是表头）。
// 找到包含任一给定列名的行就认它，返回行号和 列名→列号 的索引。
func locateHeader(rows [][]string, anyOf ...string) (int, map[string]int) {
	limit := min(len(rows), 5)
	for i := 0; i < limit; i++ {
		index := map[string]int{}
		for col, header := range rows[i] {
			index[normalizeHeader(header)] = col
		}
		if firstOf(index, anyOf...) >= 0 {
			return i, index
		}
	}
	return -1, nil
}

func normalizeHeader(header string) string {
	return strings.ToLower(strings.TrimSpace(header))
}

func firstOf(index map[string]int, names ...string) int {
	for _, name := range names {
		if idx, ok := index[name]; ok {
			return idx
		}
	}
	return -1
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// normalizeWorkbookDate 单元格没设日期格式时 xlsx 里存的是序列号，先换回日期。
func normalizeWorkbookDate(s string) string {
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= 20000 && serial <= 80000 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t.Format(dateLayout)
		}
	}
	return s
}
