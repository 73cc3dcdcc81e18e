package sheetsync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/catalog"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/fuel"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/reading"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/syncstate"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/user"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/vehicle"
)

// Dataset 一种参与对账的记录集合（加油记录、表读数各一个实现）。
// Dict 由 runner 每轮加载后显式传入，实现自身不缓存映射。
type Dataset interface {
	Kind() string
	Tab() string
	LoadLocal(ctx context.Context, dict *Dict) ([]Entry, error)
	MarkSynced(ctx context.Context, id, rowID string) error
	MarkFailed(ctx context.Context, id string, cause error) error
	// CreateFromRow 把表格里手工加的行落成本地记录，返回回写用的 Entry。
	CreateFromRow(ctx context.Context, dict *Dict, row Row) (Entry, error)
}

// DictLoader 提供一轮对账用的 ID 映射字典。
type DictLoader interface {
	Load(ctx context.Context) (*Dict, error)
}

// DirectoryLoader 每轮对账开始时从库里加载 ID 映射字典。
type DirectoryLoader struct {
	Vehicles *vehicle.Repo
	Catalog  *catalog.Repo
	Users    *user.Repo
}

func (l DirectoryLoader) Load(ctx context.Context) (*Dict, error) {
	dict := NewDict()

	vehicles, err := l.Vehicles.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vehicles: %w", err)
	}
	for i := range vehicles {
		dict.AddVehicle(vehicles[i].ID, vehicles[i].Code, vehicles[i].MeterKind)
	}

	suppliers, err := l.Catalog.ListSuppliers(ctx, catalog.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("load suppliers: %w", err)
	}
	for i := range suppliers {
		dict.AddSupplier(suppliers[i].ID, suppliers[i].Name)
	}

	users, err := l.Users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for i := range users {
		name := users[i].FullName
		if name == "" {
			name = users[i].Username
		}
		dict.AddUser(users[i].ID, name)
		// 表格里有人写用户名而不是姓名，两个都认
		dict.AddUserAlias(users[i].Username, users[i].ID)
	}

	return dict, nil
}

// FuelDataset 加油记录的对账实现。
type FuelDataset struct {
	repo    *fuel.Repo
	catalog *catalog.Service
	tab     string
}

func NewFuelDataset(repo *fuel.Repo, cat *catalog.Service, tab string) *FuelDataset {
	return &FuelDataset{repo: repo, catalog: cat, tab: tab}
}

func (d *FuelDataset) Kind() string { return "fuel" }
func (d *FuelDataset) Tab() string  { return d.tab }

func (d *FuelDataset) LoadLocal(ctx context.Context, dict *Dict) ([]Entry, error) {
	records, err := d.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	codec := FuelCodec{Dict: dict}
	entries := make([]Entry, 0, len(records))
	for i := range records {
		rec := &records[i]
		entries = append(entries, Entry{
			ID:     rec.ID,
			RowID:  rec.Sync.SheetRowID,
			Status: rec.Sync.SyncStatus,
			Cells:  codec.Encode(rec),
		})
	}
	return entries, nil
}

func (d *FuelDataset) MarkSynced(ctx context.Context, id, rowID string) error {
	rec, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	rec.Sync.SheetRowID = rowID
	if err := syncstate.ApplyTransition(&rec.Sync, syncstate.StatusSynced, time.Now()); err != nil {
		return err
	}
	return d.repo.Update(ctx, rec)
}

func (d *FuelDataset) MarkFailed(ctx context.Context, id string, cause error) error {
	rec, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	syncstate.MarkFailed(&rec.Sync, cause)
	return d.repo.Update(ctx, rec)
}

func (d *FuelDataset) CreateFromRow(ctx context.Context, dict *Dict, row Row) (Entry, error) {
	codec := FuelCodec{Dict: dict}
	data, err := codec.Decode(row.Cells)
	if err != nil {
		return Entry{}, err
	}

	vehicleID, ok := dict.VehicleID(data.VehicleCode)
	if !ok {
		return Entry{}, fmt.Errorf("unknown vehicle code %q", data.VehicleCode)
	}

	// 供应商没见过就顺手建档；操作员对不上只能留空，绝不自动建用户
	supplierID := ""
	if data.SupplierName != "" {
		if id, ok := dict.SupplierID(data.SupplierName); ok {
			supplierID = id
		} else {
			sup, err := d.catalog.EnsureSupplier(ctx, data.SupplierName)
			if err != nil {
				return Entry{}, fmt.Errorf("ensure supplier: %w", err)
			}
			supplierID = sup.ID
			dict.AddSupplier(sup.ID, sup.Name)
		}
	}
	operatorID, _ := dict.UserID(data.OperatorName)

	total := data.TotalCents
	if total == 0 && data.UnitPriceCents > 0 {
		total = data.Liters.Mul(decimal.NewFromInt(data.UnitPriceCents)).Round(0).IntPart()
	}

	now := time.Now()
	rec := &fuel.Record{
		ID:             uuid.NewString(),
		VehicleID:      vehicleID,
		SupplierID:     supplierID,
		OperatorID:     operatorID,
		Origin:         fuel.OriginImport,
		FilledAt:       data.FilledAt,
		Liters:         data.Liters,
		UnitPriceCents: data.UnitPriceCents,
		TotalCents:     total,
		Currency:       "BRL",
		Horimeter:      data.Horimeter,
		Odometer:       data.Odometer,
		Notes:          data.Notes,
		Sync: syncstate.Meta{
			SyncStatus: syncstate.StatusSynced,
			SheetRowID: row.RowID,
			SyncedAt:   &now,
		},
	}
	if err := d.repo.Create(ctx, rec); err != nil {
		return Entry{}, err
	}
	return Entry{ID: rec.ID, RowID: row.RowID, Status: syncstate.StatusSynced, Cells: codec.Encode(rec)}, nil
}

// ReadingDataset 表读数的对账实现。
type ReadingDataset struct {
	repo *reading.Repo
	tab  string
}

func NewReadingDataset(repo *reading.Repo, tab string) *ReadingDataset {
	return &ReadingDataset{repo: repo, tab: tab}
}

func (d *ReadingDataset) Kind() string { return "reading" }
func (d *ReadingDataset) Tab() string  { return d.tab }

func (d *ReadingDataset) LoadLocal(ctx context.Context, dict *Dict) ([]Entry, error) {
	readings, err := d.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	codec := ReadingCodec{Dict: dict}
	entries := make([]Entry, 0, len(readings))
	for i := range readings {
		rd := &readings[i]
		entries = append(entries, Entry{
			ID:     rd.ID,
			RowID:  rd.Sync.SheetRowID,
			Status: rd.Sync.SyncStatus,
			Cells:  codec.Encode(rd),
		})
	}
	return entries, nil
}

func (d *ReadingDataset) MarkSynced(ctx context.Context, id, rowID string) error {
	rd, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	rd.Sync.SheetRowID = rowID
	if err := syncstate.ApplyTransition(&rd.Sync, syncstate.StatusSynced, time.Now()); err != nil {
		return err
	}
	return d.repo.Update(ctx, rd)
}

func (d *ReadingDataset) MarkFailed(ctx context.Context, id string, cause error) error {
	rd, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	syncstate.MarkFailed(&rd.Sync, cause)
	return d.repo.Update(ctx, rd)
}

func (d *ReadingDataset) CreateFromRow(ctx context.Context, dict *Dict, row Row) (Entry, error) {
	codec := ReadingCodec{Dict: dict}
	data, err := codec.Decode(row.Cells)
	if err != nil {
		return Entry{}, err
	}

	vehicleID, ok := dict.VehicleID(data.VehicleCode)
	if !ok {
		return Entry{}, fmt.Errorf("unknown vehicle code %q", data.VehicleCode)
	}
	if kind := dict.VehicleMeterKind(vehicleID); kind != vehicle.MeterBoth && kind != data.Meter {
		return Entry{}, fmt.Errorf("vehicle %s tracks %s, row has a %s reading", data.VehicleCode, kind, data.Meter)
	}
	operatorID, _ := dict.UserID(data.OperatorName)

	now := time.Now()
	rd := &reading.Reading{
		ID:         uuid.NewString(),
		VehicleID:  vehicleID,
		Meter:      data.Meter,
		ReadAt:     data.ReadAt,
		Value:      data.Value.Round(1),
		OperatorID: operatorID,
		Origin:     reading.OriginImport,
		Notes:      data.Notes,
		Sync: syncstate.Meta{
			SyncStatus: syncstate.StatusSynced,
			SheetRowID: row.RowID,
			SyncedAt:   &now,
		},
	}
	if err := d.repo.Create(ctx, rd); err != nil {
		return Entry{}, err
	}
	return Entry{ID: rd.ID, RowID: row.RowID, Status: syncstate.StatusSynced, Cells: codec.Encode(rd)}, nil
}
