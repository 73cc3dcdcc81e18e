package sheetsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/config"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/syncstate"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/vehicle"
)

// fakeSheet 表格端点的内存假实现，协议同 Client。
type fakeSheet struct {
	mu   sync.Mutex
	rows map[string][]Row
	next int
}

func newFakeSheet() *fakeSheet {
	return &fakeSheet{rows: map[string][]Row{}}
}

func (f *fakeSheet) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req apiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()

		resp := apiResponse{OK: true}
		switch req.Action {
		case "read":
			resp.Rows = append(resp.Rows, f.rows[req.Tab]...)
		case "append":
			for _, row := range req.Rows {
				f.next++
				row.RowID = fmt.Sprintf("r%d", f.next)
				f.rows[req.Tab] = append(f.rows[req.Tab], row)
				resp.RowIDs = append(resp.RowIDs, row.RowID)
			}
		case "update":
			for _, row := range req.Rows {
				for i := range f.rows[req.Tab] {
					if f.rows[req.Tab][i].RowID == row.RowID {
						f.rows[req.Tab][i] = row
					}
				}
			}
		case "delete":
			drop := map[string]bool{}
			for _, id := range req.RowIDs {
				drop[id] = true
			}
			kept := f.rows[req.Tab][:0]
			for _, row := range f.rows[req.Tab] {
				if !drop[row.RowID] {
					kept = append(kept, row)
				}
			}
			f.rows[req.Tab] = kept
		default:
			resp = apiResponse{Error: "unknown action: " + req.Action}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (f *fakeSheet) tabRows(tab string) []Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Row(nil), f.rows[tab]...)
}

func (f *fakeSheet) seed(tab string, rows ...Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		f.next++
		if row.RowID == "" {
			row.RowID = fmt.Sprintf("r%d", f.next)
		}
		f.rows[tab] = append(f.rows[tab], row)
	}
}

type memLoader struct{ dict *Dict }

func (l memLoader) Load(ctx context.Context) (*Dict, error) { return l.dict, nil }

// memDataset 内存 Dataset，CreateFromRow 只校验车辆编号在字典里。
type memDataset struct {
	kind, tab string
	entries   []Entry

	mu      sync.Mutex
	synced  map[string]string
	failed  map[string]string
	created []Row
}

func (d *memDataset) Kind() string { return d.kind }
func (d *memDataset) Tab() string  { return d.tab }

func (d *memDataset) LoadLocal(ctx context.Context, dict *Dict) ([]Entry, error) {
	return d.entries, nil
}

func (d *memDataset) MarkSynced(ctx context.Context, id, rowID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.synced == nil {
		d.synced = map[string]string{}
	}
	d.synced[id] = rowID
	return nil
}

func (d *memDataset) MarkFailed(ctx context.Context, id string, cause error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failed == nil {
		d.failed = map[string]string{}
	}
	d.failed[id] = cause.Error()
	return nil
}

func (d *memDataset) CreateFromRow(ctx context.Context, dict *Dict, row Row) (Entry, error) {
	if len(row.Cells) < 2 || strings.TrimSpace(row.Cells[1]) == "" {
		return Entry{}, fmt.Errorf("vehicle code is empty")
	}
	if _, ok := dict.VehicleID(row.Cells[1]); !ok {
		return Entry{}, fmt.Errorf("unknown vehicle code %q", row.Cells[1])
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.created = append(d.created, row)
	id := uuid.NewString()
	cells := append([]string{id}, row.Cells[1:]...)
	return Entry{ID: id, RowID: row.RowID, Status: syncstate.StatusSynced, Cells: cells}, nil
}

func testRunner(t *testing.T, sheet *fakeSheet, dict *Dict, datasets ...Dataset) *Runner {
	t.Helper()
	srv := httptest.NewServer(sheet.handler())
	t.Cleanup(srv.Close)

	client := NewClient(
		config.SheetsConfig{Endpoint: srv.URL, TimeoutSeconds: 5},
		config.SyncConfig{WriteRatePerSec: 1000, BreakerFailures: 10, BreakerResetSec: 1},
		nil,
	)
	snaps := NewSnapshotter(t.TempDir(), 3, nil)
	cfg := config.SyncConfig{ChunkSize: 10, SnapshotKeep: 3}
	return NewRunner(client, memLoader{dict}, datasets, nil, snaps, cfg, nil)
}

func testDict(code string) *Dict {
	dict := NewDict()
	dict.AddVehicle(uuid.NewString(), code, vehicle.MeterBoth)
	return dict
}

func TestRunnerPushPullDelete(t *testing.T) {
	newID, orphanID := uuid.NewString(), uuid.NewString()
	sheet := newFakeSheet()
	sheet.seed("Abastecimentos",
		Row{Cells: []string{orphanID, "CB-07", "60,00"}},       // 本地已删 → 删行
		Row{Cells: []string{"", "CB-07", "10/01/2026", "80"}},  // 手工行 → 拉取
	)

	ds := &memDataset{
		kind: "fuel",
		tab:  "Abastecimentos",
		entries: []Entry{
			{ID: newID, Status: syncstate.StatusPending, Cells: []string{newID, "CB-07", "150,50"}},
		},
	}
	runner := testRunner(t, sheet, testDict("CB-07"), ds)

	sum, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(sum.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(sum.Results))
	}
	res := sum.Results[0]
	if res.Appended != 1 || res.Pulled != 1 || res.Deleted != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}

	if rowID, ok := ds.synced[newID]; !ok || rowID == "" {
		t.Errorf("new record should be marked synced with a row id, got %q", rowID)
	}
	if len(ds.created) != 1 {
		t.Fatalf("created = %d rows, want 1", len(ds.created))
	}

	final := sheet.tabRows("Abastecimentos")
	if len(final) != 2 {
		t.Fatalf("sheet has %d rows, want 2 (orphan deleted)", len(final))
	}
	for _, row := range final {
		if row.Cells[0] == orphanID {
			t.Errorf("orphan row should be deleted")
		}
		if strings.TrimSpace(row.Cells[0]) == "" {
			t.Errorf("pulled row should have its id written back: %v", row.Cells)
		}
	}
}

func TestRunnerOverwritesDriftedRow(t *testing.T) {
	id := uuid.NewString()
	sheet := newFakeSheet()
	sheet.seed("Abastecimentos", Row{RowID: "r1", Cells: []string{id, "CB-07", "90,00"}})

	ds := &memDataset{
		kind: "fuel",
		tab:  "Abastecimentos",
		entries: []Entry{
			{ID: id, RowID: "r1", Status: syncstate.StatusSynced, Cells: []string{id, "CB-07", "150,50"}},
		},
	}
	runner := testRunner(t, sheet, testDict("CB-07"), ds)

	sum, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res := sum.Results[0]; res.Updated != 1 {
		t.Fatalf("result = %+v", res)
	}

	rows := sheet.tabRows("Abastecimentos")
	if len(rows) != 1 || rows[0].Cells[2] != "150,50" {
		t.Fatalf("sheet row not overwritten: %+v", rows)
	}
}

func TestRunnerSnapshotBeforeMutation(t *testing.T) {
	id := uuid.NewString()
	sheet := newFakeSheet()
	sheet.seed("Horimetros", Row{RowID: "r1", Cells: []string{id, "EX-03", "100,0"}})

	ds := &memDataset{
		kind: "reading",
		tab:  "Horimetros",
		entries: []Entry{
			{ID: id, RowID: "r1", Status: syncstate.StatusSynced, Cells: []string{id, "EX-03", "200,0"}},
		},
	}

	srv := httptest.NewServer(sheet.handler())
	t.Cleanup(srv.Close)
	client := NewClient(
		config.SheetsConfig{Endpoint: srv.URL, TimeoutSeconds: 5},
		config.SyncConfig{WriteRatePerSec: 1000, BreakerFailures: 10, BreakerResetSec: 1},
		nil,
	)
	dir := t.TempDir()
	snaps := NewSnapshotter(dir, 3, nil)
	runner := NewRunner(client, memLoader{testDict("EX-03")}, []Dataset{ds}, nil, snaps, config.SyncConfig{ChunkSize: 10}, nil)

	if _, err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	// 覆盖前的表格内容必须已经落进快照
	snap := latestSnapshot(t, snaps, dir, "reading")
	if len(snap.Rows) != 1 || snap.Rows[0].Cells[2] != "100,0" {
		t.Fatalf("snapshot rows = %+v, want the pre-update value", snap.Rows)
	}
	if snap.Tab != "Horimetros" {
		t.Errorf("snapshot tab = %q", snap.Tab)
	}
}

func TestRunnerSnapshotFailureSkipsDestructive(t *testing.T) {
	updID, orphanID, newID := uuid.NewString(), uuid.NewString(), uuid.NewString()
	sheet := newFakeSheet()
	sheet.seed("Abastecimentos",
		Row{RowID: "r1", Cells: []string{updID, "CB-07", "90,00"}},
		Row{RowID: "r2", Cells: []string{orphanID, "CB-07", "60,00"}},
	)

	ds := &memDataset{
		kind: "fuel",
		tab:  "Abastecimentos",
		entries: []Entry{
			{ID: updID, RowID: "r1", Status: syncstate.StatusSynced, Cells: []string{updID, "CB-07", "150,50"}},
			{ID: newID, Status: syncstate.StatusPending, Cells: []string{newID, "CB-07", "40,00"}},
		},
	}

	srv := httptest.NewServer(sheet.handler())
	t.Cleanup(srv.Close)
	client := NewClient(
		config.SheetsConfig{Endpoint: srv.URL, TimeoutSeconds: 5},
		config.SyncConfig{WriteRatePerSec: 1000, BreakerFailures: 10, BreakerResetSec: 1},
		nil,
	)
	// 快照目录没配置 → 写快照必然失败
	runner := NewRunner(client, memLoader{testDict("CB-07")}, []Dataset{ds}, nil, NewSnapshotter("", 3, nil), config.SyncConfig{ChunkSize: 10}, nil)

	sum, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	res := sum.Results[0]
	if res.Updated != 0 || res.Deleted != 0 {
		t.Fatalf("destructive actions must be skipped without a snapshot: %+v", res)
	}
	if res.Appended != 1 {
		t.Fatalf("append is lossless and should still run: %+v", res)
	}

	rows := sheet.tabRows("Abastecimentos")
	if len(rows) != 3 {
		t.Fatalf("sheet rows = %d, want 3 (r1, r2 untouched + appended)", len(rows))
	}
	for _, row := range rows {
		if row.RowID == "r1" && row.Cells[2] != "90,00" {
			t.Errorf("r1 must not be overwritten: %+v", row.Cells)
		}
	}
}

func TestRunnerHalfPullRecovery(t *testing.T) {
	id := uuid.NewString()
	sheet := newFakeSheet()
	// 上一轮拉取后 ID 没写回去：行还空着 ID，本地记录已挂上 r1
	sheet.seed("Abastecimentos", Row{RowID: "r1", Cells: []string{"", "CB-07", "80,00"}})

	ds := &memDataset{
		kind: "fuel",
		tab:  "Abastecimentos",
		entries: []Entry{
			{ID: id, RowID: "r1", Status: syncstate.StatusPending, Cells: []string{id, "CB-07", "80,00"}},
		},
	}
	runner := testRunner(t, sheet, testDict("CB-07"), ds)

	sum, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	res := sum.Results[0]
	if res.Pulled != 0 {
		t.Fatalf("half-pulled row must not be pulled again: %+v", res)
	}
	if res.Updated != 1 {
		t.Fatalf("result = %+v", res)
	}

	rows := sheet.tabRows("Abastecimentos")
	if len(rows) != 1 || rows[0].Cells[0] != id {
		t.Fatalf("row should be stamped with the record id: %+v", rows)
	}
	if len(ds.created) != 0 {
		t.Errorf("no record may be created during the rescue")
	}
}

func TestRunnerRejectsConcurrentRuns(t *testing.T) {
	runner := testRunner(t, newFakeSheet(), NewDict())

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if _, err := runner.RunOnce(context.Background()); err != ErrRunInProgress {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}
}

func latestSnapshot(t *testing.T, snaps *Snapshotter, dir, kind string) *Snapshot {
	t.Helper()
	names, err := snapshotFiles(dir, kind)
	if err != nil || len(names) == 0 {
		t.Fatalf("no snapshot written: %v", err)
	}
	snap, err := snaps.Read(names[len(names)-1])
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	return snap
}
