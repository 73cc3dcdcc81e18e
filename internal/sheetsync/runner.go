package sheetsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/config"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/logger"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/syncstate"
)

// ErrRunInProgress 已有一轮对账在跑。
var ErrRunInProgress = errors.New("reconciliation run already in progress")

// KindResult 一种数据集在一轮对账里的结果计数。
type KindResult struct {
	Kind            string `json:"kind"`
	Appended        int    `json:"appended"`
	Updated         int    `json:"updated"`
	Relinked        int    `json:"relinked"`
	Restored        int    `json:"restored"`
	Pulled          int    `json:"pulled"`
	Deleted         int    `json:"deleted"`
	Conflicts       int    `json:"conflicts"`
	Failed          int    `json:"failed"`
	InSync          int    `json:"in_sync"`
	SkippedConflict int    `json:"skipped_conflict"`
	Error           string `json:"error,omitempty"`
}

// RunSummary 一轮对账的汇总。
type RunSummary struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Results    []KindResult `json:"results"`
}

// Runner 驱动一轮完整对账：读表、建计划、执行、落报告。
// 库是权威：本地改动推出去，表格里手工加的行拉进来，其余差异以库覆盖。
type Runner struct {
	client   *Client
	loader   DictLoader
	datasets []Dataset
	reports  *ReportRepo
	snaps    *Snapshotter
	cfg      config.SyncConfig
	log      logger.Logger

	mu sync.Mutex // 同一时间只允许一轮在跑
}

func NewRunner(client *Client, loader DictLoader, datasets []Dataset,
	reports *ReportRepo, snaps *Snapshotter, cfg config.SyncConfig, log logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Runner{
		client:   client,
		loader:   loader,
		datasets: datasets,
		reports:  reports,
		snaps:    snaps,
		cfg:      cfg,
		log:      log,
	}
}

// RunOnce 执行一轮对账。已有一轮在跑时立即返回 ErrRunInProgress。
func (r *Runner) RunOnce(ctx context.Context) (*RunSummary, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	sum := &RunSummary{RunID: uuid.NewString(), StartedAt: time.Now()}

	dict, err := r.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load directory: %w", err)
	}

	var all []ReconciliationReport
	for _, ds := range r.datasets {
		res, dsReports := r.runDataset(ctx, sum.RunID, dict, ds)
		sum.Results = append(sum.Results, res)
		all = append(all, dsReports...)
		if ctx.Err() != nil {
			break
		}
	}
	sum.FinishedAt = time.Now()

	if len(all) > 0 && r.reports != nil {
		if err := r.reports.SaveAll(ctx, all); err != nil {
			r.log.Errorf("save reconciliation reports: %v", err)
		}
	}
	return sum, nil
}

func (r *Runner) runDataset(ctx context.Context, runID string, dict *Dict, ds Dataset) (KindResult, []ReconciliationReport) {
	res := KindResult{Kind: ds.Kind()}
	log := r.log.WithFields(map[string]interface{}{"kind": ds.Kind(), "tab": ds.Tab()})
	rep := &reporter{runID: runID, kind: ds.Kind()}

	remote, err := r.client.ReadRows(ctx, ds.Tab())
	if err != nil {
		res.Error = err.Error()
		log.Errorf("read sheet rows: %v", err)
		return res, rep.reports
	}
	local, err := ds.LoadLocal(ctx, dict)
	if err != nil {
		res.Error = err.Error()
		log.Errorf("load local entries: %v", err)
		return res, rep.reports
	}

	// update 报告要能看出是谁先动的手：synced 状态下出现差异 = 有人直接改了表格
	statusByID := make(map[string]syncstate.Status, len(local))
	for _, e := range local {
		statusByID[e.ID] = e.Status
	}

	plan := BuildPlan(local, remote)
	res.InSync = plan.InSync
	res.SkippedConflict = plan.SkippedConflict

	if plan.Empty() {
		log.Debugf("nothing to reconcile, %d rows in sync", plan.InSync)
		return res, rep.reports
	}

	if plan.Mutating() {
		if path, err := r.snaps.Write(ds.Kind(), ds.Tab(), remote); err != nil {
			// 没有快照就不覆盖、不删行，本轮只做无损动作
			log.Errorf("snapshot failed, skipping %d updates and %d deletes: %v",
				len(plan.Updates), len(plan.Deletes), err)
			rep.add(ActionError, "", "", fmt.Sprintf("snapshot failed: %v; updates and deletes skipped", err))
			plan.Updates = nil
			plan.Deletes = nil
		} else {
			log.Infof("sheet snapshot written: %s", path)
		}
	}

	r.applyAppends(ctx, ds, plan.Appends, ActionAppend, rep, &res)
	r.applyAppends(ctx, ds, plan.Restores, ActionRestore, rep, &res)
	r.applyUpdates(ctx, ds, plan.Updates, statusByID, rep, &res)
	r.applyRelinks(ctx, ds, plan.Relinks, rep, &res)
	r.applyPulls(ctx, ds, dict, plan.Pulls, rep, &res)
	r.applyDeletes(ctx, ds, plan.Deletes, rep, &res)

	for _, c := range plan.Conflicts {
		res.Conflicts++
		rep.add(ActionConflict, rowRecordID(c.Row), c.Row.RowID, c.Reason)
	}

	log.Infof("reconciled: %d appended, %d updated, %d relinked, %d restored, %d pulled, %d deleted, %d conflicts, %d failed, %d in sync",
		res.Appended, res.Updated, res.Relinked, res.Restored, res.Pulled, res.Deleted, res.Conflicts, res.Failed, res.InSync)
	return res, rep.reports
}

// applyAppends 把本地记录追加到表格。Appends 和 Restores 共用，只是报告动作不同。
func (r *Runner) applyAppends(ctx context.Context, ds Dataset, entries []Entry, action string, rep *reporter, res *KindResult) {
	size := r.chunkSize()
	for start := 0; start < len(entries); start += size {
		end := start + size
		if end > len(entries) {
			end = len(entries)
		}
		chunk := entries[start:end]

		rows := make([]Row, len(chunk))
		for i, e := range chunk {
			rows[i] = Row{Cells: e.Cells}
		}
		rowIDs, err := r.client.AppendRows(ctx, ds.Tab(), rows)
		if err != nil {
			r.failChunk(ctx, ds, chunk, err, rep, res)
			r.chunkPause(ctx, end < len(entries))
			continue
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for i := range chunk {
			i := i
			g.Go(func() error {
				e := chunk[i]
				if err := ds.MarkSynced(gctx, e.ID, rowIDs[i]); err != nil {
					mu.Lock()
					res.Failed++
					mu.Unlock()
					rep.add(ActionError, e.ID, rowIDs[i], fmt.Sprintf("mark synced: %v", err))
					return nil
				}
				mu.Lock()
				if action == ActionRestore {
					res.Restored++
				} else {
					res.Appended++
				}
				mu.Unlock()
				rep.add(action, e.ID, rowIDs[i], "")
				return nil
			})
		}
		_ = g.Wait()
		r.chunkPause(ctx, end < len(entries))
	}
}

// applyUpdates 以库里的内容覆盖表格行。
func (r *Runner) applyUpdates(ctx context.Context, ds Dataset, entries []Entry, statusByID map[string]syncstate.Status, rep *reporter, res *KindResult) {
	size := r.chunkSize()
	for start := 0; start < len(entries); start += size {
		end := start + size
		if end > len(entries) {
			end = len(entries)
		}
		chunk := entries[start:end]

		rows := make([]Row, len(chunk))
		for i, e := range chunk {
			rows[i] = Row{RowID: e.RowID, Cells: e.Cells}
		}
		if err := r.client.UpdateRows(ctx, ds.Tab(), rows); err != nil {
			r.failChunk(ctx, ds, chunk, err, rep, res)
			r.chunkPause(ctx, end < len(entries))
			continue
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for i := range chunk {
			i := i
			g.Go(func() error {
				e := chunk[i]
				if err := ds.MarkSynced(gctx, e.ID, e.RowID); err != nil {
					mu.Lock()
					res.Failed++
					mu.Unlock()
					rep.add(ActionError, e.ID, e.RowID, fmt.Sprintf("mark synced: %v", err))
					return nil
				}
				detail := ""
				if statusByID[e.ID] == syncstate.StatusSynced {
					detail = "sheet row drifted from database, overwritten"
				}
				mu.Lock()
				res.Updated++
				mu.Unlock()
				rep.add(ActionUpdate, e.ID, e.RowID, detail)
				return nil
			})
		}
		_ = g.Wait()
		r.chunkPause(ctx, end < len(entries))
	}
}

// applyRelinks 表格行没问题，只补齐本地的行标识和 synced 状态，不动表格。
func (r *Runner) applyRelinks(ctx context.Context, ds Dataset, entries []Entry, rep *reporter, res *KindResult) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.chunkSize())
	for _, e := range entries {
		e := e
		g.Go(func() error {
			if err := ds.MarkSynced(gctx, e.ID, e.RowID); err != nil {
				mu.Lock()
				res.Failed++
				mu.Unlock()
				rep.add(ActionError, e.ID, e.RowID, fmt.Sprintf("mark synced: %v", err))
				return nil
			}
			mu.Lock()
			res.Relinked++
			mu.Unlock()
			rep.add(ActionRelink, e.ID, e.RowID, "")
			return nil
		})
	}
	_ = g.Wait()
}

// applyPulls 把表格里手工加的行落成本地记录，并把生成的 ID 回写到行上。
// 串行执行：拉取会顺手建供应商档案，并发会撞唯一索引。
func (r *Runner) applyPulls(ctx context.Context, ds Dataset, dict *Dict, rows []Row, rep *reporter, res *KindResult) {
	for _, row := range rows {
		if ctx.Err() != nil {
			return
		}
		entry, err := ds.CreateFromRow(ctx, dict, row)
		if err != nil {
			// 行内容有问题，落不了库：留在表里等人工修
			res.Conflicts++
			rep.add(ActionConflict, "", row.RowID, err.Error())
			continue
		}
		if err := r.client.UpdateRows(ctx, ds.Tab(), []Row{{RowID: entry.RowID, Cells: entry.Cells}}); err != nil {
			// 记录已建但 ID 没写回去，标失败；下一轮按行标识配对后补盖
			if mErr := ds.MarkFailed(ctx, entry.ID, fmt.Errorf("write id back: %w", err)); mErr != nil {
				r.log.Warnf("mark failed for %s: %v", entry.ID, mErr)
			}
			res.Failed++
			rep.add(ActionError, entry.ID, entry.RowID, fmt.Sprintf("write id back: %v", err))
			continue
		}
		res.Pulled++
		rep.add(ActionPull, entry.ID, entry.RowID, "")
	}
}

// applyDeletes 删掉本地已无对应记录的表格行。
func (r *Runner) applyDeletes(ctx context.Context, ds Dataset, rows []Row, rep *reporter, res *KindResult) {
	size := r.chunkSize()
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		ids := make([]string, len(chunk))
		for i, row := range chunk {
			ids[i] = row.RowID
		}
		if err := r.client.DeleteRows(ctx, ds.Tab(), ids); err != nil {
			for _, row := range chunk {
				res.Failed++
				rep.add(ActionError, rowRecordID(row), row.RowID, fmt.Sprintf("delete row: %v", err))
			}
			r.chunkPause(ctx, end < len(rows))
			continue
		}
		for _, row := range chunk {
			res.Deleted++
			rep.add(ActionDelete, rowRecordID(row), row.RowID, "")
		}
		r.chunkPause(ctx, end < len(rows))
	}
}

// failChunk 整块推送失败：每条记录记一次失败，留到下一轮重试。
func (r *Runner) failChunk(ctx context.Context, ds Dataset, chunk []Entry, cause error, rep *reporter, res *KindResult) {
	res.Failed += len(chunk)
	g, gctx := errgroup.WithContext(ctx)
	for _, e := range chunk {
		e := e
		g.Go(func() error {
			if err := ds.MarkFailed(gctx, e.ID, cause); err != nil {
				r.log.Warnf("mark failed for %s: %v", e.ID, err)
			}
			rep.add(ActionError, e.ID, e.RowID, cause.Error())
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Runner) chunkSize() int {
	if r.cfg.ChunkSize > 0 {
		return r.cfg.ChunkSize
	}
	return 20
}

// chunkPause 两块之间歇一下，别把表格端点打满。
func (r *Runner) chunkPause(ctx context.Context, more bool) {
	if !more || r.cfg.ChunkDelay() <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(r.cfg.ChunkDelay()):
	}
}

// reporter 攒一轮对账的报告行，apply 阶段有并发写入。
type reporter struct {
	mu      sync.Mutex
	runID   string
	kind    string
	reports []ReconciliationReport
}

func (t *reporter) add(action, entityID, rowID, detail string) {
	if len(detail) > 512 {
		detail = detail[:512]
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reports = append(t.reports, ReconciliationReport{
		ID:       uuid.NewString(),
		RunID:    t.runID,
		Kind:     t.kind,
		Action:   action,
		EntityID: entityID,
		RowID:    rowID,
		Detail:   detail,
	})
}
