package sheetsync

import (
	"strings"

	"github.com/google/uuid"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/syncstate"
)

// Entry 对账用的本地记录投影：ID、已知的表格行标识、同步状态和编码后的行内容。
// Cells[0] 必须是记录 ID。
type Entry struct {
	ID     string
	RowID  string
	Status syncstate.Status
	Cells  []string
}

// RowIssue 无法自动处理的表格行。
type RowIssue struct {
	Row    Row
	Reason string
}

// Plan 一轮对账要做的事。库是权威，表格是镜像。
type Plan struct {
	Appends  []Entry // 本地新记录 → 追加到表格
	Updates  []Entry // 两边内容不一致 → 以库覆盖表格行
	Relinks  []Entry // 内容一致，只需本地补行标识/标 synced，不动表格
	Restores []Entry // 本地有行标识但表格行没了 → 重新追加
	Pulls    []Row   // 表格里手工加的行（ID 列为空）→ 建本地记录并回写 ID
	Deletes  []Row   // 表格行对应的本地记录已删除 → 删表格行

	Conflicts       []RowIssue // ID 列有内容但不是记录 ID，绝不自动删
	InSync          int
	SkippedConflict int // 本地 conflict 状态的记录，等人工处理
}

// Empty 没有任何要执行的动作。
func (p Plan) Empty() bool {
	return len(p.Appends) == 0 && len(p.Updates) == 0 && len(p.Relinks) == 0 &&
		len(p.Restores) == 0 && len(p.Pulls) == 0 && len(p.Deletes) == 0
}

// Mutating 计划包含覆盖或删除表格行的动作（执行前要先拍快照）。
func (p Plan) Mutating() bool {
	return len(p.Updates) > 0 || len(p.Deletes) > 0
}

// BuildPlan 把本地记录和表格行按记录 ID 配对，产出对账计划。纯函数。
//
// 规则：
//   - ID 列为空的表格行是人在表里手工加的 → Pulls；
//   - 例外：空 ID 行的行标识已挂在某条本地记录上，说明上一轮拉取建了记录
//     但 ID 回写失败 → 按 Updates 盖回去，不能再拉一次（会重复建记录）；
//   - ID 列不是合法记录 ID 的行不碰 → Conflicts（防止误删手工数据）；
//   - 同一 ID 出现多行，保留第一行，其余删；
//   - 本地没有对应记录的表格行 → Deletes；
//   - 内容不一致时库赢 → Updates。
func BuildPlan(local []Entry, remote []Row) Plan {
	var p Plan

	localByRowID := make(map[string]Entry, len(local))
	for _, e := range local {
		if e.RowID != "" {
			localByRowID[e.RowID] = e
		}
	}

	rescued := make(map[string]bool)
	byID := make(map[string]Row, len(remote))
	for _, row := range remote {
		if isBlankRow(row) {
			continue
		}
		id := rowRecordID(row)
		if id == "" {
			if e, ok := localByRowID[row.RowID]; ok {
				rescued[e.ID] = true
				if e.Status == syncstate.StatusConflict {
					p.SkippedConflict++
					continue
				}
				p.Updates = append(p.Updates, e)
				continue
			}
			p.Pulls = append(p.Pulls, row)
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			p.Conflicts = append(p.Conflicts, RowIssue{Row: row, Reason: "id cell is not a record id"})
			continue
		}
		if _, dup := byID[id]; dup {
			p.Deletes = append(p.Deletes, row)
			continue
		}
		byID[id] = row
	}

	claimed := make(map[string]bool, len(local))
	for _, e := range local {
		if rescued[e.ID] {
			continue
		}
		if e.Status == syncstate.StatusConflict {
			claimed[e.ID] = true
			p.SkippedConflict++
			continue
		}

		row, ok := byID[e.ID]
		if !ok {
			if e.RowID != "" {
				e.RowID = ""
				p.Restores = append(p.Restores, e)
			} else {
				p.Appends = append(p.Appends, e)
			}
			continue
		}
		claimed[e.ID] = true

		// 行标识以表格现状为准（行可能被删掉重加过）
		linked := e.RowID == row.RowID
		e.RowID = row.RowID

		if !EqualCells(e.Cells, row.Cells) {
			p.Updates = append(p.Updates, e)
			continue
		}
		if e.Status == syncstate.StatusSynced && linked {
			p.InSync++
			continue
		}
		p.Relinks = append(p.Relinks, e)
	}

	for _, row := range remote {
		id := rowRecordID(row)
		if id == "" || claimed[id] {
			continue
		}
		kept, ok := byID[id]
		if !ok || kept.RowID != row.RowID {
			// 不在 byID 里的行（空行/冲突/重复）已各自处理
			continue
		}
		p.Deletes = append(p.Deletes, row)
	}

	return p
}

func rowRecordID(row Row) string {
	if len(row.Cells) == 0 {
		return ""
	}
	return strings.TrimSpace(row.Cells[0])
}

func isBlankRow(row Row) bool {
	for _, c := range row.Cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
