package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/sheetsync"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/syncstate"
)

// statusCounts 三个状态都给值，没有的补零，前端不用判空。
func statusCounts(m map[syncstate.Status]int64) map[string]int64 {
	out := map[string]int64{
		string(syncstate.StatusPending):  0,
		string(syncstate.StatusSynced):   0,
		string(syncstate.StatusConflict): 0,
	}
	for st, n := range m {
		out[string(st)] = n
	}
	return out
}

func (s *Server) syncStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.FuelCounts == nil || s.deps.ReadingCounts == nil {
		writeError(w, http.StatusServiceUnavailable, "sheet sync not configured")
		return
	}
	fuelCounts, err := s.deps.FuelCounts.CountBySyncStatus(r.Context())
	if err != nil {
		s.serviceError(w, r, "sync status", err)
		return
	}
	readingCounts, err := s.deps.ReadingCounts.CountBySyncStatus(r.Context())
	if err != nil {
		s.serviceError(w, r, "sync status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fuel":     statusCounts(fuelCounts),
		"readings": statusCounts(readingCounts),
	})
}

func (s *Server) syncRunHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.SyncRunner == nil {
		writeError(w, http.StatusServiceUnavailable, "sheet sync not configured")
		return
	}
	sum, err := s.deps.SyncRunner.RunOnce(r.Context())
	if err != nil {
		s.serviceError(w, r, "reconciliation run", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type reportPayload struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"`
	Action    string    `json:"action"`
	EntityID  string    `json:"entity_id,omitempty"`
	RowID     string    `json:"row_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toReportPayloads(reports []sheetsync.ReconciliationReport) []reportPayload {
	out := make([]reportPayload, 0, len(reports))
	for _, rep := range reports {
		out = append(out, reportPayload{
			ID:        rep.ID,
			RunID:     rep.RunID,
			Kind:      rep.Kind,
			Action:    rep.Action,
			EntityID:  rep.EntityID,
			RowID:     rep.RowID,
			Detail:    rep.Detail,
			CreatedAt: rep.CreatedAt,
		})
	}
	return out
}

func (s *Server) syncReportsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.SyncReports == nil {
		writeError(w, http.StatusServiceUnavailable, "sheet sync not configured")
		return
	}
	q := r.URL.Query()

	var (
		reports []sheetsync.ReconciliationReport
		err     error
	)
	if runID := strings.TrimSpace(q.Get("run_id")); runID != "" {
		reports, err = s.deps.SyncReports.ListByRun(r.Context(), runID)
	} else {
		limit, _ := strconv.Atoi(q.Get("limit"))
		if limit <= 0 {
			limit = 100
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}
		reports, err = s.deps.SyncReports.ListRecent(r.Context(), limit)
	}
	if err != nil {
		s.serviceError(w, r, "list sync reports", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toReportPayloads(reports)})
}

const maxWorkbookBytes = 32 << 20

// importWorkbookHandler 上传历史工作簿（.xlsx/.xls），multipart 字段：
// kind=fuel|reading，file=文件。坏行跳过并逐行回报，不整体失败。
func (s *Server) importWorkbookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Importer == nil {
		writeError(w, http.StatusServiceUnavailable, "sheet sync not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxWorkbookBytes)
	if err := r.ParseMultipartForm(maxWorkbookBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	kind := strings.ToLower(strings.TrimSpace(r.FormValue("kind")))
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	var res *sheetsync.ImportResult
	switch kind {
	case "fuel":
		res, err = s.deps.Importer.ImportFuel(r.Context(), file, header.Filename)
	case "reading", "readings":
		res, err = s.deps.Importer.ImportReadings(r.Context(), file, header.Filename)
	default:
		writeError(w, http.StatusBadRequest, "kind must be fuel or reading")
		return
	}
	if err != nil {
		// 到这一步的错误基本都是工作簿本身的问题（打不开、缺列）
		s.log.WithField("filename", header.Filename).Warnf("workbook import rejected: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
