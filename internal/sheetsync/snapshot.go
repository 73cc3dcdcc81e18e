package sheetsync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/logger"
)

// Snapshotter 在覆盖/删除表格行之前把表格当前内容存一份压缩快照，
// 误对账时可以人工找回数据。按 kind 各自保留最近 N 份。
type Snapshotter struct {
	dir  string
	keep int
	log  logger.Logger
}

func NewSnapshotter(dir string, keep int, log logger.Logger) *Snapshotter {
	if keep <= 0 {
		keep = 10
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Snapshotter{dir: dir, keep: keep, log: log}
}

// Snapshot 一份表格内容的存档。
type Snapshot struct {
	Kind    string    `json:"kind"`
	Tab     string    `json:"tab"`
	TakenAt time.Time `json:"taken_at"`
	Rows    []Row     `json:"rows"`
}

// Write 落一份快照，返回文件路径。
func (s *Snapshotter) Write(kind, tab string, rows []Row) (string, error) {
	if s == nil || s.dir == "" {
		return "", fmt.Errorf("snapshot dir not configured")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json.xz", kind, time.Now().Format("20060102-150405"))
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	defer f.Close()

	xw, err := xz.NewWriter(f)
	if err != nil {
		return "", fmt.Errorf("xz writer: %w", err)
	}
	enc := json.NewEncoder(xw)
	if err := enc.Encode(Snapshot{
		Kind:    kind,
		Tab:     tab,
		TakenAt: time.Now(),
		Rows:    rows,
	}); err != nil {
		xw.Close()
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	if err := xw.Close(); err != nil {
		return "", fmt.Errorf("close xz: %w", err)
	}

	s.prune(kind)
	return path, nil
}

// Read 读回一份快照（人工恢复用）。
func (s *Snapshotter) Read(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("xz reader: %w", err)
	}
	var snap Snapshot
	if err := json.NewDecoder(xr).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// prune 只保留该 kind 最新的 keep 份。
func (s *Snapshotter) prune(kind string) {
	paths, err := snapshotFiles(s.dir, kind)
	if err != nil {
		s.log.Warnf("snapshot prune: %v", err)
		return
	}
	if len(paths) <= s.keep {
		return
	}
	for _, path := range paths[:len(paths)-s.keep] {
		if err := os.Remove(path); err != nil {
			s.log.Warnf("snapshot prune %s: %v", path, err)
		}
	}
}

// snapshotFiles 该 kind 的全部快照路径，旧的在前。
// 文件名带时间戳，字典序就是时间序。
func snapshotFiles(dir, kind string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), kind+"-") && strings.HasSuffix(e.Name(), ".json.xz") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
