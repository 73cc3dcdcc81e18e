package reading

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind 异常类型
type Kind string

const (
	// KindNegative 读数倒退（新值比上一条小）
	KindNegative Kind = "negative"
	// KindSpike 日用量超出物理上限或相对基线的倍数阈值
	KindSpike Kind = "spike"
	// KindStale 读数长期不变（只提示，不给纠错建议）
	KindStale Kind = "stale"
)

// Point 异常检测的输入点（按日期排序的读数序列）。
type Point struct {
	ID    string
	Date  time.Time
	Value decimal.Decimal
}

// Suggestion 纠错建议。
type Suggestion struct {
	Value      decimal.Decimal
	Method     string  // digit-drop / digit-insert / digit-swap / decimal-slip / estimate
	Confidence float64 // 0..1，estimate 固定低置信度
}

// Anomaly 检测出的异常读数及上下文。
type Anomaly struct {
	Point      Point
	PrevValue  decimal.Decimal
	Kind       Kind
	Days       int64           // 与上一条读数间隔的天数（至少 1）
	DailyUsage decimal.Decimal // 本区间的日用量
	Baseline   decimal.Decimal // 检测时的基线日用量
	Expected   decimal.Decimal // prev + baseline×days
	Suggestion *Suggestion     // stale 异常没有建议
}

// Thresholds 异常检测阈值。
type Thresholds struct {
	MaxDailyUsage     decimal.Decimal // 日用量硬上限（小时表一天最多 24）
	DeviationRatio    decimal.Decimal // 日用量超过基线的该倍数视为异常
	DefaultDailyUsage decimal.Decimal // 健康区间不足时用于估算的缺省日用量
	MinIntervals      int             // 启用倍数判断所需的最少健康区间数
	TrailingWindow    int             // 基线取最近多少个健康区间
	SuggestRatio      decimal.Decimal // 候选接受窗口 = baseline×days×SuggestRatio
	StaleDays         int             // 连续多少天不变提示 stale
}

// DefaultThresholds 按表类型给出阈值。
// 小时表一天最多走 24 小时；里程表按长途重卡的量级放宽。
func DefaultThresholds(meter string) Thresholds {
	if meter == "odometer" {
		return Thresholds{
			MaxDailyUsage:     decimal.NewFromInt(1200),
			DeviationRatio:    decimal.NewFromInt(5),
			DefaultDailyUsage: decimal.NewFromInt(150),
			MinIntervals:      3,
			TrailingWindow:    5,
			SuggestRatio:      decimal.NewFromFloat(0.6),
			StaleDays:         30,
		}
	}
	return Thresholds{
		MaxDailyUsage:     decimal.NewFromInt(24),
		DeviationRatio:    decimal.NewFromInt(4),
		DefaultDailyUsage: decimal.NewFromInt(8),
		MinIntervals:      3,
		TrailingWindow:    5,
		SuggestRatio:      decimal.NewFromFloat(0.6),
		StaleDays:         15,
	}
}

// Analyze 对一条读数序列跑异常检测。
//
// 线性扫描：每个区间算日用量，和硬上限/基线比较；
// 异常点再试数字位操作候选，都不行就按平均日用量估算。
// 区间始终相对最近一个健康读数算，避免一个错值把后面全部带歪。
// 输入不会被修改，输出按日期排序。
func Analyze(series []Point, cfg Thresholds) []Anomaly {
	if len(series) < 2 {
		return nil
	}

	pts := make([]Point, len(series))
	copy(pts, series)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Date.Before(pts[j].Date) })

	var (
		anomalies []Anomaly
		healthy   []decimal.Decimal // 最近健康区间的日用量
		staleDays int64             // 连续不变累计天数
	)

	anchor := pts[0] // 最近一个健康读数

	for i := 1; i < len(pts); i++ {
		cur := pts[i]
		days := daysBetween(anchor.Date, cur.Date)
		delta := cur.Value.Sub(anchor.Value)
		usage := delta.Div(decimal.NewFromInt(days)).Round(2)

		baseline := baselineUsage(healthy, cfg)
		expected := anchor.Value.Add(baseline.Mul(decimal.NewFromInt(days))).Round(1)

		kind, flagged := classify(delta, usage, baseline, len(healthy), staleDays+days, cfg)

		if delta.IsZero() {
			staleDays += days
		} else {
			staleDays = 0
		}

		if !flagged {
			// 健康区间进基线窗口（不变的天不算）
			if delta.IsPositive() {
				healthy = append(healthy, usage)
				if cfg.TrailingWindow > 0 && len(healthy) > cfg.TrailingWindow {
					healthy = healthy[1:]
				}
			}
			anchor = cur
			continue
		}

		a := Anomaly{
			Point:      cur,
			PrevValue:  anchor.Value,
			Kind:       kind,
			Days:       days,
			DailyUsage: usage,
			Baseline:   baseline,
			Expected:   expected,
		}
		if kind != KindStale {
			a.Suggestion = SuggestCorrection(anchor.Value, cur.Value, baseline, days, cfg)
		} else {
			// stale 读数值没错，只是长期不动：换锚点但不给修正建议
			anchor = cur
		}
		anomalies = append(anomalies, a)
	}
	return anomalies
}

// classify 判断区间是否异常。
// 倍数判断只在健康样本足够时启用，硬上限和倒退始终判。
func classify(delta, usage, baseline decimal.Decimal, healthyCount int, unchangedDays int64, cfg Thresholds) (Kind, bool) {
	if delta.IsNegative() {
		return KindNegative, true
	}
	if delta.IsZero() {
		if cfg.StaleDays > 0 && unchangedDays >= int64(cfg.StaleDays) {
			return KindStale, true
		}
		return "", false
	}
	if cfg.MaxDailyUsage.IsPositive() && usage.GreaterThan(cfg.MaxDailyUsage) {
		return KindSpike, true
	}
	if healthyCount >= cfg.MinIntervals && baseline.IsPositive() &&
		usage.GreaterThan(baseline.Mul(cfg.DeviationRatio)) {
		return KindSpike, true
	}
	return "", false
}

// baselineUsage 最近健康区间的截尾均值；样本不足用缺省日用量。
func baselineUsage(healthy []decimal.Decimal, cfg Thresholds) decimal.Decimal {
	if len(healthy) < cfg.MinIntervals || len(healthy) == 0 {
		return cfg.DefaultDailyUsage
	}

	vals := make([]decimal.Decimal, len(healthy))
	copy(vals, healthy)
	sort.Slice(vals, func(i, j int) bool { return vals[i].LessThan(vals[j]) })

	// 样本足够时去掉最大最小再取均值
	if len(vals) >= 4 {
		vals = vals[1 : len(vals)-1]
	}

	sum := decimal.Zero
	for _, v := range vals {
		sum = sum.Add(v)
	}
	return sum.DivRound(decimal.NewFromInt(int64(len(vals))), 2)
}

// SuggestCorrection 为一个异常值生成纠错建议。
//
// 依次尝试常见抄表错误（多抄/漏抄一位、相邻位抄反、小数点错位）,
// 取离期望值最近且落在接受窗口内的候选；
// 没有合适候选时退回按平均日用量的估算值。
func SuggestCorrection(prev, bad, baseline decimal.Decimal, days int64, cfg Thresholds) *Suggestion {
	expected := prev.Add(baseline.Mul(decimal.NewFromInt(days))).Round(1)

	window := baseline.Mul(decimal.NewFromInt(days)).Mul(cfg.SuggestRatio)
	if window.LessThan(decimal.NewFromInt(1)) {
		window = decimal.NewFromInt(1)
	}

	best := decimal.Decimal{}
	bestMethod := ""
	bestDist := decimal.Decimal{}
	found := false

	for _, c := range digitCandidates(bad) {
		// 候选必须让读数前进，且落在期望值附近
		if !c.value.GreaterThan(prev) {
			continue
		}
		dist := c.value.Sub(expected).Abs()
		if dist.GreaterThan(window) {
			continue
		}
		if !found || dist.LessThan(bestDist) ||
			(dist.Equal(bestDist) && c.value.LessThan(best)) {
			best = c.value
			bestMethod = c.method
			bestDist = dist
			found = true
		}
	}

	if found {
		conf := 1 - bestDist.Div(window).InexactFloat64()
		if conf < 0.05 {
			conf = 0.05
		}
		return &Suggestion{
			Value:      best,
			Method:     bestMethod,
			Confidence: math.Round(conf*100) / 100,
		}
	}

	// 兜底：按平均日用量估算
	return &Suggestion{
		Value:      expected,
		Method:     MethodEstimate,
		Confidence: 0.2,
	}
}

type candidate struct {
	value  decimal.Decimal
	method string
}

// digitCandidates 由常见抄表错误生成的候选值。
// 在十分位整数的数字串上做位操作（表只有一位小数）。
func digitCandidates(bad decimal.Decimal) []candidate {
	tenths := bad.Mul(decimal.NewFromInt(10)).Round(0)
	digits := tenths.Abs().String()
	if strings.ContainsAny(digits, ".-") || digits == "" {
		return nil
	}

	var out []candidate
	seen := map[string]bool{tenths.String(): true}

	add := func(s, method string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		v, err := decimal.NewFromString(s)
		if err != nil {
			return
		}
		out = append(out, candidate{value: v.Div(decimal.NewFromInt(10)), method: method})
	}

	// 多抄了一位：逐位去掉
	if len(digits) > 1 {
		for i := 0; i < len(digits); i++ {
			add(trimLeadingZeros(digits[:i]+digits[i+1:]), MethodDigitDrop)
		}
	}

	// 漏抄了一位：逐位补 0-9
	for i := 0; i <= len(digits); i++ {
		for d := byte('0'); d <= '9'; d++ {
			if i == 0 && d == '0' {
				continue
			}
			add(digits[:i]+string(d)+digits[i:], MethodDigitInsert)
		}
	}

	// 相邻两位抄反
	for i := 0; i+1 < len(digits); i++ {
		if digits[i] == digits[i+1] {
			continue
		}
		b := []byte(digits)
		b[i], b[i+1] = b[i+1], b[i]
		add(trimLeadingZeros(string(b)), MethodDigitSwap)
	}

	// 小数点错位
	for _, factor := range []int64{10, 100} {
		f := decimal.NewFromInt(factor)
		slipUp := bad.Mul(f).Round(1)
		slipDown := bad.Div(f).Round(1)
		for _, v := range []decimal.Decimal{slipUp, slipDown} {
			key := v.Mul(decimal.NewFromInt(10)).Round(0).String()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, candidate{value: v, method: MethodDecimalSlip})
		}
	}

	return out
}

func trimLeadingZeros(s string) string {
	i := 0
	for i < len(s)-1 && s[i] == '0' {
		i++
	}
	return s[i:]
}

func daysBetween(a, b time.Time) int64 {
	d := int64(math.Round(b.Sub(a).Hours() / 24))
	if d < 1 {
		return 1
	}
	return d
}
