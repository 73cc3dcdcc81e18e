package reading

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func day(n int) time.Time {
	return time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func pt(id string, d int, v string) Point {
	return Point{ID: id, Date: day(d), Value: dec(v)}
}

// 五天匀速 10 小时/天的历史，基线应为 10.00
func steadyHistory() []Point {
	return []Point{
		pt("r0", 0, "1000.0"),
		pt("r1", 1, "1010.0"),
		pt("r2", 2, "1020.0"),
		pt("r3", 3, "1030.0"),
		pt("r4", 4, "1040.0"),
	}
}

func TestAnalyzeDigitSwap(t *testing.T) {
	// 真实值 1050.0 被抄成 1500.0（相邻位抄反）
	series := append(steadyHistory(), pt("bad", 5, "1500.0"), pt("r6", 6, "1060.0"))

	got := Analyze(series, DefaultThresholds("horimeter"))
	if len(got) != 1 {
		t.Fatalf("期望 1 条异常，得到 %d 条: %+v", len(got), got)
	}

	a := got[0]
	if a.Point.ID != "bad" || a.Kind != KindSpike {
		t.Fatalf("异常点不对: %+v", a)
	}
	if !a.PrevValue.Equal(dec("1040")) || a.Days != 1 {
		t.Errorf("区间不对: prev=%s days=%d", a.PrevValue, a.Days)
	}
	if !a.DailyUsage.Equal(dec("460")) {
		t.Errorf("日用量不对: %s", a.DailyUsage)
	}
	if !a.Baseline.Equal(dec("10")) || !a.Expected.Equal(dec("1050")) {
		t.Errorf("基线/期望不对: baseline=%s expected=%s", a.Baseline, a.Expected)
	}

	s := a.Suggestion
	if s == nil {
		t.Fatal("spike 异常应有纠错建议")
	}
	if !s.Value.Equal(dec("1050")) || s.Method != MethodDigitSwap {
		t.Errorf("建议不对: value=%s method=%s", s.Value, s.Method)
	}
	if s.Confidence != 1.0 {
		t.Errorf("命中期望值的建议置信度应为 1.0，得到 %v", s.Confidence)
	}
}

func TestAnalyzeAnchorSkipsFlaggedPoint(t *testing.T) {
	// 错值后面的正常读数要相对错值之前的锚点判断，不应被连带标记
	series := append(steadyHistory(), pt("bad", 5, "1500.0"), pt("r6", 6, "1060.0"))

	got := Analyze(series, DefaultThresholds("horimeter"))
	for _, a := range got {
		if a.Point.ID == "r6" {
			t.Fatalf("r6 不应被标记: %+v", a)
		}
	}
}

func TestAnalyzeDigitInsert(t *testing.T) {
	// 真实值 1050.0 被抄成 150.0（漏抄一位），读数倒退
	series := append(steadyHistory(), pt("bad", 5, "150.0"))

	got := Analyze(series, DefaultThresholds("horimeter"))
	if len(got) != 1 {
		t.Fatalf("期望 1 条异常，得到 %d 条", len(got))
	}

	a := got[0]
	if a.Kind != KindNegative {
		t.Fatalf("期望 negative，得到 %s", a.Kind)
	}
	if a.Suggestion == nil || !a.Suggestion.Value.Equal(dec("1050")) ||
		a.Suggestion.Method != MethodDigitInsert {
		t.Fatalf("建议不对: %+v", a.Suggestion)
	}
}

func TestAnalyzeDecimalSlip(t *testing.T) {
	// 真实值 1050.0 被抄成 10.5（小数点错了两位）
	series := append(steadyHistory(), pt("bad", 5, "10.5"))

	got := Analyze(series, DefaultThresholds("horimeter"))
	if len(got) != 1 {
		t.Fatalf("期望 1 条异常，得到 %d 条", len(got))
	}

	a := got[0]
	if a.Kind != KindNegative {
		t.Fatalf("期望 negative，得到 %s", a.Kind)
	}
	if a.Suggestion == nil || !a.Suggestion.Value.Equal(dec("1050")) ||
		a.Suggestion.Method != MethodDecimalSlip {
		t.Fatalf("建议不对: %+v", a.Suggestion)
	}
}

func TestAnalyzeEstimateFallback(t *testing.T) {
	// 乱填的小值：数字位操作给不出落在期望窗口内的候选
	series := append(steadyHistory(), pt("bad", 5, "2.0"))

	got := Analyze(series, DefaultThresholds("horimeter"))
	if len(got) != 1 {
		t.Fatalf("期望 1 条异常，得到 %d 条", len(got))
	}

	s := got[0].Suggestion
	if s == nil || s.Method != MethodEstimate {
		t.Fatalf("期望 estimate 兜底，得到 %+v", s)
	}
	if !s.Value.Equal(dec("1050")) {
		t.Errorf("估算值应为 prev+baseline×days=1050，得到 %s", s.Value)
	}
	if s.Confidence != 0.2 {
		t.Errorf("估算建议置信度固定 0.2，得到 %v", s.Confidence)
	}
}

func TestAnalyzeRatioNeedsHistory(t *testing.T) {
	cfg := DefaultThresholds("odometer")

	// 健康区间不足时不做倍数判断：第一段 800 公里/天不超硬上限，不标
	early := []Point{pt("a", 0, "10000.0"), pt("b", 1, "10800.0")}
	if got := Analyze(early, cfg); len(got) != 0 {
		t.Fatalf("样本不足不应按倍数标记: %+v", got)
	}

	// 三段 100 公里/天之后，同样的 800 公里/天超出基线 5 倍，标 spike
	series := []Point{
		pt("a", 0, "10000.0"),
		pt("b", 1, "10100.0"),
		pt("c", 2, "10200.0"),
		pt("d", 3, "10300.0"),
		pt("e", 4, "11100.0"),
	}
	got := Analyze(series, cfg)
	if len(got) != 1 || got[0].Point.ID != "e" || got[0].Kind != KindSpike {
		t.Fatalf("期望 e 被标 spike，得到 %+v", got)
	}
	if !got[0].Baseline.Equal(dec("100")) {
		t.Errorf("基线应为 100，得到 %s", got[0].Baseline)
	}
}

func TestAnalyzeStale(t *testing.T) {
	series := []Point{
		pt("a", 0, "500.0"),
		pt("b", 10, "500.0"),
		pt("c", 20, "500.0"),
		pt("d", 21, "508.0"),
	}

	got := Analyze(series, DefaultThresholds("horimeter"))
	if len(got) != 1 {
		t.Fatalf("期望 1 条异常，得到 %d 条: %+v", len(got), got)
	}

	a := got[0]
	if a.Point.ID != "c" || a.Kind != KindStale {
		t.Fatalf("期望 c 被标 stale，得到 %+v", a)
	}
	if a.Suggestion != nil {
		t.Errorf("stale 不应有纠错建议: %+v", a.Suggestion)
	}
}

func TestAnalyzeDoesNotMutateInput(t *testing.T) {
	series := []Point{
		pt("bad", 5, "1500.0"),
		pt("r0", 0, "1000.0"),
		pt("r3", 3, "1030.0"),
		pt("r1", 1, "1010.0"),
		pt("r4", 4, "1040.0"),
		pt("r2", 2, "1020.0"),
	}
	order := make([]string, len(series))
	for i, p := range series {
		order[i] = p.ID
	}

	got := Analyze(series, DefaultThresholds("horimeter"))
	if len(got) != 1 || got[0].Point.ID != "bad" {
		t.Fatalf("乱序输入应内部排序后检测: %+v", got)
	}
	for i, p := range series {
		if p.ID != order[i] {
			t.Fatalf("输入序列被改动: 位置 %d 变成 %s", i, p.ID)
		}
	}
}

func TestAnalyzeShortSeries(t *testing.T) {
	if got := Analyze([]Point{pt("a", 0, "100.0")}, DefaultThresholds("horimeter")); got != nil {
		t.Fatalf("单点序列应返回 nil，得到 %+v", got)
	}
	if got := Analyze(nil, DefaultThresholds("horimeter")); got != nil {
		t.Fatalf("空序列应返回 nil，得到 %+v", got)
	}
}

func TestDigitCandidates(t *testing.T) {
	cands := digitCandidates(dec("1234.5"))

	want := map[string]string{
		"234.5":   MethodDigitDrop,   // 去掉首位
		"123.4":   MethodDigitDrop,   // 去掉末位
		"2134.5":  MethodDigitSwap,   // 首两位抄反
		"11234.5": MethodDigitInsert, // 补一位
		"12345":   MethodDigitInsert, // 末位补 0，先于小数点错位生成
		"12.3":    MethodDecimalSlip, // ÷100
		"123450":  MethodDecimalSlip, // ×100
	}
	found := map[string]string{}
	for _, c := range cands {
		for w := range want {
			if c.value.Equal(dec(w)) {
				found[w] = c.method
			}
		}
		if c.value.Equal(dec("1234.5")) {
			t.Fatalf("候选不应包含原值本身")
		}
	}
	for w, method := range want {
		if found[w] != method {
			t.Errorf("候选 %s 期望方式 %s，得到 %q", w, method, found[w])
		}
	}

	seen := map[string]bool{}
	for _, c := range cands {
		k := c.value.String()
		if seen[k] {
			t.Errorf("候选值重复: %s", k)
		}
		seen[k] = true
	}
}

func TestDaysBetween(t *testing.T) {
	if d := daysBetween(day(0), day(0)); d != 1 {
		t.Errorf("同日读数按 1 天算，得到 %d", d)
	}
	if d := daysBetween(day(0), day(7)); d != 7 {
		t.Errorf("期望 7 天，得到 %d", d)
	}
}
