package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// RuMonths 月份名称（大写）到月份序号
var RuMonths = map[string]time.Month{
	"ЯНВАРЬ":   time.January,
	"ФЕВРАЛЬ":  time.February,
	"МАРТ":     time.March,
	"АПРЕЛЬ":   time.April,
	"МАЙ":      time.May,
	"ИЮНЬ":     time.June,
	"ИЮЛЬ":     time.July,
	"АВГУСТ":   time.August,
	"СЕНТЯБРЬ": time.September,
	"ОКТЯБРЬ":  time.October,
	"НОЯБРЬ":   time.November,
	"ДЕКАБРЬ":  time.December,
}

var folder = cases.Fold()

// foldKey 大小写无关比较用的键：NFKC + case fold + 合并空白
func foldKey(s string) string {
	s = norm.NFKC.String(s)
	return folder.String(strings.Join(strings.Fields(s), " "))
}

// compactKey 忽略空白的比较键
func compactKey(s string) string {
	return strings.ReplaceAll(foldKey(s), " ", "")
}

// CleanHeader 表头规范化：换行转空格并合并空白
func CleanHeader(s string) string {
	s = strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// CleanString 去除首尾空白，把 nan/none 视为空
func CleanString(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "nan", "none", "null":
		return ""
	}
	return s
}

// Truncate 按字符数截断
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}

// MonthFromName 识别完整月份名
func MonthFromName(s string) (time.Month, bool) {
	m, ok := RuMonths[strings.ToUpper(strings.TrimSpace(s))]
	return m, ok
}

// MonthStart 月初
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Day 截断到日期（UTC 零点）
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006",
}

// ToDate 把单元格原始值转换为日期
// 支持 Excel 序列号（> 30000）、ISO 与 дд.мм.гггг 文本
func ToDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f <= 30000 || math.IsNaN(f) || math.IsInf(f, 0) {
			return time.Time{}, false
		}
		t, err := excelize.ExcelDateToTime(f, false)
		if err != nil {
			return time.Time{}, false
		}
		return Day(t), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), true
		}
	}
	return time.Time{}, false
}

// NormalizeDate 同 ToDate，但过滤 0、1970-01-01 及 1990 年以前的垃圾日期
func NormalizeDate(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" || s == "0" || s == "0.0" {
		return nil
	}
	t, ok := ToDate(s)
	if !ok || t.Year() < 1990 {
		return nil
	}
	return &t
}

var nullTokens = map[string]struct{}{
	"":     {},
	"nan":  {},
	"none": {},
	"-":    {},
	"—":    {},
}

// ToFloatNullable 解析本地化数字（空格千分位、逗号小数点），失败返回 nil
func ToFloatNullable(raw string) *float64 {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\t':
			return -1
		case ',':
			return '.'
		}
		return r
	}, raw)
	if _, null := nullTokens[strings.ToLower(s)]; null {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// ToFloat 同 ToFloatNullable，失败时返回 def
func ToFloat(raw string, def float64) float64 {
	if f := ToFloatNullable(raw); f != nil {
		return *f
	}
	return def
}

// 单位词表；边界按字母/数字判断，RE2 的 \b 不认识西里尔字母
var unitRe = regexp.MustCompile(
	`(?:^|[^\p{L}\p{N}])(м2|м3|тн|тонн(?:а|ы)?|т|кг|шт|ед|час|ч|п\.?\s?м|пог\.?\s?м|м\.?\s?п|м)(?:$|[^\p{L}\p{N}])`,
)

var unitMap = map[string]string{
	"м2":    "м2",
	"м3":    "м3",
	"т":     "тн",
	"тн":    "тн",
	"тонн":  "тн",
	"тонна": "тн",
	"тонны": "тн",
	"кг":    "кг",
	"шт":    "шт",
	"ед":    "ед",
	"час":   "час",
	"ч":     "час",
	"п.м":   "п.м",
	"пм":    "п.м",
	"пог.м": "п.м",
	"погм":  "п.м",
	"м.п":   "п.м",
	"мп":    "п.м",
	"м":     "м",
}

// NormalizeUnit 识别单位词表，无法识别时返回 nil
func NormalizeUnit(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	// NFKC 把上标 ² ³ 展开为 2 3
	s = strings.ReplaceAll(strings.ToLower(norm.NFKC.String(s)), ",", ".")
	m := unitRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	token := strings.Join(strings.Fields(m[1]), "")
	unit, ok := unitMap[token]
	if !ok {
		unit = token
	}
	return &unit
}

// UnitOrFallback 识别不到单位时：短文本原样保留，否则使用兜底单位
func UnitOrFallback(raw string, maxLen int, fallback string) string {
	if u := NormalizeUnit(raw); u != nil {
		return *u
	}
	s := CleanString(raw)
	if s != "" && len([]rune(s)) <= maxLen {
		return s
	}
	return fallback
}

// FileSHA256 计算文件内容哈希
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

var yearRe = regexp.MustCompile(`(20\d{2})`)

// parseYear 识别年份单元格：整数 1990..2100 或包含 20xx 的文本
func parseYear(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f == math.Trunc(f) && f >= 1990 && f <= 2100 {
			return int(f), true
		}
		return 0, false
	}
	if m := yearRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		return y, true
	}
	return 0, false
}
