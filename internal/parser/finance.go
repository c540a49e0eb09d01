package parser

import (
	"strings"
	"time"
	"unicode"

	"excel2web/internal/model"
)

// monthCol 一个月度金额列
type monthCol struct {
	col      int
	month    time.Time
	scenario string
}

// findHeaderRow 在前 maxRows 行、前 maxCols 列中查找包含关键字的行，找不到返回 -1
func findHeaderRow(s *Sheet, keyword string, maxRows, maxCols int) int {
	kw := foldKey(keyword)
	for r := 0; r < maxRows && r < s.NumRows(); r++ {
		for c := 0; c < maxCols; c++ {
			if strings.Contains(foldKey(s.Cell(r, c)), kw) {
				return r
			}
		}
	}
	return -1
}

// findMonthRow 从 start 开始的 n 行中查找含月份名的行
func findMonthRow(s *Sheet, start, n, width int) int {
	for r := start; r < start+n && r < s.NumRows(); r++ {
		for c := 0; c < width; c++ {
			if _, ok := MonthFromName(s.Cell(r, c)); ok {
				return r
			}
		}
	}
	return -1
}

// collectYears 收集 [from, to] 行中的年份并向右填充
func collectYears(s *Sheet, from, to, width int) map[int]int {
	years := make(map[int]int)
	for r := from; r <= to; r++ {
		for c := 0; c < width; c++ {
			if y, ok := parseYear(s.Cell(r, c)); ok {
				years[c] = y
			}
		}
	}
	last := 0
	for c := 0; c < width; c++ {
		if y, ok := years[c]; ok {
			last = y
		} else if last != 0 {
			years[c] = last
		}
	}
	return years
}

// scenarioClassifier 把表头文本映射为口径，无法识别返回空串
type scenarioClassifier func(text string) string

func financeScenario(text string) string {
	switch {
	case strings.Contains(text, "прогноз"):
		return model.ScenarioForecast
	case strings.Contains(text, "факт"):
		return model.ScenarioFact
	case strings.Contains(text, "план"):
		return model.ScenarioPlan
	}
	return ""
}

// collectScenarios 收集 [from, to] 行中各列的口径标记
func collectScenarios(s *Sheet, from, to, width int, classify scenarioClassifier) map[int]string {
	out := make(map[int]string)
	for r := from; r <= to; r++ {
		for c := 0; c < width; c++ {
			text := strings.ToLower(strings.TrimSpace(s.Cell(r, c)))
			if text == "" {
				continue
			}
			if sc := classify(text); sc != "" {
				out[c] = sc
			}
		}
	}
	return out
}

// forecastMarkers 月份行中 “ПРОГНОЗ” 所在列，按年份记录；该列之后同一年的月份视为预测
func forecastMarkers(s *Sheet, monthRow, width int, years map[int]int) map[int]int {
	markers := make(map[int]int)
	for c := 0; c < width; c++ {
		text := strings.ToUpper(strings.TrimSpace(s.Cell(monthRow, c)))
		if !strings.Contains(text, "ПРОГНОЗ") {
			continue
		}
		y, ok := years[c]
		if !ok {
			y, ok = parseYear(text)
		}
		if ok {
			markers[y] = c
		}
	}
	return markers
}

// monthColumns 组合表头/年份/口径，得到月度列
// withMarkers 为 true 时，“ПРОГНОЗ” 标记列之后的同年月份归入预测
func monthColumns(s *Sheet, headerRow, monthRow, width int, withMarkers bool) []monthCol {
	years := collectYears(s, headerRow, monthRow, width)
	scenarios := collectScenarios(s, headerRow, monthRow, width, financeScenario)
	markers := map[int]int{}
	if withMarkers {
		markers = forecastMarkers(s, monthRow, width, years)
	}

	var cols []monthCol
	for c := 0; c < width; c++ {
		raw := s.Cell(monthRow, c)
		m, ok := MonthFromName(raw)
		if !ok {
			continue
		}
		y, ok := years[c]
		if !ok {
			if y, ok = parseYear(raw); !ok {
				continue
			}
		}
		scenario, explicit := scenarios[c]
		if !explicit {
			scenario = model.ScenarioPlan
			if mk, has := markers[y]; has && c > mk {
				scenario = model.ScenarioForecast
			}
		}
		cols = append(cols, monthCol{
			col:      c,
			month:    time.Date(y, m, 1, 0, 0, 0, 0, time.UTC),
			scenario: scenario,
		})
	}
	return cols
}

// indentOf 标签前导空白字符数
func indentOf(raw string) int {
	n := 0
	for _, r := range raw {
		if !unicode.IsSpace(r) {
			break
		}
		n++
	}
	return n
}

// rowLabel 行标签：优先取名称列，否则取第一个月度列之前的首个文本单元格
func rowLabel(s *Sheet, r, nameCol, firstDataCol int) string {
	if raw := s.Cell(r, nameCol); strings.TrimSpace(raw) != "" {
		return raw
	}
	for c := 0; c < firstDataCol; c++ {
		raw := s.Cell(r, c)
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if ToFloatNullable(raw) != nil {
			continue
		}
		return raw
	}
	return ""
}

func firstCol(cols []monthCol) int {
	first := -1
	for _, mc := range cols {
		if first < 0 || mc.col < first {
			first = mc.col
		}
	}
	return first
}

// ParseBDR 解析 БДР（损益预算）
func ParseBDR(wb *Workbook) ([]model.PnLRow, []model.ValidationError) {
	sheet, err := wb.Sheet(SheetBDR)
	if err != nil {
		return nil, []model.ValidationError{sheetError(SheetBDR, "Не найден лист 'БДР'")}
	}
	width := sheet.Width()

	headerRow := findHeaderRow(sheet, "Статья БДР", 30, 5)
	if headerRow < 0 {
		return nil, []model.ValidationError{sheetError(SheetBDR, "Не найдена строка заголовка 'Статья БДР'")}
	}
	monthRow := findMonthRow(sheet, headerRow, 6, width)
	if monthRow < 0 {
		return nil, []model.ValidationError{sheetError(SheetBDR, "Не найдены месячные колонки в БДР")}
	}
	cols := monthColumns(sheet, headerRow, monthRow, width, false)
	if len(cols) == 0 {
		return nil, []model.ValidationError{sheetError(SheetBDR, "Не найдены месячные колонки в БДР")}
	}

	nameCol := 0
	for c := 0; c < width; c++ {
		text := foldKey(sheet.Cell(headerRow, c))
		if strings.Contains(text, "статья") && strings.Contains(text, "бдр") {
			nameCol = c
			break
		}
	}

	var (
		rows   []model.PnLRow
		parent string
		first  = firstCol(cols)
	)
	for r := monthRow + 1; r < sheet.NumRows(); r++ {
		raw := rowLabel(sheet, r, nameCol, first)
		account := strings.TrimSpace(raw)
		if account == "" {
			continue
		}
		parentName := ""
		if indentOf(raw) == 0 {
			parent = account
		} else {
			parentName = parent
		}

		for _, mc := range cols {
			v := ToFloatNullable(sheet.Cell(r, mc.col))
			if v == nil || *v == 0 {
				continue
			}
			rows = append(rows, model.PnLRow{
				Account:    account,
				ParentName: parentName,
				Month:      mc.month,
				Scenario:   mc.scenario,
				Amount:     *v,
			})
		}
	}
	return rows, nil
}

// ParseBDDS 解析 БДДС（现金流预算）
func ParseBDDS(wb *Workbook) ([]model.CashflowRow, []model.ValidationError) {
	sheet, err := wb.Sheet(SheetBDDS)
	if err != nil {
		return nil, []model.ValidationError{sheetError(SheetBDDS, "Не найден лист 'БДДС'")}
	}
	width := sheet.Width()

	headerRow := findHeaderRow(sheet, "Статья БДДС", 30, 5)
	if headerRow < 0 {
		headerRow = 2
	}
	monthRow := headerRow + 1
	cols := monthColumns(sheet, headerRow, monthRow, width, true)
	if len(cols) == 0 {
		return nil, []model.ValidationError{sheetError(SheetBDDS, "Не найдены месячные колонки в БДДС")}
	}

	var (
		rows    []model.CashflowRow
		section string // “...деятельность” 分段
		top     string // 最近的零缩进行
		first   = firstCol(cols)
	)
	for r := monthRow + 1; r < sheet.NumRows(); r++ {
		raw := rowLabel(sheet, r, 0, first)
		account := strings.TrimSpace(raw)
		if account == "" {
			continue
		}

		parentName := ""
		switch {
		case strings.Contains(strings.ToLower(account), "деятельност"):
			section, top = account, account
		case indentOf(raw) == 0:
			top = account
			parentName = section
		default:
			parentName = top
		}

		for _, mc := range cols {
			v := ToFloatNullable(sheet.Cell(r, mc.col))
			if v == nil || *v == 0 {
				continue
			}
			direction := model.DirectionIn
			if *v < 0 {
				direction = model.DirectionOut
			}
			rows = append(rows, model.CashflowRow{
				Account:    account,
				ParentName: parentName,
				Month:      mc.month,
				Scenario:   mc.scenario,
				Direction:  direction,
				Amount:     *v,
			})
		}
	}
	return rows, nil
}
