package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"excel2web/internal/model"
)

var monthAbbr = map[string]time.Month{
	"янв":  time.January,
	"фев":  time.February,
	"мар":  time.March,
	"апр":  time.April,
	"май":  time.May,
	"июн":  time.June,
	"июл":  time.July,
	"авг":  time.August,
	"сен":  time.September,
	"сент": time.September,
	"окт":  time.October,
	"ноя":  time.November,
	"дек":  time.December,
}

var monthAbbrRe = regexp.MustCompile(`(янв|фев|мар|апр|май|июн|июл|авг|сен|сент|окт|ноя|дек)[а-я]*\.?\s*(\d{2,4})`)

var salesHeaderKeywords = []string{"наименование", "название", "позиция", "объект", "продукт", "площад"}

// ParseMonthCell 识别月份单元格：日期/序列号，或 “янв.25” 这类缩写
func ParseMonthCell(raw string) (time.Time, bool) {
	if d, ok := ToDate(raw); ok {
		return MonthStart(d), true
	}
	s := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), ",", ".")
	m := monthAbbrRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	month, ok := monthAbbr[m[1]]
	if !ok {
		return time.Time{}, false
	}
	y, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, false
	}
	if y < 100 {
		y += 2000
	}
	return time.Date(y, month, 1, 0, 0, 0, 0, time.UTC), true
}

func salesScenario(text string) string {
	switch {
	case strings.Contains(text, "факт"), strings.Contains(text, "продано"):
		return model.ScenarioFact
	case strings.Contains(text, "план"):
		return model.ScenarioPlan
	case strings.Contains(text, "прогноз"):
		return model.ScenarioForecast
	}
	return ""
}

func hasSalesKeyword(text string) bool {
	s := strings.ToLower(text)
	for _, kw := range salesHeaderKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// ParseSales 解析 “план продаж”（销售面积计划/实际）
func ParseSales(wb *Workbook) ([]model.SalesRow, []model.ValidationError) {
	sheet, err := wb.Sheet(SheetSales)
	if err != nil {
		return nil, []model.ValidationError{sheetError(SheetSales, "Не найден лист 'план продаж'")}
	}
	noMonths := []model.ValidationError{sheetError(sheet.Name, "Не найдены месячные колонки в листе 'план продаж'")}

	width := sheet.LastUsedCol(30, 400)

	monthRow := -1
scan:
	for r := 0; r < 30 && r < sheet.NumRows(); r++ {
		for c := 0; c < width; c++ {
			raw := sheet.Cell(r, c)
			if _, ok := MonthFromName(raw); ok {
				monthRow = r
				break scan
			}
			if _, ok := ParseMonthCell(raw); ok {
				monthRow = r
				break scan
			}
		}
	}
	if monthRow < 0 {
		return nil, noMonths
	}

	headerRow := -1
	for r := 0; r <= monthRow && headerRow < 0; r++ {
		for c := 0; c < width; c++ {
			if hasSalesKeyword(sheet.Cell(r, c)) {
				headerRow = r
				break
			}
		}
	}
	if headerRow < 0 {
		headerRow = max(0, monthRow-1)
	}

	years := collectYears(sheet, headerRow, monthRow, width)
	scenarios := collectScenarios(sheet, headerRow, monthRow, width, salesScenario)

	var cols []monthCol
	for c := 0; c < width; c++ {
		raw := sheet.Cell(monthRow, c)
		var month time.Time
		if m, ok := MonthFromName(raw); ok {
			y, ok := years[c]
			if !ok {
				if y, ok = parseYear(raw); !ok {
					continue
				}
			}
			month = time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
		} else if parsed, ok := ParseMonthCell(raw); ok {
			month = parsed
		} else {
			continue
		}
		scenario := scenarios[c]
		if scenario == "" {
			scenario = model.ScenarioPlan
		}
		if scenario == model.ScenarioForecast {
			continue
		}
		cols = append(cols, monthCol{col: c, month: month, scenario: scenario})
	}
	if len(cols) == 0 {
		return nil, noMonths
	}

	nameCol := 0
	for c := 0; c < width; c++ {
		if hasSalesKeyword(sheet.Cell(headerRow, c)) {
			nameCol = c
			break
		}
	}

	var rows []model.SalesRow
	for r := monthRow + 1; r < sheet.NumRows(); r++ {
		name := sheet.Text(r, nameCol)
		if name == "" {
			continue
		}
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "итого") || strings.HasPrefix(lower, "всего") || strings.HasPrefix(lower, "сумма") {
			continue
		}

		// 只取面积（м2）行
		unit := strings.ToLower(sheet.Text(r, nameCol+1))
		if unit != "" && !strings.Contains(unit, "м2") && !strings.Contains(unit, "м²") {
			continue
		}

		var scenario string
		switch {
		case strings.Contains(lower, "факт"), strings.Contains(lower, "реаль"):
			scenario = model.ScenarioFact
		case strings.Contains(lower, "план"):
			scenario = model.ScenarioPlan
		default:
			continue
		}

		for _, mc := range cols {
			v := ToFloatNullable(sheet.Cell(r, mc.col))
			if v == nil || *v == 0 {
				continue
			}
			rows = append(rows, model.SalesRow{
				ItemName: name,
				Month:    mc.month,
				Scenario: scenario,
				AreaM2:   *v,
			})
		}
	}
	return rows, nil
}
