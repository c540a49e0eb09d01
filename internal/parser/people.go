package parser

import (
	"strings"

	"excel2web/internal/model"
)

var peopleBaseColumns = []string{"наименование", "категория", "ед. изм", "план/факт"}

var manpowerCategories = map[string]bool{
	"manpower": true,
	"люди":     true,
	"рабочие":  true,
	"персонал": true,
}

// IsManpower 是否为人工类资源（用于人工时换算）
func IsManpower(category string) bool {
	c := strings.ToLower(strings.TrimSpace(category))
	return manpowerCategories[c] || strings.HasPrefix(c, "люд") || strings.HasPrefix(c, "персон")
}

// ResourceScenario 计划/实际标记：含“факт”为 fact，含“план”为 plan，默认 fact
func ResourceScenario(raw string) string {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "факт"):
		return model.ScenarioFact
	case strings.Contains(s, "план"):
		return model.ScenarioPlan
	default:
		return model.ScenarioFact
	}
}

// ParsePeople 解析 “Люди техника”（人员/机械按日数量）
func ParsePeople(wb *Workbook, opts Options) ([]model.ResourceRow, []model.ValidationError) {
	sheet, err := wb.Sheet(SheetPeople)
	if err != nil || sheet.NumRows() == 0 {
		return nil, []model.ValidationError{sheetError(SheetPeople, "Не найден лист 'Люди техника'")}
	}

	header := NewHeader(sheet.Rows[0], ToDate)
	base := make([]int, len(peopleBaseColumns))
	for i, name := range peopleBaseColumns {
		base[i] = header.Col(name)
		if base[i] < 0 {
			return nil, []model.ValidationError{sheetError(SheetPeople, "Не найдена колонка '"+name+"'")}
		}
	}
	dateCols := header.DateCols()
	if len(dateCols) == 0 {
		return nil, []model.ValidationError{sheetError(SheetPeople, "Не найдены датные колонки")}
	}

	var rows []model.ResourceRow
	for r := 1; r < sheet.NumRows(); r++ {
		name := sheet.Text(r, base[0])
		if name == "" {
			continue
		}
		category := sheet.Text(r, base[1])
		unit := sheet.Text(r, base[2])
		scenario := ResourceScenario(sheet.Text(r, base[3]))

		for _, c := range dateCols {
			qty := ToFloat(sheet.Cell(r, c), 0)
			if qty == 0 {
				continue
			}
			row := model.ResourceRow{
				Name:     name,
				Category: category,
				Unit:     unit,
				Scenario: scenario,
				Date:     header.Date(c),
				Qty:      qty,
			}
			if scenario == model.ScenarioFact && IsManpower(category) {
				mh := qty * opts.ShiftHours
				row.Manhours = &mh
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}
