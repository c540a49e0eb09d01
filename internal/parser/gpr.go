package parser

import (
	"fmt"

	"excel2web/internal/model"
)

// ParseGPR 解析 ГПР（进度计划）：每行一个作业
func ParseGPR(wb *Workbook) ([]model.ScheduleRow, []model.ValidationError) {
	sheet, err := wb.Sheet(SheetGPR)
	if err != nil || sheet.NumRows() == 0 {
		return nil, []model.ValidationError{sheetError(SheetGPR, "Не найден лист/колонка 'Идентификатор операции' в ГПР")}
	}

	header := NewHeader(sheet.Rows[0], noDates)
	opCol := header.Col("Идентификатор операции")
	if opCol < 0 {
		return nil, []model.ValidationError{sheetError(SheetGPR, "Не найден лист/колонка 'Идентификатор операции' в ГПР")}
	}

	col := func(name string) int { return header.Col(name) }
	var (
		nameCol       = col("Название операции")
		wbsCol        = col("Название ИСР")
		blockCol      = col("Блок")
		disciplineCol = col("Дисциплина")
		floorCol      = col("Этаж")
		ugprCol       = col("УГПР")
		startCol      = col("Начало")
		finishCol     = col("Окончание")
		unitCol       = col("Ед. изм")
		qtyCol        = col("Плановое количество нетрудовых ресурсов")
		priceCol      = col("Цена")
		costCol       = col("Стоимость")
	)
	text := func(r, c int) string {
		if c < 0 {
			return ""
		}
		return sheet.Text(r, c)
	}
	num := func(r, c int) *float64 {
		if c < 0 {
			return nil
		}
		return ToFloatNullable(sheet.Cell(r, c))
	}

	var rows []model.ScheduleRow
	missingDates := 0
	for r := 1; r < sheet.NumRows(); r++ {
		code := text(r, opCol)
		if code == "" {
			continue
		}
		qty := ToFloat(text(r, qtyCol), 0)
		row := model.ScheduleRow{
			Code:         code,
			Name:         text(r, nameCol),
			WBSPath:      text(r, wbsCol),
			Block:        text(r, blockCol),
			Discipline:   text(r, disciplineCol),
			Floor:        text(r, floorCol),
			UGPR:         text(r, ugprCol),
			Unit:         text(r, unitCol),
			PlanStart:    NormalizeDate(text(r, startCol)),
			PlanFinish:   NormalizeDate(text(r, finishCol)),
			PlanQtyTotal: &qty,
			Price:        num(r, priceCol),
			Cost:         num(r, costCol),
		}
		if row.PlanStart == nil || row.PlanFinish == nil {
			missingDates++
		}
		rows = append(rows, row)
	}

	var errs []model.ValidationError
	if missingDates > 0 {
		errs = append(errs, sheetError(SheetGPR, fmt.Sprintf("В ГПР %d строк без дат начала/окончания", missingDates)))
	}
	return rows, errs
}
