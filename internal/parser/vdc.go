package parser

import (
	"fmt"

	"excel2web/internal/model"
)

const vdcItemColumn = "Наименование работ и материалов"

// 合并单元格导致的空白，这些列需要向下填充
var vdcFillColumns = []string{
	"Идентификатор операции",
	"Категория",
	"Блок",
	"WBS",
	"Конструктив",
	"Дисциплина",
	"Этаж",
	"УГПР",
	"Название операции",
	vdcItemColumn,
	"Ед. изм",
}

type vdcColumns struct {
	opCode, category, block, wbs, discipline, floor, ugpr, opName int
	item, unit, planQty, planPrice, factPrice                     int
}

// ParseVDC 解析 ВДЦ（实物工程量台账）：基准快照 + 按日实际量
func ParseVDC(wb *Workbook) (VolumeResult, []model.ValidationError) {
	var out VolumeResult

	sheet, err := wb.Sheet(SheetVDC)
	if err != nil {
		return out, []model.ValidationError{sheetError(SheetVDC, "Не найден лист 'ВДЦ'")}
	}
	if sheet.NumRows() == 0 {
		return out, []model.ValidationError{sheetError(SheetVDC, "Лист 'ВДЦ' пуст")}
	}

	header := NewHeader(sheet.Rows[0], ToDate)

	item := header.Col(vdcItemColumn)
	if item < 0 {
		item = header.ColContaining("наименование")
	}
	if item < 0 {
		return out, []model.ValidationError{sheetError(SheetVDC, "Не найдена колонка 'Наименование работ и материалов'")}
	}

	cols := vdcColumns{
		opCode:     header.Col("Идентификатор операции"),
		category:   header.Col("Категория"),
		block:      header.Col("Блок"),
		wbs:        header.Col("WBS"),
		discipline: header.Col("Дисциплина"),
		floor:      header.Col("Этаж"),
		ugpr:       header.Col("УГПР"),
		opName:     header.Col("Название операции"),
		item:       item,
		unit:       header.Col("Ед. изм"),
		planQty:    header.Col("Количество Защита"),
		planPrice:  header.Col("Цена Защита"),
		factPrice:  header.Col("Цена Фактическая"),
	}

	var errs []model.ValidationError
	required := []struct {
		name string
		col  int
	}{
		{"Идентификатор операции", cols.opCode},
		{"Категория", cols.category},
	}
	for _, rc := range required {
		if rc.col < 0 {
			errs = append(errs, sheetError(SheetVDC, "Не найдена колонка "+rc.name))
		}
	}
	if len(errs) > 0 {
		return out, errs
	}

	fill := make(map[int]bool)
	for _, name := range vdcFillColumns {
		if c := header.Col(name); c >= 0 {
			fill[c] = true
		}
	}
	fill[item] = true

	last := make(map[int]string)
	value := func(r, c int) string {
		if c < 0 {
			return ""
		}
		v := sheet.Text(r, c)
		if !fill[c] {
			return v
		}
		if v == "" {
			return last[c]
		}
		last[c] = v
		return v
	}

	dateCols := header.DateCols()
	badKeys := 0

	for r := 1; r < sheet.NumRows(); r++ {
		code := value(r, cols.opCode)
		category := value(r, cols.category)
		itemName := value(r, cols.item)
		opName := value(r, cols.opName)
		unit := value(r, cols.unit)
		dims := [...]string{
			value(r, cols.wbs),
			value(r, cols.discipline),
			value(r, cols.block),
			value(r, cols.floor),
			value(r, cols.ugpr),
		}

		if code != "" && category != "" && itemName != "" {
			b := model.BaselineRow{
				OperationCode: code,
				OperationName: opName,
				Category:      category,
				ItemName:      itemName,
				Unit:          unit,
				WBS:           dims[0],
				Discipline:    dims[1],
				Block:         dims[2],
				Floor:         dims[3],
				UGPR:          dims[4],
			}
			if cols.planQty >= 0 {
				b.PlanQtyTotal = ToFloatNullable(sheet.Cell(r, cols.planQty))
			}
			if cols.planPrice >= 0 {
				b.UnitPrice = ToFloatNullable(sheet.Cell(r, cols.planPrice))
			}
			if b.PlanQtyTotal != nil || b.UnitPrice != nil {
				amount := deref(b.PlanQtyTotal) * deref(b.UnitPrice)
				b.AmountTotal = &amount
			}
			out.Baseline = append(out.Baseline, b)
		}

		var factPrice *float64
		if cols.factPrice >= 0 {
			factPrice = ToFloatNullable(sheet.Cell(r, cols.factPrice))
		}

		factItem := itemName
		if factItem == "" {
			factItem = opName
		}
		if factItem == "" {
			factItem = code
		}

		for _, c := range dateCols {
			qty := ToFloat(sheet.Cell(r, c), 0)
			if qty == 0 {
				continue
			}
			if code == "" || category == "" || factItem == "" {
				badKeys++
				continue
			}
			f := model.FactVolumeRow{
				OperationCode: code,
				OperationName: opName,
				Category:      category,
				ItemName:      factItem,
				Unit:          unit,
				WBS:           dims[0],
				Discipline:    dims[1],
				Block:         dims[2],
				Floor:         dims[3],
				UGPR:          dims[4],
				Date:          header.Date(c),
				Qty:           qty,
			}
			if factPrice != nil {
				amount := qty * *factPrice
				f.Amount = &amount
			}
			out.Facts = append(out.Facts, f)
		}
	}

	if len(dateCols) == 0 {
		errs = append(errs, sheetError(SheetVDC, "Не найдены датные колонки для факта (возможно, они пустые)."))
	}
	if badKeys > 0 {
		errs = append(errs, sheetError(SheetVDC,
			fmt.Sprintf("В ВДЦ найдено %d строк с пустыми ключами (операция/категория/наименование)", badKeys)))
	}
	return out, errs
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
