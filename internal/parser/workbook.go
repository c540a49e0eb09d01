package parser

import (
	"time"

	"excel2web/internal/model"
)

// ParseFile 打开工作簿并运行全部六个解析器
func ParseFile(path string, opts Options) (*Result, error) {
	wb, err := OpenWorkbook(path)
	if err != nil {
		return nil, err
	}
	defer wb.Close()
	return Parse(wb, opts), nil
}

// Parse 依次解析六种工作表；任何工作表的问题只记录为校验错误
func Parse(wb *Workbook, opts Options) *Result {
	res := &Result{}

	run := func(sheet string, fn func() (int, []model.ValidationError)) {
		start := time.Now()
		_, present := wb.FindSheet(sheet)
		rows, errs := fn()
		res.Errors = append(res.Errors, errs...)

		status := StatusImported
		switch {
		case !present:
			status = StatusSkipped
		case rows == 0 && len(errs) > 0:
			status = StatusError
		}
		res.Sheets = append(res.Sheets, SheetResult{
			SheetName: sheet,
			Status:    status,
			Rows:      rows,
			Errors:    len(errs),
			Duration:  time.Since(start),
		})
	}

	run(SheetGPR, func() (int, []model.ValidationError) {
		rows, errs := ParseGPR(wb)
		res.Schedule = rows
		return len(rows), errs
	})
	run(SheetVDC, func() (int, []model.ValidationError) {
		vol, errs := ParseVDC(wb)
		res.Volume = vol
		return len(vol.Baseline) + len(vol.Facts), errs
	})
	run(SheetPeople, func() (int, []model.ValidationError) {
		rows, errs := ParsePeople(wb, opts)
		res.Resources = rows
		return len(rows), errs
	})
	run(SheetBDR, func() (int, []model.ValidationError) {
		rows, errs := ParseBDR(wb)
		res.PnL = rows
		return len(rows), errs
	})
	run(SheetBDDS, func() (int, []model.ValidationError) {
		rows, errs := ParseBDDS(wb)
		res.Cashflow = rows
		return len(rows), errs
	})
	run(SheetSales, func() (int, []model.ValidationError) {
		rows, errs := ParseSales(wb)
		res.Sales = rows
		return len(rows), errs
	})

	return res
}
