package parser

import (
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/xuri/excelize/v2"
)

// Workbook 已打开的工作簿
type Workbook struct {
	file  *excelize.File
	names []string
	cache map[string]*Sheet
}

// OpenWorkbook 打开 xlsx 文件
func OpenWorkbook(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	return NewWorkbook(f), nil
}

// NewWorkbook 包装内存中的 excelize 文件
func NewWorkbook(f *excelize.File) *Workbook {
	return &Workbook{
		file:  f,
		names: f.GetSheetList(),
		cache: make(map[string]*Sheet),
	}
}

// Close 关闭底层文件
func (w *Workbook) Close() error {
	return w.file.Close()
}

// SheetNames 工作表列表
func (w *Workbook) SheetNames() []string {
	return w.names
}

// FindSheet 查找工作表：精确匹配 -> 忽略大小写/空白 -> 模糊匹配。
// 模糊匹配是子序列匹配（"ГПР" 也命中 "УГПР"），只在唯一候选时采用
func (w *Workbook) FindSheet(want string) (string, bool) {
	for _, n := range w.names {
		if n == want {
			return n, true
		}
	}
	key := foldKey(want)
	for _, n := range w.names {
		if foldKey(n) == key {
			return n, true
		}
	}

	ranks := fuzzy.RankFindNormalizedFold(want, w.names)
	if len(ranks) != 1 {
		return "", false
	}
	return ranks[0].Target, true
}

// Sheet 读取工作表（原始单元格值），结果缓存
func (w *Workbook) Sheet(want string) (*Sheet, error) {
	name, ok := w.FindSheet(want)
	if !ok {
		return nil, fmt.Errorf("sheet %q not found", want)
	}
	if s, ok := w.cache[name]; ok {
		return s, nil
	}
	rows, err := w.file.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", name, err)
	}
	s := &Sheet{Name: name, Rows: rows}
	w.cache[name] = s
	return s, nil
}

// Sheet 工作表的二维原始值网格，行列均从 0 开始
type Sheet struct {
	Name string
	Rows [][]string
}

// Cell 越界时返回空串
func (s *Sheet) Cell(r, c int) string {
	if r < 0 || r >= len(s.Rows) || c < 0 || c >= len(s.Rows[r]) {
		return ""
	}
	return s.Rows[r][c]
}

// Text 去空白后的单元格文本
func (s *Sheet) Text(r, c int) string {
	return CleanString(s.Cell(r, c))
}

// NumRows 行数
func (s *Sheet) NumRows() int {
	return len(s.Rows)
}

// LastUsedCol 前 maxRows 行中最后一个非空列（不超过 limit），至少为 1
func (s *Sheet) LastUsedCol(maxRows, limit int) int {
	last := 1
	for r := 0; r < maxRows && r < len(s.Rows); r++ {
		for c := len(s.Rows[r]) - 1; c >= 0; c-- {
			if strings.TrimSpace(s.Rows[r][c]) != "" {
				if c+1 > last {
					last = c + 1
				}
				break
			}
		}
	}
	if limit > 0 && last > limit {
		last = limit
	}
	return last
}

// Width 所有行的最大列数
func (s *Sheet) Width() int {
	w := 0
	for _, row := range s.Rows {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}
