package parser

import (
	"strings"
	"time"
)

// Header 表头行：列名、日期列
type Header struct {
	names []string
	// dates 表头本身是日期的列
	dates map[int]time.Time
	order []int
}

// NewHeader 解析表头行；能解析为日期的列记为日期列
func NewHeader(row []string, parseDate func(string) (time.Time, bool)) *Header {
	h := &Header{
		names: make([]string, len(row)),
		dates: make(map[int]time.Time),
	}
	for i, raw := range row {
		name := CleanHeader(raw)
		h.names[i] = name
		if name == "" {
			continue
		}
		if d, ok := parseDate(name); ok {
			h.dates[i] = d
			h.order = append(h.order, i)
		}
	}
	return h
}

// Name 列名
func (h *Header) Name(col int) string {
	if col < 0 || col >= len(h.names) {
		return ""
	}
	return h.names[col]
}

// Col 按名称查找列：精确 -> 忽略大小写 -> 忽略空白；找不到返回 -1
func (h *Header) Col(name string) int {
	for i, n := range h.names {
		if n == name {
			return i
		}
	}
	key := foldKey(name)
	for i, n := range h.names {
		if _, isDate := h.dates[i]; !isDate && n != "" && foldKey(n) == key {
			return i
		}
	}
	key = compactKey(name)
	for i, n := range h.names {
		if _, isDate := h.dates[i]; !isDate && n != "" && compactKey(n) == key {
			return i
		}
	}
	return -1
}

// ColContaining 第一个包含子串（忽略大小写）的列
func (h *Header) ColContaining(sub string) int {
	key := foldKey(sub)
	for i, n := range h.names {
		if _, isDate := h.dates[i]; isDate {
			continue
		}
		if strings.Contains(foldKey(n), key) {
			return i
		}
	}
	return -1
}

// DateCols 日期列（按列序）
func (h *Header) DateCols() []int {
	return h.order
}

// Date 日期列对应的日期
func (h *Header) Date(col int) time.Time {
	return h.dates[col]
}

func noDates(string) (time.Time, bool) {
	return time.Time{}, false
}
