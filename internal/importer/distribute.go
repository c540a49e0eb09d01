package importer

import (
	"time"
)

// MonthQty 一个月份桶
type MonthQty struct {
	Month time.Time
	Qty   float64
}

// DistributeQtyToMonths 把作业总量平均分摊到 [start, finish] 的每一天，再按自然月汇总。
// finish 早于 start 时两者互换
func DistributeQtyToMonths(start, finish time.Time, qty float64) []MonthQty {
	start = truncateDay(start)
	finish = truncateDay(finish)
	if finish.Before(start) {
		start, finish = finish, start
	}

	days := int(finish.Sub(start).Hours()/24) + 1
	perDay := qty / float64(days)

	var out []MonthQty
	for d := start; !d.After(finish); {
		month := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		next := month.AddDate(0, 1, 0)
		last := next.AddDate(0, 0, -1)
		if last.After(finish) {
			last = finish
		}
		n := int(last.Sub(d).Hours()/24) + 1
		out = append(out, MonthQty{Month: month, Qty: perDay * float64(n)})
		d = next
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
