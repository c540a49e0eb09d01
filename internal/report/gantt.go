package report

import (
	"context"
	"sort"
	"strings"
	"time"

	"excel2web/internal/model"
)

// Task 参与关键路径计算的作业
type Task struct {
	ID     int64
	Start  time.Time
	Finish time.Time
}

func daysBetween(a, b time.Time) int {
	return int(truncDay(b).Sub(truncDay(a)).Hours() / 24)
}

// CriticalPath 在作业依赖图上求关键路径，返回按时间先后排列的作业 ID。
// 只考虑两端都在 tasks 中的依赖；存在环时返回 nil
func CriticalPath(tasks []Task, deps []model.OperationDependency) []int64 {
	if len(tasks) == 0 {
		return nil
	}

	sorted := make([]Task, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].Start.Before(sorted[j].Start)
		}
		return sorted[i].ID < sorted[j].ID
	})

	byID := make(map[int64]Task, len(sorted))
	origin := sorted[0].Start
	for _, t := range sorted {
		byID[t.ID] = t
	}

	succ := make(map[int64][]int64)
	pred := make(map[int64][]int64)
	indegree := make(map[int64]int, len(sorted))
	for _, d := range deps {
		if _, ok := byID[d.PredecessorID]; !ok {
			continue
		}
		if _, ok := byID[d.SuccessorID]; !ok {
			continue
		}
		succ[d.PredecessorID] = append(succ[d.PredecessorID], d.SuccessorID)
		pred[d.SuccessorID] = append(pred[d.SuccessorID], d.PredecessorID)
		indegree[d.SuccessorID]++
	}

	// Kahn
	var queue, order []int64
	for _, t := range sorted {
		if indegree[t.ID] == 0 {
			queue = append(queue, t.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, s := range succ[id] {
			indegree[s]--
			if indegree[s] == 0 {
				queue = append(queue, s)
			}
		}
	}
	if len(order) != len(sorted) {
		return nil
	}

	finish := make(map[int64]int, len(order))
	best := make(map[int64]int64, len(order))
	for _, id := range order {
		t := byID[id]
		start := daysBetween(origin, t.Start)
		for _, p := range pred[id] {
			if finish[p] > start {
				start = finish[p]
			}
			if b, ok := best[id]; !ok || finish[p] > finish[b] {
				best[id] = p
			}
		}
		finish[id] = start + daysBetween(t.Start, t.Finish) + 1
	}

	last := order[0]
	for _, id := range order[1:] {
		if finish[id] > finish[last] {
			last = id
		}
	}

	var path []int64
	for id, ok := last, true; ok; id, ok = best[id] {
		path = append(path, id)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// GanttOperation 甘特图上的一项作业
type GanttOperation struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Start    string `json:"start"`
	Finish   string `json:"finish"`
	Critical bool   `json:"critical"`
}

// Gantt 甘特图数据
type Gantt struct {
	Operations   []GanttOperation `json:"operations"`
	CriticalPath []int64          `json:"critical_path"`
}

// Gantt 关键路径基于全部有计划日期的作业（按 WBS 前缀过滤），
// 展示与 [from, to] 相交的作业
func (e *Engine) Gantt(ctx context.Context, q Query) (*Gantt, error) {
	f, err := e.filter(ctx, q, q)
	if err != nil {
		return nil, err
	}

	ops, err := e.store.DatedOperations(ctx, q.ProjectID)
	if err != nil {
		return nil, err
	}
	deps, err := e.store.ListDependencies(ctx, q.ProjectID)
	if err != nil {
		return nil, err
	}

	prefix := strings.TrimSpace(f.WBS)
	var tasks []Task
	var shown []model.Operation
	for _, op := range ops {
		if prefix != "" && (op.WBSPath == nil || !strings.HasPrefix(*op.WBSPath, prefix)) {
			continue
		}
		start, finish := truncDay(*op.PlanStart), truncDay(*op.PlanFinish)
		tasks = append(tasks, Task{ID: op.ID, Start: start, Finish: finish})
		if !start.After(f.To) && !finish.Before(f.From) {
			shown = append(shown, op)
		}
	}

	path := CriticalPath(tasks, deps)
	critical := make(map[int64]bool, len(path))
	for _, id := range path {
		critical[id] = true
	}

	out := &Gantt{Operations: make([]GanttOperation, 0, len(shown)), CriticalPath: path}
	if out.CriticalPath == nil {
		out.CriticalPath = []int64{}
	}
	for _, op := range shown {
		out.Operations = append(out.Operations, GanttOperation{
			ID:       op.ID,
			Code:     op.Code,
			Name:     op.Name,
			Start:    op.PlanStart.Format(dayLayout),
			Finish:   op.PlanFinish.Format(dayLayout),
			Critical: critical[op.ID],
		})
	}
	return out, nil
}
