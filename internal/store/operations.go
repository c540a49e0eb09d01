package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"excel2web/internal/model"
)

const operationSelect = `
	SELECT o.id, o.project_id, o.code, o.name, o.wbs_id, w.path AS wbs_path,
		o.discipline, o.block, o.floor, o.ugpr, o.unit, o.plan_qty_total, o.plan_start, o.plan_finish
	FROM operation o
	LEFT JOIN wbs w ON w.id = o.wbs_id
`

// OperationFilter 作业列表过滤条件
type OperationFilter struct {
	From *time.Time
	To   *time.Time
	// IncludeUndated 按日期过滤时是否保留没有计划日期的作业
	IncludeUndated bool
	// Q 按编码/名称模糊匹配
	Q      string
	Limit  int
	Offset int
}

// ListOperations 项目作业列表（有日期的按开始日期排序，无日期的在后）
func (s *Store) ListOperations(ctx context.Context, projectID int64, f OperationFilter) ([]model.Operation, error) {
	var (
		where = []string{"o.project_id = ?"}
		args  = []any{projectID}
	)
	if q := strings.TrimSpace(f.Q); q != "" {
		where = append(where, `(o.code LIKE ? ESCAPE '\' OR o.name LIKE ? ESCAPE '\')`)
		like := "%" + escapeLike(q) + "%"
		args = append(args, like, like)
	}
	if f.From != nil && f.To != nil {
		overlap := "(o.plan_start <= ? AND o.plan_finish >= ?)"
		if f.IncludeUndated {
			overlap = "(" + overlap + " OR o.plan_start IS NULL OR o.plan_finish IS NULL)"
		}
		where = append(where, overlap)
		args = append(args, dateArg(*f.To), dateArg(*f.From))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	q := operationSelect + " WHERE " + strings.Join(where, " AND ") +
		" ORDER BY o.plan_start IS NULL, o.plan_start, o.code LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	out := []model.Operation{}
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	return out, nil
}

// GetOperation 按 id 查询作业
func (s *Store) GetOperation(ctx context.Context, id int64) (*model.Operation, error) {
	var op model.Operation
	if err := s.db.GetContext(ctx, &op, operationSelect+" WHERE o.id = ?", id); err != nil {
		return nil, notFound(err)
	}
	return &op, nil
}

// OperationInput 手工创建作业
type OperationInput struct {
	Code         string     `json:"code" binding:"required"`
	Name         string     `json:"name" binding:"required"`
	WBSPath      string     `json:"wbs_path"`
	Discipline   string     `json:"discipline"`
	Block        string     `json:"block"`
	Floor        string     `json:"floor"`
	UGPR         string     `json:"ugpr"`
	Unit         string     `json:"unit"`
	PlanQtyTotal *float64   `json:"plan_qty_total"`
	PlanStart    *time.Time `json:"plan_start"`
	PlanFinish   *time.Time `json:"plan_finish"`
}

// CreateOperation 创建作业；编码重复返回 ErrConflict
func (s *Store) CreateOperation(ctx context.Context, projectID int64, in OperationInput) (*model.Operation, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, fmt.Errorf("operation code required")
	}

	var wbsID any
	if p := strings.TrimSpace(in.WBSPath); p != "" {
		ids, err := s.UpsertWBS(ctx, projectID, []string{p})
		if err != nil {
			return nil, err
		}
		wbsID = ids[p]
	}

	var id int64
	err := s.db.GetContext(ctx, &id, `
		INSERT INTO operation (
			project_id, wbs_id, code, name, discipline, block, floor, ugpr,
			unit, plan_qty_total, plan_start, plan_finish
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		projectID, wbsID, code, strings.TrimSpace(in.Name),
		nullableString(in.Discipline), nullableString(in.Block), nullableString(in.Floor), nullableString(in.UGPR),
		nullableString(in.Unit), in.PlanQtyTotal, nullableDate(in.PlanStart), nullableDate(in.PlanFinish),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("operation %q already exists: %w", code, ErrConflict)
		}
		return nil, fmt.Errorf("failed to create operation: %w", err)
	}
	return s.GetOperation(ctx, id)
}

// DatedOperations 同时具有计划开始与结束日期的作业（甘特图输入）
func (s *Store) DatedOperations(ctx context.Context, projectID int64) ([]model.Operation, error) {
	out := []model.Operation{}
	if err := s.db.SelectContext(ctx, &out, operationSelect+`
		WHERE o.project_id = ? AND o.plan_start IS NOT NULL AND o.plan_finish IS NOT NULL
		ORDER BY o.plan_start, o.code
	`, projectID); err != nil {
		return nil, fmt.Errorf("failed to list dated operations: %w", err)
	}
	return out, nil
}

// ListDependencies 项目的作业依赖
func (s *Store) ListDependencies(ctx context.Context, projectID int64) ([]model.OperationDependency, error) {
	out := []model.OperationDependency{}
	if err := s.db.SelectContext(ctx, &out, `
		SELECT id, project_id, predecessor_id, successor_id
		FROM operation_dependency WHERE project_id = ? ORDER BY id
	`, projectID); err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	return out, nil
}

// CreateDependency 创建依赖；两端作业必须属于同一项目，重复返回 ErrConflict
func (s *Store) CreateDependency(ctx context.Context, projectID, predecessorID, successorID int64) (*model.OperationDependency, error) {
	if predecessorID == successorID {
		return nil, fmt.Errorf("operation cannot depend on itself: %w", ErrConflict)
	}
	var n int
	if err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(1) FROM operation WHERE project_id = ? AND id IN (?, ?)`,
		projectID, predecessorID, successorID); err != nil {
		return nil, fmt.Errorf("failed to check operations: %w", err)
	}
	if n != 2 {
		return nil, fmt.Errorf("operation not in project %d: %w", projectID, ErrNotFound)
	}

	var dep model.OperationDependency
	err := s.db.GetContext(ctx, &dep, `
		INSERT INTO operation_dependency (project_id, predecessor_id, successor_id)
		VALUES (?, ?, ?)
		RETURNING id, project_id, predecessor_id, successor_id
	`, projectID, predecessorID, successorID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("dependency already exists: %w", ErrConflict)
		}
		return nil, fmt.Errorf("failed to create dependency: %w", err)
	}
	return &dep, nil
}

// DeleteDependency 删除依赖
func (s *Store) DeleteDependency(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM operation_dependency WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dependency: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
