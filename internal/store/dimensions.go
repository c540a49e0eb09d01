package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
)

// 维度表（WBS、作业、资源、财务科目）不分版本，始终代表当前状态

// UpsertWBS 按路径写入 WBS，返回 path -> id
func (s *Store) UpsertWBS(ctx context.Context, projectID int64, paths []string) (map[string]int64, error) {
	uniq := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p != "" {
			uniq[p] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(uniq))
	for p := range uniq {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	out := make(map[string]int64, len(sorted))
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, p := range sorted {
			var id int64
			err := tx.GetContext(ctx, &id, `
				INSERT INTO wbs (project_id, path) VALUES (?, ?)
				ON CONFLICT(project_id, path) DO UPDATE SET path = excluded.path
				RETURNING id
			`, projectID, p)
			if err != nil {
				return fmt.Errorf("failed to upsert wbs %q: %w", p, err)
			}
			out[p] = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OperationUpsert 导入时的作业写入参数
type OperationUpsert struct {
	Code         string
	Name         string
	WBSPath      string
	Discipline   string
	Block        string
	Floor        string
	UGPR         string
	Unit         string
	PlanQtyTotal float64
	PlanStart    *time.Time
	PlanFinish   *time.Time
}

// UpsertOperations 按 (project_id, code) 写入作业，返回 code -> id
func (s *Store) UpsertOperations(ctx context.Context, projectID int64, ops []OperationUpsert) (map[string]int64, error) {
	paths := make([]string, 0, len(ops))
	for _, op := range ops {
		paths = append(paths, op.WBSPath)
	}
	wbsIDs, err := s.UpsertWBS(ctx, projectID, paths)
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(ops))
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, op := range ops {
			var wbsID any
			if id, ok := wbsIDs[op.WBSPath]; ok {
				wbsID = id
			}
			var id int64
			err := tx.GetContext(ctx, &id, `
				INSERT INTO operation (
					project_id, wbs_id, code, name, discipline, block, floor, ugpr,
					unit, plan_qty_total, plan_start, plan_finish
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(project_id, code) DO UPDATE SET
					wbs_id = excluded.wbs_id,
					name = excluded.name,
					discipline = COALESCE(excluded.discipline, operation.discipline),
					block = excluded.block,
					floor = COALESCE(excluded.floor, operation.floor),
					ugpr = excluded.ugpr,
					unit = excluded.unit,
					plan_qty_total = excluded.plan_qty_total,
					plan_start = excluded.plan_start,
					plan_finish = excluded.plan_finish
				RETURNING id
			`,
				projectID, wbsID, op.Code, op.Name,
				nullableString(op.Discipline), nullableString(op.Block), nullableString(op.Floor), nullableString(op.UGPR),
				nullableString(op.Unit), op.PlanQtyTotal, nullableDate(op.PlanStart), nullableDate(op.PlanFinish),
			)
			if err != nil {
				return fmt.Errorf("failed to upsert operation %q: %w", op.Code, err)
			}
			out[op.Code] = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OperationDims 从 ВДЦ 基准补充的作业维度
type OperationDims struct {
	Discipline string
	Floor      string
}

// EnrichOperationDims 只填补作业中为空的专业/楼层
func (s *Store) EnrichOperationDims(ctx context.Context, projectID int64, dims map[string]OperationDims) error {
	if len(dims) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for code, d := range dims {
			_, err := tx.ExecContext(ctx, `
				UPDATE operation SET
					discipline = COALESCE(discipline, ?),
					floor = COALESCE(floor, ?)
				WHERE project_id = ? AND code = ?
			`, nullableString(d.Discipline), nullableString(d.Floor), projectID, code)
			if err != nil {
				return fmt.Errorf("failed to enrich operation %q: %w", code, err)
			}
		}
		return nil
	})
}

// ResourceUpsert 资源写入参数
type ResourceUpsert struct {
	Name     string
	Category string
	Unit     string
}

// UpsertResources 按 (project_id, name, category) 写入资源
func (s *Store) UpsertResources(ctx context.Context, projectID int64, res []ResourceUpsert) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, r := range res {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO resource (project_id, name, category, unit) VALUES (?, ?, ?, ?)
				ON CONFLICT(project_id, name, category) DO UPDATE SET unit = excluded.unit
			`, projectID, r.Name, r.Category, r.Unit)
			if err != nil {
				return fmt.Errorf("failed to upsert resource %q: %w", r.Name, err)
			}
		}
		return nil
	})
}

// FinAccountUpsert 财务科目写入参数
type FinAccountUpsert struct {
	Name       string
	ParentName string
}

// UpsertFinAccounts 按 (project_id, kind, name) 写入科目；已有父级不被空值覆盖
func (s *Store) UpsertFinAccounts(ctx context.Context, projectID int64, kind string, accounts []FinAccountUpsert) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, a := range accounts {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO fin_account (project_id, kind, name, parent_name) VALUES (?, ?, ?, ?)
				ON CONFLICT(project_id, kind, name) DO UPDATE SET
					parent_name = COALESCE(excluded.parent_name, fin_account.parent_name)
			`, projectID, kind, a.Name, nullableString(a.ParentName))
			if err != nil {
				return fmt.Errorf("failed to upsert fin account %q: %w", a.Name, err)
			}
		}
		return nil
	})
}
