package model

// Granularity 时间序列粒度
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// Grouping 计划-实际表分组维度
type Grouping string

const (
	GroupWBS        Grouping = "wbs"
	GroupDiscipline Grouping = "discipline"
	GroupBlock      Grouping = "block"
	GroupFloor      Grouping = "floor"
	GroupUGPR       Grouping = "ugpr"
)

// TableScenario 计划-实际表口径
type TableScenario string

const (
	TablePlan     TableScenario = "plan"
	TableForecast TableScenario = "forecast"
	TableActual   TableScenario = "actual"
)
