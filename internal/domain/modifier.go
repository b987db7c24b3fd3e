package domain

// TableKey 修饰表的键（封闭集合）
type TableKey string

// 修饰表封闭集合：配置文档 tables 中只允许出现这些键
const (
	TableGrip         TableKey = "grip"          // 握法
	TableGripWidth    TableKey = "grip_width"    // 握距
	TableTorsoAngle   TableKey = "torso_angle"   // 躯干角度
	TableStance       TableKey = "stance"        // 站距
	TableFootPosition TableKey = "foot_position" // 脚位
	TableEquipment    TableKey = "equipment"     // 器械
	TableTempo        TableKey = "tempo"         // 节奏
)

// ModifierTableKeys 全部修饰表键（固定顺序，用于稳定遍历）
var ModifierTableKeys = []TableKey{
	TableGrip,
	TableGripWidth,
	TableTorsoAngle,
	TableStance,
	TableFootPosition,
	TableEquipment,
	TableTempo,
}

// IsModifierTableKey 判断 key 是否属于修饰表封闭集合
func IsModifierTableKey(key string) bool {
	for _, k := range ModifierTableKeys {
		if string(k) == key {
			return true
		}
	}
	return false
}

// NoopRowID 各修饰表约定的"未指定"行ID
// 只要某表的行全集中存在该行，编辑器就必须能选到它。
const NoopRowID = "unspecified"

// ModifierRow 修饰行领域模型（对应 modifier_rows 表）
// muscle_deltas 由外部评分内容作者维护：movement_id -> 肌肉 -> 数值增量。
// 本服务只读取它的键集合（用于 delta 同步扫描），不计算任何分数。
type ModifierRow struct {
	// 联合主键
	TableKey TableKey `json:"table_key" db:"table_key"` // VARCHAR(32), NOT NULL
	RowID    string   `json:"row_id" db:"row_id"`       // VARCHAR(64), NOT NULL

	// 显示信息
	RowName string `json:"row_name" db:"row_name"` // VARCHAR(255), NOT NULL

	// 是否启用
	IsActive bool `json:"is_active" db:"is_active"` // BOOLEAN, NOT NULL, DEFAULT true

	// 肌肉增量映射（JSONB）：movement_id -> muscle -> delta
	MuscleDeltas map[string]map[string]float64 `json:"muscle_deltas" db:"muscle_deltas"` // JSONB, NOT NULL, DEFAULT '{}'
}

// HasDeltaFor 判断该行的增量映射中是否含有指定动作
func (r *ModifierRow) HasDeltaFor(movementID string) bool {
	_, ok := r.MuscleDeltas[movementID]
	return ok
}
