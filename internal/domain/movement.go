package domain

// Movement 动作领域模型（对应 movements 表）
// 动作按一级分组：parent_id 指向的动作即为本动作的组；
// 没有 parent 的动作自身就是一个组（自成一组）。
type Movement struct {
	// 主键
	MovementID string `json:"movement_id" db:"movement_id"` // VARCHAR(64), PRIMARY KEY

	// 分组（一级）
	ParentID *string `json:"parent_id,omitempty" db:"parent_id"` // VARCHAR(64), nullable - 所属组动作ID

	// 显示信息
	MovementName string `json:"movement_name" db:"movement_name"` // VARCHAR(255), NOT NULL

	// 是否启用
	IsActive bool `json:"is_active" db:"is_active"` // BOOLEAN, NOT NULL, DEFAULT true
}

// GroupID 返回动作所属组的ID
// 无 parent 的动作自身就是组；parent 指向自己视为无 parent（环保护）。
func (m *Movement) GroupID() string {
	if m.ParentID == nil || *m.ParentID == "" || *m.ParentID == m.MovementID {
		return m.MovementID
	}
	return *m.ParentID
}
