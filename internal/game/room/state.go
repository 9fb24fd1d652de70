package room

// State 房间状态
type State string

const (
	StateIntermission State = "intermission" // 间歇期，排队等待下一局
	StateActive       State = "active"       // 有进行中的对局
	StateInactive     State = "inactive"     // 已停用
)
