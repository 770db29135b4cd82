package models

// DeviceStatusEvent 设备连接状态变更事件名
const DeviceStatusEvent = "deviceStatusChange"

// ConnectivityState 设备连接状态快照
type ConnectivityState struct {
	Connected bool `json:"connected"`
	Busy      bool `json:"busy"`
}

// SessionSnapshot 单眼采集会话快照（供界面轮询/推送）
type SessionSnapshot struct {
	Side     EyeSide       `json:"side"`
	Status   CaptureStatus `json:"status"`
	Reading  *Reading      `json:"reading"`
	Settling bool          `json:"settling"` // 读数刚出现时的过渡窗口
	Error    string        `json:"error,omitempty"`
}
