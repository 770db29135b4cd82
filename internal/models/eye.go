package models

import (
	"fmt"
	"strings"
)

// EyeSide 左/右眼
type EyeSide string

const (
	EyeLeft  EyeSide = "left"
	EyeRight EyeSide = "right"
)

// EyeSides 固定遍历顺序（右眼在前，与报告展示一致）
var EyeSides = []EyeSide{EyeRight, EyeLeft}

// ParseEyeSide 解析路径/请求中的眼别
func ParseEyeSide(s string) (EyeSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "l", "os":
		return EyeLeft, nil
	case "right", "r", "od":
		return EyeRight, nil
	default:
		return "", fmt.Errorf("invalid eye side: %q", s)
	}
}

// CaptureStatus 采集会话状态
type CaptureStatus string

const (
	StatusIdle      CaptureStatus = "IDLE"
	StatusAcquiring CaptureStatus = "ACQUIRING"
	StatusSampling  CaptureStatus = "SAMPLING"
	StatusDone      CaptureStatus = "DONE"
)

// Active 是否为非 IDLE 状态
func (s CaptureStatus) Active() bool {
	return s != "" && s != StatusIdle
}
