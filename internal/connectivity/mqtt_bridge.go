package connectivity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqttcommon "wisefido-iop/internal/common/mqtt"
	"wisefido-iop/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport MQTT 传输（*mqttcommon.Client 满足该接口）
type Transport interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// StatusMessage 跨进程广播的设备状态消息
type StatusMessage struct {
	Event     string `json:"event"`
	Connected bool   `json:"connected"`
	Origin    string `json:"origin"`
	Timestamp int64  `json:"timestamp"`
}

// MQTTBridge 将本进程的连接状态变更同步到其他进程（反之亦然）
type MQTTBridge struct {
	state     *State
	transport Transport
	topic     string
	qos       byte
	origin    string
	logger    *zap.Logger
}

// NewMQTTBridge 创建桥接
func NewMQTTBridge(state *State, transport Transport, topic string, qos byte, logger *zap.Logger) *MQTTBridge {
	return &MQTTBridge{
		state:     state,
		transport: transport,
		topic:     topic,
		qos:       qos,
		origin:    uuid.NewString(),
		logger:    logger,
	}
}

// Origin 本进程标识
func (b *MQTTBridge) Origin() string {
	return b.origin
}

// Start 订阅远端状态并转发本地变更，阻塞直到 ctx 取消
func (b *MQTTBridge) Start(ctx context.Context) error {
	events, cancel := b.state.Subscribe(16)
	defer cancel()

	if err := b.transport.Subscribe(b.topic, b.qos, b.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe device status topic: %w", err)
	}

	b.logger.Info("Device status MQTT bridge started",
		zap.String("topic", b.topic),
		zap.String("origin", b.origin),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Origin != "" {
				continue // 远端变更，不回传
			}
			if err := b.publish(ev); err != nil {
				b.logger.Error("Failed to publish device status", zap.Error(err))
			}
		}
	}
}

// Stop 取消订阅
func (b *MQTTBridge) Stop() {
	if err := b.transport.Unsubscribe(b.topic); err != nil {
		b.logger.Error("Failed to unsubscribe device status topic", zap.Error(err))
	}
	b.logger.Info("Device status MQTT bridge stopped")
}

func (b *MQTTBridge) publish(ev Event) error {
	payload, err := json.Marshal(StatusMessage{
		Event:     models.DeviceStatusEvent,
		Connected: ev.Connected,
		Origin:    b.origin,
		Timestamp: ev.At.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal status message: %w", err)
	}
	// retained：新上线的进程能立即拿到最近状态
	return b.transport.Publish(b.topic, b.qos, true, payload)
}

func (b *MQTTBridge) handleMessage(topic string, payload []byte) error {
	var msg StatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal status message: %w", err)
	}
	if msg.Origin == b.origin || msg.Event != models.DeviceStatusEvent {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if b.state.SetConnected(ctx, msg.Connected, msg.Origin) {
		b.logger.Info("Applied remote device status",
			zap.String("topic", topic),
			zap.String("origin", msg.Origin),
			zap.Bool("connected", msg.Connected),
			zap.Time("sent_at", time.Unix(msg.Timestamp, 0)),
		)
	}
	return nil
}
