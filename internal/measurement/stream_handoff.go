package measurement

import (
	"context"
	"sync"
	"time"

	redisclient "wisefido-iop/internal/common/redis"
	"wisefido-iop/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	// DefaultStream 测量记录流
	DefaultStream = "iop:measurement:stream"

	defaultStreamMaxLen  = 10000
	streamPublishTimeout = 3 * time.Second
)

// StreamHandoff 将测量记录异步写入 Redis Stream，供其他服务消费
type StreamHandoff struct {
	client *redis.Client
	stream string
	maxLen int64
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewStreamHandoff 创建 Stream 交接；stream 为空时使用默认流
func NewStreamHandoff(client *redis.Client, stream string, logger *zap.Logger) *StreamHandoff {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamHandoff{
		client: client,
		stream: stream,
		maxLen: defaultStreamMaxLen,
		logger: logger,
	}
}

// Deliver 立即返回，写入在后台完成
func (s *StreamHandoff) Deliver(_ context.Context, rec *models.MeasurementRecord) error {
	payload := NewPayload(rec)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), streamPublishTimeout)
		defer cancel()

		id, err := redisclient.PublishJSONToStream(ctx, s.client, s.stream, s.maxLen, payload)
		if err != nil {
			s.logger.Warn("Failed to publish measurement to stream",
				zap.String("stream", s.stream),
				zap.String("record_id", rec.RecordID),
				zap.Error(err),
			)
			return
		}
		s.logger.Debug("Measurement published to stream",
			zap.String("stream", s.stream),
			zap.String("record_id", rec.RecordID),
			zap.String("message_id", id),
		)
	}()
	return nil
}

// Wait 等待后台写入完成
func (s *StreamHandoff) Wait() {
	s.wg.Wait()
}
