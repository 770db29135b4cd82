package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"wisefido-iop/internal/camera"
	"wisefido-iop/internal/capture"
	"wisefido-iop/internal/common/database"
	mqttcommon "wisefido-iop/internal/common/mqtt"
	rediscommon "wisefido-iop/internal/common/redis"
	"wisefido-iop/internal/config"
	"wisefido-iop/internal/connectivity"
	httpapi "wisefido-iop/internal/http"
	"wisefido-iop/internal/measurement"
	"wisefido-iop/internal/report"
	"wisefido-iop/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// IOPService 眼压采集服务
type IOPService struct {
	config     *config.Config
	logger     *zap.Logger
	db         *sql.DB
	redis      *redis.Client
	mqttClient *mqttcommon.Client

	state   *connectivity.State
	bridge  *connectivity.MQTTBridge
	machine *capture.Machine
	stream  *measurement.StreamHandoff
	router  *httpapi.Router
	server  *Server

	wg sync.WaitGroup
}

// NewIOPService 创建服务；数据库 / Redis / MQTT 不可用时降级为内存实现
func NewIOPService(cfg *config.Config, logger *zap.Logger) (*IOPService, error) {
	ctx := context.Background()
	s := &IOPService{config: cfg, logger: logger}

	// 数据库（可选）
	if cfg.DBEnabled {
		if db, err := database.NewPostgresDB(&cfg.Database); err == nil {
			s.db = db
			logger.Info("DB enabled for wisefido-iop")
		} else {
			logger.Warn("DB enabled but connection failed, falling back to memory", zap.Error(err))
		}
	}

	// Redis（可选）
	if cfg.RedisEnabled {
		client := rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(ctx, client, cfg.Redis.DialTimeout); err == nil {
			s.redis = client
			logger.Info("Redis enabled for wisefido-iop", zap.String("addr", cfg.Redis.Addr))
		} else {
			_ = rediscommon.Close(client)
			logger.Warn("Redis enabled but connection failed, falling back to memory", zap.Error(err))
		}
	}

	// 连接状态
	var store connectivity.Store = connectivity.NewMemoryStore()
	if s.redis != nil {
		store = connectivity.NewRedisStore(s.redis, cfg.IOP.Keys.Connected, cfg.IOP.Keys.Busy)
	}
	s.state = connectivity.NewState(ctx, store, logger,
		connectivity.WithCalibrationDuration(cfg.Calibration.Duration))

	// MQTT 跨进程同步（可选）
	if cfg.MQTTEnabled {
		if client, err := mqttcommon.NewClient(&cfg.MQTT, logger); err == nil {
			s.mqttClient = client
			s.bridge = connectivity.NewMQTTBridge(s.state, client, cfg.IOP.Topics.DeviceStatus, cfg.MQTT.QoS, logger)
		} else {
			logger.Warn("MQTT enabled but connection failed, device status stays local", zap.Error(err))
		}
	}

	// 摄像头 + 采集状态机
	adapter, err := camera.NewAdapter(camera.Config{
		Environment:    cfg.Camera.Env,
		PreviewURL:     cfg.Camera.PreviewURL,
		AcquireTimeout: cfg.Camera.AcquireTimeout,
		SimulateDenied: cfg.Camera.SimulateDenied,
	}, logger)
	if err != nil {
		s.closeClients()
		return nil, fmt.Errorf("failed to create camera adapter: %w", err)
	}
	s.machine = capture.NewMachine(s.state, adapter, capture.NewSampler(nil, nil), logger,
		capture.WithDwell(cfg.Capture.Dwell),
		capture.WithSettle(cfg.Capture.Settle),
		capture.WithSurface(cfg.Camera.Surface),
	)

	// 存储
	var (
		patients     repository.PatientDirectory
		measurements repository.MeasurementStore
	)
	if s.db != nil {
		patients = repository.NewPostgresPatientsRepository(s.db, logger)
		measurements = repository.NewPostgresMeasurementsRepository(s.db, logger)
	} else {
		patients = repository.NewMemoryPatientsRepo()
		measurements = repository.NewMemoryMeasurementsRepo()
	}

	// 保存与交接
	mailbox := measurement.NewMailbox(cfg.IOP.HandoffTTL)
	handoff := measurement.MultiHandoff{mailbox}
	if s.redis != nil {
		s.stream = measurement.NewStreamHandoff(s.redis, cfg.IOP.MeasurementStream, logger)
		handoff = append(handoff, s.stream)
	}
	assembler := measurement.NewAssembler(s.state, patients, measurements, s.machine, handoff, logger)
	reports := report.NewService(patients, measurements, mailbox, logger)

	// HTTP
	s.router = httpapi.NewRouter(logger)
	s.router.RegisterDeviceRoutes(
		httpapi.NewDeviceHandler(s.state, logger),
		httpapi.NewEventsHandler(s.state, s.machine, logger),
	)
	s.router.RegisterCaptureRoutes(httpapi.NewCaptureHandler(s.state, s.machine, logger))
	s.router.RegisterPatientRoutes(httpapi.NewPatientHandler(patients, measurements, logger))
	s.router.RegisterMeasurementRoutes(httpapi.NewMeasurementHandler(assembler, logger))
	s.router.RegisterReportRoutes(httpapi.NewReportHandler(reports, logger))
	s.server = NewServer(cfg.HTTP.Addr, s.router, logger)

	return s, nil
}

// Handler HTTP 入口
func (s *IOPService) Handler() http.Handler {
	return s.router
}

// State 设备连接状态
func (s *IOPService) State() *connectivity.State {
	return s.state
}

// Start 启动 MQTT 桥接与 HTTP 服务
func (s *IOPService) Start(ctx context.Context) error {
	s.logger.Info("Starting iop service components")

	if s.bridge != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.bridge.Start(ctx); err != nil {
				s.logger.Error("Device status MQTT bridge stopped with error", zap.Error(err))
			}
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped with error", zap.Error(err))
		}
	}()

	s.logger.Info("IOP service started successfully")
	return nil
}

// Stop 停止服务：关闭 HTTP、结束会话、释放摄像头、清除校准
func (s *IOPService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping iop service")

	if err := s.server.Stop(ctx); err != nil {
		s.logger.Error("Error stopping HTTP server", zap.Error(err))
	}
	if s.bridge != nil {
		s.bridge.Stop()
	}

	s.machine.Close()
	s.state.Close(ctx)
	if s.stream != nil {
		s.stream.Wait()
	}

	s.wg.Wait()
	s.closeClients()

	s.logger.Info("IOP service stopped")
	return nil
}

func (s *IOPService) closeClients() {
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.redis != nil {
		_ = rediscommon.Close(s.redis)
	}
	if s.db != nil {
		_ = database.Close(s.db)
	}
}
