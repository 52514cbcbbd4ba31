package container

import (
	"database/sql"
	"fmt"

	"github.com/garyjia/office-requisition/internal/application/dispatcher"
	"github.com/garyjia/office-requisition/internal/application/port"
	"github.com/garyjia/office-requisition/internal/application/service"
	"github.com/garyjia/office-requisition/internal/domain/requisition"
	infraLark "github.com/garyjia/office-requisition/internal/infrastructure/external/lark"
	"github.com/garyjia/office-requisition/internal/infrastructure/persistence/repository"
	"github.com/garyjia/office-requisition/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/office-requisition/internal/infrastructure/worker"
	"github.com/garyjia/office-requisition/migrations"
	"github.com/garyjia/office-requisition/pkg/database"
	"github.com/garyjia/office-requisition/pkg/utils"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the database, applies pending migrations and
// wraps the connection in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	if cfg.MigrationsDir != "" {
		err = migrator.RunMigrationsDir(cfg.MigrationsDir)
	} else {
		err = migrator.RunMigrations(migrations.FS)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Requisition: repository.NewRequisitionRepository(sqlDB, logger),
		History:     repository.NewHistoryRepository(sqlDB, logger),
		Movement:    repository.NewMovementRepository(sqlDB, logger),
		Ownership:   repository.NewOwnershipRepository(sqlDB, logger),
	}, nil
}

// ProvideMessageSender returns a Lark messenger when Lark is enabled and a
// log-only sender otherwise.
func ProvideMessageSender(cfg *LarkConfig, logger *zap.Logger) (port.MessageSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lark config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if !cfg.Enabled {
		logger.Info("Lark disabled, notifications will only be logged")
		return infraLark.NewNoopSender(logger), nil
	}

	client := infraLark.NewSDKClient(infraLark.Config{
		AppID:         cfg.AppID,
		AppSecret:     cfg.AppSecret,
		ReceiveIDType: cfg.ReceiveIDType,
		BaseURL:       cfg.BaseURL,
	}, logger)
	return infraLark.NewMessenger(client, cfg.ReceiveIDType, logger), nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewKVLogger(logger.Named("dispatcher"))),
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Sender     port.MessageSender
	Receivers  map[string]string
	Logger     *zap.Logger
}

// ProvideServices creates the application services and subscribes the
// notifier to requisition events.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := utils.NewKVLogger(deps.Logger.Named("service"))

	bundle := &ServiceBundle{
		Requisition: service.NewRequisitionService(
			requisition.NewLedger(),
			deps.Repos.Requisition,
			deps.Repos.History,
			deps.Repos.Movement,
			deps.TxManager,
			deps.Dispatcher,
			serviceLogger,
		),
	}

	if deps.Sender != nil {
		bundle.Notification = service.NewNotificationService(deps.Sender, deps.Receivers, serviceLogger)
		if deps.Dispatcher != nil {
			bundle.Notification.Register(deps.Dispatcher)
		}
	}

	return bundle, nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	WorkerCfg  *WorkerConfig
	Logger     *zap.Logger
}

// ProvideWorkers creates and registers all background workers.
// Returns *worker.WorkerManager with all workers registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.WorkerCfg == nil {
		return nil, fmt.Errorf("worker config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	relay := worker.NewMovementRelay(
		worker.MovementRelayConfig{
			PollInterval: deps.WorkerCfg.RelayInterval,
			BatchSize:    deps.WorkerCfg.RelayBatch,
		},
		deps.Repos.Movement,
		deps.Repos.Ownership,
		deps.TxManager,
		deps.Dispatcher,
		deps.Logger.Named("relay"),
	)
	manager.Register(relay)

	return manager, nil
}
