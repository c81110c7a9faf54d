package main

import (
	"context"
	"fmt"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/cuemby/ingestord/pkg/config"
	"github.com/cuemby/ingestord/pkg/coordinator"
	"github.com/cuemby/ingestord/pkg/filecache"
	"github.com/cuemby/ingestord/pkg/filelist"
	"github.com/cuemby/ingestord/pkg/health"
	"github.com/cuemby/ingestord/pkg/ingest"
	"github.com/cuemby/ingestord/pkg/lock"
	"github.com/cuemby/ingestord/pkg/log"
	"github.com/cuemby/ingestord/pkg/metakv"
	"github.com/cuemby/ingestord/pkg/metakv/dynamo"
	"github.com/cuemby/ingestord/pkg/metakv/embedded"
	"github.com/cuemby/ingestord/pkg/metakv/mysql"
	"github.com/cuemby/ingestord/pkg/metakv/postgres"
	"github.com/cuemby/ingestord/pkg/metakv/sqlite"
	"github.com/cuemby/ingestord/pkg/objectstore"
	"github.com/cuemby/ingestord/pkg/schema"
	"github.com/cuemby/ingestord/pkg/wal"
	"github.com/cuemby/ingestord/pkg/wal/rotation"
)

// daemon holds every wired component, so serveCmd can start and stop
// them as a unit.
type daemon struct {
	cfg *config.Config

	metaStore metakv.Store
	objStore  objectstore.Store
	bus       *coordinator.Bus
	natsConn  *nats.Conn
	relay     *coordinator.NatsRelay

	locks  *lock.Manager
	schema *schema.Cache
	wal    *wal.Manager
	rotate *rotation.Worker
	cache  *filecache.Cache
	index  *filelist.Index
	core   *ingest.Core

	metaHealth *health.Monitor
	objHealth  *health.Monitor
}

// buildDaemon wires every component per cfg's backend selections,
// following the teacher's cluster-init idiom of constructing each
// subsystem in dependency order and returning the first failure.
func buildDaemon(ctx context.Context, cfg *config.Config) (*daemon, error) {
	d := &daemon{cfg: cfg}

	d.bus = coordinator.NewBus()
	d.bus.Start()

	if cfg.Coordinator.NatsURL != "" {
		nc, err := nats.Connect(cfg.Coordinator.NatsURL)
		if err != nil {
			return nil, fmt.Errorf("connect coordinator nats: %w", err)
		}
		relay, err := coordinator.NewNatsRelay(nc, cfg.Coordinator.Subject, d.bus)
		if err != nil {
			return nil, fmt.Errorf("start coordinator relay: %w", err)
		}
		d.natsConn = nc
		d.relay = relay
	}

	metaStore, err := buildMetaStore(ctx, cfg, d.bus)
	if err != nil {
		return nil, fmt.Errorf("build meta store: %w", err)
	}
	d.metaStore = metaStore

	objStore, err := buildObjectStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("build object store: %w", err)
	}
	d.objStore = objStore

	lockBackend, err := buildLockBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build lock backend: %w", err)
	}
	d.locks = lock.New(lockBackend)

	d.schema = schema.New(metaSchemaStore{store: metaStore}, d.locks)

	walMgr, err := wal.New(cfg.WAL.DataDir, cfg.Limit.CPUNum, cfg.Limit.MaxFileSizeOnDisk, cfg.Limit.MaxFileRetentionTime, cfg.WAL.NodeID)
	if err != nil {
		return nil, fmt.Errorf("build wal manager: %w", err)
	}
	d.wal = walMgr

	d.index = filelist.New()

	rotateInterval := time.Duration(cfg.WAL.RotationSeconds) * time.Second
	if rotateInterval <= 0 {
		rotateInterval = 30 * time.Second
	}
	rotateWorker, err := rotation.New(cfg.WAL.DataDir, walMgr, objStore, d.index, rotateInterval)
	if err != nil {
		return nil, fmt.Errorf("build wal rotation worker: %w", err)
	}
	d.rotate = rotateWorker

	if cfg.MemoryCache.Enabled {
		cache, err := filecache.New(cfg.MemoryCache.MaxSize, cfg.DiskCache.ReleaseSize)
		if err != nil {
			return nil, fmt.Errorf("build file cache: %w", err)
		}
		d.cache = cache
	}

	d.core = ingest.New(d.schema, d.wal, ingest.Limits{
		SkipFormattingStreamName: cfg.Common.SkipFormattingStreamName,
		FlattenLevel:             cfg.Limit.IngestFlattenLevel,
		ReqColsPerRecordLimit:    cfg.Limit.ReqColsPerRecordLimit,
		IngestAllowedUpto:        cfg.Limit.IngestAllowedUpto,
		IngestAllowedInFuture:    cfg.Limit.IngestAllowedInFuture,
		AllValuesMaxLen:          cfg.Limit.IndexAllMaxValueLength,
		AllowUserDefinedSchemas:  cfg.Common.AllowUserDefinedSchemas,
		SchemaMaxFieldsForUDS:    cfg.Limit.SchemaMaxFieldsToEnableUDS,
	})

	d.metaHealth = health.NewMonitor(&health.MetaStoreChecker{Store: metaStore}, health.DefaultConfig())
	d.objHealth = health.NewMonitor(&health.ObjectStoreChecker{Store: objStore}, health.DefaultConfig())

	return d, nil
}

func (d *daemon) start(ctx context.Context) {
	d.rotate.Start()
	d.metaHealth.Start(ctx)
	d.objHealth.Start(ctx)
}

func (d *daemon) stop() {
	d.rotate.Stop()
	d.metaHealth.Stop()
	d.objHealth.Stop()
	d.bus.Stop()
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if err := d.metaStore.Close(); err != nil {
		log.Errorf("shutdown: close meta store", err)
	}
}

func buildMetaStore(ctx context.Context, cfg *config.Config, bus *coordinator.Bus) (metakv.Store, error) {
	switch cfg.MetaStore.Backend {
	case "", config.MetaStoreBackendEmbedded:
		return embedded.Open(cfg.MetaStore.DataDir, bus)
	case config.MetaStoreBackendSQLite:
		return sqlite.Open(cfg.MetaStore.DSN, bus)
	case config.MetaStoreBackendMySQL:
		return mysql.Open(cfg.MetaStore.DSN, bus)
	case config.MetaStoreBackendPostgres:
		return postgres.Open(cfg.MetaStore.DSN, bus)
	case config.MetaStoreBackendDynamo:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config for dynamo metakv: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg)
		return dynamo.Open(client, cfg.MetaStore.Table), nil
	default:
		return nil, fmt.Errorf("unknown meta_store.backend %q", cfg.MetaStore.Backend)
	}
}

func buildObjectStore(cfg *config.Config) (objectstore.Store, error) {
	switch cfg.ObjectStore.Backend {
	case "", config.ObjectStoreBackendLocal:
		return objectstore.NewLocal(cfg.ObjectStore.LocalDir)
	case config.ObjectStoreBackendS3:
		client, err := minio.New(cfg.ObjectStore.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.ObjectStore.AccessKey, cfg.ObjectStore.SecretKey, ""),
			Secure: cfg.ObjectStore.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 client: %w", err)
		}
		return objectstore.NewS3(client, cfg.ObjectStore.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown object_store.backend %q", cfg.ObjectStore.Backend)
	}
}

func buildLockBackend(ctx context.Context, cfg *config.Config) (lock.Backend, error) {
	switch cfg.Lock.Backend {
	case "", config.LockBackendLocal:
		return lock.Local{}, nil
	case config.LockBackendEtcd:
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.Lock.Endpoints,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("connect etcd lock backend: %w", err)
		}
		return lock.NewEtcdBackend(client, "/ingestord/locks", cfg.Lock.LeaseTTL), nil
	case config.LockBackendNats:
		if len(cfg.Lock.Endpoints) == 0 {
			return nil, fmt.Errorf("lock.backend nats requires at least one endpoint (nats url)")
		}
		nc, err := nats.Connect(cfg.Lock.Endpoints[0])
		if err != nil {
			return nil, fmt.Errorf("connect nats lock backend: %w", err)
		}
		js, err := jetstream.New(nc)
		if err != nil {
			return nil, fmt.Errorf("create nats jetstream context: %w", err)
		}
		kv, err := js.KeyValue(ctx, "ingestord_locks")
		if err != nil {
			kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: "ingestord_locks"})
			if err != nil {
				return nil, fmt.Errorf("bind nats lock kv bucket: %w", err)
			}
		}
		holder, _ := os.Hostname()
		return lock.NewNatsBackend(kv, holder), nil
	default:
		return nil, fmt.Errorf("unknown lock.backend %q", cfg.Lock.Backend)
	}
}
