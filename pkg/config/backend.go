package config

// Backend name constants for the pluggable components config.go selects
// between. Kept as typed string constants rather than a closed enum
// type since the YAML value flows straight from an operator-edited file.
const (
	MetaStoreBackendEmbedded = "embedded"
	MetaStoreBackendSQLite   = "sqlite"
	MetaStoreBackendMySQL    = "mysql"
	MetaStoreBackendPostgres = "postgres"
	MetaStoreBackendDynamo   = "dynamo"

	ObjectStoreBackendLocal = "local"
	ObjectStoreBackendS3    = "s3"

	LockBackendLocal = "local"
	LockBackendEtcd  = "etcd"
	LockBackendNats  = "nats"
)
