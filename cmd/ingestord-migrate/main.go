// Command ingestord-migrate copies every key in component A's metadata
// store from one backend to another, so an operator can move a
// deployment from the embedded BoltDB store onto a clustered SQL or
// DynamoDB backend without losing schema history or stream settings.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/cuemby/ingestord/pkg/metakv"
	"github.com/cuemby/ingestord/pkg/metakv/dynamo"
	"github.com/cuemby/ingestord/pkg/metakv/embedded"
	"github.com/cuemby/ingestord/pkg/metakv/mysql"
	"github.com/cuemby/ingestord/pkg/metakv/postgres"
	"github.com/cuemby/ingestord/pkg/metakv/sqlite"
)

var (
	fromBackend = flag.String("from-backend", "embedded", "source meta_store backend: embedded|sqlite|mysql|postgres|dynamo")
	fromDSN     = flag.String("from-dsn", "./data/meta", "source backend connection string (data dir for embedded, DSN for sql, table name for dynamo)")
	toBackend   = flag.String("to-backend", "", "destination meta_store backend: embedded|sqlite|mysql|postgres|dynamo")
	toDSN       = flag.String("to-dsn", "", "destination backend connection string")
	dryRun      = flag.Bool("dry-run", false, "show what would be copied without writing to the destination")
	backupPath  = flag.String("backup", "", "when --from-backend=embedded, copy the BoltDB file here before migrating")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("ingestord meta store migration tool")
	log.Println("====================================")

	if *toBackend == "" {
		log.Fatal("--to-backend is required")
	}

	ctx := context.Background()

	if *fromBackend == "embedded" && !*dryRun {
		dbPath := filepath.Join(*fromDSN, "ingestord-meta.db")
		backup := *backupPath
		if backup == "" {
			backup = dbPath + ".backup"
		}
		if _, err := os.Stat(dbPath); err == nil {
			log.Printf("backing up %s to %s", dbPath, backup)
			if err := copyFile(dbPath, backup); err != nil {
				log.Fatalf("backup failed: %v", err)
			}
		}
	}

	source, err := openStore(ctx, *fromBackend, *fromDSN)
	if err != nil {
		log.Fatalf("open source store: %v", err)
	}
	defer source.Close()

	dest, err := openStore(ctx, *toBackend, *toDSN)
	if err != nil {
		log.Fatalf("open destination store: %v", err)
	}
	defer dest.Close()

	entries, err := source.List(ctx, "")
	if err != nil {
		log.Fatalf("list source keys: %v", err)
	}
	log.Printf("found %d keys in source store", len(entries))

	if *dryRun {
		log.Println("[dry run] no keys were written to the destination")
		return
	}

	copied := 0
	for key, value := range entries {
		if err := dest.Put(ctx, key, value, false); err != nil {
			log.Fatalf("copy key %q: %v", key, err)
		}
		copied++
		if copied%100 == 0 {
			log.Printf("  copied %d/%d...", copied, len(entries))
		}
	}
	log.Printf("migration complete: copied %d keys from %s to %s", copied, *fromBackend, *toBackend)
}

func openStore(ctx context.Context, backend, dsn string) (metakv.Store, error) {
	switch backend {
	case "embedded":
		return embedded.Open(dsn, nil)
	case "sqlite":
		return sqlite.Open(dsn, nil)
	case "mysql":
		return mysql.Open(dsn, nil)
	case "postgres":
		return postgres.Open(dsn, nil)
	case "dynamo":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg)
		return dynamo.Open(client, dsn), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0600)
}
