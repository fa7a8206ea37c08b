package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/records_backend/attachments"
	"github.com/mmdatafocus/records_backend/config"
	_ "github.com/mmdatafocus/records_backend/entities"
	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/store"
	"github.com/mmdatafocus/records_backend/utils"
)

func main() {
	kind := flag.String("kind", "", "Entity kind to sweep (default: every registered entity)")
	olderThan := flag.Duration("older-than", 24*time.Hour, "Skip attachment directories modified more recently than this")
	dryRun := flag.Bool("dry-run", true, "List orphaned directories only (no deletes)")
	flag.Parse()

	entities := schema.All()
	if k := strings.TrimSpace(*kind); k != "" {
		e, ok := schema.Lookup(k)
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown entity kind %q\n", k)
			os.Exit(1)
		}
		entities = []*schema.Entity{e}
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	blob, err := attachments.NewBlobFromEnv(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage: %v\n", err)
		os.Exit(1)
	}
	if c, ok := blob.(io.Closer); ok {
		defer c.Close()
	}
	mgr := attachments.New(blob, attachments.Options{
		Prefix:     config.UploadPrefix(),
		Thumbnails: config.ThumbnailsEnabled(),
	})
	st := store.NewGormStore(db)

	if !*dryRun {
		config.ConnectRedisWithRetry()
		lock, err := utils.ObtainLock(ctx, "attachments", "Sweep", time.Hour, "attachment-sweeper", "main")
		if errors.Is(err, utils.ErrLockNotObtained) {
			fmt.Fprintln(os.Stderr, "another sweep is running")
			os.Exit(1)
		} else if err != nil {
			fmt.Fprintf(os.Stderr, "lock failed: %v\n", err)
			os.Exit(1)
		}
		defer lock.Release(context.Background())
	}

	failed := false
	for _, e := range entities {
		exists := func(ctx context.Context, id string) (bool, error) {
			ok, err := st.Exists(ctx, e, id)
			// dry-run reports orphans by claiming every directory is live
			// after printing it.
			if err == nil && !ok && *dryRun {
				fmt.Printf("orphan kind=%s id=%s\n", e.Kind, id)
				return true, nil
			}
			return ok, err
		}
		purged, err := mgr.Sweep(ctx, e.Kind, *olderThan, exists)
		for _, id := range purged {
			fmt.Printf("purged kind=%s id=%s\n", e.Kind, id)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "sweep %s failed: %v\n", e.Kind, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
	fmt.Println("attachment sweep finished")
}
