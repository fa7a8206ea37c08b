package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/records_backend/config"
	_ "github.com/mmdatafocus/records_backend/entities"
	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/store"
)

func main() {
	kind := flag.String("kind", "", "Entity kind to migrate (default: every registered entity)")
	dryRun := flag.Bool("dry-run", false, "Print CREATE TABLE statements only (no database connection)")
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

	if *dryRun {
		for _, e := range entities {
			fmt.Printf("-- %s\n%s;\n\n", e.Kind, store.CreateTableSQL(e))
		}
		return
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := context.Background()
	for _, e := range entities {
		if err := store.Migrate(ctx, db, e); err != nil {
			fmt.Fprintf(os.Stderr, "migrate %s failed: %v\n", e.Kind, err)
			os.Exit(1)
		}
		fmt.Printf("migrated %s (%s)\n", e.Kind, e.Table)
	}
}
