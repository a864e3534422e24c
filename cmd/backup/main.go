// cmd/backup/main.go
//
// Command backup manages database backups outside the HTTP server:
//
//	backup create
//	backup list
//	backup restore -id <uuid>
//	backup prune
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/storefront-backend/internal/config"
	"github.com/javajoker/storefront-backend/internal/database"
	"github.com/javajoker/storefront-backend/internal/router"
	"github.com/javajoker/storefront-backend/internal/services"
	"github.com/javajoker/storefront-backend/internal/utils"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: backup <create|list|restore -id ID|prune>")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	id := fs.String("id", "", "backup id (restore)")
	timeout := fs.Duration("timeout", 30*time.Minute, "operation timeout")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		logrus.WithError(err).Fatal("Failed to run migrations")
	}

	svc, err := router.NewServices(db, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize services")
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, svc.Backups, command, *id); err != nil {
		logrus.WithError(err).Error("Backup command failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, backups *services.BackupService, command, id string) error {
	switch command {
	case "create":
		backup, err := backups.Create(ctx, services.SystemActor)
		if err != nil {
			return err
		}
		fmt.Printf("created %s (%s, %d bytes)\n", backup.Filename, backup.ID, backup.SizeBytes)

	case "list":
		list, _, err := backups.List(utils.PaginationParams{Page: 1, Limit: utils.MaxPageLimit})
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFILE\tMETHOD\tSTATUS\tSIZE\tCREATED")
		for _, b := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				b.ID, b.Filename, b.Method, b.Status, b.SizeBytes, b.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()

	case "restore":
		backupID, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("restore needs a valid -id: %w", err)
		}
		backup, err := backups.Restore(ctx, services.SystemActor, backupID)
		if err != nil {
			return err
		}
		fmt.Printf("restored %s\n", backup.Filename)

	case "prune":
		removed, err := backups.Prune()
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d backups\n", removed)

	default:
		usage()
	}
	return nil
}
