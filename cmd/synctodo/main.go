// ABOUTME: synctodo is a reference CLI demonstrating the engine end to end:
// ABOUTME: save/list/delete/sync against a registered TodoItem table.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mirasync/syncengine/internal/connprobe"
	"github.com/mirasync/syncengine/internal/httptransport"
	"github.com/mirasync/syncengine/internal/sqlitestore"
	"github.com/mirasync/syncengine/internal/synclog"
	"github.com/mirasync/syncengine/models"
	"github.com/mirasync/syncengine/syncx"
)

var (
	dbPath    string
	serverURL string
	authToken string
)

func main() {
	root := &cobra.Command{
		Use:   "synctodo",
		Short: "offline-first todo list synced through the engine",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "synctodo.db", "path to local SQLite store")
	root.PersistentFlags().StringVar(&serverURL, "server", "", "sync server base URL")
	root.PersistentFlags().StringVar(&authToken, "token", "", "bearer token")

	root.AddCommand(addCmd(), listCmd(), doneCmd(), deleteCmd(), syncCmd(), statusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add [text]",
		Short: "save a new todo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFacade(cmd.Context(), func(ctx context.Context, f *syncx.Facade) error {
				item := models.NewTodoItem(uuid.NewString(), args[0], time.Now().UnixMilli())
				if err := f.Save(ctx, item); err != nil {
					return err
				}
				fmt.Println(item.ID())
				return nil
			})
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list todos",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFacade(cmd.Context(), func(ctx context.Context, f *syncx.Facade) error {
				items, err := f.FindAll(ctx, models.TodoTable)
				if err != nil {
					return err
				}
				for _, e := range items {
					todo, ok := e.(*models.TodoItem)
					if !ok {
						continue
					}
					mark := " "
					if todo.Done {
						mark = "x"
					}
					fmt.Printf("[%s] %s %s\n", mark, todo.ID(), todo.Text)
				}
				return nil
			})
		},
	}
}

func doneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done [id]",
		Short: "mark a todo complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFacade(cmd.Context(), func(ctx context.Context, f *syncx.Facade) error {
				e, ok, err := f.FindByID(ctx, models.TodoTable, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no such todo: %s", args[0])
				}
				todo := e.(*models.TodoItem)
				todo.Done = true
				return f.Update(ctx, todo)
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "tombstone a todo for propagation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFacade(cmd.Context(), func(ctx context.Context, f *syncx.Facade) error {
				return f.SoftDelete(ctx, models.TodoTable, args[0])
			})
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "run one push/pull sync pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFacade(cmd.Context(), func(ctx context.Context, f *syncx.Facade) error {
				return f.Sync(ctx)
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "print the current sync status snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withFacade(cmd.Context(), func(ctx context.Context, f *syncx.Facade) error {
				st := f.Engine().Status()
				fmt.Printf("online=%v syncing=%v pending=%d failed=%d last_sync=%v\n",
					st.IsOnline, st.IsSyncing, st.PendingCount, st.FailedCount, st.LastSyncAt)
				return nil
			})
		},
	}
}

func withFacade(ctx context.Context, fn func(context.Context, *syncx.Facade) error) (err error) {
	driver := sqlitestore.New(dbPath)
	network := httptransport.New(httptransport.DefaultRateConfig())
	var connectivity syncx.ConnectivityDetector
	if serverURL != "" {
		connectivity = connprobe.New(serverURL+"/healthz", 10*time.Second)
	}

	cfg := syncx.DefaultEngineConfig()
	facade := syncx.NewFacade(driver, network, connectivity, cfg, synclog.New("synctodo").Logger)

	if err := facade.RegisterEntity(ctx, models.TodoTable, "/v1/todos", "", models.TodoFactory); err != nil {
		return err
	}
	if err := facade.Initialize(ctx); err != nil {
		return err
	}
	defer facade.Close()

	if serverURL != "" {
		headers := map[string]string{}
		if authToken != "" {
			headers["Authorization"] = "Bearer " + authToken
		}
		if err := network.Initialize(ctx, serverURL, headers, cfg.HTTPTimeout.Milliseconds()); err != nil {
			return err
		}
	}

	return fn(ctx, facade)
}
