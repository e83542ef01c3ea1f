package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/branchgraph/internal/app"
	"github.com/yungbote/branchgraph/internal/data/db"
	"github.com/yungbote/branchgraph/internal/data/graph"
	"github.com/yungbote/branchgraph/internal/domain/schema"
	"github.com/yungbote/branchgraph/internal/platform/envutil"
	"github.com/yungbote/branchgraph/internal/platform/logger"
	"github.com/yungbote/branchgraph/internal/platform/neo4jdb"
)

var (
	shutdownTimeout time.Duration

	rootCmd = &cobra.Command{
		Use:           "branchgraph",
		Short:         "Branch-aware temporal property graph service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}

	workerCmd = &cobra.Command{
		Use:   "worker",
		Short: "Run the Temporal merge worker",
		RunE:  runWorker,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create the branch catalog tables and graph indexes",
		RunE:  runMigrate,
	}

	schemaCmd = &cobra.Command{
		Use:   "schema",
		Short: "Inspect schema files",
	}
	schemaHashCmd = &cobra.Command{
		Use:   "hash [file]",
		Short: "Validate a schema file and print its content hash",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchemaHash,
	}
)

func init() {
	rootCmd.PersistentFlags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "grace period for in-flight work on exit")
	schemaCmd.AddCommand(schemaHashCmd)
	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd, schemaCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)
	if err := a.Start(app.ModeServer); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.Log.Info("shutdown requested")
		return nil
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)
	if err := a.Start(app.ModeWorker); err != nil {
		return err
	}
	<-ctx.Done()
	a.Log.Info("shutdown requested")
	return nil
}

func closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.Close(ctx)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	dbs, err := db.NewService(log, db.ConfigFromEnv())
	if err != nil {
		return err
	}
	defer dbs.Close()
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		return fmt.Errorf("catalog automigrate: %w", err)
	}
	log.Info("catalog migrated")

	if envutil.String("GRAPH_BACKEND", app.GraphBackendNeo4j) != app.GraphBackendNeo4j {
		return nil
	}
	client, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		return err
	}
	defer client.Close(cmd.Context())
	store, err := graph.NewNeo4jStore(client, log)
	if err != nil {
		return err
	}
	if err := store.EnsureSchema(cmd.Context()); err != nil {
		return fmt.Errorf("neo4j schema: %w", err)
	}
	log.Info("graph schema ensured", "statements", len(graph.SchemaStatements()))
	return nil
}

func runSchemaHash(cmd *cobra.Command, args []string) error {
	sb, err := schema.LoadFile(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, sb.Hash())
	for _, kind := range sb.Kinds() {
		fmt.Fprintf(out, "  %s\n", kind)
	}
	return nil
}
