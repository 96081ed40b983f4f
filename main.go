package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/itish2003/ragkb/config"
	"github.com/itish2003/ragkb/controller"
	"github.com/itish2003/ragkb/services"
)

const version = "1.0.0"

var (
	configPath  string
	shortAnswer bool
	mcpSSEAddr  string
)

var rootCmd = &cobra.Command{
	Use:           "ragkb",
	Short:         "Local retrieval-augmented knowledge base",
	Long:          `Ingest documents and websites, then ask questions answered from them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Index .txt or .pdf files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var removeCmd = &cobra.Command{
	Use:   "remove [document-id]",
	Short: "Remove a document and its passages",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var crawlCmd = &cobra.Command{
	Use:   "crawl [url]",
	Short: "Crawl a site and index its text",
	Args:  cobra.ExactArgs(1),
	RunE:  runCrawl,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the knowledge base as MCP tools",
	Long:  `Serves over stdio, or over SSE when --sse is given.`,
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFileName, "Path to the YAML config file")
	askCmd.Flags().BoolVarP(&shortAnswer, "short", "s", false, "Answer in one short paragraph")
	mcpCmd.Flags().StringVar(&mcpSSEAddr, "sse", "", "Listen address for the SSE transport")

	rootCmd.AddCommand(serveCmd, ingestCmd, removeCmd, askCmd, crawlCmd, mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

// withApp loads the configuration, wires the pipeline and runs fn with a
// context cancelled on SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("Warning: Failed to close index: %v", err)
		}
	}()
	return fn(ctx, a)
}

func runServe(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if a.cfg.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}

		if dir := a.cfg.WatchDirectoryPath; dir != "" {
			go a.indexer.ScanAndIndexDirectory(ctx, dir)
			go a.indexer.WatchDirectory(ctx, dir)
		}

		router := controller.NewRouter(controller.NewRAGController(a.service))
		srv := &http.Server{Addr: a.cfg.ServerAddr, Handler: router}

		errCh := make(chan error, 1)
		go func() {
			log.Printf("Go Gin backend server starting on %s", a.cfg.ServerAddr)
			log.Printf("Health check available at: http://localhost%s/health", a.cfg.ServerAddr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to start server: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func runIngest(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		var errs []error
		for _, path := range args {
			meta, err := a.service.IngestFile(ctx, path)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %s (%d bytes)\n", meta.DocumentID(), meta.Size)
		}
		return errors.Join(errs...)
	})
}

func runRemove(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if err := a.service.Remove(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
		return nil
	})
}

func runAsk(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		mode := services.ModeFull
		if shortAnswer {
			mode = services.ModeShort
		}
		answer, err := a.service.Answer(ctx, args[0], mode)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for fragment := range answer {
			fmt.Fprint(out, fragment)
		}
		fmt.Fprintln(out)
		return nil
	})
}

func runCrawl(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		meta, err := a.service.Crawl(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "indexed %s from %d pages\n", meta.DocumentID(), len(meta.CrawledURLs))
		return nil
	})
}

func runMCP(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		srv := controller.NewMCPServer(controller.NewMCPTools(a.service), version)
		if mcpSSEAddr == "" {
			return server.ServeStdio(srv)
		}
		sse := server.NewSSEServer(srv, server.WithBaseURL(fmt.Sprintf("http://%s", mcpSSEAddr)))
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sse.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Failed to stop SSE server: %v", err)
			}
		}()
		log.Printf("Start SSE server on %s", mcpSSEAddr)
		if err := sse.Start(mcpSSEAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
}
