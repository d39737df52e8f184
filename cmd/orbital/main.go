package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AximoxAI/orbital/internal/appinfo"
	"github.com/AximoxAI/orbital/internal/applog"
	"github.com/AximoxAI/orbital/internal/config"
	"github.com/AximoxAI/orbital/internal/gateway"
	"github.com/AximoxAI/orbital/internal/history"
	"github.com/AximoxAI/orbital/internal/mention"
	"github.com/AximoxAI/orbital/internal/taskview"
	"github.com/AximoxAI/orbital/internal/transport"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "serve":
		if err := runServe(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	case "view":
		if err := runView(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	case "init":
		if err := runInit(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(appinfo.Display())
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `%s

usage:
  orbital init [--config orbital.yaml]
  orbital serve [--config orbital.yaml]
  orbital view --task <id> [--room <id>] [--config orbital.yaml]
  orbital version
`, appinfo.Display())
}

const starterConfig = `gateway:
  listen: 127.0.0.1:8787
  # chat_url and execution_url default to ws://<listen>/chat and /exec
  # redis_url: redis://127.0.0.1:6379/0
history:
  base_url: ""
auth:
  token_env: ORBITAL_TOKEN
  user_id: ""
log:
  file: ""
`

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "orbital.yaml", "path to orbital.yaml")
	fs.Parse(args)

	if _, err := os.Stat(*configPath); err == nil {
		return fmt.Errorf("%s already exists", *configPath)
	}
	if err := os.WriteFile(*configPath, []byte(starterConfig), 0o644); err != nil {
		return err
	}
	fmt.Println("wrote", *configPath)
	return nil
}

func newLogger(cfg config.Config) (*applog.Logger, error) {
	var file *os.File
	if path := strings.TrimSpace(cfg.Log.File); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		file = f
	}
	return applog.New(applog.Options{
		File:        file,
		Term:        os.Stderr,
		TermEnabled: true,
		TermColor:   applog.TermColorEnabled(os.Stderr),
	}), nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "orbital.yaml", "path to orbital.yaml")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	var presence gateway.PresenceStore = gateway.NoopPresenceStore{}
	if redisURL := strings.TrimSpace(cfg.Gateway.RedisURL); redisURL != "" {
		store, err := gateway.NewRedisPresenceStore(redisURL)
		if err != nil {
			return fmt.Errorf("redis presence: %w", err)
		}
		defer store.Close()
		presence = store
	}

	gw, err := gateway.NewGateway(gateway.GatewayOptions{
		Token:    cfg.Token(),
		Presence: presence,
		Logf: func(format string, args ...any) {
			logger.Logf(applog.KindWS, format, args...)
		},
	})
	if err != nil {
		return err
	}

	janitor, err := gateway.StartJanitor(gw, cfg.Gateway.JanitorSchedule, func(format string, args ...any) {
		logger.Logf(applog.KindInfo, format, args...)
	})
	if err != nil {
		return err
	}
	defer janitor.Stop()

	server := &http.Server{
		Addr:    cfg.Gateway.Listen,
		Handler: gw.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Logf(applog.KindInfo, "serve: listening addr=%s instance=%s", cfg.Gateway.Listen, gw.InstanceID())
		errCh <- server.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-sig:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runView(args []string) error {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	taskID := fs.String("task", "", "task id")
	roomID := fs.String("room", "", "task room id (default: task id)")
	configPath := fs.String("config", "orbital.yaml", "path to orbital.yaml")
	fs.Parse(args)

	if strings.TrimSpace(*taskID) == "" {
		return errors.New("--task is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	token := cfg.Token()
	execURL := cfg.Gateway.ExecutionURL
	if strings.Contains(execURL, "?") {
		execURL += "&task_id=" + *taskID
	} else {
		execURL += "?task_id=" + *taskID
	}

	manager, err := transport.NewManager(transport.ManagerOptions{
		ChatURL:      cfg.Gateway.ChatURL,
		ExecutionURL: execURL,
		SenderID:     cfg.Auth.UserID,
		Dialer:       &transport.WSDialer{Token: token},
		Logf: func(format string, args ...any) {
			logger.Logf(applog.KindWS, format, args...)
		},
	})
	if err != nil {
		return err
	}

	var hist *history.Client
	if base := strings.TrimSpace(cfg.History.BaseURL); base != "" {
		hist, err = history.NewClient(history.ClientOptions{
			BaseURL: base,
			Token:   token,
			Timeout: time.Duration(cfg.History.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
	}

	view, err := taskview.NewView(taskview.ViewOptions{
		TaskID:        *taskID,
		TaskRoomID:    *roomID,
		CurrentUserID: cfg.Auth.UserID,
		Manager:       manager,
		History:       hist,
		Mentions:      mention.NewRegistry(mention.DefaultHandles),
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := view.Open(ctx); err != nil {
		return err
	}
	defer view.Close()

	return runTUI(ctx, view)
}
