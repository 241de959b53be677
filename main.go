package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	config "taskchat/app/configs"
	"taskchat/app/core/interaction/cli"
	"taskchat/app/core/interaction/gateway"
	"taskchat/app/core/interaction/http"
	"taskchat/app/core/orchestrator/agent"
	"taskchat/app/core/orchestrator/conversation"
	"taskchat/app/core/orchestrator/db"
	"taskchat/app/core/orchestrator/task"
	"taskchat/app/core/orchestrator/tools"
	"taskchat/app/core/provider"
	"taskchat/app/pkg/logger"
)

func main() {
	if err := logger.Init("output/logs"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Info("TaskChat Starting...")

	cfgManager, err := config.NewManager(config.DefaultPath())
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()
	if strings.TrimSpace(cfg.Provider.APIKey) == "" {
		cfg.Provider.APIKey = strings.TrimSpace(os.Getenv("GROQ_API_KEY"))
	}

	database, err := db.NewSQLiteDB("output/db")
	if err != nil {
		logger.Error("Failed to initialize DB: %v", err)
		os.Exit(1)
	}
	defer database.Close()
	logger.Info("Database initialized successfully")

	taskStore := task.NewStore(database)
	conversationStore := conversation.NewStore(database)
	executor := tools.NewExecutor(taskStore)

	var llm agent.LLMProvider
	if client, provErr := provider.Configure(cfg.Provider); provErr == nil {
		llm = client
		logger.Info("LLM provider configured: model=%s", client.Model())
	} else if provErr == provider.ErrNotConfigured {
		logger.Info("No LLM credential found, running with keyword heuristics only")
	} else {
		logger.Error("Failed to configure LLM provider: %v", provErr)
	}

	brain := agent.NewAgent(cfg.Agent.Name, llm, executor, conversationStore, cfg.Chat)

	gw := gateway.NewGateway(brain)

	cliChannel := cli.NewCLIChannel(cfg.Chat.CLIUserID)
	gw.RegisterChannel(cliChannel)

	httpChannel := http.NewHTTPChannel(cfg.Chat.HTTPPort)
	gw.RegisterChannel(httpChannel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := gw.Start(ctx); err != nil {
			logger.Error("Gateway crashed: %v", err)
			os.Exit(1)
		}
	}()

	logger.Info("TaskChat is ready to serve.")
	fmt.Println("- CLI Interface:  Interactive")
	fmt.Printf("- HTTP Interface: http://localhost:%d/api/chat (POST)\n", cfg.Chat.HTTPPort)
	fmt.Printf("- Tool Listing:   http://localhost:%d/api/tools (GET)\n", cfg.Chat.HTTPPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal: %v. TaskChat Shutting Down...", sig)
	cancel()
}
