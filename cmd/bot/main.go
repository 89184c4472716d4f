package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"remindbot/internal/app"
	"remindbot/internal/config"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")
	flag.Parse()

	// .env is optional; TELEGRAM_TOKEN overrides the config value so the
	// token can stay out of the config file.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mgr := config.NewManager(cfgPath)
	if tok := strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")); tok != "" {
		mgr.SetOverride(func(c *config.Config) { c.Telegram.Token = tok })
	}
	if _, err := mgr.Load(); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	a, err := app.New(mgr)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}
