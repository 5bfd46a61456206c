package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/JakeFAU/auditsnap/internal/auth"
	"github.com/JakeFAU/auditsnap/internal/config"
	"github.com/JakeFAU/auditsnap/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	issueFor := flag.String("issue-token", "", "Print a session token for this user id and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of tokens printed by -issue-token")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if port, ok := os.LookupEnv("PORT"); ok {
		if p, convErr := strconv.Atoi(port); convErr == nil && p > 0 {
			cfg.Server.Port = p
		}
	}

	if *issueFor != "" {
		if err := printToken(cfg, *issueFor, *tokenTTL); err != nil {
			fmt.Fprintf(os.Stderr, "issue token failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx := context.Background()
	app, err := server.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	if err := app.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
}

func printToken(cfg config.Config, userID string, ttl time.Duration) error {
	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, ttl)
	if err != nil {
		return err
	}
	token, err := tokens.Issue(userID, "")
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
