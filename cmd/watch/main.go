// Command watch tails one user's notification stream on the terminal. It
// is the reference consumer of the sync core: connect, subscribe, print
// every state change, tear down on interrupt.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recruitdesk/internal/api"
	"recruitdesk/internal/channel"
	"recruitdesk/internal/config"
	"recruitdesk/internal/notify"

	"go.uber.org/zap"
)

type printer struct{}

func (printer) Name() string { return "terminal-printer" }

func (printer) Update(snap notify.Snapshot) {
	fmt.Printf("[%s] %d notifications, %d unread", snap.ConnectionState, len(snap.Notifications), snap.UnreadCount)
	if snap.Loading {
		fmt.Print(" (loading)")
	}
	fmt.Println()

	for i, n := range snap.Notifications {
		if i >= 5 {
			fmt.Printf("  ... and %d more\n", len(snap.Notifications)-i)
			break
		}
		marker := " "
		if !n.IsRead {
			marker = "*"
		}
		fmt.Printf("  %s [%s] %s\n", marker, n.Category, n.Message)
	}
}

func main() {
	userID := flag.String("user", "", "user id to watch notifications for")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	log := logger.Sugar()

	cfg := config.Load()
	if err := cfg.ValidateClient(); err != nil {
		log.Fatalw("invalid configuration", "error", err)
	}
	if *userID == "" {
		log.Fatal("-user flag is required")
	}

	tokenProvider := func() string { return cfg.Client.AuthToken }
	client := api.NewClient(cfg.Client.BaseURL, tokenProvider, log)

	endpoint, err := channel.EndpointURL(cfg.Client.BaseURL)
	if err != nil {
		log.Fatalw("cannot derive websocket endpoint", "error", err)
	}
	ws := channel.NewWebsocket(endpoint, cfg.Client.AuthToken,
		time.Duration(cfg.Sync.ReconnectWaitSec)*time.Second, log)

	sync := notify.New(client, ws,
		time.Duration(cfg.Sync.PollIntervalSec)*time.Second, log)
	sync.Subscribe(printer{})

	if err := sync.Connect(context.Background(), *userID); err != nil {
		log.Fatalw("cannot start sync", "error", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	sync.Disconnect()
}
