// ABOUTME: Command implementations for the concierge CLI
// ABOUTME: init / listen / request / threads over the client package

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fatih/color"

	"github.com/Synvya/ai-concierge-sub000/internal/client"
	"github.com/Synvya/ai-concierge-sub000/internal/config"
	"github.com/Synvya/ai-concierge-sub000/internal/identity"
	"github.com/Synvya/ai-concierge-sub000/internal/message"
	"github.com/Synvya/ai-concierge-sub000/internal/relay"
	"github.com/Synvya/ai-concierge-sub000/internal/store"
	"github.com/Synvya/ai-concierge-sub000/internal/thread"
)

func runInit(_ context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	ks := identity.NewFileStore(cfg.Identity.Path, logger)
	kp, err := ks.Load()
	if err != nil {
		return err
	}

	npub, err := kp.Npub()
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Identity: %s\n", cfg.Identity.Path)
	green.Print("    ▶ ")
	fmt.Printf("Pubkey:   %s\n", kp.PublicKey)
	green.Print("    ▶ ")
	fmt.Printf("Npub:     %s\n", npub)
	return nil
}

func runListen(ctx context.Context) error {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}
	printBanner(configPath, cfg)
	logger := setupLogger(cfg.Logging)

	c, st, err := buildClient(cfg, logger, true, func(threads []*thread.Thread) {
		printThreads(threads)
	})
	if err != nil {
		return err
	}
	defer st.Close()

	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Stop()

	<-c.Ready()
	printThreads(c.Threads())
	logger.Info("listening for reservation messages")

	<-ctx.Done()
	return nil
}

func runRequest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("request", flag.ContinueOnError)
	to := fs.String("to", "", "merchant pubkey (hex or npub)")
	party := fs.Int("party", 2, "party size")
	when := fs.String("time", "", "requested time (RFC 3339 with timezone)")
	notes := fs.String("notes", "", "notes for the merchant")
	name := fs.String("name", "", "restaurant name (for local display)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *to == "" {
		return fmt.Errorf("-to is required")
	}
	recipient := *to
	if strings.HasPrefix(recipient, "npub") {
		decoded, err := identity.DecodeNpub(recipient)
		if err != nil {
			return err
		}
		recipient = decoded
	}

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}
	printBanner(configPath, cfg)
	logger := setupLogger(cfg.Logging)

	c, st, err := buildClient(cfg, logger, false, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Stop()

	threadID, err := c.SendRequest(ctx, recipient, message.Request{
		PartySize:      *party,
		ISOTime:        *when,
		Notes:          *notes,
		RestaurantName: *name,
	})
	if err != nil {
		return err
	}

	color.New(color.FgGreen).Print("    ▶ ")
	fmt.Printf("Request sent, thread %s\n", threadID)
	return nil
}

func runThreads(ctx context.Context) error {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}
	printBanner(configPath, cfg)
	logger := setupLogger(cfg.Logging)

	c, st, err := buildClient(cfg, logger, false, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Stop()

	printThreads(c.Threads())
	return nil
}

// buildClient assembles identity, snapshot store, relay pool, and client.
// wantFeed only opens the subscription when the config also enables it.
func buildClient(cfg *config.Config, logger *slog.Logger, wantFeed bool, onUpdate func([]*thread.Thread)) (*client.Client, *store.SQLiteStore, error) {
	ks := identity.NewFileStore(cfg.Identity.Path, logger)
	if _, err := ks.Load(); err != nil {
		return nil, nil, err
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path, logger)
	if err != nil {
		return nil, nil, err
	}

	pool := relay.NewPool(cfg.Relays.URLs, logger)

	c, err := client.New(client.Options{
		Identity:      ks,
		Pool:          pool,
		Store:         st,
		LiveFeed:      wantFeed && cfg.Relays.LiveFeed,
		BacklogWindow: cfg.Relays.BacklogWindow,
		OnUpdate:      onUpdate,
		Logger:        logger,
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return c, st, nil
}

// printThreads renders the flat thread list.
func printThreads(threads []*thread.Thread) {
	if len(threads) == 0 {
		color.New(color.FgHiBlack).Println("    (no threads)")
		return
	}
	for _, t := range threads {
		statusColor := color.New(color.FgYellow)
		switch t.Status {
		case thread.StatusConfirmed:
			statusColor = color.New(color.FgGreen)
		case thread.StatusDeclined, thread.StatusExpired, thread.StatusCancelled:
			statusColor = color.New(color.FgRed)
		}

		name := t.RestaurantName
		if name == "" {
			name = shorten(t.Counterparty)
		}
		fmt.Printf("  %s  ", name)
		statusColor.Printf("[%s]", t.Status)
		fmt.Printf("  party=%d  time=%s  messages=%d\n",
			t.PartySize, t.ISOTime, len(t.Messages))
		if t.Pending != nil {
			color.New(color.FgHiBlack).Printf("      pending: %s (%s)\n",
				t.Pending.ISOTime, t.Pending.Message)
		}
	}
}

func shorten(pubkey string) string {
	if len(pubkey) > 16 {
		return pubkey[:8] + "…" + pubkey[len(pubkey)-8:]
	}
	return pubkey
}
