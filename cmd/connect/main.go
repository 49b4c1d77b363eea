// Команда connect — консольный инструмент оператора: загружает профиль
// и статистику пользователя, печатает кандидатов deep-link для его строки
// подписки. Без init-data работает на демонстрационной проекции.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/oblepiha-vpn/miniapp/internal/backend"
	"github.com/oblepiha-vpn/miniapp/internal/deeplink"
	"github.com/oblepiha-vpn/miniapp/internal/entitlement"
	"github.com/oblepiha-vpn/miniapp/internal/host"
)

func main() {
	var (
		backendURL = flag.String("backend", "http://localhost:8000", "subscription backend base url")
		initData   = flag.String("init-data", os.Getenv("TELEGRAM_INIT_DATA"), "telegram init data token")
		cryptoURL  = flag.String("crypto", "", "crypto link endpoint (optional)")
		timeout    = flag.Duration("timeout", 10*time.Second, "backend request timeout")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := backend.New(*backendURL, *initData, *timeout)
	bridge := &host.Static{InitDataValue: *initData}

	store := entitlement.New(logger, client, bridge)
	defer store.Close()

	if err := store.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "load entitlements: %v\n", err)
		os.Exit(1)
	}

	snap := store.Snapshot()
	printSnapshot(snap)

	var encrypter deeplink.Encrypter
	if *cryptoURL != "" {
		encrypter = deeplink.NewCryptoClient(*cryptoURL, *timeout)
	}
	resolver := deeplink.NewResolver(logger, encrypter)

	if snap.User == nil || snap.User.SubscriptionURL == "" {
		fmt.Println("\nno subscription url, nothing to hand off")
		return
	}

	fmt.Println("\ndeep link candidates:")
	for i, c := range resolver.Resolve(ctx, snap.User.SubscriptionURL, deeplink.AppHapp) {
		fmt.Printf("  %d. [%s] %s\n", i+1, c.Kind, c.URI)
	}
}

func printSnapshot(snap entitlement.Snapshot) {
	if snap.User == nil {
		fmt.Println("user: unavailable")
		return
	}

	fmt.Printf("user: %s (id %d)\n", snap.User.FirstName, snap.User.TelegramID)
	fmt.Printf("subscription active: %v, days left: %d\n", snap.User.IsActive, snap.User.DaysLeft)
	if snap.User.PaymentMethod != nil {
		fmt.Printf("payment method: %s, auto-renew: %v\n", snap.User.PaymentMethod.Label(), snap.User.AutoRenewEnabled)
	}
	if snap.Stats != nil {
		fmt.Printf("traffic: %.1f GB of %.1f GB\n",
			snap.Stats.TotalTrafficGB-snap.Stats.TrafficLeftGB,
			snap.Stats.TotalTrafficGB)
	}
	if len(snap.Tariffs) > 0 {
		fmt.Println("tariffs:")
		for _, tr := range snap.Tariffs {
			fmt.Printf("  %s: %d₽ / %d days\n", tr.Name, tr.Price, tr.Days)
		}
	}
}
