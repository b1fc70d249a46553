package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mypup/backend/internal/config"
	"github.com/mypup/backend/internal/db"
	"github.com/mypup/backend/internal/events"
	"go.uber.org/zap"
)

// Notifier — small service that consumes notification intents from
// Redis and forwards rendered messages to the delivery provider.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)

	log.Info("notifier started")

	_ = subscriber.Subscribe(ctx, events.StreamNotify, func(data []byte) {
		intent, err := events.DecodeIntent(data)
		if err != nil {
			log.Warn("dropping malformed intent", zap.Error(err))
			return
		}
		deliver(cfg.NotifyProviderURL, intent, log)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notifier")
	cancel()
}

func renderText(intent events.Intent) string {
	switch p := intent.Payload.(type) {
	case *events.FundsHeld:
		return fmt.Sprintf("Payment of %s received. Funds are held in escrow until both parties confirm the handover.",
			formatMoney(p.AmountCents, p.Currency))
	case *events.ConfirmationRecorded:
		return "The other party confirmed the handover. Confirm on your side to complete the transaction."
	case *events.DisputeOpened:
		return fmt.Sprintf("A dispute was opened on your transaction: %s", p.Reason)
	case *events.Completed:
		return fmt.Sprintf("Transaction complete. Seller payout %s (commission %s).",
			formatMoney(p.SellerCents, p.Currency), formatMoney(p.CommissionCents, p.Currency))
	case *events.DisputeResolved:
		switch p.Outcome {
		case "release_to_seller":
			return "Dispute resolved: funds released to the seller."
		case "refund_to_buyer":
			return "Dispute resolved: funds refunded to the buyer."
		default:
			return "Dispute resolved: transaction cancelled."
		}
	default:
		return fmt.Sprintf("Update on your transaction %s", intent.TransactionID)
	}
}

func formatMoney(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, currency)
}

// deliver pushes one message to the provider. Transient failures are
// retried up to three times; a lost notification never blocks escrow.
func deliver(baseURL string, intent events.Intent, log *zap.Logger) {
	body, _ := json.Marshal(map[string]any{
		"recipient_id":   intent.RecipientID,
		"transaction_id": intent.TransactionID,
		"kind":           intent.Payload.Kind(),
		"text":           renderText(intent),
	})

	url := fmt.Sprintf("%s/internal/notify", strings.TrimRight(baseURL, "/"))

	for attempt := 1; attempt <= 3; attempt++ {
		resp, err := http.Post(url, "application/json", strings.NewReader(string(body)))
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 300 {
				return
			}
			log.Warn("notify provider returned non-2xx",
				zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt))
		} else {
			log.Warn("failed to reach notify provider", zap.Error(err), zap.Int("attempt", attempt))
		}
		time.Sleep(time.Duration(attempt) * time.Second)
	}

	log.Error("giving up on notification",
		zap.String("recipient_id", intent.RecipientID.String()),
		zap.String("kind", intent.Payload.Kind()))
}
