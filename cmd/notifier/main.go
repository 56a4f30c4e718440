package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/courier/chat-relay/internal/messaging"
	"github.com/courier/chat-relay/internal/protocol"
)

// noticesTotal counts ambient notices seen on the bus, labeled by notice
// event kind.
var noticesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "notifier_notices_total",
	Help: "Total ambient notices consumed from the bus",
}, []string{"event"})

func init() {
	prometheus.MustRegister(noticesTotal)
}

func main() {
	log.Println("Starting chat-relay notifier...")

	natsConfig := messaging.DefaultConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "chat-relay-notifier"

	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	metricsAddr := ":9091"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}

	// Consume every ambient notice the relay publishes. This worker is the
	// hook point for downstream delivery (webhooks, email digests); for now
	// it counts and logs.
	err = natsClient.SubscribeNotices(func(subject string, data []byte) {
		var notice protocol.NoticeMsg
		if err := json.Unmarshal(data, &notice); err != nil {
			log.Printf("[notifier] failed to unmarshal notice on %s: %v", subject, err)
			return
		}

		noticesTotal.WithLabelValues(notice.Event).Inc()
		log.Printf("[notifier] %s event=%s room=%s user=%s message=%s",
			subject, notice.Event, notice.RoomID, notice.UserID, notice.MessageID)
	})
	if err != nil {
		log.Fatalf("failed to subscribe to notices: %v", err)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server error: %v", err)
		}
	}()

	log.Printf("notifier running (nats=%s, metrics=%s)", natsConfig.URL, metricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down notifier...")
	natsClient.Close()
}
