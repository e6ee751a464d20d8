package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ideahub/chat-service/internal/broker"
	"github.com/ideahub/chat-service/internal/fanout"
	"github.com/ideahub/chat-service/internal/messaging"
	"github.com/ideahub/chat-service/internal/metrics"
)

func main() {
	kafkaBrokers := "localhost:9092"
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		kafkaBrokers = v
	}
	groupID := "chat-fanout"
	if v := os.Getenv("KAFKA_GROUP_ID"); v != "" {
		groupID = v
	}
	metricsAddr := ":9091"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}

	natsConfig := messaging.DefaultConfig()
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig.URL = natsURL
	}
	natsConfig.Name = "chat-distributor"
	natsClient, err := messaging.Connect(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	distributor := fanout.NewDistributor(natsClient)
	pipeline, err := broker.NewPipeline(broker.PipelineConfig{
		Brokers: kafkaBrokers,
		Topic:   broker.Topic,
		GroupID: groupID,
		Policy:  broker.DefaultRetryPolicy(),
	}, func(ctx context.Context, key, value []byte) error {
		return distributor.Handle(ctx, string(key), value)
	})
	if err != nil {
		log.Fatalf("failed to create broker pipeline: %v", err)
	}

	log.Printf("chat distributor starting")
	log.Printf("  kafka_brokers: %s", kafkaBrokers)
	log.Printf("  group_id:      %s", groupID)
	log.Printf("  nats_url:      %s", natsConfig.URL)
	log.Printf("  metrics_addr:  %s", metricsAddr)

	// Ops endpoint: metrics and liveness.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		cancel()
	}()

	if err := pipeline.Run(ctx); err != nil {
		log.Printf("pipeline error: %v", err)
	}

	pipeline.Close()
	natsClient.Close()
	log.Printf("chat distributor stopped")
}
