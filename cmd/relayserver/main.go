package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/courier/chat-relay/internal/identity"
	"github.com/courier/chat-relay/internal/message"
	"github.com/courier/chat-relay/internal/messaging"
	"github.com/courier/chat-relay/internal/metrics"
	"github.com/courier/chat-relay/internal/notify"
	"github.com/courier/chat-relay/internal/presence"
	"github.com/courier/chat-relay/internal/protocol"
	"github.com/courier/chat-relay/internal/ratelimit"
	"github.com/courier/chat-relay/internal/room"
	"github.com/courier/chat-relay/internal/router"
	"github.com/courier/chat-relay/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	metricsAddr := ":9090"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}

	// --- PostgreSQL ---
	// An empty DATABASE_URL runs the relay on in-memory stores; messages
	// and identities then live only as long as the process.
	var (
		identityStore identity.Store
		messageStore  message.Store
		db            *sql.DB
	)
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		var err error
		db, err = sql.Open("postgres", dbURL)
		if err != nil {
			log.Fatalf("failed to open postgres: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		if err := runMigrations(db); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		identityStore = identity.NewPostgresStore(db)
		messageStore = message.NewPostgresStore(db)
	} else {
		log.Printf("DATABASE_URL not set, using in-memory stores")
		identityStore = identity.NewMemoryStore()
		messageStore = message.NewMemoryStore()
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	pingCancel()

	// --- NATS ---
	natsConfig := messaging.DefaultConfig()
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig.URL = natsURL
	}
	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	log.Printf("chat-relay server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  metrics_addr:    %s", metricsAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  read_timeout:    %s", config.ReadTimeout)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)
	log.Printf("  nats_url:        %s", natsConfig.URL)
	log.Printf("  redis_addr:      %s", redisAddr)

	broadcaster := notify.NewBroadcaster(natsClient)

	rt := router.New(router.Config{
		Identities: identity.NewRegistry(identityStore),
		Presence:   presence.NewTracker(),
		Rooms:      room.NewIndex(),
		Store:      messageStore,
		Notify:     broadcaster,
		Limiter:    ratelimit.NewLimiter(rdb),
		Mirror:     presence.NewMirror(rdb),
	})
	broadcaster.SetLocal(rt)

	dispatcher := ws.NewMessageDispatcher(nil)

	dispatcher.Register(protocol.TypeJoin, func(conn *ws.Connection, msg interface{}) {
		join, ok := msg.(protocol.JoinMsg)
		if !ok {
			return
		}
		rt.HandleJoin(context.Background(), conn, join)
	})

	dispatcher.Register(protocol.TypeRoomJoin, func(conn *ws.Connection, msg interface{}) {
		rm, ok := msg.(protocol.RoomMsg)
		if !ok {
			return
		}
		rt.HandleRoomJoin(context.Background(), conn, rm.RoomID)
	})

	dispatcher.Register(protocol.TypeRoomLeave, func(conn *ws.Connection, msg interface{}) {
		rm, ok := msg.(protocol.RoomMsg)
		if !ok {
			return
		}
		rt.HandleRoomLeave(context.Background(), conn, rm.RoomID)
	})

	dispatcher.Register(protocol.TypeSend, func(conn *ws.Connection, msg interface{}) {
		send, ok := msg.(protocol.SendMsg)
		if !ok {
			return
		}
		rt.HandleSend(context.Background(), conn, send, func(m *message.Message, err error) {
			ack := protocol.MessageAckMsg{AckID: send.AckID, OK: err == nil, Message: m}
			if err != nil {
				ack.Error = &protocol.AckError{Code: ackErrorCode(err), Message: err.Error()}
			}
			data, encErr := protocol.NewServerMessage(protocol.TypeMessageAck, ack)
			if encErr != nil {
				log.Printf("failed to build ack for session=%s: %v", conn.ID, encErr)
				return
			}
			if writeErr := conn.WriteMessage(data); writeErr != nil {
				log.Printf("failed to send ack to session=%s: %v", conn.ID, writeErr)
			}
		})
	})

	dispatcher.Register(protocol.TypePrivate, func(conn *ws.Connection, msg interface{}) {
		pm, ok := msg.(protocol.PrivateMsg)
		if !ok {
			return
		}
		rt.HandlePrivate(context.Background(), conn, pm)
	})

	dispatcher.Register(protocol.TypeRead, func(conn *ws.Connection, msg interface{}) {
		receipt, ok := msg.(protocol.ReceiptMsg)
		if !ok {
			return
		}
		rt.HandleRead(context.Background(), receipt.MessageID, receipt.UserID)
	})

	dispatcher.Register(protocol.TypeReact, func(conn *ws.Connection, msg interface{}) {
		react, ok := msg.(protocol.ReactMsg)
		if !ok {
			return
		}
		rt.HandleReaction(context.Background(), react.MessageID, react.Emoji, react.UserID)
	})

	dispatcher.Register(protocol.TypeDelivered, func(conn *ws.Connection, msg interface{}) {
		receipt, ok := msg.(protocol.ReceiptMsg)
		if !ok {
			return
		}
		rt.HandleDelivered(context.Background(), receipt.MessageID, receipt.UserID)
	})

	dispatcher.Register(protocol.TypeDelete, func(conn *ws.Connection, msg interface{}) {
		receipt, ok := msg.(protocol.ReceiptMsg)
		if !ok {
			return
		}
		rt.HandleDelete(context.Background(), receipt.MessageID, receipt.UserID)
	})

	typingHandler := func(conn *ws.Connection, msg interface{}) {
		typing, ok := msg.(protocol.TypingMsg)
		if !ok {
			return
		}
		rt.HandleTyping(conn, typing.Type, typing.RoomID, typing.User)
	}
	dispatcher.Register(protocol.TypeTypingStart, typingHandler)
	dispatcher.Register(protocol.TypeTypingStop, typingHandler)

	server := ws.NewServer(config, dispatcher.Dispatch)
	dispatcher.SetServer(server)

	server.SetOnConnect(func(conn *ws.Connection) {
		rt.Connect(conn)
	})
	server.SetOnDisconnect(func(connID string) {
		rt.Disconnect(context.Background(), connID)
	})

	// Prometheus metrics endpoint.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server error: %v", err)
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		natsClient.Close()
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if err := rdb.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
		if db != nil {
			if err := db.Close(); err != nil {
				log.Printf("postgres close error: %v", err)
			}
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// runMigrations applies any pending schema migrations from the migrations
// directory against the open database handle.
func runMigrations(db *sql.DB) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return err
	}

	sourceURL := "file://migrations"
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		sourceURL = "file://" + v
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// ackErrorCode maps a send failure to the wire-level error code.
func ackErrorCode(err error) string {
	var verr *router.ValidationError
	switch {
	case errors.As(err, &verr):
		return "invalid_message"
	case errors.Is(err, router.ErrRateLimited):
		return "rate_limited"
	default:
		return "storage_error"
	}
}
