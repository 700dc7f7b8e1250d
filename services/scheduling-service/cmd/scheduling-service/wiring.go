package main

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/libs/grpcx"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/dispatch"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/email"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/ledger"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/settings"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/sms"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func newLedger(cfg settings.Settings, pool *db.Pool, rdb *redis.Client, outboxRepo *outbox.Repository) (ledger.Store, error) {
	switch cfg.LedgerBackend {
	case settings.LedgerPostgres:
		return ledger.NewPostgres(pool, outboxRepo, cfg.LedgerClaimTTL), nil
	case settings.LedgerRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis ledger: no redis client")
		}
		return ledger.NewRedis(rdb, cfg.Service+":ledger", cfg.LedgerClaimTTL), nil
	case settings.LedgerMemory:
		return ledger.NewMemory(cfg.LedgerClaimTTL), nil
	default:
		return nil, fmt.Errorf("%w: %q", ledger.ErrUnknownBackend, cfg.LedgerBackend)
	}
}

func newTransports(cfg settings.Settings, logger *slog.Logger) map[model.Channel]dispatch.Transport {
	return map[model.Channel]dispatch.Transport{
		model.ChannelEmail:    email.NewSMTPSender(cfg.SMTP),
		model.ChannelSMS:      webhookTransport("sms", cfg.SMS, logger),
		model.ChannelWhatsApp: webhookTransport("whatsapp", cfg.WhatsApp, logger),
	}
}

func webhookTransport(channel string, hook settings.Webhook, logger *slog.Logger) dispatch.Transport {
	switch hook.Provider {
	case "webhook":
		return sms.NewWebhookSender(channel, hook.URL, hook.Token)
	case "noop", "":
		logger.Warn("reminder channel uses the noop provider", "channel", channel)
		return sms.NewNoopSender(channel)
	default:
		logger.Warn("unknown provider, falling back to webhook", "channel", channel, "provider", hook.Provider)
		return sms.NewWebhookSender(channel, hook.URL, hook.Token)
	}
}

// startGRPC serves the standard health service so orchestrators can health-check the sweep
// process over gRPC as well as HTTP.
func startGRPC(port string, logger *slog.Logger) (*grpc.Server, *health.Server, error) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, nil, err
	}
	srv := grpcx.NewServer(logger)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("slotkeeper.scheduling", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	return srv, hs, nil
}
