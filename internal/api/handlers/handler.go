package handlers

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dialworks/leadagent/internal/dialer"
	"github.com/dialworks/leadagent/internal/recorder"
	"github.com/dialworks/leadagent/internal/store"
	"github.com/dialworks/leadagent/pkg/env"
	"github.com/dialworks/leadagent/pkg/logger"
	"github.com/dialworks/leadagent/pkg/transcribe"
)

type Handler struct {
	cfg         *env.Config
	redisClient *redis.Client
	store       *store.Store
	dialer      *dialer.Dialer
	recorder    *recorder.Recorder
	transcriber transcribe.Transcriber
	logger      *zap.Logger
}

func NewHandler(
	cfg *env.Config,
	redisClient *redis.Client,
	st *store.Store,
	d *dialer.Dialer,
	rec *recorder.Recorder,
	trans transcribe.Transcriber,
) *Handler {
	return &Handler{
		cfg:         cfg,
		redisClient: redisClient,
		store:       st,
		dialer:      d,
		recorder:    rec,
		transcriber: trans,
		logger:      logger.Log,
	}
}
