package handler

import (
	"github.com/prometheus/client_golang/prometheus"

	"dmchat/internal/app/gateway"
	"dmchat/internal/app/message"
	"dmchat/internal/app/storage"
	"dmchat/internal/app/user"
	"dmchat/internal/configs"
)

// AppDeps is everything the HTTP layer needs.
type AppDeps struct {
	Config   *configs.AppConfig
	Users    user.Store
	Messages *message.Service
	Gateway  *gateway.Gateway

	// Storage is nil when object storage is not configured.
	Storage storage.StorageService

	Gatherer prometheus.Gatherer
}
