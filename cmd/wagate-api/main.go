package main

import (
	"context"
	"log"
	"net/http"

	"github.com/dmendiola/wagate/internal/adapters/auth"
	httpadapter "github.com/dmendiola/wagate/internal/adapters/http"
	"github.com/dmendiola/wagate/internal/adapters/qr"
	firestorestore "github.com/dmendiola/wagate/internal/adapters/storage/firestore"
	memstore "github.com/dmendiola/wagate/internal/adapters/storage/memory"
	mysqlstore "github.com/dmendiola/wagate/internal/adapters/storage/mysql"
	"github.com/dmendiola/wagate/internal/adapters/transcode"
	"github.com/dmendiola/wagate/internal/adapters/upload"
	"github.com/dmendiola/wagate/internal/adapters/wa"
	"github.com/dmendiola/wagate/internal/adapters/webhook"
	"github.com/dmendiola/wagate/internal/app/media"
	"github.com/dmendiola/wagate/internal/app/outbound"
	"github.com/dmendiola/wagate/internal/app/relay"
	"github.com/dmendiola/wagate/internal/app/session"
	"github.com/dmendiola/wagate/internal/config"
	"github.com/dmendiola/wagate/internal/domain"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	// Registration store: Firestore or Memory
	var regs domain.RegistrationStore
	switch cfg.StorageBackend {
	case "firestore":
		log.Printf("[STORE] Using Firestore registrations (project=%s)", cfg.GCPProjectID)
		fsStore, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			log.Fatalf("error initializing Firestore store: %v", err)
		}
		regs = fsStore
	default:
		log.Println("[STORE] Using in-memory registrations")
		regs = memstore.NewRegistrationStore()
	}

	// Licenses: MySQL when a DSN is configured, otherwise no quota checks
	var licenses domain.LicenseStore
	if cfg.MySQLDSN != "" {
		log.Println("[LICENSES] Using MySQL license store")
		store, err := mysqlstore.NewLicenseStore(cfg.MySQLDSN)
		if err != nil {
			log.Fatalf("error initializing license store: %v", err)
		}
		licenses = store
	} else {
		log.Println("[LICENSES] No DSN configured, quota checks disabled")
	}

	factory, err := wa.NewFactory(cfg.DataDir, cfg.DebugQR)
	if err != nil {
		log.Fatalf("error initializing client factory: %v", err)
	}

	uploader := upload.NewClient(cfg.UploadURL, cfg.UploadKey)
	transcoder := transcode.NewFFmpeg(cfg.FFmpegBin)
	pipeline := media.NewPipeline(uploader, transcoder, "")
	sender := webhook.NewSender(cfg.WebhookURL)
	inbound := relay.NewRelay(regs, pipeline, sender)

	store := session.NewStore()
	locks := session.NewPerKeyLock()
	lifecycle := session.NewLifecycle(store, locks, factory, regs,
		qr.NewEncoder(), inbound, cfg.QRTimeout)
	dispatcher := outbound.NewDispatcher(store, locks, factory, licenses)

	// Bring back every uid with persisted credentials before serving.
	lifecycle.RestoreAll(ctx)

	tokens := auth.NewJWTIssuer(cfg.JWTSecret, 0)
	handler := httpadapter.NewServer(lifecycle, dispatcher, regs, tokens)

	addr := ":" + cfg.Port
	log.Println("wagate API listening on", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatal(err)
	}
}
