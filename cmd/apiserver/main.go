// Command apiserver runs the decentralized marketplace's HTTP API: it syncs
// the local ledger mirror in the background, folds the token ledger and
// reward state off that sync, and serves the signed-request HTTP surface
// over the resulting SQL index, generalized from the teacher's single
// wallet server binary (walletserver/main.go) to the full system.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"decent-cloud/internal/api"
	"decent-cloud/internal/config"
	"decent-cloud/internal/delegation"
	"decent-cloud/internal/ledger"
	"decent-cloud/internal/notify"
	"decent-cloud/internal/offering"
	"decent-cloud/internal/paymentclients"
	"decent-cloud/internal/rewards"
	"decent-cloud/internal/store"
	"decent-cloud/internal/token"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("apiserver: config load failed")
	}

	db, err := store.Open(cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("apiserver: store open failed")
	}
	defer db.Close()

	mirror, err := ledger.OpenMirror(cfg.LedgerDir)
	if err != nil {
		log.WithError(err).Fatal("apiserver: ledger mirror open failed")
	}
	defer mirror.Close()

	tokens := token.NewLedger()
	if n, err := ledger.ReplayMirror(mirror, ledger.TokenOnlyDispatcher(tokens), logrus.NewEntry(log)); err != nil {
		log.WithError(err).Fatal("apiserver: token ledger replay failed")
	} else {
		log.WithField("blocks", n).Info("apiserver: replayed mirror into token ledger")
	}

	dispatcher := ledger.MultiDispatcher(db, tokens)
	upstream := ledger.NewHTTPUpstream(cfg.FrontendURL)
	syncEngine := ledger.NewEngine(upstream, mirror, db, dispatcher, logrus.NewEntry(log))

	rewardEngine := rewards.NewEngine(tokens, db, db, db)
	offerings := offering.NewRegistry()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go syncEngine.Run(ctx, 5*time.Second)
	go runRewardLoop(ctx, rewardEngine, log)
	go runHeartbeatSweep(ctx, db, log)

	emailSender := paymentclients.LoggingSender{Log: log}
	notifyDispatcher := notify.NewDispatcher(map[notify.Channel]notify.Sender{notify.ChannelEmail: emailSender}, log)
	go notifyDispatcher.Run(ctx, map[notify.Channel]notify.Sender{notify.ChannelEmail: emailSender})
	notifier := paymentclients.DispatcherNotifier{Dispatcher: notifyDispatcher}
	srv := &api.Server{
		Log:          log,
		Accounts:     db,
		Delegations:  db,
		Contracts:    db,
		Offerings:    offerings,
		OfferingReg:  offerings,
		Tokens:       tokens,
		Rewards:      rewardEngine,
		StripeClient: paymentclients.NoopStripeClient{},
		ICPayClient:  paymentclients.NoopICPayClient{},
		ReceiptSeq:   db,
		Invoices:     paymentclients.NoInvoiceRenderer{},
		Notifier:     notifier,
	}

	r := mux.NewRouter()
	api.Register(r, srv)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.WithField("port", cfg.APIPort).Info("apiserver: listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("apiserver: serve failed")
	}
}

func runRewardLoop(ctx context.Context, engine *rewards.Engine, log *logrus.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := engine.Distribute(ctx, time.Now().UnixNano()); err != nil {
				log.WithError(err).Warn("apiserver: reward distribution tick failed")
			}
		}
	}
}

func runHeartbeatSweep(ctx context.Context, delegations delegation.Store, log *logrus.Logger) {
	ticker := time.NewTicker(delegation.HeartbeatStaleAfter)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := delegation.SweepStaleHeartbeats(ctx, delegations, time.Now().UnixNano()); err != nil {
				log.WithError(err).Warn("apiserver: heartbeat sweep failed")
			}
		}
	}
}
