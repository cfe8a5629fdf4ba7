package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/example/intellidesk/internal/application"
	"github.com/example/intellidesk/internal/audit"
	"github.com/example/intellidesk/internal/config"
	"github.com/example/intellidesk/internal/conversation"
	"github.com/example/intellidesk/internal/equipment"
	"github.com/example/intellidesk/internal/flow"
	"github.com/example/intellidesk/internal/housekeeping"
	"github.com/example/intellidesk/internal/llm"
	"github.com/example/intellidesk/internal/persistence"
	"github.com/example/intellidesk/internal/persistence/sqlite"
	"github.com/example/intellidesk/internal/provisioning"
)

// app holds the wired services shared by serve and chat.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	storage *sqlite.Store
	trail   *audit.Trail

	flows     *flow.MemoryStore
	rooms     *application.RoomService
	meetings  *application.MeetingService
	equipment *application.EquipmentService
	tickets   *application.TicketService
	admin     *application.AdminService
	engine    *conversation.Engine

	janitor   *housekeeping.Janitor
	snapshots *housekeeping.Snapshots
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	storage, err := sqlite.Open(sqlite.DefaultConfig(cfg.SQLiteDSN))
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	storage.KeepHistory(cfg.HistoryRetention)
	a := &app{cfg: cfg, logger: logger, storage: storage}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err = storage.Migrate(ctx, logger); err != nil {
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	var (
		recorder application.AuditRecorder
		reader   application.AuditReader
	)
	if cfg.AuditLogPath != "" {
		if a.trail, err = audit.Open(cfg.AuditLogPath); err != nil {
			return nil, fmt.Errorf("opening audit log: %w", err)
		}
		recorder, reader = a.trail, a.trail
	}

	var notifier application.Notifier = provisioning.NewLogNotifier(logger)
	if cfg.SMTPEnabled() {
		notifier = provisioning.NewSMTPNotifier(provisioning.SMTPConfig{
			Addr:     cfg.SMTPAddr,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			Domain:   cfg.SMTPDomain,
		})
	}
	bridge := provisioning.NewWebexClient(&http.Client{Timeout: cfg.AdapterTimeout}, cfg.BridgeURL, cfg.BridgeTokens)

	hasher, err := equipment.NewHasher(cfg.CodeSecret)
	if err != nil {
		return nil, fmt.Errorf("configuring access codes: %w", err)
	}

	a.rooms = application.NewRoomServiceWithLogger(catalog.RoomList(), logger)

	meetingRecords := persistence.NewCollection[persistence.Meeting](storage, persistence.CollectionMeetings)
	equipmentRecords := persistence.NewCollection[persistence.Equipment](storage, persistence.CollectionEquipment)
	ticketRecords := persistence.NewCollection[persistence.Ticket](storage, persistence.CollectionTickets)

	a.meetings = application.NewMeetingServiceWithLogger(meetingRecords, a.rooms, nil, nil, logger)
	a.meetings.UseProvisioning(bridge, notifier)
	a.meetings.UseAudit(recorder)

	a.equipment = application.NewEquipmentServiceWithLogger(equipmentRecords, hasher, nil, logger)
	a.equipment.UseNotifier(notifier)
	a.equipment.UseAudit(recorder)
	if _, err = a.equipment.Seed(ctx, catalog.EquipmentList()); err != nil {
		return nil, fmt.Errorf("seeding equipment: %w", err)
	}

	model := llm.NewClient(&http.Client{}, cfg.LLMURL)
	a.tickets = application.NewTicketServiceWithLogger(
		ticketRecords,
		llm.NewTroubleshooter(model, cfg.TicketModel),
		cfg.Admins, nil, nil, logger,
	)
	a.tickets.UseTroubleshootTimeout(cfg.AdapterTimeout)
	a.tickets.UseAudit(recorder)
	a.admin = application.NewAdminService(meetingRecords, ticketRecords, equipmentRecords, reader, logger)

	a.flows = flow.NewMemoryStore(flow.WithTTL(cfg.FlowTTL))
	a.engine = conversation.NewEngineWithLogger(
		a.flows,
		llm.NewRouter(model, cfg.ClassifierModel),
		llm.NewExtractor(model, cfg.ExtractorModel),
		conversation.Services{Meetings: a.meetings, Equipment: a.equipment, Tickets: a.tickets},
		conversation.Config{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			HistoryWindow:       cfg.HistoryWindow,
			AdapterTimeout:      cfg.AdapterTimeout,
		},
		logger,
	)
	a.engine.UseAudit(recorder)

	a.janitor = housekeeping.NewJanitor(a.flows, a.equipment, cfg.SweepInterval, logger)
	a.snapshots = housekeeping.NewSnapshots(storage, logger)
	return a, nil
}

// Close releases the audit log and storage.
func (a *app) Close() error {
	var errs []error
	if a.trail != nil {
		if err := a.trail.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing audit log: %w", err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
