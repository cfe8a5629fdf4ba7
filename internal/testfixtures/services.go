package testfixtures

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/intellidesk/internal/application"
	"github.com/example/intellidesk/internal/equipment"
	"github.com/example/intellidesk/internal/persistence"
)

// CodeSecret is the access-code key used by factory-built equipment services.
const CodeSecret = "test-code-secret"

// ServiceFactory builds application services over one shared blob store with
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Blobs       persistence.BlobStore
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory backed by an in-memory blob store.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Blobs == nil {
		factory.Blobs = persistence.NewMemoryBlobStore()
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithBlobStore backs the factory's collections with store, e.g. a SQLiteHarness.
func WithBlobStore(store persistence.BlobStore) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Blobs = store
	}
}

// Meetings returns the meetings collection.
func (f *ServiceFactory) Meetings() *persistence.Collection[persistence.Meeting] {
	return persistence.NewCollection[persistence.Meeting](f.Blobs, persistence.CollectionMeetings)
}

// Equipment returns the equipment collection.
func (f *ServiceFactory) Equipment() *persistence.Collection[persistence.Equipment] {
	return persistence.NewCollection[persistence.Equipment](f.Blobs, persistence.CollectionEquipment)
}

// Tickets returns the tickets collection.
func (f *ServiceFactory) Tickets() *persistence.Collection[persistence.Ticket] {
	return persistence.NewCollection[persistence.Ticket](f.Blobs, persistence.CollectionTickets)
}

// MeetingServiceDeps captures optional collaborators for a meeting service.
type MeetingServiceDeps struct {
	Rooms    []application.Room
	Bridge   application.BridgeProvisioner
	Notifier application.Notifier
	Audit    application.AuditRecorder
	Logger   *slog.Logger
}

// NewMeetingService builds a meeting service. An empty room list uses Rooms().
func (f *ServiceFactory) NewMeetingService(deps MeetingServiceDeps) *application.MeetingService {
	rooms := deps.Rooms
	if len(rooms) == 0 {
		rooms = Rooms()
	}
	svc := application.NewMeetingServiceWithLogger(
		f.Meetings(),
		application.NewRoomServiceWithLogger(rooms, deps.Logger),
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		deps.Logger,
	)
	svc.UseProvisioning(deps.Bridge, deps.Notifier)
	svc.UseAudit(deps.Audit)
	return svc
}

// EquipmentServiceDeps captures optional collaborators for an equipment service.
type EquipmentServiceDeps struct {
	Catalog  []application.EquipmentItem
	Notifier application.Notifier
	Audit    application.AuditRecorder
	Logger   *slog.Logger
}

// NewEquipmentService builds an equipment service keyed with CodeSecret and
// seeded with deps.Catalog, or EquipmentCatalog() when empty.
func (f *ServiceFactory) NewEquipmentService(deps EquipmentServiceDeps) (*application.EquipmentService, error) {
	hasher, err := equipment.NewHasher(CodeSecret)
	if err != nil {
		return nil, err
	}
	svc := application.NewEquipmentServiceWithLogger(f.Equipment(), hasher, f.Clock.NowFunc(), deps.Logger)
	svc.UseNotifier(deps.Notifier)
	svc.UseAudit(deps.Audit)

	catalog := deps.Catalog
	if len(catalog) == 0 {
		catalog = EquipmentCatalog()
	}
	if _, err := svc.Seed(context.Background(), catalog); err != nil {
		return nil, err
	}
	return svc, nil
}

// TicketServiceDeps captures optional collaborators for a ticket service.
type TicketServiceDeps struct {
	Troubleshooter application.Troubleshooter
	Admins         []string
	Audit          application.AuditRecorder
	Logger         *slog.Logger
}

// NewTicketService builds a ticket service.
func (f *ServiceFactory) NewTicketService(deps TicketServiceDeps) *application.TicketService {
	svc := application.NewTicketServiceWithLogger(
		f.Tickets(),
		deps.Troubleshooter,
		deps.Admins,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		deps.Logger,
	)
	svc.UseAudit(deps.Audit)
	return svc
}
