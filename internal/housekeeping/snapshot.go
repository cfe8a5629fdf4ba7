package housekeeping

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/intellidesk/internal/flow"
	"github.com/example/intellidesk/internal/persistence"
)

// FlowExporter is the part of flow.Store a snapshot needs.
type FlowExporter interface {
	Export() []flow.Flow
	Import(flows []flow.Flow) int
}

// Snapshots saves active flows into the flow_snapshots collection on shutdown
// and loads them back at startup.
type Snapshots struct {
	records *persistence.Collection[flow.Flow]
	logger  *slog.Logger
}

// NewSnapshots binds snapshots to blobs.
func NewSnapshots(blobs persistence.BlobStore, logger *slog.Logger) *Snapshots {
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshots{
		records: persistence.NewCollection[flow.Flow](blobs, persistence.CollectionFlowSnapshots),
		logger:  logger.With("component", "snapshots"),
	}
}

// Save replaces the stored snapshot with store's active flows.
func (s *Snapshots) Save(ctx context.Context, store FlowExporter) (int, error) {
	flows := store.Export()
	if _, err := s.records.Mutate(ctx, func([]flow.Flow) ([]flow.Flow, error) {
		return flows, nil
	}); err != nil {
		return 0, fmt.Errorf("housekeeping: saving flow snapshot: %w", err)
	}
	s.logger.InfoContext(ctx, "flow snapshot saved", "flows", len(flows))
	return len(flows), nil
}

// Restore imports the stored snapshot into store and clears it, so a crash
// after restore does not resurrect flows that later completed. Expired
// flows are dropped by the import.
func (s *Snapshots) Restore(ctx context.Context, store FlowExporter) (int, error) {
	flows, err := s.records.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("housekeeping: reading flow snapshot: %w", err)
	}
	if len(flows) == 0 {
		return 0, nil
	}
	loaded := store.Import(flows)
	if _, err := s.records.Mutate(ctx, func([]flow.Flow) ([]flow.Flow, error) {
		return nil, nil
	}); err != nil {
		return loaded, fmt.Errorf("housekeeping: clearing flow snapshot: %w", err)
	}
	s.logger.InfoContext(ctx, "flow snapshot restored", "stored", len(flows), "loaded", loaded)
	return loaded, nil
}

// ImportJSON decodes a flows.json dump and merges it into the stored
// snapshot, so the next Restore picks the flows up. Flows already in the
// snapshot are replaced by id.
func (s *Snapshots) ImportJSON(ctx context.Context, data []byte) (int, error) {
	imported, err := flow.DecodeJSONDump(data)
	if err != nil {
		return 0, fmt.Errorf("housekeeping: importing flows: %w", err)
	}
	usable := imported[:0]
	for _, f := range imported {
		if f.UserID == "" {
			s.logger.WarnContext(ctx, "skipping flow without owner", "flow_id", f.ID)
			continue
		}
		usable = append(usable, f)
	}
	if len(usable) == 0 {
		return 0, nil
	}

	if _, err := s.records.Mutate(ctx, func(current []flow.Flow) ([]flow.Flow, error) {
		out := append([]flow.Flow(nil), current...)
		byID := make(map[string]int, len(out))
		for i, f := range out {
			byID[f.ID] = i
		}
		for _, f := range usable {
			if i, ok := byID[f.ID]; ok {
				out[i] = f
				continue
			}
			byID[f.ID] = len(out)
			out = append(out, f)
		}
		return out, nil
	}); err != nil {
		return 0, fmt.Errorf("housekeeping: storing imported flows: %w", err)
	}
	s.logger.InfoContext(ctx, "flows imported into snapshot", "flows", len(usable))
	return len(usable), nil
}
