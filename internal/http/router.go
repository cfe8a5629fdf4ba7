package http

import (
	"net/http"
)

type RouterConfig struct {
	Chat      *ChatHandler
	Meetings  *MeetingHandler
	Rooms     *RoomHandler
	Equipment *EquipmentHandler
	Tickets   *TicketHandler
	Admin     *AdminHandler
	// Middleware wraps every route except /healthz, outermost first.
	Middleware []func(http.Handler) http.Handler
	// ChatMiddleware additionally wraps the chat routes, e.g. RateLimit.
	ChatMiddleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	api := http.NewServeMux()

	if cfg.Chat != nil {
		api.Handle("POST /chat", chain(http.HandlerFunc(cfg.Chat.Post), cfg.ChatMiddleware))
		api.Handle("DELETE /chat/flows/{id}", chain(http.HandlerFunc(cfg.Chat.CancelFlow), cfg.ChatMiddleware))
	}

	if cfg.Meetings != nil {
		api.HandleFunc("GET /meetings", cfg.Meetings.List)
		api.HandleFunc("POST /meetings", cfg.Meetings.Create)
		api.HandleFunc("GET /meetings/{id}", cfg.Meetings.Get)
		api.HandleFunc("DELETE /meetings/{id}", cfg.Meetings.Delete)
	}

	if cfg.Rooms != nil {
		api.HandleFunc("GET /rooms", cfg.Rooms.List)
	}

	if cfg.Equipment != nil {
		api.HandleFunc("GET /equipment", cfg.Equipment.List)
		api.HandleFunc("POST /equipment/requests", cfg.Equipment.CreateRequest)
		api.HandleFunc("POST /equipment/approvals", cfg.Equipment.Approve)
		api.HandleFunc("POST /equipment/{id}/return", cfg.Equipment.Return)
		api.HandleFunc("POST /equipment/{id}/verify", cfg.Equipment.Verify)
	}

	if cfg.Tickets != nil {
		api.HandleFunc("GET /tickets", cfg.Tickets.List)
		api.HandleFunc("POST /tickets", cfg.Tickets.Create)
		api.HandleFunc("GET /tickets/{id}", cfg.Tickets.Get)
		api.HandleFunc("POST /tickets/{id}/escalate", cfg.Tickets.Escalate)
		api.HandleFunc("POST /tickets/{id}/close", cfg.Tickets.Close)
	}

	if cfg.Admin != nil {
		api.HandleFunc("GET /admin/overview", cfg.Admin.Overview)
		api.HandleFunc("GET /admin/audit-log", cfg.Admin.AuditLog)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	root.Handle("/", chain(api, cfg.Middleware))
	return root
}

func chain(handler http.Handler, middleware []func(http.Handler) http.Handler) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		if middleware[i] != nil {
			handler = middleware[i](handler)
		}
	}
	return handler
}
