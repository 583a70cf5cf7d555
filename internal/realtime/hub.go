package realtime

import (
	applog "github.com/abhisheksenku/paisatrack/internal/log"
)

// Broadcaster is the capability the write path and the alert evaluator
// hold instead of the hub itself, so both stay testable without a live
// network layer.
type Broadcaster interface {
	// Broadcast pushes payload under event to every current member of
	// the group. Delivery is fire-and-forget per recipient: a slow or
	// mid-teardown session is skipped, never an error to the caller.
	Broadcast(g Group, event string, payload interface{})
}

// Hub fans events out over the router's membership snapshots.
type Hub struct {
	router *Router
	logger *applog.Logger
}

func NewHub(router *Router, logger *applog.Logger) *Hub {
	return &Hub{
		router: router,
		logger: logger.WithComponent(applog.ComponentRealtime),
	}
}

func (h *Hub) Broadcast(g Group, event string, payload interface{}) {
	members := h.router.Members(g)
	if len(members) == 0 {
		return
	}

	env := Envelope{Event: event, Data: payload}
	delivered := 0
	for _, s := range members {
		if s.queue(env) {
			delivered++
		} else {
			h.logger.Debug("dropped message for slow session",
				applog.FieldSessionID, s.ID,
				applog.FieldEvent, event)
		}
	}

	h.logger.Debug("broadcast",
		applog.FieldGroup, g.String(),
		applog.FieldEvent, event,
		"delivered", delivered,
		"members", len(members))
}
