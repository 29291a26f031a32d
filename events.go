package chips

import (
	"context"
	"fmt"
	"time"

	"github.com/rbaliyan/event/v3"
)

// Event names for photo events.
const (
	EventNamePhotoLoaded = "chips.photo.loaded"
	EventNamePhotoFailed = "chips.photo.failed"
)

// PhotoLoadedEvent is published when a thumbnail has been stored in an entry.
// Renderers use it to redraw the chip showing that entry.
type PhotoLoadedEvent struct {
	ContactID   int64     `json:"contact_id"`
	Destination string    `json:"destination"`
	URI         string    `json:"uri"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// PhotoFailedEvent is published when a thumbnail could not be loaded.
type PhotoFailedEvent struct {
	ContactID   int64     `json:"contact_id"`
	Destination string    `json:"destination"`
	URI         string    `json:"uri"`
	Attempts    int       `json:"attempts"`
	Error       string    `json:"error"`
	FailedAt    time.Time `json:"failed_at"`
}

// ServiceEvents provides access to per-service event instances.
// Each service creates its own events bound to its own event bus.
type ServiceEvents struct {
	// PhotoLoaded is published after a successful photo load.
	PhotoLoaded event.Event[PhotoLoadedEvent]

	// PhotoFailed is published after a photo load gives up.
	PhotoFailed event.Event[PhotoFailedEvent]
}

// newServiceEvents creates per-service event instances with a unique name prefix.
func newServiceEvents(namePrefix string) *ServiceEvents {
	return &ServiceEvents{
		PhotoLoaded: event.New[PhotoLoadedEvent](namePrefix + "." + EventNamePhotoLoaded),
		PhotoFailed: event.New[PhotoFailedEvent](namePrefix + "." + EventNamePhotoFailed),
	}
}

// registerServiceEvents registers per-service events with the given bus.
func registerServiceEvents(ctx context.Context, bus *event.Bus, events *ServiceEvents) error {
	if err := event.Register(ctx, bus, events.PhotoLoaded); err != nil {
		return fmt.Errorf("register PhotoLoaded: %w", err)
	}
	if err := event.Register(ctx, bus, events.PhotoFailed); err != nil {
		return fmt.Errorf("register PhotoFailed: %w", err)
	}
	return nil
}
