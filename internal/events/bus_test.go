package events

import "testing"

func TestPublishRoutesByType(t *testing.T) {
	bus := NewBus()
	var created, deleted int
	bus.Subscribe(AgendaCreated, func(Event) { created++ })
	bus.Subscribe(AgendaDeleted, func(Event) { deleted++ })

	bus.Publish(AgendaCreated, nil)
	bus.Publish(AgendaCreated, map[string]any{"box_id": 1})

	if created != 2 || deleted != 0 {
		t.Fatalf("expected 2 created / 0 deleted, got %d/%d", created, deleted)
	}
}

func TestSubscribeAllSeesEveryType(t *testing.T) {
	bus := NewBus()
	var all []Type
	bus.SubscribeAll(func(e Event) { all = append(all, e.Type) })

	bus.Publish(AgendaCreated, nil)
	bus.Publish(BoxStateChanged, nil)

	if len(all) != 2 || all[0] != AgendaCreated || all[1] != BoxStateChanged {
		t.Fatalf("unexpected events %v", all)
	}
}

func TestPublishDetailsReachHandler(t *testing.T) {
	bus := NewBus()
	var got Event
	bus.Subscribe(AgendaReassigned, func(e Event) { got = e })

	bus.Publish(AgendaReassigned, map[string]any{"appointment_id": int64(7)})
	if got.Details["appointment_id"] != int64(7) {
		t.Fatalf("unexpected details %+v", got.Details)
	}
	if got.At.IsZero() {
		t.Fatal("expected a timestamp")
	}
}
