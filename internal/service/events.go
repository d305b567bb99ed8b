package service

import "sync"

// Event es una notificacion sin payload: quien la recibe relee la sesion.
type Event int

const (
	EventAuthStateChanged Event = iota + 1
	EventProfileUpdated
)

func (e Event) String() string {
	switch e {
	case EventAuthStateChanged:
		return "auth_state_changed"
	case EventProfileUpdated:
		return "profile_updated"
	default:
		return "unknown"
	}
}

// Notifier recibe los eventos que publica el gestor de sesion.
type Notifier interface {
	Publish(Event)
}

// Broadcaster reparte cada evento a todos los suscriptores sin bloquear.
// Un suscriptor con el buffer lleno pierde el evento.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe devuelve el canal de eventos y la funcion para darse de baja.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *Broadcaster) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
