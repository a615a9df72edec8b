package orders

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"order-service/internal/clients"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// memStore keeps orders in insertion order.
type memStore struct {
	mu        sync.Mutex
	orders    []Order
	insertErr error
	findCalls int
}

func (m *memStore) Insert(_ context.Context, order *Order) (primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return primitive.NilObjectID, m.insertErr
	}
	stored := *order
	stored.ID = primitive.NewObjectID()
	m.orders = append(m.orders, stored)
	return stored.ID, nil
}

func (m *memStore) FindByID(_ context.Context, id primitive.ObjectID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	for _, o := range m.orders {
		if o.ID == id {
			found := o
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) List(_ context.Context, skip, limit int64) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Order{}
	for i := skip; i < int64(len(m.orders)) && int64(len(out)) < limit; i++ {
		out = append(out, m.orders[i])
	}
	return out, nil
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type fakeUsers struct {
	users map[int]clients.User
	err   error
	calls int
}

func (f *fakeUsers) GetUser(_ context.Context, id int) (*clients.User, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, clients.ErrNotFound
	}
	return &u, nil
}

type fakeInventory struct {
	items map[string]clients.InventoryItem
	err   error
	calls int
}

func (f *fakeInventory) GetItem(_ context.Context, id string) (*clients.InventoryItem, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	it, ok := f.items[id]
	if !ok {
		return nil, clients.ErrNotFound
	}
	return &it, nil
}

type recordedEvent struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, recordedEvent{subject: subject, data: data})
	return nil
}

var errBrokerDown = errors.New("nats: connection closed")
