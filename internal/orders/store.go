package orders

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultListLimit is used when a caller does not bound a listing.
const DefaultListLimit = 100

// Store persists orders. Failures of the backing store are *DatabaseError.
type Store interface {
	// Insert writes order and returns the identifier assigned to it.
	Insert(ctx context.Context, order *Order) (primitive.ObjectID, error)
	// FindByID returns ErrNotFound when no order has id.
	FindByID(ctx context.Context, id primitive.ObjectID) (*Order, error)
	// List returns orders in the store's natural order.
	List(ctx context.Context, skip, limit int64) ([]Order, error)
	// Ping checks that the store answers.
	Ping(ctx context.Context) error
}

// MongoStore is a Store over a MongoDB collection.
type MongoStore struct {
	coll *mongo.Collection
	log  *logrus.Entry
}

// NewMongoStore returns a Store over coll. Documents use the bson tags of
// Order; _id is generated by the driver on insert.
func NewMongoStore(coll *mongo.Collection, logger *logrus.Entry) *MongoStore {
	return &MongoStore{coll: coll, log: logger.WithField("collection", coll.Name())}
}

// Insert writes order with InsertOne and returns the generated ObjectID.
func (s *MongoStore) Insert(ctx context.Context, order *Order) (primitive.ObjectID, error) {
	res, err := s.coll.InsertOne(ctx, order)
	if err != nil {
		return primitive.NilObjectID, &DatabaseError{Op: "insert", Err: err}
	}
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, &DatabaseError{Op: "insert", Err: errors.New("inserted id is not an ObjectID")}
	}
	return id, nil
}

// FindByID maps mongo.ErrNoDocuments to ErrNotFound.
func (s *MongoStore) FindByID(ctx context.Context, id primitive.ObjectID) (*Order, error) {
	var order Order
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &DatabaseError{Op: "find", Err: err}
	}
	return &order, nil
}

// List pages through the collection in natural order. Documents that do
// not decode are logged and skipped. An empty page is a non-nil empty slice.
func (s *MongoStore) List(ctx context.Context, skip, limit int64) ([]Order, error) {
	cursor, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSkip(skip).SetLimit(limit))
	if err != nil {
		return nil, &DatabaseError{Op: "list", Err: err}
	}
	defer cursor.Close(ctx)

	orders := []Order{}
	for cursor.Next(ctx) {
		var order Order
		if err := cursor.Decode(&order); err != nil {
			s.log.WithContext(ctx).WithError(err).Error("Skipping undecodable order document")
			continue
		}
		orders = append(orders, order)
	}
	if err := cursor.Err(); err != nil {
		return nil, &DatabaseError{Op: "list", Err: err}
	}
	return orders, nil
}

// Ping runs the ping command against the collection's database.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.coll.Database().RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return &DatabaseError{Op: "ping", Err: err}
	}
	return nil
}
