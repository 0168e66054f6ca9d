package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type orderDoc struct {
	ID              string         `bson:"_id"`
	UserID          string         `bson:"userId"`
	Items           []itemDoc      `bson:"orderItems"`
	ShippingAddress Address        `bson:"shippingAddress"`
	PaymentMethod   PaymentMethod  `bson:"paymentMethod"`
	PaymentResult   *PaymentRecord `bson:"paymentResult,omitempty"`
	PaymentIntent   *PaymentIntent `bson:"paymentIntent,omitempty"`
	TotalPrice      string         `bson:"totalPrice"`
	IsPaid          bool           `bson:"isPaid"`
	PaidAt          *time.Time     `bson:"paidAt,omitempty"`
	IsDelivered     bool           `bson:"isDelivered"`
	DeliveredAt     *time.Time     `bson:"deliveredAt,omitempty"`
	IdempotencyKey  string         `bson:"idempotencyKey,omitempty"`
	Version         int            `bson:"version"`
	CreatedAt       time.Time      `bson:"createdAt"`
	UpdatedAt       time.Time      `bson:"updatedAt"`
}

type itemDoc struct {
	ProductID string `bson:"product"`
	Name      string `bson:"name"`
	Quantity  int    `bson:"qty"`
	UnitPrice string `bson:"price"`
	Image     string `bson:"image,omitempty"`
}

func toDoc(o *Order) orderDoc {
	d := orderDoc{
		ID:              o.ID,
		UserID:          o.UserID,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		PaymentResult:   RecordOf(o.Payment),
		PaymentIntent:   o.Intent,
		TotalPrice:      o.TotalPrice.String(),
		IsPaid:          o.IsPaid,
		PaidAt:          o.PaidAt,
		IsDelivered:     o.IsDelivered,
		DeliveredAt:     o.DeliveredAt,
		IdempotencyKey:  o.IdempotencyKey,
		Version:         o.Version,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, it := range o.Items {
		d.Items = append(d.Items, itemDoc{
			ProductID: it.ProductID, Name: it.Name, Quantity: it.Quantity,
			UnitPrice: it.UnitPrice.String(), Image: it.Image,
		})
	}
	return d
}

func (d orderDoc) order() (*Order, error) {
	total, err := decimal.NewFromString(d.TotalPrice)
	if err != nil {
		return nil, fmt.Errorf("order %s: bad total %q: %w", d.ID, d.TotalPrice, err)
	}
	o := &Order{
		ID:              d.ID,
		UserID:          d.UserID,
		ShippingAddress: d.ShippingAddress,
		PaymentMethod:   d.PaymentMethod,
		Intent:          d.PaymentIntent,
		TotalPrice:      total,
		IsPaid:          d.IsPaid,
		PaidAt:          utcPtr(d.PaidAt),
		IsDelivered:     d.IsDelivered,
		DeliveredAt:     utcPtr(d.DeliveredAt),
		IdempotencyKey:  d.IdempotencyKey,
		Version:         d.Version,
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
	if o.Payment, err = d.PaymentResult.Result(); err != nil {
		return nil, fmt.Errorf("order %s: %w", d.ID, err)
	}
	for _, it := range d.Items {
		price, err := decimal.NewFromString(it.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("order %s: bad unit price %q: %w", d.ID, it.UnitPrice, err)
		}
		o.Items = append(o.Items, Item{
			ProductID: it.ProductID, Name: it.Name, Quantity: it.Quantity, UnitPrice: price, Image: it.Image,
		})
	}
	return o, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// MongoRepo keeps each order with its items as a single document.
type MongoRepo struct{ col *mongo.Collection }

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	return &MongoRepo{col: db.Collection("orders")}
}

func (r *MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "idempotencyKey", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"idempotencyKey": bson.M{"$type": "string"}}),
		},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "isPaid", Value: 1}, {Key: "paymentIntent.startedAt", Value: 1}}},
	})
	return err
}

func (r *MongoRepo) Create(ctx context.Context, o *Order) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, toDoc(o)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (r *MongoRepo) GetByID(ctx context.Context, id string) (*Order, error) {
	return r.one(ctx, bson.M{"_id": id})
}

func (r *MongoRepo) FindByIdempotencyKey(ctx context.Context, userID, key string) (*Order, error) {
	return r.one(ctx, bson.M{"userId": userID, "idempotencyKey": key})
}

func (r *MongoRepo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return r.find(ctx, bson.M{"userId": userID}, bson.D{{Key: "createdAt", Value: -1}})
}

func (r *MongoRepo) ListAll(ctx context.Context) ([]Order, error) {
	return r.find(ctx, bson.M{}, bson.D{{Key: "createdAt", Value: -1}})
}

func (r *MongoRepo) ListPendingPayments(ctx context.Context, startedBefore time.Time) ([]Order, error) {
	filter := bson.M{
		"isPaid":                  false,
		"paymentIntent.startedAt": bson.M{"$lt": startedBefore},
	}
	return r.find(ctx, filter, bson.D{{Key: "paymentIntent.startedAt", Value: 1}})
}

func (r *MongoRepo) Update(ctx context.Context, o *Order, prevVersion int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	d := toDoc(o)
	set := bson.M{
		"isPaid":      d.IsPaid,
		"isDelivered": d.IsDelivered,
		"version":     d.Version,
		"updatedAt":   d.UpdatedAt,
	}
	unset := bson.M{}
	setOrUnset(set, unset, "paymentResult", d.PaymentResult, d.PaymentResult == nil)
	setOrUnset(set, unset, "paymentIntent", d.PaymentIntent, d.PaymentIntent == nil)
	setOrUnset(set, unset, "paidAt", d.PaidAt, d.PaidAt == nil)
	setOrUnset(set, unset, "deliveredAt", d.DeliveredAt, d.DeliveredAt == nil)

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": o.ID, "version": prevVersion}, update, opts).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, cerr := r.col.CountDocuments(ctx, bson.M{"_id": o.ID})
		if cerr != nil {
			return cerr
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	return err
}

func setOrUnset(set, unset bson.M, key string, v any, empty bool) {
	if empty {
		unset[key] = ""
		return
	}
	set[key] = v
}

func (r *MongoRepo) one(ctx context.Context, filter bson.M) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var d orderDoc
	err := r.col.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.order()
}

func (r *MongoRepo) find(ctx context.Context, filter bson.M, sort bson.D) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []Order
	for cur.Next(ctx) {
		var d orderDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		o, err := d.order()
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, cur.Err()
}
