package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ConnectDB initializes and returns a MongoDB client and database instance.
func ConnectDB(uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the primary node
	ctxPing, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		// Disconnect if ping fails
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(dbName)
	fmt.Println("Successfully connected to MongoDB!")

	return client, db, nil
}

// DisconnectDB closes the MongoDB client connection.
func DisconnectDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	fmt.Println("MongoDB connection closed.")
	return nil
}

// EnsureIndexes creates the indexes the ledger engine relies on.
// Safe to call at every startup; CreateOne is idempotent for identical specs.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	// One invoice per (card, reference month).
	_, err := db.Collection("invoices").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "card_id", Value: 1}, {Key: "reference", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_card_reference"),
	})
	if err != nil {
		return fmt.Errorf("failed to create invoice index: %w", err)
	}

	_, err = db.Collection("entries").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "invoice_id", Value: 1}, {Key: "display_order", Value: 1}},
		Options: options.Index().SetName("idx_invoice_display_order"),
	})
	if err != nil {
		return fmt.Errorf("failed to create entry index: %w", err)
	}

	// One payable mirror per invoice.
	_, err = db.Collection("payables").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "invoice_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_payable_invoice"),
	})
	if err != nil {
		return fmt.Errorf("failed to create payable index: %w", err)
	}

	return nil
}
