package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/cache"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/config"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/db"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/models"
	"github.com/genuinocomercialatacadistaltda-boop/erp-demo-railway-sub000/internal/utils"
)

// ICardService manages credit cards and serves the derived limit figures.
type ICardService interface {
	CreateCard(ctx context.Context, input CardInput) (*models.CreditCard, error)
	UpdateCard(ctx context.Context, cardID utils.SixID, update CardUpdate) (*models.CreditCard, error)
	ActivateCard(ctx context.Context, cardID utils.SixID) error
	DeactivateCard(ctx context.Context, cardID utils.SixID) error
	DeleteCard(ctx context.Context, cardID utils.SixID) error
	FindCardByID(ctx context.Context, cardID utils.SixID) (*models.CreditCard, error)
	ListCards(ctx context.Context) ([]models.CreditCard, error)
	AvailableLimit(ctx context.Context, cardID utils.SixID) (available, consumed int64, err error)
	GetStatement(ctx context.Context, cardID utils.SixID) (*models.CardStatement, error)
}

// CardInput holds the fields needed to register a card.
type CardInput struct {
	Name       string `json:"name" binding:"required"`
	LimitCents int64  `json:"limit_cents" binding:"required,gt=0"`
	ClosingDay int    `json:"closing_day" binding:"required,min=1,max=31"`
	DueDay     int    `json:"due_day" binding:"required,min=1,max=31"`
	Color      string `json:"color"`
}

// CardUpdate carries optional field updates; nil means leave unchanged.
type CardUpdate struct {
	Name       *string `json:"name,omitempty"`
	LimitCents *int64  `json:"limit_cents,omitempty" binding:"omitempty,gt=0"`
	ClosingDay *int    `json:"closing_day,omitempty" binding:"omitempty,min=1,max=31"`
	DueDay     *int    `json:"due_day,omitempty" binding:"omitempty,min=1,max=31"`
	Color      *string `json:"color,omitempty"`
}

type cardService struct {
	db    *mongo.Database
	cfg   *config.Config
	cache *cache.StatementCache
}

// NewCardService creates a new CardService.
func NewCardService(database *mongo.Database, cfg *config.Config, statementCache *cache.StatementCache) ICardService {
	return &cardService{db: database, cfg: cfg, cache: statementCache}
}

func (s *cardService) CreateCard(ctx context.Context, input CardInput) (*models.CreditCard, error) {
	now := time.Now().UTC()
	card := &models.CreditCard{
		Name:       input.Name,
		LimitCents: input.LimitCents,
		ClosingDay: input.ClosingDay,
		DueDay:     input.DueDay,
		Active:     true,
		Color:      input.Color,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	collection := s.db.Collection(cardsCollection)
	err := db.Try(func() error {
		card.GenID()
		_, insertErr := collection.InsertOne(ctx, card)
		return insertErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create card: %w", err)
	}
	return card, nil
}

func (s *cardService) UpdateCard(ctx context.Context, cardID utils.SixID, update CardUpdate) (*models.CreditCard, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.LimitCents != nil {
		set["limit_cents"] = *update.LimitCents
	}
	if update.ClosingDay != nil {
		set["closing_day"] = *update.ClosingDay
	}
	if update.DueDay != nil {
		set["due_day"] = *update.DueDay
	}
	if update.Color != nil {
		set["color"] = *update.Color
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var card models.CreditCard
	err := s.db.Collection(cardsCollection).
		FindOneAndUpdate(ctx, bson.M{"_id": cardID}, bson.M{"$set": set}, opts).
		Decode(&card)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to update card %s: %w", cardID.String(), err)
	}
	// A limit change moves the available figure even without new entries.
	s.invalidateStatement(ctx, cardID)
	return &card, nil
}

func (s *cardService) ActivateCard(ctx context.Context, cardID utils.SixID) error {
	return s.setActive(ctx, cardID, true)
}

// DeactivateCard stops new purchases on the card. Existing invoices keep
// their lifecycle; the rollover just stops seeding new months.
func (s *cardService) DeactivateCard(ctx context.Context, cardID utils.SixID) error {
	return s.setActive(ctx, cardID, false)
}

func (s *cardService) setActive(ctx context.Context, cardID utils.SixID, active bool) error {
	result, err := s.db.Collection(cardsCollection).UpdateOne(ctx,
		bson.M{"_id": cardID},
		bson.M{"$set": bson.M{"active": active, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", cardID.String(), err)
	}
	if result.MatchedCount == 0 {
		return ErrCardNotFound
	}
	s.invalidateStatement(ctx, cardID)
	return nil
}

// DeleteCard removes a card that owns no invoices. Cards with history are
// deactivated instead, never deleted.
func (s *cardService) DeleteCard(ctx context.Context, cardID utils.SixID) error {
	if _, err := s.FindCardByID(ctx, cardID); err != nil {
		return err
	}

	count, err := s.db.Collection(invoicesCollection).CountDocuments(ctx, bson.M{"card_id": cardID})
	if err != nil {
		return fmt.Errorf("failed to count invoices for card %s: %w", cardID.String(), err)
	}
	if count > 0 {
		return ErrCardInUse
	}

	return db.WithTxn(ctx, s.db, func(ctx context.Context) error {
		if _, err := s.db.Collection(entriesCollection).DeleteMany(ctx, bson.M{"card_id": cardID}); err != nil {
			return fmt.Errorf("failed to delete entries of card %s: %w", cardID.String(), err)
		}
		if _, err := s.db.Collection(cardsCollection).DeleteOne(ctx, bson.M{"_id": cardID}); err != nil {
			return fmt.Errorf("failed to delete card %s: %w", cardID.String(), err)
		}
		s.invalidateStatement(ctx, cardID)
		return nil
	})
}

func (s *cardService) FindCardByID(ctx context.Context, cardID utils.SixID) (*models.CreditCard, error) {
	var card models.CreditCard
	err := s.db.Collection(cardsCollection).FindOne(ctx, bson.M{"_id": cardID}).Decode(&card)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to find card %s: %w", cardID.String(), err)
	}
	return &card, nil
}

func (s *cardService) ListCards(ctx context.Context) ([]models.CreditCard, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := s.db.Collection(cardsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer cursor.Close(ctx)

	var cards []models.CreditCard
	if err := cursor.All(ctx, &cards); err != nil {
		return nil, fmt.Errorf("failed to decode cards: %w", err)
	}
	return cards, nil
}

// AvailableLimit derives the card's available limit from raw entries.
//
// consumed = signed sum of every entry on a non-PAID invoice. The figure is
// never cached or incremented: each call re-derives it, so it cannot drift
// from the entries the way a counter would.
func (s *cardService) AvailableLimit(ctx context.Context, cardID utils.SixID) (int64, int64, error) {
	card, err := s.FindCardByID(ctx, cardID)
	if err != nil {
		return 0, 0, err
	}
	consumed, err := s.consumedLimit(ctx, cardID)
	if err != nil {
		return 0, 0, err
	}
	return card.LimitCents - consumed, consumed, nil
}

func (s *cardService) consumedLimit(ctx context.Context, cardID utils.SixID) (int64, error) {
	return consumedLimitCents(ctx, s.db, cardID)
}

// consumedLimitCents sums the signed entries sitting on the card's non-PAID
// invoices. Settled invoices free the limit they occupied.
func consumedLimitCents(ctx context.Context, database *mongo.Database, cardID utils.SixID) (int64, error) {
	cursor, err := database.Collection(invoicesCollection).Find(ctx,
		bson.M{"card_id": cardID, "status": bson.M{"$ne": models.InvoicePaid}},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return 0, fmt.Errorf("failed to query open invoices for card %s: %w", cardID.String(), err)
	}
	var rows []struct {
		ID utils.SixID `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("failed to decode invoice ids for card %s: %w", cardID.String(), err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	ids := make([]utils.SixID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	total, err := sumEntries(ctx, database, bson.M{"invoice_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate consumed limit for card %s: %w", cardID.String(), err)
	}
	return total, nil
}

// GetStatement assembles the card statement read model, serving a cached copy
// when one is fresh.
func (s *cardService) GetStatement(ctx context.Context, cardID utils.SixID) (*models.CardStatement, error) {
	var cached models.CardStatement
	hit, err := s.cache.Get(ctx, cardID.String(), &cached)
	if err != nil {
		log.Printf("WARN: statement cache read failed for card %s: %v", cardID.String(), err)
	} else if hit {
		cached.FromCache = true
		return &cached, nil
	}

	card, err := s.FindCardByID(ctx, cardID)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "reference", Value: 1}})
	cursor, err := s.db.Collection(invoicesCollection).Find(ctx, bson.M{"card_id": cardID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices for card %s: %w", cardID.String(), err)
	}
	var invoices []models.Invoice
	if err := cursor.All(ctx, &invoices); err != nil {
		return nil, fmt.Errorf("failed to decode invoices for card %s: %w", cardID.String(), err)
	}

	var openInvoice *models.Invoice
	for i := range invoices {
		if invoices[i].Status == models.InvoiceOpen {
			openInvoice = &invoices[i]
			break
		}
	}

	consumed, err := s.consumedLimit(ctx, cardID)
	if err != nil {
		return nil, err
	}
	available := card.LimitCents - consumed

	statement := &models.CardStatement{
		Card:                *card,
		AvailableLimitCents: available,
		OpenInvoice:         openInvoice,
		Invoices:            invoices,
		OverLimit:           available < 0,
		ConsumedLimitCents:  consumed,
		GeneratedAt:         time.Now().UTC(),
	}

	if err := s.cache.Set(ctx, cardID.String(), statement); err != nil {
		log.Printf("WARN: statement cache write failed for card %s: %v", cardID.String(), err)
	}
	return statement, nil
}

func (s *cardService) invalidateStatement(ctx context.Context, cardID utils.SixID) {
	if err := s.cache.Invalidate(ctx, cardID.String()); err != nil {
		log.Printf("WARN: failed to invalidate statement cache for card %s: %v", cardID.String(), err)
	}
}
