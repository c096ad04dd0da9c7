package inquiries

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lilgiftcorner/server/internal/logger"
	"github.com/lilgiftcorner/server/internal/storage"
)

var (
	ErrInvalidInquiry  = errors.New("invalid inquiry")
	ErrInquiryNotFound = errors.New("inquiry not found")
)

// Kind separates contact messages from custom gift requests.
type Kind string

const (
	KindContact    Kind = "contact"
	KindCustomGift Kind = "custom_gift"
)

// StatusNew is the status of every fresh inquiry.
const StatusNew = "new"

var statuses = map[Kind][]string{
	KindContact:    {StatusNew, "in_progress", "resolved"},
	KindCustomGift: {StatusNew, "quoted", "accepted", "completed", "rejected"},
}

// ValidStatus reports whether status belongs to kind's workflow.
func ValidStatus(kind Kind, status string) bool {
	for _, s := range statuses[kind] {
		if s == status {
			return true
		}
	}
	return false
}

// Inquiry is a message from the storefront. Contact messages use Subject and Message;
// custom gift requests use Occasion, Description and Budget.
type Inquiry struct {
	ID          string    `json:"id" bson:"id"`
	Name        string    `json:"name" bson:"name"`
	Email       string    `json:"email" bson:"email"`
	Phone       string    `json:"phone,omitempty" bson:"phone,omitempty"`
	Subject     string    `json:"subject,omitempty" bson:"subject,omitempty"`
	Message     string    `json:"message,omitempty" bson:"message,omitempty"`
	Occasion    string    `json:"occasion,omitempty" bson:"occasion,omitempty"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	Budget      string    `json:"budget,omitempty" bson:"budget,omitempty"`
	Status      string    `json:"status" bson:"status"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

// Repository persists inquiries of both kinds.
type Repository interface {
	Create(ctx context.Context, kind Kind, inquiry Inquiry) error
	List(ctx context.Context, kind Kind, status string, limit int) ([]Inquiry, error)
	UpdateStatus(ctx context.Context, kind Kind, id, status string) (Inquiry, error)
}

// Service accepts and moderates inquiries.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates an inquiry service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func required(fields map[string]string) error {
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidInquiry, name)
		}
	}
	return nil
}

// Submit validates and stores a new inquiry.
func (s *Service) Submit(ctx context.Context, kind Kind, in Inquiry) (Inquiry, error) {
	if err := required(map[string]string{"name": in.Name, "email": in.Email}); err != nil {
		return Inquiry{}, err
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil {
		return Inquiry{}, fmt.Errorf("%w: a valid email is required", ErrInvalidInquiry)
	}
	switch kind {
	case KindContact:
		if err := required(map[string]string{"message": in.Message}); err != nil {
			return Inquiry{}, err
		}
	case KindCustomGift:
		if err := required(map[string]string{"description": in.Description}); err != nil {
			return Inquiry{}, err
		}
	default:
		return Inquiry{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidInquiry, kind)
	}

	in.ID = uuid.NewString()
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Status = StatusNew
	in.CreatedAt = s.now()
	if err := s.repo.Create(ctx, kind, in); err != nil {
		return Inquiry{}, err
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("inquiry_id", in.ID).
		Str("kind", string(kind)).
		Msg("inquiries.submitted")
	return in, nil
}

// List returns inquiries of a kind, newest first.
func (s *Service) List(ctx context.Context, kind Kind, status string, limit int) ([]Inquiry, error) {
	if status != "" && !ValidStatus(kind, status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInquiry, status)
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	return s.repo.List(ctx, kind, status, limit)
}

// UpdateStatus moves an inquiry through its kind's workflow.
func (s *Service) UpdateStatus(ctx context.Context, kind Kind, id, status string) (Inquiry, error) {
	if !ValidStatus(kind, status) {
		return Inquiry{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInquiry, status)
	}
	return s.repo.UpdateStatus(ctx, kind, id, status)
}

// MemoryRepository keeps inquiries in process.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[Kind]map[string]Inquiry
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: map[Kind]map[string]Inquiry{
		KindContact:    {},
		KindCustomGift: {},
	}}
}

func (r *MemoryRepository) Create(_ context.Context, kind Kind, inquiry Inquiry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[kind][inquiry.ID] = inquiry
	return nil
}

func (r *MemoryRepository) List(_ context.Context, kind Kind, status string, limit int) ([]Inquiry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Inquiry, 0)
	for _, in := range r.items[kind] {
		if status == "" || in.Status == status {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, kind Kind, id, status string) (Inquiry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.items[kind][id]
	if !ok {
		return Inquiry{}, ErrInquiryNotFound
	}
	in.Status = status
	r.items[kind][id] = in
	return in, nil
}

// MongoDBRepository stores contacts and custom gift requests in their own collections.
type MongoDBRepository struct {
	collections map[Kind]*mongo.Collection
	timeout     time.Duration
}

// NewMongoDBRepository creates a MongoDB-backed inquiry repository.
func NewMongoDBRepository(db *mongo.Database, queryTimeout time.Duration) *MongoDBRepository {
	return &MongoDBRepository{
		collections: map[Kind]*mongo.Collection{
			KindContact:    db.Collection(storage.CollectionContacts),
			KindCustomGift: db.Collection(storage.CollectionCustomGifts),
		},
		timeout: queryTimeout,
	}
}

func (r *MongoDBRepository) collection(kind Kind) (*mongo.Collection, error) {
	c, ok := r.collections[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidInquiry, kind)
	}
	return c, nil
}

func (r *MongoDBRepository) Create(ctx context.Context, kind Kind, inquiry Inquiry) error {
	c, err := r.collection(kind)
	if err != nil {
		return err
	}
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := c.InsertOne(ctx, inquiry); err != nil {
		return fmt.Errorf("insert %s: %w", kind, err)
	}
	return nil
}

func (r *MongoDBRepository) List(ctx context.Context, kind Kind, status string, limit int) ([]Inquiry, error) {
	c, err := r.collection(kind)
	if err != nil {
		return nil, err
	}
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	cursor, err := c.Find(ctx, filter, storage.FindPage(int64(limit), 0, bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return storage.DecodeAll[Inquiry](ctx, cursor)
}

func (r *MongoDBRepository) UpdateStatus(ctx context.Context, kind Kind, id, status string) (Inquiry, error) {
	c, err := r.collection(kind)
	if err != nil {
		return Inquiry{}, err
	}
	ctx, cancel := storage.WithQueryTimeout(ctx, r.timeout)
	defer cancel()

	var in Inquiry
	err = c.FindOneAndUpdate(ctx, bson.M{"id": id}, bson.M{"$set": bson.M{"status": status}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&in)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Inquiry{}, ErrInquiryNotFound
	}
	if err != nil {
		return Inquiry{}, fmt.Errorf("update %s status: %w", kind, err)
	}
	return in, nil
}
