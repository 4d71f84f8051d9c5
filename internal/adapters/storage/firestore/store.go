package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmendiola/wagate/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore registration store.
// Uses the project passed (WAGATE_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) registrationsCol() *firestore.CollectionRef {
	return s.client.Collection("registrations")
}

func (s *Store) registrationDoc(uid domain.UID) *firestore.DocumentRef {
	return s.registrationsCol().Doc(string(uid))
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type registrationDoc struct {
	Token         string    `firestore:"token"`
	Authenticated bool      `firestore:"authenticated"`
	CreatedAt     time.Time `firestore:"created_at"`
	UpdatedAt     time.Time `firestore:"updated_at"`
}

// ─────────────────────────────────────────
// RegistrationStore implementation
// ─────────────────────────────────────────

func (s *Store) Get(ctx context.Context, uid domain.UID) (*domain.Registration, error) {
	snap, err := s.registrationDoc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("firestore Get: %w", err)
	}

	var doc registrationDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore Get decode: %w", err)
	}

	return &domain.Registration{
		UID:           uid,
		Token:         doc.Token,
		Authenticated: doc.Authenticated,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}, nil
}

func (s *Store) Put(ctx context.Context, reg *domain.Registration) error {
	doc := registrationDoc{
		Token:         reg.Token,
		Authenticated: reg.Authenticated,
		CreatedAt:     reg.CreatedAt,
		UpdatedAt:     reg.UpdatedAt,
	}

	_, err := s.registrationDoc(reg.UID).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("firestore Put: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, uid domain.UID) error {
	_, err := s.registrationDoc(uid).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("firestore Delete: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]*domain.Registration, error) {
	iter := s.registrationsCol().OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []*domain.Registration
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore List: %w", err)
		}

		var doc registrationDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode registrationDoc: %w", err)
		}

		out = append(out, &domain.Registration{
			UID:           domain.UID(snap.Ref.ID),
			Token:         doc.Token,
			Authenticated: doc.Authenticated,
			CreatedAt:     doc.CreatedAt,
			UpdatedAt:     doc.UpdatedAt,
		})
	}
	return out, nil
}
