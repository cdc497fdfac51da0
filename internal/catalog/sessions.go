package catalog

import (
	"context"
	"fmt"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// CreateSession starts an empty comparison session.
func (s *Service) CreateSession(ctx context.Context) (*SessionResponse, error) {
	sess, err := s.sessions.Create(ctx)
	if err != nil {
		return nil, classify("create session", err)
	}
	return newSessionResponse(sess), nil
}

// GetSession returns a session with its products compared.
func (s *Service) GetSession(ctx context.Context, id string) (*SessionDetailResponse, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, classify(fmt.Sprintf("session %s", id), err)
	}

	out := &SessionDetailResponse{SessionResponse: *newSessionResponse(sess), Products: []storage.Product{}}
	if len(sess.ProductIDs) == 0 {
		return out, nil
	}

	products, err := s.store.GetProducts(ctx, sess.ProductIDs)
	if err != nil {
		return nil, classify("load session products", err)
	}
	cmp, err := s.compare(ctx, products)
	if err != nil {
		return nil, err
	}
	out.Products, out.Comparison = cmp.Products, cmp.Comparison
	return out, nil
}

// AddToSession adds a product to a session.
func (s *Service) AddToSession(ctx context.Context, id, productID string) (*SessionResponse, error) {
	sess, err := s.sessions.Add(ctx, id, productID)
	if err != nil {
		return nil, classify(fmt.Sprintf("add %s to session %s", productID, id), err)
	}
	return newSessionResponse(sess), nil
}

// RemoveFromSession removes a product from a session.
func (s *Service) RemoveFromSession(ctx context.Context, id, productID string) (*SessionResponse, error) {
	sess, err := s.sessions.Remove(ctx, id, productID)
	if err != nil {
		return nil, classify(fmt.Sprintf("remove %s from session %s", productID, id), err)
	}
	return newSessionResponse(sess), nil
}

// ClearSession empties a session.
func (s *Service) ClearSession(ctx context.Context, id string) (*SessionResponse, error) {
	sess, err := s.sessions.Clear(ctx, id)
	if err != nil {
		return nil, classify(fmt.Sprintf("clear session %s", id), err)
	}
	return newSessionResponse(sess), nil
}
