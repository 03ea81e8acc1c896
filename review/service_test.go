package review

import (
	"context"
	"errors"
	"testing"
)

func TestResolve_RequiresOperator(t *testing.T) {
	svc := NewService(&fakeStore{}, nil)
	if _, err := svc.Resolve(context.Background(), "", "rev-1", ""); err == nil {
		t.Fatalf("expected error for missing operator")
	}
}

func TestResolve_PassesThroughStoreErrors(t *testing.T) {
	store := &fakeStore{resolveErr: ErrBadStatus}
	svc := NewService(store, nil)
	if _, err := svc.Resolve(context.Background(), "admin-1", "rev-1", "refunded"); !errors.Is(err, ErrBadStatus) {
		t.Fatalf("expected ErrBadStatus, got %v", err)
	}
	if store.lastOperator != "admin-1" || store.lastNote != "refunded" {
		t.Errorf("unexpected store call %+v", store)
	}
}

func TestList_RejectsUnknownStatus(t *testing.T) {
	svc := NewService(&fakeStore{}, nil)
	if _, err := svc.List(context.Background(), Status("closed")); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected error for unknown status")
	}
	if _, err := svc.List(context.Background(), StatusOpen); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

type fakeStore struct {
	resolveErr   error
	lastOperator string
	lastNote     string
}

func (f *fakeStore) List(ctx context.Context, status Status) ([]Record, error) {
	return nil, nil
}

func (f *fakeStore) Resolve(ctx context.Context, id, operatorID, note string) (Record, error) {
	f.lastOperator, f.lastNote = operatorID, note
	if f.resolveErr != nil {
		return Record{}, f.resolveErr
	}
	return Record{ID: id, Status: StatusResolved}, nil
}
