package memory

import (
	"context"
	"errors"
	"field-route-service/internal/domain"
	"field-route-service/internal/ports"
	"testing"
	"time"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func createGroup(t *testing.T, repo *RouteRepository, passengers int) (*domain.Route, []*domain.Route) {
	t.Helper()

	lead := &domain.Route{UserID: 1, RouteDate: day, Type: domain.RouteTypeShared, Status: domain.RouteStatusOptimized}
	var others []*domain.Route

	err := repo.WithinTx(context.Background(), func(w ports.RouteWriter) error {
		if err := w.CreateRoute(context.Background(), lead); err != nil {
			return err
		}
		if err := w.CreateStops(context.Background(), lead.RouteID, []domain.Stop{{Kind: domain.StopKindStart}, {Order: 1, Kind: domain.StopKindEnd}}); err != nil {
			return err
		}
		for i := range passengers {
			leadID := lead.RouteID
			p := &domain.Route{UserID: int64(i + 2), RouteDate: day, Type: domain.RouteTypeShared, LeadRouteID: &leadID, Status: domain.RouteStatusOptimized}
			if err := w.CreateRoute(context.Background(), p); err != nil {
				return err
			}
			others = append(others, p)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	return lead, others
}

func TestRouteRepositoryRollback(t *testing.T) {
	repo := NewRouteRepository()
	boom := errors.New("boom")

	err := repo.WithinTx(context.Background(), func(w ports.RouteWriter) error {
		if err := w.CreateRoute(context.Background(), &domain.Route{UserID: 1, RouteDate: day}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if repo.Len() != 0 {
		t.Fatalf("routes = %d, want 0 after rollback", repo.Len())
	}
}

func TestRouteRepositoryStopsNeedStagedRoute(t *testing.T) {
	repo := NewRouteRepository()

	err := repo.WithinTx(context.Background(), func(w ports.RouteWriter) error {
		return w.CreateStops(context.Background(), 42, []domain.Stop{{}})
	})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
}

func TestRouteRepositoryReads(t *testing.T) {
	store := NewCachedRouteStore()
	repo := NewRouteRepository().WithCachedRoutes(store)
	lead, passengers := createGroup(t, repo, 2)

	got, err := repo.GetRoute(context.Background(), lead.RouteID)
	if err != nil {
		t.Fatalf("GetRoute: %v", err)
	}
	if got.StopCount != 2 || len(got.Stops) != 2 {
		t.Fatalf("stops = %d (count %d), want 2", len(got.Stops), got.StopCount)
	}

	linked, err := repo.ListCarpool(context.Background(), got)
	if err != nil || len(linked) != 2 {
		t.Fatalf("ListCarpool(lead) = %d, %v, want 2 passengers", len(linked), err)
	}

	passenger, _ := repo.GetRoute(context.Background(), passengers[0].RouteID)
	linked, err = repo.ListCarpool(context.Background(), passenger)
	if err != nil || len(linked) != 1 || linked[0].RouteID != lead.RouteID {
		t.Fatalf("ListCarpool(passenger) = %v, %v, want lead", linked, err)
	}

	page, total, err := repo.ListByDate(context.Background(), day, ports.Page{Page: 2, PerPage: 2})
	if err != nil {
		t.Fatalf("ListByDate: %v", err)
	}
	if total != 3 || len(page) != 1 {
		t.Fatalf("page 2 = %d of %d, want 1 of 3", len(page), total)
	}

	if _, err := repo.GetRoute(context.Background(), 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetRoute(999) err = %v, want ErrNotFound", err)
	}
}

func TestRouteRepositoryTransitionStatus(t *testing.T) {
	repo := NewRouteRepository()
	lead, _ := createGroup(t, repo, 0)
	ctx := context.Background()

	if err := repo.TransitionStatus(ctx, lead.RouteID, domain.RouteStatusAccepted); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := repo.TransitionStatus(ctx, lead.RouteID, domain.RouteStatusRejected); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("reject accepted err = %v, want ErrInvalidTransition", err)
	}
	if err := repo.TransitionStatus(ctx, 999, domain.RouteStatusAccepted); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown route err = %v, want ErrNotFound", err)
	}

	got, err := repo.FindUserRoute(ctx, 1, day, domain.RouteStatusAccepted)
	if err != nil || got == nil || got.RouteID != lead.RouteID {
		t.Fatalf("FindUserRoute = %v, %v, want accepted lead", got, err)
	}
	if got, _ := repo.FindUserRoute(ctx, 1, day.AddDate(0, 0, 1), domain.RouteStatusAccepted); got != nil {
		t.Fatalf("FindUserRoute on other date = %v, want nil", got)
	}
}

func TestRouteRepositoryDeleteLeadRemovesPassengers(t *testing.T) {
	repo := NewRouteRepository()
	lead, _ := createGroup(t, repo, 2)
	other, _ := createGroup(t, repo, 0)

	if err := repo.DeleteRoute(context.Background(), lead.RouteID); err != nil {
		t.Fatalf("DeleteRoute: %v", err)
	}
	if repo.Len() != 1 {
		t.Fatalf("routes = %d, want 1", repo.Len())
	}
	if _, err := repo.GetRoute(context.Background(), other.RouteID); err != nil {
		t.Fatalf("unrelated route removed: %v", err)
	}
	if err := repo.DeleteRoute(context.Background(), lead.RouteID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}
