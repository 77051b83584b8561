package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/internal/repository"
	"github.com/natours/natours/internal/resource"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool { return a.Role == domain.RoleAdmin }

func summariesByID(ctx context.Context, users repository.UserRepository, ids []string) (map[string]domain.UserSummary, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	list, err := users.Summaries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	byID := make(map[string]domain.UserSummary, len(list))
	for _, u := range list {
		byID[u.ID] = u
	}
	return byID, nil
}

func uniqueIDs(n int, each func(i int) []string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for i := 0; i < n; i++ {
		for _, id := range each(i) {
			if _, ok := seen[id]; ok || id == "" {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// guidesPopulator fills Tour.Guides from the guide references, in reference
// order. Inactive or missing guides are skipped.
func guidesPopulator(users repository.UserRepository) resource.Populator[domain.Tour] {
	return func(ctx context.Context, tours []*domain.Tour) error {
		ids := uniqueIDs(len(tours), func(i int) []string { return tours[i].GuideIDs })
		byID, err := summariesByID(ctx, users, ids)
		if err != nil {
			return err
		}
		for _, t := range tours {
			t.Guides = make([]domain.UserSummary, 0, len(t.GuideIDs))
			for _, id := range t.GuideIDs {
				if u, ok := byID[id]; ok {
					t.Guides = append(t.Guides, u)
				}
			}
		}
		return nil
	}
}

// authorsPopulator fills Review.User with the author's name and photo.
func authorsPopulator(users repository.UserRepository) resource.Populator[domain.Review] {
	return func(ctx context.Context, reviews []*domain.Review) error {
		ids := uniqueIDs(len(reviews), func(i int) []string { return []string{reviews[i].UserID} })
		byID, err := summariesByID(ctx, users, ids)
		if err != nil {
			return err
		}
		for _, r := range reviews {
			if u, ok := byID[r.UserID]; ok {
				r.User = &domain.UserSummary{ID: u.ID, Name: u.Name, Photo: u.Photo}
			}
		}
		return nil
	}
}

// reviewsPopulator fills Tour.Reviews with the tour's reviews, authors
// included.
func reviewsPopulator(reviews repository.ReviewRepository, users repository.UserRepository) resource.Populator[domain.Tour] {
	authors := authorsPopulator(users)
	return func(ctx context.Context, tours []*domain.Tour) error {
		ids := make([]string, len(tours))
		for i, t := range tours {
			ids[i] = t.ID
		}
		list, err := reviews.ListByTour(ctx, ids)
		if err != nil {
			return fmt.Errorf("load reviews: %w", err)
		}

		ptrs := make([]*domain.Review, len(list))
		for i := range list {
			ptrs[i] = &list[i]
		}
		if err := authors(ctx, ptrs); err != nil {
			return err
		}

		byTour := make(map[string][]domain.Review, len(tours))
		for _, r := range list {
			byTour[r.TourID] = append(byTour[r.TourID], r)
		}
		for _, t := range tours {
			t.Reviews = byTour[t.ID]
			if t.Reviews == nil {
				t.Reviews = []domain.Review{}
			}
		}
		return nil
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
