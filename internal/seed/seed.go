// Package seed loads development fixtures into the natours store.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/domain"
	"github.com/natours/natours/internal/repository"
	"github.com/natours/natours/pkg/slug"
)

// Fixture file names inside a data directory.
const (
	ToursFile   = "tours.json"
	UsersFile   = "users.json"
	ReviewsFile = "reviews.json"
)

const minPasswordLen = 8

// tourRecord carries the guide references that domain.Tour hides from JSON.
type tourRecord struct {
	domain.Tour
	Guides []string `json:"guides"`
}

// UserRecord carries the plain-text password of a fixture user.
type UserRecord struct {
	domain.User
	Password string `json:"password"`
}

// reviewRecord names the author by id under "user".
type reviewRecord struct {
	domain.Review
	User string `json:"user"`
}

// Data is a parsed fixture set.
type Data struct {
	Tours   []domain.Tour
	Users   []UserRecord
	Reviews []domain.Review
}

// Counts reports how many documents an import wrote.
type Counts struct {
	Tours   int
	Users   int
	Reviews int
}

// Load reads the fixture files of dir. Missing files yield empty sets.
func Load(dir string) (*Data, error) {
	var (
		tours   []tourRecord
		users   []UserRecord
		reviews []reviewRecord
	)
	for name, dst := range map[string]any{ToursFile: &tours, UsersFile: &users, ReviewsFile: &reviews} {
		if err := readJSON(filepath.Join(dir, name), dst); err != nil {
			return nil, err
		}
	}

	d := &Data{Users: users}
	for _, t := range tours {
		t.Tour.GuideIDs = t.Guides
		d.Tours = append(d.Tours, t.Tour)
	}
	for _, r := range reviews {
		r.Review.UserID = r.User
		d.Reviews = append(d.Reviews, r.Review)
	}
	return d, nil
}

func readJSON(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// SyncFunc recomputes the stored rating aggregate of one tour.
type SyncFunc func(ctx context.Context, tourID string) error

// Importer writes fixtures through the repository ports.
type Importer struct {
	tours   repository.TourRepository
	reviews repository.ReviewRepository
	users   repository.UserRepository
	hasher  *auth.PasswordHasher
	sync    SyncFunc
	logger  *slog.Logger
	now     func() time.Time
}

// NewImporter creates an Importer. sync is called for every imported tour
// once all reviews are written.
func NewImporter(
	tours repository.TourRepository,
	reviews repository.ReviewRepository,
	users repository.UserRepository,
	hasher *auth.PasswordHasher,
	sync SyncFunc,
	logger *slog.Logger,
) *Importer {
	return &Importer{
		tours:   tours,
		reviews: reviews,
		users:   users,
		hasher:  hasher,
		sync:    sync,
		logger:  logger,
		now:     time.Now,
	}
}

// Import validates and inserts d. Users go first so that reviews and guide
// references resolve; tour ratings are rebuilt from the imported reviews.
func (im *Importer) Import(ctx context.Context, d *Data) (Counts, error) {
	var c Counts
	now := im.now().UTC().Truncate(time.Millisecond)

	for i := range d.Users {
		rec := d.Users[i]
		u := rec.User
		if len(rec.Password) < minPasswordLen {
			return c, fmt.Errorf("user %s: password must have at least %d characters", u.ID, minPasswordLen)
		}
		hash, err := im.hasher.Hash(rec.Password)
		if err != nil {
			return c, fmt.Errorf("hash password of user %s: %w", u.ID, err)
		}
		u.Password = hash
		u.Active = true
		u.CreatedAt = now
		if err := domain.ValidateUser(&u); err != nil {
			return c, fmt.Errorf("user %s: %w", u.ID, err)
		}
		if err := im.users.Insert(ctx, &u); err != nil {
			return c, fmt.Errorf("insert user %s: %w", u.ID, err)
		}
		c.Users++
	}

	for i := range d.Tours {
		t := d.Tours[i]
		t.Slug = slug.Generate(t.Name)
		t.CreatedAt = now
		t.RatingsAverage = domain.DefaultRatingsAverage
		t.RatingsQuantity = 0
		if err := domain.ValidateTour(&t); err != nil {
			return c, fmt.Errorf("tour %s: %w", t.ID, err)
		}
		if err := im.tours.Insert(ctx, &t); err != nil {
			return c, fmt.Errorf("insert tour %s: %w", t.ID, err)
		}
		c.Tours++
	}

	for i := range d.Reviews {
		r := d.Reviews[i]
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if err := domain.ValidateReview(&r); err != nil {
			return c, fmt.Errorf("review %s: %w", r.ID, err)
		}
		if err := im.reviews.Insert(ctx, &r); err != nil {
			return c, fmt.Errorf("insert review %s: %w", r.ID, err)
		}
		c.Reviews++
	}

	for _, t := range d.Tours {
		if err := im.sync(ctx, t.ID); err != nil {
			return c, fmt.Errorf("sync ratings of tour %s: %w", t.ID, err)
		}
	}

	im.logger.InfoContext(ctx, "fixtures imported",
		slog.Int("tours", c.Tours),
		slog.Int("users", c.Users),
		slog.Int("reviews", c.Reviews),
	)
	return c, nil
}
