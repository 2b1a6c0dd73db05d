package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/notify"
)

// Eligibility is a tier the learner may claim now.
type Eligibility struct {
	Tier            Tier `json:"type"`
	RequiredModules int  `json:"requiredModules"`
}

// ListEligible returns the tiers whose threshold the learner meets and which
// they do not already hold, lowest tier first.
func (e *Engine) ListEligible(ctx context.Context, l Learner) ([]Eligibility, error) {
	if err := authorize(l); err != nil {
		return nil, err
	}

	completed, _, err := completedModules(ctx, e.store, l.ID)
	if err != nil {
		return nil, err
	}
	held, err := e.store.ListCertificates(ctx, l.ID)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}

	out := []Eligibility{}
	for _, tier := range Tiers {
		if completed < tier.RequiredModules() || holds(held, tier) {
			continue
		}
		out = append(out, Eligibility{Tier: tier, RequiredModules: tier.RequiredModules()})
	}
	return out, nil
}

// IssueCertificate issues tier to the learner. The threshold is checked again
// inside the write transaction.
func (e *Engine) IssueCertificate(ctx context.Context, l Learner, tier Tier) (Certificate, error) {
	if err := authorize(l); err != nil {
		return Certificate{}, err
	}
	if !tier.Valid() {
		return Certificate{}, catalog.Invalid("type", "must be one of BRONZE, SILVER, GOLD")
	}

	unlock, err := e.locker.Lock(ctx, lockKey(l.ID, "certificate:"+string(tier)))
	if err != nil {
		return Certificate{}, fmt.Errorf("lock certificate: %w", err)
	}
	defer unlock()

	now := e.timestamp()
	var issued Certificate
	err = e.store.WithTx(ctx, func(tx Store) error {
		held, err := tx.ListCertificates(ctx, l.ID)
		if err != nil {
			return fmt.Errorf("list certificates: %w", err)
		}
		if holds(held, tier) {
			return ErrAlreadyObtained
		}

		completed, latest, err := completedModules(ctx, tx, l.ID)
		if err != nil {
			return err
		}
		if completed < tier.RequiredModules() {
			return &NotEnoughModulesError{Tier: tier, Required: tier.RequiredModules(), Completed: completed}
		}

		issued, err = tx.CreateCertificate(ctx, Certificate{
			UserID:            l.ID,
			Tier:              tier,
			ModuleID:          latest,
			CertificateNumber: certificateNumber(tier, l.ID, now),
			IssuedAt:          now,
		})
		if err != nil {
			if errors.Is(err, ErrAlreadyObtained) {
				return err
			}
			return fmt.Errorf("create certificate: %w", err)
		}
		return nil
	})
	if err != nil {
		return Certificate{}, err
	}

	slog.Info("certificate issued",
		"user_id", l.ID,
		"tier", tier,
		"certificate_number", issued.CertificateNumber,
	)
	e.dispatch(ctx, []notify.Notification{
		notify.CertificateIssued(l.ID, string(tier), issued.CertificateNumber),
	})
	return issued, nil
}

// ListCertificates returns the learner's certificates, oldest first.
func (e *Engine) ListCertificates(ctx context.Context, l Learner) ([]Certificate, error) {
	if err := authorize(l); err != nil {
		return nil, err
	}
	certs, err := e.store.ListCertificates(ctx, l.ID)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	sort.SliceStable(certs, func(i, j int) bool { return certs[i].IssuedAt.Before(certs[j].IssuedAt) })
	if certs == nil {
		certs = []Certificate{}
	}
	return certs, nil
}

// completedModules counts completed module rows and returns the id of the
// most recently completed one.
func completedModules(ctx context.Context, s Store, userID string) (int, string, error) {
	progress, err := s.ListModuleProgress(ctx, userID)
	if err != nil {
		return 0, "", fmt.Errorf("load module progress: %w", err)
	}

	var (
		count  int
		latest string
		at     time.Time
	)
	for id, p := range progress {
		if !p.IsCompleted {
			continue
		}
		count++
		var t time.Time
		if p.CompletedAt != nil {
			t = *p.CompletedAt
		}
		if latest == "" || t.After(at) || (t.Equal(at) && id > latest) {
			latest, at = id, t
		}
	}
	return count, latest, nil
}

func holds(certs []Certificate, tier Tier) bool {
	for _, c := range certs {
		if c.Tier == tier {
			return true
		}
	}
	return false
}

// certificateNumber is CERT-<tier>-<user>-<yyyymmddhhmmss>-<random>, unique per
// (tier, user, timestamp) and across retries by the random suffix.
func certificateNumber(tier Tier, userID string, at time.Time) string {
	user := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return -1
	}, userID)
	if r := []rune(user); len(r) > 8 {
		user = string(r[:8])
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("CERT-%s-%s-%s-%s", tier, user, at.UTC().Format("20060102150405"), suffix)
}
