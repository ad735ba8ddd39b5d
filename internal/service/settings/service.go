package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/domain/settings"
	"golang.org/x/sync/singleflight"
)

// Service builds effective-dated configuration snapshots. Concurrent requests
// for the same date share one load.
type Service struct {
	repo  settings.Repository
	group singleflight.Group
}

func NewService(repo settings.Repository) *Service {
	return &Service{repo: repo}
}

// SnapshotFor loads the tax table of asOf's year and the benefit settings in
// effect on asOf.
func (s *Service) SnapshotFor(ctx context.Context, asOf time.Time) (*settings.Snapshot, error) {
	key := asOf.Format("2006-01-02")

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		brackets, err := s.repo.ListTaxBrackets(ctx, asOf.Year())
		if err != nil {
			return nil, fmt.Errorf("failed to load tax brackets: %w", err)
		}
		benefits, err := s.repo.ListBenefitSettings(ctx, asOf)
		if err != nil {
			return nil, fmt.Errorf("failed to load benefit settings: %w", err)
		}
		return settings.NewSnapshot(asOf, brackets, benefits)
	})
	if err != nil {
		return nil, err
	}
	return v.(*settings.Snapshot), nil
}
