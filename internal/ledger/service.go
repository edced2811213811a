package ledger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"carbontwin/ledger-backend/internal/events"
)

// Service owns the authoritative emission ledger state. Every write runs
// under a single mutex, so observers never see a partially applied
// operation. The repository is a write-behind journal: persistence
// failures are logged, never surfaced to the caller.
type Service struct {
	mu     sync.Mutex
	logger *zap.Logger
	repo   Repository
	events events.Publisher
	now    func() time.Time

	admin     string
	nextID    int64
	reports   map[int64]*EmissionReport
	byCompany map[string][]int64
	verifiers map[string]bool
	scores    map[string]int
}

func NewService(repo Repository, pub events.Publisher, logger *zap.Logger, admin string) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		logger:    logger,
		repo:      repo,
		events:    pub,
		now:       time.Now,
		admin:     admin,
		nextID:    1,
		reports:   make(map[int64]*EmissionReport),
		byCompany: make(map[string][]int64),
		verifiers: make(map[string]bool),
		scores:    make(map[string]int),
	}
	// The admin is an authorized verifier from day one.
	if admin != "" {
		s.verifiers[admin] = true
	}
	return s
}

// Restore reloads journaled state at startup. It must be called before the
// service starts accepting writes.
func (s *Service) Restore(reports []EmissionReport, verifiers []string, scores map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range reports {
		r := reports[i]
		s.reports[r.ID] = &r
		s.byCompany[r.Company] = append(s.byCompany[r.Company], r.ID)
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
	}
	for _, v := range verifiers {
		s.verifiers[v] = true
	}
	for company, score := range scores {
		s.scores[company] = score
	}
}

// ReportEmissions appends a new unverified report and returns its id. Ids
// are assigned monotonically and never reused.
func (s *Service) ReportEmissions(ctx context.Context, company, facilityID string, emissionAmount, productionVolume uint64, energySources []string, dataRef string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := &EmissionReport{
		ID:               s.nextID,
		Company:          company,
		FacilityID:       facilityID,
		EmissionAmount:   emissionAmount,
		ProductionVolume: productionVolume,
		EnergySources:    append([]string(nil), energySources...),
		DataRef:          dataRef,
		CreatedAt:        s.now().UTC(),
	}
	s.nextID++
	s.reports[report.ID] = report
	s.byCompany[company] = append(s.byCompany[company], report.ID)

	if s.repo != nil {
		if err := s.repo.SaveReport(ctx, report); err != nil {
			s.logger.Error("failed to journal emission report", zap.Int64("report_id", report.ID), zap.Error(err))
		}
	}
	s.publish(events.TypeReportCreated, map[string]interface{}{
		"report_id":       report.ID,
		"company":         report.Company,
		"facility_id":     report.FacilityID,
		"emission_amount": report.EmissionAmount,
		"timestamp":       report.CreatedAt,
	})

	s.logger.Info("emission report created",
		zap.Int64("report_id", report.ID),
		zap.String("company", company),
		zap.Uint64("emission_amount", emissionAmount))
	return report.ID, nil
}

// VerifyEmissionReport marks a report verified exactly once and folds the
// score into the company's running sustainability score. A passed audit
// averages the new score in; a failed audit halves the existing score.
func (s *Service) VerifyEmissionReport(ctx context.Context, verifier string, reportID int64, score int, passed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.verifiers[verifier] {
		return ErrNotAuthorized
	}
	report, ok := s.reports[reportID]
	if !ok {
		return ErrReportNotFound
	}
	if score < 0 || score > 100 {
		return ErrScoreOutOfRange
	}
	if report.Verified {
		return ErrAlreadyVerified
	}

	verifiedAt := s.now().UTC()
	report.Verified = true
	report.VerificationScore = score
	report.Verifier = verifier
	report.VerifiedAt = &verifiedAt

	old := s.scores[report.Company]
	if passed {
		s.scores[report.Company] = (old + score) / 2
	} else {
		s.scores[report.Company] = old / 2
	}

	if s.repo != nil {
		if err := s.repo.MarkVerified(ctx, reportID, score, verifier, verifiedAt); err != nil {
			s.logger.Error("failed to journal verification", zap.Int64("report_id", reportID), zap.Error(err))
		}
		if err := s.repo.UpsertScore(ctx, report.Company, s.scores[report.Company]); err != nil {
			s.logger.Error("failed to journal sustainability score", zap.String("company", report.Company), zap.Error(err))
		}
	}
	s.publish(events.TypeReportVerified, map[string]interface{}{
		"report_id": reportID,
		"verifier":  verifier,
		"score":     score,
		"passed":    passed,
	})

	s.logger.Info("emission report verified",
		zap.Int64("report_id", reportID),
		zap.String("verifier", verifier),
		zap.Int("score", score),
		zap.Bool("passed", passed))
	return nil
}

// AddVerifier authorizes an address to verify reports. Admin only.
func (s *Service) AddVerifier(ctx context.Context, caller, verifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.admin {
		return ErrNotAdmin
	}
	s.verifiers[verifier] = true
	if s.repo != nil {
		if err := s.repo.SaveVerifier(ctx, verifier); err != nil {
			s.logger.Error("failed to journal verifier", zap.String("verifier", verifier), zap.Error(err))
		}
	}
	s.logger.Info("verifier authorized", zap.String("verifier", verifier))
	return nil
}

// RemoveVerifier revokes verification authority. Already-verified reports
// keep their verification.
func (s *Service) RemoveVerifier(ctx context.Context, caller, verifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.admin {
		return ErrNotAdmin
	}
	delete(s.verifiers, verifier)
	if s.repo != nil {
		if err := s.repo.DeleteVerifier(ctx, verifier); err != nil {
			s.logger.Error("failed to journal verifier removal", zap.String("verifier", verifier), zap.Error(err))
		}
	}
	s.logger.Info("verifier removed", zap.String("verifier", verifier))
	return nil
}

func (s *Service) IsVerifier(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifiers[addr]
}

// Report returns a copy of the report so callers cannot mutate ledger state.
func (s *Service) Report(id int64) (EmissionReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, ok := s.reports[id]
	if !ok {
		return EmissionReport{}, ErrReportNotFound
	}
	return *report, nil
}

func (s *Service) ReportIDsByCompany(company string) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.byCompany[company]...)
}

func (s *Service) CompanyScore(company string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores[company]
}

func (s *Service) ReportCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.reports))
}

func (s *Service) publish(t events.Type, payload map[string]interface{}) {
	if s.events != nil {
		s.events.Publish(t, payload)
	}
}
