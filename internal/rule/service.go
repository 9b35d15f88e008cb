package rule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CreateRuleRequest carries data to create a booking rule. Constraint fields
// left nil are deferred to lower-priority rules.
type CreateRuleRequest struct {
	OrganizationID string
	Name           string
	TargetType     TargetType
	TargetID       string
	Priority       int

	MinDurationMinutes      *int
	MaxDurationMinutes      *int
	MinNoticeHours          *int
	MaxAdvanceDays          *int
	MaxDailyHours           *float64
	MaxWeeklyHours          *float64
	MaxConcurrentBookings   *int
	PreflightBufferMinutes  *int
	PostflightBufferMinutes *int

	RequiresPaymentOnFile *bool
	MinAccountBalance     *float64

	FreeCancellationHours      *int
	LateCancellationFeePercent *float64
	NoShowFeePercent           *float64

	RequiresApproval *bool

	EffectiveFrom  *time.Time
	EffectiveUntil *time.Time
}

// UpdateRuleRequest replaces a rule's definition. The rule's organization and
// target are immutable; constraint fields left nil clear back to deferred.
type UpdateRuleRequest struct {
	Name     string
	Priority int

	MinDurationMinutes      *int
	MaxDurationMinutes      *int
	MinNoticeHours          *int
	MaxAdvanceDays          *int
	MaxDailyHours           *float64
	MaxWeeklyHours          *float64
	MaxConcurrentBookings   *int
	PreflightBufferMinutes  *int
	PostflightBufferMinutes *int

	RequiresPaymentOnFile *bool
	MinAccountBalance     *float64

	FreeCancellationHours      *int
	LateCancellationFeePercent *float64
	NoShowFeePercent           *float64

	RequiresApproval *bool

	EffectiveFrom  *time.Time
	EffectiveUntil *time.Time
}

type Service interface {
	Create(ctx context.Context, req CreateRuleRequest) (*BookingRule, error)
	GetByID(ctx context.Context, id string) (*BookingRule, error)
	List(ctx context.Context, filter Filter) ([]*BookingRule, int, error)
	Update(ctx context.Context, id string, req UpdateRuleRequest) (*BookingRule, error)
	Deactivate(ctx context.Context, id string) error

	// ResolvePolicy merges every matching active rule into the single
	// effective policy for the booking context.
	ResolvePolicy(ctx context.Context, rctx ResolveContext) (*EffectivePolicy, error)

	// ValidateWindow checks a prospective booking window against a policy
	// and returns the structured result.
	ValidateWindow(policy *EffectivePolicy, start, end, now time.Time) ValidationResult
}

type service struct {
	repo        Repository
	policyCache *gocache.Cache
}

// NewService creates the rule engine. Resolved policies are cached in-process
// with a short TTL; any rule mutation flushes the cache.
func NewService(repo Repository, policyTTL time.Duration) Service {
	return &service{
		repo:        repo,
		policyCache: gocache.New(policyTTL, 2*policyTTL),
	}
}

func (s *service) Create(ctx context.Context, req CreateRuleRequest) (*BookingRule, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrNameRequired
	}
	if !req.TargetType.valid() {
		return nil, ErrInvalidTarget
	}
	if req.TargetType != TargetOrgDefault && req.TargetID == "" {
		return nil, ErrTargetIDRequired
	}
	if req.EffectiveFrom != nil && req.EffectiveUntil != nil && !req.EffectiveUntil.After(*req.EffectiveFrom) {
		return nil, ErrInvalidEffective
	}

	r := &BookingRule{
		OrganizationID:             req.OrganizationID,
		Name:                       req.Name,
		TargetType:                 req.TargetType,
		TargetID:                   req.TargetID,
		Priority:                   req.Priority,
		MinDurationMinutes:         req.MinDurationMinutes,
		MaxDurationMinutes:         req.MaxDurationMinutes,
		MinNoticeHours:             req.MinNoticeHours,
		MaxAdvanceDays:             req.MaxAdvanceDays,
		MaxDailyHours:              req.MaxDailyHours,
		MaxWeeklyHours:             req.MaxWeeklyHours,
		MaxConcurrentBookings:      req.MaxConcurrentBookings,
		PreflightBufferMinutes:     req.PreflightBufferMinutes,
		PostflightBufferMinutes:    req.PostflightBufferMinutes,
		RequiresPaymentOnFile:      req.RequiresPaymentOnFile,
		MinAccountBalance:          req.MinAccountBalance,
		FreeCancellationHours:      req.FreeCancellationHours,
		LateCancellationFeePercent: req.LateCancellationFeePercent,
		NoShowFeePercent:           req.NoShowFeePercent,
		RequiresApproval:           req.RequiresApproval,
		EffectiveFrom:              req.EffectiveFrom,
		EffectiveUntil:             req.EffectiveUntil,
		Active:                     true,
	}

	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}

	s.policyCache.Flush()
	return r, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*BookingRule, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, filter Filter) ([]*BookingRule, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) Update(ctx context.Context, id string, req UpdateRuleRequest) (*BookingRule, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrNameRequired
	}
	if req.EffectiveFrom != nil && req.EffectiveUntil != nil && !req.EffectiveUntil.After(*req.EffectiveFrom) {
		return nil, ErrInvalidEffective
	}

	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.Name = req.Name
	r.Priority = req.Priority
	r.MinDurationMinutes = req.MinDurationMinutes
	r.MaxDurationMinutes = req.MaxDurationMinutes
	r.MinNoticeHours = req.MinNoticeHours
	r.MaxAdvanceDays = req.MaxAdvanceDays
	r.MaxDailyHours = req.MaxDailyHours
	r.MaxWeeklyHours = req.MaxWeeklyHours
	r.MaxConcurrentBookings = req.MaxConcurrentBookings
	r.PreflightBufferMinutes = req.PreflightBufferMinutes
	r.PostflightBufferMinutes = req.PostflightBufferMinutes
	r.RequiresPaymentOnFile = req.RequiresPaymentOnFile
	r.MinAccountBalance = req.MinAccountBalance
	r.FreeCancellationHours = req.FreeCancellationHours
	r.LateCancellationFeePercent = req.LateCancellationFeePercent
	r.NoShowFeePercent = req.NoShowFeePercent
	r.RequiresApproval = req.RequiresApproval
	r.EffectiveFrom = req.EffectiveFrom
	r.EffectiveUntil = req.EffectiveUntil

	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}

	s.policyCache.Flush()
	return r, nil
}

func (s *service) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.policyCache.Flush()
	return nil
}

func (s *service) ResolvePolicy(ctx context.Context, rctx ResolveContext) (*EffectivePolicy, error) {
	key := cacheKey(rctx)
	if cached, ok := s.policyCache.Get(key); ok {
		policy := cached.(EffectivePolicy)
		return &policy, nil
	}

	rules, err := s.repo.ListActive(ctx, rctx.OrganizationID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("load rules for policy resolution: %w", err)
	}

	policy := MergeRules(rules, rctx)
	s.policyCache.SetDefault(key, *policy)
	return policy, nil
}

// MergeRules folds the matching rules into an effective policy.
//
// The fold is last-write-wins over ascending priority: every field a rule
// explicitly sets overwrites the merged value, so the highest-priority rule's
// settings win for the fields it defines. Priority ties are broken by target
// specificity (resource beats location beats booking-type beats org default).
// Fields no rule sets fall back to the documented system defaults.
func MergeRules(rules []*BookingRule, rctx ResolveContext) *EffectivePolicy {
	matched := make([]*BookingRule, 0, len(rules))
	for _, r := range rules {
		if r.effectiveAt(time.Now().UTC()) && r.matches(rctx) {
			matched = append(matched, r)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority < matched[j].Priority
		}
		return matched[i].TargetType.specificity() < matched[j].TargetType.specificity()
	})

	merged := BookingRule{}
	applied := make([]string, 0, len(matched))
	for _, r := range matched {
		overlay(&merged, r)
		applied = append(applied, r.ID)
	}

	return finalize(&merged, applied)
}

// overlay copies every explicitly-set field of src onto dst.
func overlay(dst, src *BookingRule) {
	if src.MinDurationMinutes != nil {
		dst.MinDurationMinutes = src.MinDurationMinutes
	}
	if src.MaxDurationMinutes != nil {
		dst.MaxDurationMinutes = src.MaxDurationMinutes
	}
	if src.MinNoticeHours != nil {
		dst.MinNoticeHours = src.MinNoticeHours
	}
	if src.MaxAdvanceDays != nil {
		dst.MaxAdvanceDays = src.MaxAdvanceDays
	}
	if src.MaxDailyHours != nil {
		dst.MaxDailyHours = src.MaxDailyHours
	}
	if src.MaxWeeklyHours != nil {
		dst.MaxWeeklyHours = src.MaxWeeklyHours
	}
	if src.MaxConcurrentBookings != nil {
		dst.MaxConcurrentBookings = src.MaxConcurrentBookings
	}
	if src.PreflightBufferMinutes != nil {
		dst.PreflightBufferMinutes = src.PreflightBufferMinutes
	}
	if src.PostflightBufferMinutes != nil {
		dst.PostflightBufferMinutes = src.PostflightBufferMinutes
	}
	if src.RequiresPaymentOnFile != nil {
		dst.RequiresPaymentOnFile = src.RequiresPaymentOnFile
	}
	if src.MinAccountBalance != nil {
		dst.MinAccountBalance = src.MinAccountBalance
	}
	if src.FreeCancellationHours != nil {
		dst.FreeCancellationHours = src.FreeCancellationHours
	}
	if src.LateCancellationFeePercent != nil {
		dst.LateCancellationFeePercent = src.LateCancellationFeePercent
	}
	if src.NoShowFeePercent != nil {
		dst.NoShowFeePercent = src.NoShowFeePercent
	}
	if src.RequiresApproval != nil {
		dst.RequiresApproval = src.RequiresApproval
	}
}

func finalize(merged *BookingRule, applied []string) *EffectivePolicy {
	p := &EffectivePolicy{
		MinDurationMinutes:         DefaultMinDurationMinutes,
		MaxDurationMinutes:         DefaultMaxDurationMinutes,
		MinNoticeHours:             DefaultMinNoticeHours,
		MaxAdvanceDays:             DefaultMaxAdvanceDays,
		MaxDailyHours:              Unlimited,
		MaxWeeklyHours:             Unlimited,
		MaxConcurrentBookings:      Unlimited,
		PreflightBufferMinutes:     DefaultPreflightBufferMinutes,
		PostflightBufferMinutes:    DefaultPostflightBufferMinutes,
		FreeCancellationHours:      DefaultFreeCancellationHours,
		LateCancellationFeePercent: DefaultLateCancellationFeePercent,
		NoShowFeePercent:           DefaultNoShowFeePercent,
		AppliedRuleIDs:             applied,
	}

	if merged.MinDurationMinutes != nil {
		p.MinDurationMinutes = *merged.MinDurationMinutes
	}
	if merged.MaxDurationMinutes != nil {
		p.MaxDurationMinutes = *merged.MaxDurationMinutes
	}
	if merged.MinNoticeHours != nil {
		p.MinNoticeHours = *merged.MinNoticeHours
	}
	if merged.MaxAdvanceDays != nil {
		p.MaxAdvanceDays = *merged.MaxAdvanceDays
	}
	if merged.MaxDailyHours != nil {
		p.MaxDailyHours = *merged.MaxDailyHours
	}
	if merged.MaxWeeklyHours != nil {
		p.MaxWeeklyHours = *merged.MaxWeeklyHours
	}
	if merged.MaxConcurrentBookings != nil {
		p.MaxConcurrentBookings = *merged.MaxConcurrentBookings
	}
	if merged.PreflightBufferMinutes != nil {
		p.PreflightBufferMinutes = *merged.PreflightBufferMinutes
	}
	if merged.PostflightBufferMinutes != nil {
		p.PostflightBufferMinutes = *merged.PostflightBufferMinutes
	}
	if merged.RequiresPaymentOnFile != nil {
		p.RequiresPaymentOnFile = *merged.RequiresPaymentOnFile
	}
	if merged.MinAccountBalance != nil {
		p.MinAccountBalance = *merged.MinAccountBalance
	}
	if merged.FreeCancellationHours != nil {
		p.FreeCancellationHours = *merged.FreeCancellationHours
	}
	if merged.LateCancellationFeePercent != nil {
		p.LateCancellationFeePercent = *merged.LateCancellationFeePercent
	}
	if merged.NoShowFeePercent != nil {
		p.NoShowFeePercent = *merged.NoShowFeePercent
	}
	if merged.RequiresApproval != nil {
		p.RequiresApproval = *merged.RequiresApproval
	}

	return p
}

func (s *service) ValidateWindow(policy *EffectivePolicy, start, end, now time.Time) ValidationResult {
	result := ValidationResult{
		Valid:      true,
		Violations: []string{},
		Warnings:   []string{},
	}

	duration := end.Sub(start)
	durationMinutes := int(duration.Minutes())

	result.EvaluatedFields = append(result.EvaluatedFields, "min_duration_minutes")
	if durationMinutes < policy.MinDurationMinutes {
		result.Violations = append(result.Violations,
			fmt.Sprintf("booking duration %d min is below the minimum of %d min", durationMinutes, policy.MinDurationMinutes))
	}

	result.EvaluatedFields = append(result.EvaluatedFields, "max_duration_minutes")
	if policy.MaxDurationMinutes != Unlimited && durationMinutes > policy.MaxDurationMinutes {
		result.Violations = append(result.Violations,
			fmt.Sprintf("booking duration %d min exceeds the maximum of %d min", durationMinutes, policy.MaxDurationMinutes))
	}

	result.EvaluatedFields = append(result.EvaluatedFields, "min_notice_hours")
	notice := start.Sub(now)
	if policy.MinNoticeHours != Unlimited && notice < time.Duration(policy.MinNoticeHours)*time.Hour {
		result.Violations = append(result.Violations,
			fmt.Sprintf("booking requires at least %d hours notice", policy.MinNoticeHours))
	}

	result.EvaluatedFields = append(result.EvaluatedFields, "max_advance_days")
	if policy.MaxAdvanceDays != Unlimited && start.After(now.AddDate(0, 0, policy.MaxAdvanceDays)) {
		result.Violations = append(result.Violations,
			fmt.Sprintf("booking cannot be more than %d days in advance", policy.MaxAdvanceDays))
	}

	if policy.RequiresApproval {
		result.EvaluatedFields = append(result.EvaluatedFields, "requires_approval")
		result.Warnings = append(result.Warnings, "booking requires approval before confirmation")
	}

	result.Valid = len(result.Violations) == 0
	return result
}

func cacheKey(rctx ResolveContext) string {
	return strings.Join([]string{
		rctx.OrganizationID, rctx.AircraftID, rctx.InstructorID,
		rctx.StudentID, rctx.LocationID, rctx.BookingType,
	}, "|")
}
