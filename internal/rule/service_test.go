package rule

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func activeRule(id string, target TargetType, targetID string, priority int) *BookingRule {
	return &BookingRule{
		ID:         id,
		TargetType: target,
		TargetID:   targetID,
		Priority:   priority,
		Active:     true,
	}
}

func TestMergeRulesDefaults(t *testing.T) {
	policy := MergeRules(nil, ResolveContext{OrganizationID: "org-1"})

	assert.Equal(t, DefaultMinDurationMinutes, policy.MinDurationMinutes)
	assert.Equal(t, DefaultMaxDurationMinutes, policy.MaxDurationMinutes)
	assert.Equal(t, DefaultMinNoticeHours, policy.MinNoticeHours)
	assert.Equal(t, DefaultMaxAdvanceDays, policy.MaxAdvanceDays)
	assert.Equal(t, DefaultPreflightBufferMinutes, policy.PreflightBufferMinutes)
	assert.Equal(t, DefaultPostflightBufferMinutes, policy.PostflightBufferMinutes)
	assert.Equal(t, DefaultFreeCancellationHours, policy.FreeCancellationHours)
	assert.InDelta(t, DefaultLateCancellationFeePercent, policy.LateCancellationFeePercent, 0.001)
	assert.InDelta(t, DefaultNoShowFeePercent, policy.NoShowFeePercent, 0.001)
	assert.Equal(t, float64(Unlimited), policy.MaxDailyHours)
	assert.Equal(t, Unlimited, policy.MaxConcurrentBookings)
	assert.False(t, policy.RequiresApproval)
	assert.Empty(t, policy.AppliedRuleIDs)
}

func TestMergeRulesHigherPriorityWins(t *testing.T) {
	base := activeRule("base", TargetOrgDefault, "", 0)
	base.MinDurationMinutes = intPtr(30)
	base.MaxDurationMinutes = intPtr(240)

	override := activeRule("override", TargetOrgDefault, "", 10)
	override.MinDurationMinutes = intPtr(60)

	policy := MergeRules([]*BookingRule{override, base}, ResolveContext{OrganizationID: "org-1"})

	// The higher-priority rule overwrites the fields it sets and defers the rest.
	assert.Equal(t, 60, policy.MinDurationMinutes)
	assert.Equal(t, 240, policy.MaxDurationMinutes)
	assert.Equal(t, []string{"base", "override"}, policy.AppliedRuleIDs)
}

func TestMergeRulesUnsetDefersSetWins(t *testing.T) {
	low := activeRule("low", TargetOrgDefault, "", 1)
	low.MaxAdvanceDays = intPtr(30)
	low.NoShowFeePercent = floatPtr(80)

	high := activeRule("high", TargetOrgDefault, "", 5)
	// MaxAdvanceDays left nil: defers to the lower-priority rule.
	high.FreeCancellationHours = intPtr(48)

	policy := MergeRules([]*BookingRule{low, high}, ResolveContext{OrganizationID: "org-1"})

	assert.Equal(t, 30, policy.MaxAdvanceDays)
	assert.Equal(t, 48, policy.FreeCancellationHours)
	assert.InDelta(t, 80, policy.NoShowFeePercent, 0.001)
}

func TestMergeRulesUnlimitedSentinel(t *testing.T) {
	r := activeRule("r", TargetOrgDefault, "", 0)
	r.MaxConcurrentBookings = intPtr(Unlimited)

	policy := MergeRules([]*BookingRule{r}, ResolveContext{OrganizationID: "org-1"})
	assert.Equal(t, Unlimited, policy.MaxConcurrentBookings)
}

func TestMergeRulesSpecificityBreaksPriorityTies(t *testing.T) {
	orgWide := activeRule("org", TargetOrgDefault, "", 5)
	orgWide.PreflightBufferMinutes = intPtr(15)

	location := activeRule("loc", TargetLocation, "loc-1", 5)
	location.PreflightBufferMinutes = intPtr(20)

	aircraft := activeRule("acft", TargetAircraft, "acft-1", 5)
	aircraft.PreflightBufferMinutes = intPtr(45)

	ctx := ResolveContext{
		OrganizationID: "org-1",
		AircraftID:     "acft-1",
		LocationID:     "loc-1",
	}

	policy := MergeRules([]*BookingRule{orgWide, aircraft, location}, ctx)
	assert.Equal(t, 45, policy.PreflightBufferMinutes)
}

func TestMergeRulesScopedRuleIgnoredOutsideContext(t *testing.T) {
	scoped := activeRule("scoped", TargetAircraft, "acft-1", 100)
	scoped.MaxDurationMinutes = intPtr(120)

	policy := MergeRules([]*BookingRule{scoped}, ResolveContext{
		OrganizationID: "org-1",
		AircraftID:     "acft-2",
	})

	assert.Equal(t, DefaultMaxDurationMinutes, policy.MaxDurationMinutes)
	assert.Empty(t, policy.AppliedRuleIDs)
}

func TestMergeRulesBookingTypeTarget(t *testing.T) {
	checkRide := activeRule("check", TargetBookingType, "check_ride", 1)
	checkRide.RequiresApproval = boolPtr(true)

	withType := MergeRules([]*BookingRule{checkRide}, ResolveContext{
		OrganizationID: "org-1",
		BookingType:    "check_ride",
	})
	withoutType := MergeRules([]*BookingRule{checkRide}, ResolveContext{
		OrganizationID: "org-1",
		BookingType:    "rental",
	})

	assert.True(t, withType.RequiresApproval)
	assert.False(t, withoutType.RequiresApproval)
}

func TestMergeRulesInactiveAndOutOfRangeExcluded(t *testing.T) {
	inactive := activeRule("inactive", TargetOrgDefault, "", 10)
	inactive.Active = false
	inactive.MinDurationMinutes = intPtr(90)

	past := time.Now().UTC().Add(-time.Hour)
	expired := activeRule("expired", TargetOrgDefault, "", 10)
	expired.EffectiveUntil = &past
	expired.MinDurationMinutes = intPtr(120)

	policy := MergeRules([]*BookingRule{inactive, expired}, ResolveContext{OrganizationID: "org-1"})
	assert.Equal(t, DefaultMinDurationMinutes, policy.MinDurationMinutes)
}

func TestValidateWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	svc := &service{}

	policy := &EffectivePolicy{
		MinDurationMinutes: 60,
		MaxDurationMinutes: 180,
		MinNoticeHours:     24,
		MaxAdvanceDays:     30,
	}

	tests := []struct {
		name       string
		start, end time.Time
		valid      bool
	}{
		{
			name:  "within all limits",
			start: now.AddDate(0, 0, 2),
			end:   now.AddDate(0, 0, 2).Add(2 * time.Hour),
			valid: true,
		},
		{
			name:  "too short",
			start: now.AddDate(0, 0, 2),
			end:   now.AddDate(0, 0, 2).Add(30 * time.Minute),
			valid: false,
		},
		{
			name:  "too long",
			start: now.AddDate(0, 0, 2),
			end:   now.AddDate(0, 0, 2).Add(4 * time.Hour),
			valid: false,
		},
		{
			name:  "not enough notice",
			start: now.Add(2 * time.Hour),
			end:   now.Add(3 * time.Hour),
			valid: false,
		},
		{
			name:  "too far in advance",
			start: now.AddDate(0, 0, 45),
			end:   now.AddDate(0, 0, 45).Add(time.Hour),
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := svc.ValidateWindow(policy, tt.start, tt.end, now)
			assert.Equal(t, tt.valid, result.Valid)
			if !tt.valid {
				require.NotEmpty(t, result.Violations)
			}
		})
	}
}

func TestValidateWindowApprovalWarning(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	svc := &service{}

	policy := &EffectivePolicy{
		MinDurationMinutes: 15,
		MaxDurationMinutes: 480,
		MinNoticeHours:     1,
		MaxAdvanceDays:     90,
		RequiresApproval:   true,
	}

	result := svc.ValidateWindow(policy, now.AddDate(0, 0, 1), now.AddDate(0, 0, 1).Add(time.Hour), now)
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
}

func TestValidateWindowUnlimitedSkipsChecks(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	svc := &service{}

	policy := &EffectivePolicy{
		MinDurationMinutes: 15,
		MaxDurationMinutes: Unlimited,
		MinNoticeHours:     Unlimited,
		MaxAdvanceDays:     Unlimited,
	}

	// Ten hours, right now, a year out: nothing to violate.
	result := svc.ValidateWindow(policy, now.AddDate(1, 0, 0), now.AddDate(1, 0, 0).Add(10*time.Hour), now)
	assert.True(t, result.Valid)
}

type fakeRuleRepo struct {
	rules  map[string]*BookingRule
	nextID int
}

func newFakeRuleRepo() *fakeRuleRepo {
	return &fakeRuleRepo{rules: make(map[string]*BookingRule)}
}

func (f *fakeRuleRepo) Create(ctx context.Context, r *BookingRule) error {
	f.nextID++
	r.ID = fmt.Sprintf("rule-%d", f.nextID)
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	f.rules[r.ID] = r
	return nil
}

func (f *fakeRuleRepo) GetByID(ctx context.Context, id string) (*BookingRule, error) {
	r, ok := f.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (f *fakeRuleRepo) List(ctx context.Context, filter Filter) ([]*BookingRule, int, error) {
	var out []*BookingRule
	for _, r := range f.rules {
		out = append(out, r)
	}
	return out, len(out), nil
}

func (f *fakeRuleRepo) Update(ctx context.Context, r *BookingRule) error {
	if _, ok := f.rules[r.ID]; !ok {
		return ErrNotFound
	}
	r.UpdatedAt = time.Now().UTC()
	stored := *r
	f.rules[r.ID] = &stored
	return nil
}

func (f *fakeRuleRepo) ListActive(ctx context.Context, orgID string, now time.Time) ([]*BookingRule, error) {
	var out []*BookingRule
	for _, r := range f.rules {
		if r.OrganizationID == orgID && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRuleRepo) Deactivate(ctx context.Context, id string) error {
	r, ok := f.rules[id]
	if !ok {
		return ErrNotFound
	}
	r.Active = false
	return nil
}

func TestUpdateReplacesDefinition(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRuleRepo()
	svc := NewService(repo, time.Minute)

	created, err := svc.Create(ctx, CreateRuleRequest{
		OrganizationID:     "org-1",
		Name:               "org default",
		TargetType:         TargetOrgDefault,
		Priority:           1,
		MinDurationMinutes: intPtr(30),
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, UpdateRuleRequest{
		Name:               "org default",
		Priority:           2,
		MaxDurationMinutes: intPtr(120),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, updated.Priority)
	require.NotNil(t, updated.MaxDurationMinutes)
	assert.Equal(t, 120, *updated.MaxDurationMinutes)
	// Constraints omitted from the update clear back to deferred.
	assert.Nil(t, updated.MinDurationMinutes)
}

func TestUpdateFlushesResolvedPolicies(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRuleRepo()
	svc := NewService(repo, time.Minute)

	created, err := svc.Create(ctx, CreateRuleRequest{
		OrganizationID:     "org-1",
		Name:               "org default",
		TargetType:         TargetOrgDefault,
		Priority:           1,
		MinDurationMinutes: intPtr(30),
	})
	require.NoError(t, err)

	rctx := ResolveContext{OrganizationID: "org-1"}
	policy, err := svc.ResolvePolicy(ctx, rctx)
	require.NoError(t, err)
	assert.Equal(t, 30, policy.MinDurationMinutes)

	_, err = svc.Update(ctx, created.ID, UpdateRuleRequest{
		Name:               "org default",
		Priority:           1,
		MinDurationMinutes: intPtr(45),
	})
	require.NoError(t, err)

	// The cached policy must not survive the mutation.
	policy, err = svc.ResolvePolicy(ctx, rctx)
	require.NoError(t, err)
	assert.Equal(t, 45, policy.MinDurationMinutes)
}

func TestUpdateValidation(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRuleRepo()
	svc := NewService(repo, time.Minute)

	created, err := svc.Create(ctx, CreateRuleRequest{
		OrganizationID: "org-1",
		Name:           "org default",
		TargetType:     TargetOrgDefault,
	})
	require.NoError(t, err)

	_, err = svc.Update(ctx, created.ID, UpdateRuleRequest{Name: "  "})
	assert.ErrorIs(t, err, ErrNameRequired)

	from := time.Now().UTC()
	_, err = svc.Update(ctx, created.ID, UpdateRuleRequest{
		Name:           "org default",
		EffectiveFrom:  &from,
		EffectiveUntil: &from,
	})
	assert.ErrorIs(t, err, ErrInvalidEffective)

	_, err = svc.Update(ctx, "missing", UpdateRuleRequest{Name: "org default"})
	assert.ErrorIs(t, err, ErrNotFound)
}
