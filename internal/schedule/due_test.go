package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

var now = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func company(id, client string, last *time.Time) lead.Company {
	return lead.Company{ID: id, ClientID: client, Name: id, Active: true, LastScannedAt: last}
}

func ids(tasks []lead.ScanTask) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Company.ID)
	}
	return out
}

func TestDueCompaniesRespectsFrequency(t *testing.T) {
	t.Parallel()

	strategies := map[string]lead.ClientStrategy{
		"acme": {ClientID: "acme", Active: true, Frequency: lead.FrequencyWeekly},
	}
	companies := []lead.Company{
		company("never", "acme", nil),
		company("stale", "acme", ago(8*24*time.Hour)),
		company("fresh", "acme", ago(2*24*time.Hour)),
		company("edge", "acme", ago(7*24*time.Hour)),
	}

	tasks := DueCompanies(companies, strategies, now, Options{})
	require.Equal(t, []string{"never", "stale", "edge"}, ids(tasks))
	for _, task := range tasks {
		require.Equal(t, "acme", task.ClientID)
		require.Equal(t, now, task.EnqueuedAt)
	}
}

func TestDueCompaniesSkipsInactive(t *testing.T) {
	t.Parallel()

	strategies := map[string]lead.ClientStrategy{
		"on":  {ClientID: "on", Active: true},
		"off": {ClientID: "off", Active: false},
	}
	inactive := company("inactive", "on", nil)
	inactive.Active = false
	companies := []lead.Company{
		inactive,
		company("orphan", "missing", nil),
		company("paused-client", "off", nil),
		company("ok", "on", nil),
	}

	require.Equal(t, []string{"ok"}, ids(DueCompanies(companies, strategies, now, Options{})))
}

func TestDueCompaniesDailyQuota(t *testing.T) {
	t.Parallel()

	strategies := map[string]lead.ClientStrategy{
		"acme": {ClientID: "acme", Active: true, Frequency: lead.FrequencyDaily, DailyQuota: 3},
	}
	companies := []lead.Company{
		company("today-1", "acme", ago(time.Hour)),
		company("a", "acme", nil),
		company("b", "acme", nil),
		company("c", "acme", ago(48*time.Hour)),
	}

	tasks := DueCompanies(companies, strategies, now, Options{})
	require.Equal(t, []string{"a", "b"}, ids(tasks))
}

func TestDueCompaniesQuotaExhausted(t *testing.T) {
	t.Parallel()

	strategies := map[string]lead.ClientStrategy{
		"acme": {ClientID: "acme", Active: true, DailyQuota: 1},
	}
	companies := []lead.Company{
		company("done", "acme", ago(time.Hour)),
		company("waiting", "acme", nil),
	}

	require.Empty(t, DueCompanies(companies, strategies, now, Options{Force: true}))
}

func TestDueCompaniesNamedCompanyBypassesQuota(t *testing.T) {
	t.Parallel()

	strategies := map[string]lead.ClientStrategy{
		"acme": {ClientID: "acme", Active: true, Frequency: lead.FrequencyDaily, DailyQuota: 1},
	}
	companies := []lead.Company{
		company("c1", "acme", ago(2*time.Hour)),
		company("c2", "acme", nil),
	}

	tasks := DueCompanies(companies, strategies, now, Options{Force: true, ClientID: "acme", CompanyIDs: []string{"c1"}})
	require.Equal(t, []string{"c1"}, ids(tasks))

	// Named but not forced still honours the interval.
	require.Empty(t, DueCompanies(companies, strategies, now, Options{CompanyIDs: []string{"c1"}}))
	// Unnamed cycles still honour the quota.
	require.Empty(t, DueCompanies(companies, strategies, now, Options{Force: true}))
}

func TestDueCompaniesRoundRobin(t *testing.T) {
	t.Parallel()

	strategies := map[string]lead.ClientStrategy{
		"b-client": {Active: true},
		"a-client": {Active: true},
	}
	companies := []lead.Company{
		company("b1", "b-client", nil),
		company("b2", "b-client", nil),
		company("b3", "b-client", nil),
		company("a1", "a-client", nil),
	}

	require.Equal(t, []string{"a1", "b1", "b2", "b3"}, ids(DueCompanies(companies, strategies, now, Options{})))
	require.Equal(t, []string{"a1", "b1"}, ids(DueCompanies(companies, strategies, now, Options{MaxTasks: 2})))
}

func TestDueCompaniesFilters(t *testing.T) {
	t.Parallel()

	strategies := map[string]lead.ClientStrategy{
		"a": {Active: true, Frequency: lead.FrequencyMonthly},
		"b": {Active: true},
	}
	companies := []lead.Company{
		company("a1", "a", ago(time.Hour)),
		company("a2", "a", nil),
		company("b1", "b", nil),
	}

	require.Equal(t, []string{"a2"}, ids(DueCompanies(companies, strategies, now, Options{ClientID: "a"})))
	require.Equal(t, []string{"a1"}, ids(DueCompanies(companies, strategies, now, Options{Force: true, CompanyIDs: []string{"a1"}})))
}

func TestNextDue(t *testing.T) {
	t.Parallel()

	created := now.Add(-time.Hour)
	c := lead.Company{CreatedAt: created}
	require.Equal(t, created, NextDue(c, lead.ClientStrategy{}))

	c.LastScannedAt = ago(24 * time.Hour)
	require.Equal(t, now.Add(13*24*time.Hour), NextDue(c, lead.ClientStrategy{Frequency: lead.FrequencyBiweekly}))
	require.Equal(t, now.Add(6*24*time.Hour), NextDue(c, lead.ClientStrategy{Frequency: "hourly"}))
}
