// Package schedule decides which companies are due for a scan in the current cycle.
package schedule

import (
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

// Options tunes a due-queue computation.
type Options struct {
	// Force ignores the per-client interval. Daily quotas still apply unless
	// CompanyIDs names the companies to scan.
	Force bool
	// MaxTasks caps the number of tasks across all clients. Zero means no cap.
	MaxTasks int
	// ClientID restricts the queue to one client when set.
	ClientID string
	// CompanyIDs restricts the queue to specific companies when set. Explicitly
	// named companies bypass the daily quota.
	CompanyIDs []string
}

// DueCompanies builds the ordered scan queue for now.
//
// Per client, never-scanned companies come first, then the longest-unscanned.
// Clients are interleaved round-robin in client ID order so a large tenant
// cannot starve the others when MaxTasks truncates the queue.
func DueCompanies(
	companies []lead.Company,
	strategies map[string]lead.ClientStrategy,
	now time.Time,
	opts Options,
) []lead.ScanTask {
	now = now.UTC()
	dayStart := startOfDay(now)

	var only map[string]struct{}
	if len(opts.CompanyIDs) > 0 {
		only = make(map[string]struct{}, len(opts.CompanyIDs))
		for _, id := range opts.CompanyIDs {
			only[id] = struct{}{}
		}
	}

	scannedToday := make(map[string]int)
	candidates := make(map[string][]lead.Company)
	for _, c := range companies {
		if c.LastScannedAt != nil && !c.LastScannedAt.UTC().Before(dayStart) {
			scannedToday[c.ClientID]++
		}
		if !c.Active {
			continue
		}
		if opts.ClientID != "" && c.ClientID != opts.ClientID {
			continue
		}
		if only != nil {
			if _, ok := only[c.ID]; !ok {
				continue
			}
		}
		strategy, ok := strategies[c.ClientID]
		if !ok || !strategy.Active {
			continue
		}
		if !opts.Force && !IsDue(c, strategy, now) {
			continue
		}
		candidates[c.ClientID] = append(candidates[c.ClientID], c)
	}

	clientIDs := make([]string, 0, len(candidates))
	for clientID, list := range candidates {
		sortForScan(list)
		quota := strategies[clientID].DailyQuota
		if quota > 0 && only == nil {
			remaining := max(quota-scannedToday[clientID], 0)
			if len(list) > remaining {
				list = list[:remaining]
			}
		}
		candidates[clientID] = list
		if len(list) > 0 {
			clientIDs = append(clientIDs, clientID)
		}
	}
	sort.Strings(clientIDs)

	var tasks []lead.ScanTask
	for round := 0; ; round++ {
		added := false
		for _, clientID := range clientIDs {
			list := candidates[clientID]
			if round >= len(list) {
				continue
			}
			if opts.MaxTasks > 0 && len(tasks) >= opts.MaxTasks {
				return tasks
			}
			tasks = append(tasks, lead.ScanTask{
				ClientID:   clientID,
				Company:    list[round],
				EnqueuedAt: now,
			})
			added = true
		}
		if !added {
			return tasks
		}
	}
}

// IsDue reports whether the company's scan interval has elapsed.
func IsDue(c lead.Company, strategy lead.ClientStrategy, now time.Time) bool {
	if c.LastScannedAt == nil {
		return true
	}
	return !now.Before(NextDue(c, strategy))
}

// NextDue returns when the company next becomes due. Never-scanned companies
// are due at their creation time.
func NextDue(c lead.Company, strategy lead.ClientStrategy) time.Time {
	if c.LastScannedAt == nil {
		return c.CreatedAt.UTC()
	}
	return c.LastScannedAt.UTC().Add(strategy.Frequency.Interval())
}

func sortForScan(list []lead.Company) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].LastScannedAt, list[j].LastScannedAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		ni, nj := strings.ToLower(list[i].Name), strings.ToLower(list[j].Name)
		if ni != nj {
			return ni < nj
		}
		return list[i].ID < list[j].ID
	})
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
