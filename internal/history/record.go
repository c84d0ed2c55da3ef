package history

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Status string

const (
	StatusApplied   Status = "Applied"
	StatusInterview Status = "Interview"
	StatusRejected  Status = "Rejected"
	StatusOffer     Status = "Offer" // Only ever set by the user
)

// Statuses lists every status in presentation order
var Statuses = []Status{StatusApplied, StatusInterview, StatusRejected, StatusOffer}

// ParseStatus matches s case-insensitively against the known statuses
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Columns are the table headers, in storage order
var Columns = []string{
	"Company",
	"Job Role",
	"Status",
	"Classification Phrase",
	"Date Applied",
	"Time Received",
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Record is one job application event
type Record struct {
	Company      string `json:"company"`
	Role         string `json:"role"`
	Status       Status `json:"status"`
	Phrase       string `json:"phrase"`
	DateApplied  string `json:"date_applied"`  // YYYY-MM-DD, may be empty
	TimeReceived string `json:"time_received"` // HH:MM, may be empty
}

// Key identifies a record. Status and phrase are not part of it, so a
// reclassified email never produces a second row.
type Key struct {
	Company      string `json:"company"`
	Role         string `json:"role"`
	DateApplied  string `json:"date_applied"`
	TimeReceived string `json:"time_received"`
}

func (r Record) Key() Key {
	return Key{
		Company:      r.Company,
		Role:         r.Role,
		DateApplied:  r.DateApplied,
		TimeReceived: r.TimeReceived,
	}
}

// Row returns the record's cells in Columns order
func (r Record) Row() []string {
	return []string{r.Company, r.Role, string(r.Status), r.Phrase, r.DateApplied, r.TimeReceived}
}

// RecordFromRow builds a record from cells in Columns order; missing
// trailing cells are empty.
func RecordFromRow(row []string) Record {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	return Record{
		Company:      cell(0),
		Role:         cell(1),
		Status:       Status(cell(2)),
		Phrase:       cell(3),
		DateApplied:  cell(4),
		TimeReceived: cell(5),
	}
}

// Merge folds a batch of new records into the existing set. Exact duplicates
// inside the batch are dropped, then the union (existing first) is
// deduplicated by Key keeping the first occurrence, so stored records,
// including user edits, win over re-extracted ones. The result is sorted
// for presentation. added counts the batch records that survived.
//
// Merge is idempotent: merging the same batch again changes nothing.
func Merge(existing, batch []Record) (merged []Record, added int) {
	seenRecord := make(map[Record]bool, len(batch))
	var fresh []Record
	for _, r := range batch {
		if seenRecord[r] {
			continue
		}
		seenRecord[r] = true
		fresh = append(fresh, r)
	}

	seenKey := make(map[Key]bool, len(existing)+len(fresh))
	merged = make([]Record, 0, len(existing)+len(fresh))
	for _, r := range existing {
		if seenKey[r.Key()] {
			continue
		}
		seenKey[r.Key()] = true
		merged = append(merged, r)
	}
	for _, r := range fresh {
		if seenKey[r.Key()] {
			continue
		}
		seenKey[r.Key()] = true
		merged = append(merged, r)
		added++
	}

	Sort(merged)
	return merged, added
}

// Sort orders records by date applied, newest first, then time received,
// latest first. Records without a parseable date or time sort after those
// with one; ties keep their relative order.
func Sort(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return less(records[i], records[j])
	})
}

func less(a, b Record) bool {
	if c := compareDesc(a.DateApplied, b.DateApplied, dateLayout); c != 0 {
		return c < 0
	}
	return compareDesc(a.TimeReceived, b.TimeReceived, timeLayout) < 0
}

// compareDesc returns -1 if a sorts before b: later values first, unparseable last
func compareDesc(a, b, layout string) int {
	ta, errA := time.Parse(layout, a)
	tb, errB := time.Parse(layout, b)
	switch {
	case errA != nil && errB != nil:
		return 0
	case errA != nil:
		return 1
	case errB != nil:
		return -1
	case ta.After(tb):
		return -1
	case tb.After(ta):
		return 1
	}
	return 0
}

// Counts tallies records by status
func Counts(records []Record) map[Status]int {
	counts := make(map[Status]int, len(Statuses))
	for _, r := range records {
		counts[r.Status]++
	}
	return counts
}
