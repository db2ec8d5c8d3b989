package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Minutes is a clock time expressed as minutes from midnight. It marshals
// as "HH:MM" so API payloads match the upstream agenda format.
type Minutes int

func (m Minutes) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

func (m Minutes) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Minutes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseClock(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseClock accepts "HH:MM" or "HH:MM:SS".
func ParseClock(s string) (Minutes, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	mi, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	if h < 0 || h > 23 || mi < 0 || mi > 59 {
		return 0, fmt.Errorf("clock time out of range %q", s)
	}
	return Minutes(h*60 + mi), nil
}

type Appointment struct {
	ID          int64     `json:"id"`
	BoxID       int       `json:"box_id"`
	MedicID     *int      `json:"medic_id,omitempty"`
	Date        time.Time `json:"date"`
	Start       Minutes   `json:"start"`
	End         Minutes   `json:"end"`
	Enabled     bool      `json:"enabled"`
	IsMedical   bool      `json:"is_medical"`
	Responsible string    `json:"responsible,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}

// Overlaps reports half-open interval overlap with another appointment on
// the same box and date. Touching endpoints do not overlap.
func (a Appointment) Overlaps(b Appointment) bool {
	if a.BoxID != b.BoxID || !a.Date.Equal(b.Date) {
		return false
	}
	return a.Start < b.End && b.Start < a.End
}

type BoxType struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Principal bool   `json:"principal"`
}

type Box struct {
	ID       int       `json:"id"`
	State    string    `json:"state"`
	Corridor string    `json:"corridor"`
	Comment  string    `json:"comment,omitempty"`
	Types    []BoxType `json:"types,omitempty"`
}

// Disabled boxes are skipped by availability queries unless the caller asks
// for emergency candidates. An empty state counts as enabled.
func (b Box) Disabled() bool {
	return strings.EqualFold(strings.TrimSpace(b.State), "disabled")
}

type Medic struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	SpecialtyID *int   `json:"specialty_id,omitempty"`
}

// ConflictPair is one adjacent overlapping pair found in a box/date group.
// Chains of overlaps produce one pair per overlapping neighbor, so the full
// result is a multiset of pairs, not disjoint clusters.
type ConflictPair struct {
	BoxID  int         `json:"box_id"`
	Date   time.Time   `json:"date"`
	First  Appointment `json:"first"`
	Second Appointment `json:"second"`
}

type Criterion struct {
	Name     string  `json:"name"`
	Points   float64 `json:"points"`
	Detail   string  `json:"detail"`
	Category string  `json:"category"`
}

type ScoredBox struct {
	Box       Box         `json:"box"`
	Score     float64     `json:"score"`
	Criteria  []Criterion `json:"criteria"`
	Enabled   bool        `json:"enabled"`
	Occupied  bool        `json:"occupied"`
	Available bool        `json:"available"`
}

type ConflictSummary struct {
	Date          time.Time     `json:"date"`
	Start         Minutes       `json:"start"`
	End           Minutes       `json:"end"`
	DurationHours float64       `json:"duration_hours"`
	Appointments  []Appointment `json:"appointments"`
	Boxes         []Box         `json:"boxes"`
	Medics        []Medic       `json:"medics"`
	PrincipalTags []string      `json:"principal_tags"`
	SecondaryTags []string      `json:"secondary_tags"`
}

type ResolutionStats struct {
	Evaluated    int     `json:"evaluated"`
	EnabledCount int     `json:"enabled"`
	Disabled     int     `json:"disabled"`
	Occupied     int     `json:"occupied"`
	BestScore    float64 `json:"best_score"`
	AverageScore float64 `json:"average_score"`
}

type Resolution struct {
	Conflict         ConflictSummary `json:"conflict"`
	Recommendations  []ScoredBox     `json:"recommendations"`
	BestOptions      []ScoredBox     `json:"best_options"`
	EmergencyOptions []ScoredBox     `json:"emergency_options"`
	Stats            ResolutionStats `json:"stats"`
}

type ChangeResult struct {
	AppointmentID int64     `json:"appointment_id"`
	PreviousBoxID int       `json:"previous_box_id"`
	NewBoxID      int       `json:"new_box_id"`
	ChangedAt     time.Time `json:"changed_at"`
	Window        string    `json:"window"`
	Comment       string    `json:"comment,omitempty"`
}

type BoxUsage struct {
	BoxID        int    `json:"box_id"`
	Appointments int    `json:"appointments"`
	Minutes      int    `json:"minutes"`
	Corridor     string `json:"corridor,omitempty"`
	State        string `json:"state,omitempty"`
}

type TypeUsage struct {
	Name           string `json:"name"`
	TotalBoxes     int    `json:"total_boxes"`
	PrincipalBoxes int    `json:"principal_boxes"`
}

type Alert struct {
	Kind        string `json:"kind"`
	BoxID       int    `json:"box_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Value       int    `json:"value"`
}

// Snapshot is one precomputed dashboard aggregate for a reporting window.
// Snapshots are immutable; regeneration supersedes the previous one.
type Snapshot struct {
	Period            string      `json:"period"`
	From              time.Time   `json:"from"`
	To                time.Time   `json:"to"`
	TotalBoxes        int         `json:"total_boxes"`
	TotalAppointments int         `json:"total_appointments"`
	Medical           int         `json:"medical"`
	NonMedical        int         `json:"non_medical"`
	OccupancyPct      float64     `json:"occupancy_pct"`
	AvgDurationMin    float64     `json:"avg_duration_min"`
	DeadHours         float64     `json:"dead_hours"`
	MostUsedBox       BoxUsage    `json:"most_used_box"`
	LeastUsedBox      BoxUsage    `json:"least_used_box"`
	MorningCount      int         `json:"morning_count"`
	AfternoonCount    int         `json:"afternoon_count"`
	Ranking           []BoxUsage  `json:"ranking"`
	TypeStats         []TypeUsage `json:"type_stats"`
	Alerts            []Alert     `json:"alerts"`
	Trend             []int       `json:"trend"`
	ComputeMS         int64       `json:"compute_ms"`
	CreatedAt         time.Time   `json:"created_at"`
	ExpiresAt         time.Time   `json:"expires_at"`
}
