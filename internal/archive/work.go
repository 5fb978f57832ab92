package archive

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the layout of the posted/updated date shown on a listing, ex. "05 Dec 2020".
const DateLayout = "02 Jan 2006"

// dateJsonLayout is the layout dates are stored in when works are serialized.
const dateJsonLayout = "2006-01-02"

// Date is a calendar date without a time of day or timezone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// ParseDate parses text in the given layout into a Date.
func ParseDate(layout, text string) (Date, error) {
	t, err := time.Parse(layout, text)
	if err != nil {
		return Date{}, err
	}
	return NewDate(t.Year(), t.Month(), t.Day()), nil
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	text := strings.Trim(string(data), `"`)
	parsed, err := ParseDate(dateJsonLayout, text)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	*d = parsed
	return nil
}

// Work is the metadata of one creative work as it appears in a search result listing.
type Work struct {
	Id    string `json:"id"`
	Title string `json:"title"`
	// Author is nil for works that do not show an author.
	Author        *string  `json:"author"`
	Relationships []string `json:"relationships"`
	Characters    []string `json:"characters"`
	Freeforms     []string `json:"freeforms"`
	Date          Date     `json:"date"`
	Language      string   `json:"language"`
	Words         uint32   `json:"words"`
	Kudos         uint32   `json:"kudos"`
	Hits          uint32   `json:"hits"`
}
