package seed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/orneryd/conduit/pkg/storage"
)

// Required CSV columns. Extra columns are ignored.
const (
	ColumnUserName  = "User Name"
	ColumnCampaign  = "Campaign"
	ColumnSegmentID = "Segment Id"
)

// ErrInvalidCSV is returned for a malformed campaign file.
var ErrInvalidCSV = errors.New("invalid campaign csv")

// ImportStats counts what ImportCampaigns changed.
type ImportStats struct {
	Rows      int
	Campaigns int
}

// ImportCampaigns assigns campaigns from CSV. Rows are processed in order: a
// row whose user differs from the previous row starts a new current campaign
// for that user (the old one moves to the previous campaigns) seeded with the
// row's segment; following rows for the same user append to it.
//
// Blank cells are rejected. Rows already applied when an error occurs stay
// applied.
func ImportCampaigns(db *storage.BadgerEngine, r io.Reader) (ImportStats, error) {
	var stats ImportStats

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return stats, fmt.Errorf("%w: empty file", ErrInvalidCSV)
	}
	if err != nil {
		return stats, fmt.Errorf("%w: %w", ErrInvalidCSV, err)
	}
	cols, err := columnIndexes(header)
	if err != nil {
		return stats, err
	}

	var username string
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("%w: %w", ErrInvalidCSV, err)
		}

		user := strings.TrimSpace(record[cols[0]])
		campaign := strings.TrimSpace(record[cols[1]])
		segmentID := strings.TrimSpace(record[cols[2]])
		if user == "" || campaign == "" || segmentID == "" {
			return stats, fmt.Errorf("%w: line %d has a blank cell", ErrInvalidCSV, line)
		}

		if user == username {
			err = db.AppendCampaignSegment(user, segmentID)
		} else {
			username = user
			err = db.NewCampaign(user, campaign, segmentID)
			if err == nil {
				stats.Campaigns++
			}
		}
		if err != nil {
			return stats, fmt.Errorf("line %d (%s): %w", line, user, err)
		}
		stats.Rows++
	}
	return stats, nil
}

// columnIndexes locates the user, campaign and segment columns in header.
func columnIndexes(header []string) ([3]int, error) {
	want := []string{ColumnUserName, ColumnCampaign, ColumnSegmentID}
	var idx [3]int
	for i, name := range want {
		idx[i] = -1
		for j, h := range header {
			if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), name) {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return idx, fmt.Errorf("%w: missing column %q", ErrInvalidCSV, name)
		}
	}
	return idx, nil
}
