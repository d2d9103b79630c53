package storage

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/orneryd/conduit/pkg/segment"
)

// ============================================================================
// Annotator Operations
// ============================================================================

// PutAnnotator creates or replaces an annotator, keyed by username. An empty
// ID is filled with a random UUID.
func (b *BadgerEngine) PutAnnotator(a *segment.Annotator) error {
	if a == nil {
		return ErrInvalidData
	}
	if a.Username == "" {
		return ErrInvalidID
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	data, err := encode(a)
	if err != nil {
		return fmt.Errorf("failed to encode annotator %s: %w", a.Username, err)
	}

	var existed bool
	err = b.withUpdate(func(txn *badger.Txn) error {
		key := annotatorKey(a.Username)
		ok, err := exists(txn, key)
		if err != nil {
			return err
		}
		existed = ok
		return txn.Set(key, data)
	})
	if err != nil {
		return err
	}
	if !existed {
		b.annotatorCount.Add(1)
	}
	return nil
}

// GetAnnotator retrieves an annotator by username.
func (b *BadgerEngine) GetAnnotator(username string) (*segment.Annotator, error) {
	if username == "" {
		return nil, ErrInvalidID
	}
	var a segment.Annotator
	err := b.withView(func(txn *badger.Txn) error {
		return getItem(txn, annotatorKey(username), &a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAnnotators returns every annotator ordered by username.
func (b *BadgerEngine) ListAnnotators() ([]*segment.Annotator, error) {
	var out []*segment.Annotator
	err := b.withView(func(txn *badger.Txn) error {
		it := txn.NewIterator(iterOptsValues([]byte{prefixAnnotator}, 0, false))
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var a segment.Annotator
			if err := it.Item().Value(func(val []byte) error { return decode(val, &a) }); err != nil {
				return fmt.Errorf("failed to decode annotator %s: %w", idFromKey(it.Item().Key()), err)
			}
			out = append(out, &a)
		}
		return nil
	})
	return out, err
}

// NewCampaign starts a campaign called name for username, seeded with
// segmentID. The annotator's current campaign, if any, moves to the previous
// campaigns.
func (b *BadgerEngine) NewCampaign(username, name, segmentID string) error {
	return b.updateAnnotator(username, func(a *segment.Annotator) error {
		if a.CurrentCampaign != nil {
			a.PreviousCampaigns = append(a.PreviousCampaigns, *a.CurrentCampaign)
		}
		c := &segment.Campaign{Name: name}
		if segmentID != "" {
			c.Segments = []string{segmentID}
		}
		a.CurrentCampaign = c
		return nil
	})
}

// AppendCampaignSegment adds segmentID to the end of username's current
// campaign.
func (b *BadgerEngine) AppendCampaignSegment(username, segmentID string) error {
	if segmentID == "" {
		return ErrInvalidID
	}
	return b.updateAnnotator(username, func(a *segment.Annotator) error {
		if a.CurrentCampaign == nil {
			return fmt.Errorf("%w: %s has no current campaign", ErrInvalidData, username)
		}
		a.CurrentCampaign.Segments = append(a.CurrentCampaign.Segments, segmentID)
		return nil
	})
}

// SetLastAnnotated records segmentID as the last annotated segment of
// username's current campaign. It reports false, without error, when the
// segment is not part of that campaign.
func (b *BadgerEngine) SetLastAnnotated(username, segmentID string) (bool, error) {
	var updated bool
	err := b.updateAnnotator(username, func(a *segment.Annotator) error {
		if !a.CurrentCampaign.Contains(segmentID) {
			return nil
		}
		a.CurrentCampaign.LastAnnotatedSegment = segmentID
		updated = true
		return nil
	})
	return updated, err
}

func (b *BadgerEngine) updateAnnotator(username string, fn func(a *segment.Annotator) error) error {
	if username == "" {
		return ErrInvalidID
	}
	return b.withUpdate(func(txn *badger.Txn) error {
		key := annotatorKey(username)
		var a segment.Annotator
		if err := getItem(txn, key, &a); err != nil {
			return fmt.Errorf("annotator %s: %w", username, err)
		}
		if err := fn(&a); err != nil {
			return err
		}
		data, err := encode(&a)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}
