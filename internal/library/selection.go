package library

import (
	"fmt"
	"sort"
)

const noAnchor = -1

// Selection tracks which rows of a Listing are selected and which row was
// clicked last, the anchor for shift-click ranges. It is not safe for
// concurrent use.
type Selection struct {
	listing  Listing
	selected map[Key]struct{}
	last     int
}

func NewSelection(listing Listing) *Selection {
	return &Selection{
		listing:  listing,
		selected: make(map[Key]struct{}),
		last:     noAnchor,
	}
}

// SetListing swaps in a rebuilt listing. Selected keys that are no longer
// listed are dropped; the anchor is kept and validated lazily on the next
// shift-click.
func (s *Selection) SetListing(listing Listing) {
	s.listing = listing
	for key := range s.selected {
		if _, ok := listing.IndexOf(key); !ok {
			delete(s.selected, key)
		}
	}
}

func (s *Selection) Listing() Listing { return s.listing }

// Toggle handles a click on key. With shift held and a usable anchor, every
// row between the anchor and key (inclusive) is added to the selection.
// Otherwise only key flips membership.
func (s *Selection) Toggle(key Key, shift bool) {
	index, resolvable := s.listing.IndexOf(key)

	if shift && resolvable && s.anchorValid() {
		lo, hi := s.last, index
		if lo > hi {
			lo, hi = hi, lo
		}
		for i := lo; i <= hi; i++ {
			k, _ := s.listing.At(i)
			s.selected[k] = struct{}{}
		}
		s.last = index
		return
	}

	if _, ok := s.selected[key]; ok {
		delete(s.selected, key)
	} else {
		s.selected[key] = struct{}{}
	}
	if resolvable {
		s.last = index
	}
}

func (s *Selection) SelectAll() {
	s.selected = make(map[Key]struct{}, s.listing.Len())
	for _, key := range s.listing.keys {
		s.selected[key] = struct{}{}
	}
	s.last = noAnchor
}

func (s *Selection) Clear() {
	s.selected = make(map[Key]struct{})
	s.last = noAnchor
}

func (s *Selection) IsAllSelected() bool {
	return s.listing.Len() > 0 && len(s.selected) == s.listing.Len()
}

func (s *Selection) Contains(key Key) bool {
	_, ok := s.selected[key]
	return ok
}

func (s *Selection) Len() int { return len(s.selected) }

// LastIndex returns the anchor index, if any. The index may be stale when the
// listing has shrunk since the last click.
func (s *Selection) LastIndex() (int, bool) {
	if s.last == noAnchor {
		return 0, false
	}
	return s.last, true
}

// Selected returns the selected keys in listing order. Keys toggled while not
// part of the listing come last, sorted for a deterministic result.
func (s *Selection) Selected() []Key {
	out := make([]Key, 0, len(s.selected))
	for _, key := range s.listing.keys {
		if _, ok := s.selected[key]; ok {
			out = append(out, key)
		}
	}
	if len(out) == len(s.selected) {
		return out
	}

	var extra []Key
	for key := range s.selected {
		if _, listed := s.listing.IndexOf(key); !listed {
			extra = append(extra, key)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].String() < extra[j].String() })
	return append(out, extra...)
}

func (s *Selection) anchorValid() bool {
	return s.last != noAnchor && s.last < s.listing.Len()
}

type EventType string

const (
	EventClick      EventType = "click"
	EventShiftClick EventType = "shift-click"
	EventSelectAll  EventType = "select-all"
	EventClear      EventType = "clear"
)

// Event is one user gesture against the selection.
type Event struct {
	Type EventType `json:"type"`
	Key  Key       `json:"key"`
}

// Apply replays events in order. It stops at the first malformed event; the
// events before it stay applied.
func (s *Selection) Apply(events ...Event) error {
	for i, event := range events {
		switch event.Type {
		case EventClick, EventShiftClick:
			if event.Key.IsZero() {
				return fmt.Errorf("event %d: %s without key", i, event.Type)
			}
			s.Toggle(event.Key, event.Type == EventShiftClick)
		case EventSelectAll:
			s.SelectAll()
		case EventClear:
			s.Clear()
		default:
			return fmt.Errorf("event %d: unknown type %q", i, event.Type)
		}
	}
	return nil
}
