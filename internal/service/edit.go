package service

import (
	"strings"

	"github.com/iliyamo/secondhand-market/internal/model"
)

// ListingChanges is an owner edit.  Nil fields are left untouched.
// AddImages are freshly uploaded object keys; RemoveImages are keys the
// listing already holds.
type ListingChanges struct {
	Title        *string
	Description  *string
	Category     *string
	SubCategory  *string
	Condition    *string
	PriceCents   *int64
	MeetupArea   *string
	ShowContact  *bool
	AddImages    []string
	RemoveImages []string
}

// EditClass says whether an edit touches what identifies the item.
type EditClass int

const (
	EditMinor EditClass = iota
	EditMajor
)

func (c EditClass) String() string {
	if c == EditMajor {
		return "major"
	}
	return "minor"
}

// EditClassification is the outcome of ClassifyEdit.  RemovedImages
// reports image removals, which never make an edit major on their own.
type EditClassification struct {
	Class         EditClass
	RemovedImages bool
}

func changed(field *string, current string) bool {
	return field != nil && strings.TrimSpace(*field) != current
}

// ClassifyEdit marks an edit major when title, description, category,
// sub-category or condition change, or when any new image is supplied.
func ClassifyEdit(current *model.Listing, ch ListingChanges) EditClassification {
	out := EditClassification{Class: EditMinor}
	if changed(ch.Title, current.Title) ||
		changed(ch.Description, current.Description) ||
		changed(ch.Category, current.Category) ||
		changed(ch.SubCategory, current.SubCategory) ||
		changed(ch.Condition, current.Condition) ||
		len(ch.AddImages) > 0 {
		out.Class = EditMajor
	}
	for _, k := range ch.RemoveImages {
		if containsString(current.Images, k) {
			out.RemovedImages = true
			break
		}
	}
	return out
}

// DecideEdit returns the status a listing ends up in after an edit, or an
// error when the edit is not allowed at all.
//
//	rejected                    -> pending
//	available, active, major    -> refused
//	available, active, minor    -> available
//	available, no active convos -> pending
//	pending                     -> pending
func DecideEdit(status model.ListingStatus, hasActiveConversations bool, class EditClass) (model.ListingStatus, error) {
	switch status {
	case model.ListingRejected, model.ListingPending:
		return model.ListingPending, nil
	case model.ListingAvailable:
		if !hasActiveConversations {
			return model.ListingPending, nil
		}
		if class == EditMajor {
			return "", conflict("Major changes are not allowed while buyers are negotiating; only price, meetup area, contact visibility and image removal can change")
		}
		return model.ListingAvailable, nil
	}
	return "", conflict("This listing can no longer be edited")
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
