package absclient

import "github.com/rohit-purandare/shelfbridge/internal/syncengine"

// ToSourceItem projects an ABS Item into the sync pipeline's SourceItem
// shape, normalizing ISBN-10/13 is left to the caller (ABS does not
// distinguish the two itself).
func (i Item) ToSourceItem() syncengine.SourceItem {
	return syncengine.SourceItem{
		ID:                 i.ID,
		Title:              i.Title(),
		Author:             i.Author(),
		ASIN:               i.Media.Metadata.ASIN,
		ISBN13:             i.Media.Metadata.ISBN,
		Format:             i.Format(),
		ProgressPercent:    i.Progress.ProgressPercentage * 100,
		HasProgress:        i.Progress.ProgressPercentage > 0 || i.Progress.IsFinished,
		IsFinished:         i.Progress.IsFinished,
		CurrentTimeSeconds: i.Progress.CurrentTime,
		DurationSeconds:    i.Media.Duration,
		CurrentPage:        i.CurrentPage,
		TotalPages:         i.Pages,
	}
}
