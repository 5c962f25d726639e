package services

import (
	"context"
	"fmt"

	"github.com/desertthunder/crate/internal/models"
	"golang.org/x/sync/errgroup"
)

// Reader fetches the complete, ordered track list of a remote playlist.
//
// The first page is read alone to learn the total. When concurrency is above one the remaining pages are
// requested in parallel and reassembled by offset. Reading always continues until a short page is seen, so a
// playlist that grew while being read is not truncated.
type Reader struct {
	provider    Provider
	pageSize    int
	concurrency int
}

// NewReader creates a [Reader]. Page sizes outside 1..[MaxItemsPerRequest] fall back to the maximum.
func NewReader(provider Provider, pageSize, concurrency int) *Reader {
	if pageSize <= 0 || pageSize > MaxItemsPerRequest {
		pageSize = MaxItemsPerRequest
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reader{provider: provider, pageSize: pageSize, concurrency: concurrency}
}

// Tracks returns every track of the playlist in remote order. Any page failure aborts the read.
func (r *Reader) Tracks(ctx context.Context, playlistID string) ([]models.Track, error) {
	first, err := r.provider.PlaylistItems(ctx, playlistID, 0, r.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read page at offset 0: %w", err)
	}

	tracks := append([]models.Track(nil), first.Items...)
	if first.Fetched < r.pageSize {
		return tracks, nil
	}

	offset := first.Fetched
	if r.concurrency > 1 && first.Total > offset {
		pages, next, err := r.parallel(ctx, playlistID, offset, first.Total)
		if err != nil {
			return nil, err
		}
		for _, page := range pages {
			tracks = append(tracks, page.Items...)
		}
		if last := pages[len(pages)-1]; last.Fetched < r.pageSize {
			return tracks, nil
		}
		offset = next
	}

	for {
		page, err := r.provider.PlaylistItems(ctx, playlistID, offset, r.pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to read page at offset %d: %w", offset, err)
		}
		tracks = append(tracks, page.Items...)
		if page.Fetched < r.pageSize {
			return tracks, nil
		}
		offset += page.Fetched
	}
}

// parallel fetches every page between start and total and returns them in offset order, along with the offset
// following the last page.
func (r *Reader) parallel(ctx context.Context, playlistID string, start, total int) ([]*ItemPage, int, error) {
	var offsets []int
	for o := start; o < total; o += r.pageSize {
		offsets = append(offsets, o)
	}

	pages := make([]*ItemPage, len(offsets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, o := range offsets {
		g.Go(func() error {
			page, err := r.provider.PlaylistItems(gctx, playlistID, o, r.pageSize)
			if err != nil {
				return fmt.Errorf("failed to read page at offset %d: %w", o, err)
			}
			pages[i] = page
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	last := offsets[len(offsets)-1]
	return pages, last + pages[len(pages)-1].Fetched, nil
}
