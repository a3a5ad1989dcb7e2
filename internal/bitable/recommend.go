package bitable

import (
	"context"
	"math/rand"
)

// Recommended samples the table for up to limit bookmarks with topical
// variety, falling back to recency when no tag vocabulary exists.
//
// The randomness in tag sampling and truncation is deliberate: repeated
// calls against an unchanged table are supposed to surface different
// records.
func (c *Client) Recommended(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}
	if err := c.acquireToken(ctx); err != nil {
		return nil, err
	}

	tags := c.tagOptions(ctx)
	if len(tags) == 0 {
		return c.latest(ctx, limit)
	}

	chosen := pickRandom(tags, rand.Intn(3)+1)
	records, err := c.byTags(ctx, chosen)
	if err != nil {
		return nil, err
	}

	switch {
	case len(records) < limit:
		return c.backfillLatest(ctx, records, limit)
	case len(records) > limit:
		rand.Shuffle(len(records), func(i, j int) {
			records[i], records[j] = records[j], records[i]
		})
		return records[:limit], nil
	default:
		return records, nil
	}
}

// pickRandom returns up to count elements chosen uniformly without
// replacement.
func pickRandom(items []string, count int) []string {
	shuffled := make([]string, len(items))
	copy(shuffled, items)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if count > len(shuffled) {
		count = len(shuffled)
	}
	return shuffled[:count]
}

// byTags returns records whose tag field matches any of the given tags.
func (c *Client) byTags(ctx context.Context, tags []string) ([]Record, error) {
	conditions := make([]searchCondition, len(tags))
	for i, tag := range tags {
		conditions[i] = searchCondition{
			FieldName: fieldTags,
			Operator:  "contains",
			Value:     []string{tag},
		}
	}
	items, _, err := c.searchRecords(ctx, "recommend", searchRequest{
		Filter:   &searchFilter{Conjunction: "or", Conditions: conditions},
		PageSize: pageSize,
	})
	if err != nil {
		return nil, err
	}
	return formatRecords(items), nil
}

// latest returns the limit most recently created records.
func (c *Client) latest(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}
	items, _, err := c.searchRecords(ctx, "latest", searchRequest{
		Sort:     []sortSpec{{FieldName: fieldCreatedTime, Desc: true}},
		PageSize: limit,
	})
	if err != nil {
		return nil, err
	}
	return formatRecords(items), nil
}

// backfillLatest tops a short result up with the most recent records,
// deduplicating by record identity. The final count may stay below limit
// when the table has fewer eligible records.
func (c *Client) backfillLatest(ctx context.Context, records []Record, limit int) ([]Record, error) {
	recent, err := c.latest(ctx, limit-len(records))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		seen[r.ID] = true
	}
	for _, r := range recent {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		records = append(records, r)
	}
	return records, nil
}
