package chat

import (
	"sort"

	"github.com/heirloom-restoration/workshop/internal/model"
)

// MergeMessages reconciles incoming messages into existing ones. Messages are
// de-duplicated by id and ordered by creation time, then id. A message that
// was read stays read. Merging the same input again is a no-op.
func MergeMessages(existing, incoming []model.Message) []model.Message {
	byID := make(map[string]int, len(existing)+len(incoming))
	out := make([]model.Message, 0, len(existing)+len(incoming))

	add := func(m model.Message) {
		if i, ok := byID[m.ID]; ok {
			read := out[i].IsRead || m.IsRead
			out[i] = m
			out[i].IsRead = read
			return
		}
		byID[m.ID] = len(out)
		out = append(out, m)
	}
	for _, m := range existing {
		add(m)
	}
	for _, m := range incoming {
		add(m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// unreadFor counts messages not yet read that someone other than viewerID sent.
func unreadFor(msgs []model.Message, viewerID string) int {
	n := 0
	for _, m := range msgs {
		if !m.IsRead && m.SenderID != viewerID {
			n++
		}
	}
	return n
}

// markReadFor marks messages from senders other than viewerID read and
// reports how many changed.
func markReadFor(msgs []model.Message, viewerID string) int {
	n := 0
	for i := range msgs {
		if !msgs[i].IsRead && msgs[i].SenderID != viewerID {
			msgs[i].IsRead = true
			n++
		}
	}
	return n
}
