package server

import (
	"iter"
	"slices"

	"github.com/photonchat/photon/pkg/model"
	"github.com/photonchat/photon/pkg/protocol"
)

// selectHistory picks the newest messages visible to userID whose encoded
// size fits in budget bytes. It scans newest to oldest, stops at the first
// message that does not fit, and returns the result oldest first.
func selectHistory(newestFirst iter.Seq[model.Message], userID int64, budget int) []*model.Message {
	var picked []*model.Message
	used := 0
	for m := range newestFirst {
		if !m.VisibleTo(userID) {
			continue
		}
		size, err := protocol.Size(&m)
		if err != nil {
			continue
		}
		cost := size + 1 // list separator
		if used+cost > budget {
			break
		}
		used += cost
		picked = append(picked, &m)
	}
	slices.Reverse(picked)
	return picked
}
