package rooms

import (
	"context"
	"net/http"
	"notes-server/core"
	"sort"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// LiveRooms reports participant counts of rooms that currently have members.
type LiveRooms interface {
	ActiveRooms(ctx context.Context) (map[string]int, error)
}

type RoomSummary struct {
	ID         string `json:"id"`
	Users      int    `json:"users"`
	LastActive *int64 `json:"lastActive,omitempty"`
}

// HandleList merges live room counts with the registry's last activity
// timestamps. registry may be nil.
func HandleList(live LiveRooms, registry core.RoomRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeRooms, err := live.ActiveRooms(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to read active rooms")
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"error": "Rooms unavailable"})
			return
		}

		roomMap := make(map[string]*RoomSummary, len(activeRooms))
		for id, count := range activeRooms {
			roomMap[id] = &RoomSummary{ID: id, Users: count}
		}

		if registry != nil {
			if storedRooms, err := registry.ListRooms(r.Context()); err != nil {
				logrus.WithError(err).Warn("Failed to list rooms from registry")
			} else {
				for _, room := range storedRooms {
					entry, exists := roomMap[room.ID]
					if !exists {
						entry = &RoomSummary{ID: room.ID}
						roomMap[room.ID] = entry
					}
					if room.LastActive > 0 {
						lastActive := room.LastActive
						entry.LastActive = &lastActive
					}
				}
			}
		}

		roomList := make([]RoomSummary, 0, len(roomMap))
		for _, entry := range roomMap {
			roomList = append(roomList, *entry)
		}
		sortRooms(roomList)

		render.JSON(w, r, roomList)
	}
}

// sortRooms orders by user count, then most recent activity, then id.
func sortRooms(rooms []RoomSummary) {
	lastActive := func(r RoomSummary) int64 {
		if r.LastActive == nil {
			return 0
		}
		return *r.LastActive
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Users != rooms[j].Users {
			return rooms[i].Users > rooms[j].Users
		}
		li, lj := lastActive(rooms[i]), lastActive(rooms[j])
		if li != lj {
			return li > lj
		}
		return rooms[i].ID < rooms[j].ID
	})
}
