package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// MaxRecentSessions bounds the recent-session list.
const MaxRecentSessions = 100

// RecentSession is an entry in a user's recent-session list.
type RecentSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ParseRecentSessions decodes a persisted list. Malformed input yields an
// empty list and corrupt entries are dropped individually.
func ParseRecentSessions(raw []byte) []RecentSession {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	out := make([]RecentSession, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		var rs RecentSession
		if err := json.Unmarshal(e, &rs); err != nil {
			continue
		}
		rs.ID = strings.TrimSpace(rs.ID)
		if rs.ID == "" || seen[rs.ID] {
			continue
		}
		seen[rs.ID] = true
		out = append(out, rs)
		if len(out) == MaxRecentSessions {
			break
		}
	}
	return out
}

// AddRecentSession moves entry to the front, replacing any entry with the same ID.
func AddRecentSession(list []RecentSession, entry RecentSession) []RecentSession {
	out := make([]RecentSession, 0, len(list)+1)
	out = append(out, entry)
	for _, rs := range list {
		if rs.ID == entry.ID {
			continue
		}
		if len(out) == MaxRecentSessions {
			break
		}
		out = append(out, rs)
	}
	return out
}
