package core

import (
	"github.com/samber/lo"
)

// AnonymousName is the display name shown in place of a user that chose to be anonymous.
const AnonymousName = "Anonymous"

// PresenceEntry records which group a connection has joined and under what identity.
type PresenceEntry struct {
	ConnID      string
	DisplayName string
	GroupID     string
	IsAnonymous bool
}

// ShownName is the name other members see for the entry.
func (p PresenceEntry) ShownName() string {
	if p.IsAnonymous {
		return AnonymousName
	}
	return p.DisplayName
}

// Member is a row of a group's presence snapshot as sent to clients.
type Member struct {
	UserName string `json:"userName"`
	IsAnon   bool   `json:"isAnon"`
}

// Registry tracks the live, joined connections and the group each one belongs to.
// A connection has at most one entry. All methods are safe for concurrent use.
type Registry struct {
	entries *SyncMap[string, PresenceEntry]
}

func NewRegistry() *Registry {
	return &Registry{entries: NewSyncMap[string, PresenceEntry]()}
}

// Join records connID as a non-anonymous member of groupID, replacing any previous entry.
// The replaced entry is returned when the connection had already joined.
func (r *Registry) Join(connID, displayName, groupID string) (PresenceEntry, bool) {
	return r.entries.Swap(connID, PresenceEntry{
		ConnID:      connID,
		DisplayName: displayName,
		GroupID:     groupID,
	})
}

// SetAnonymous toggles the anonymity of a joined connection.
// It returns false and changes nothing when connID has not joined.
func (r *Registry) SetAnonymous(connID string, anonymous bool) (PresenceEntry, bool) {
	return r.entries.Update(connID, func(e PresenceEntry) PresenceEntry {
		e.IsAnonymous = anonymous
		return e
	})
}

// Leave removes the entry of connID and returns it.
// A second call for the same connection returns false.
func (r *Registry) Leave(connID string) (PresenceEntry, bool) {
	return r.entries.LoadAndDelete(connID)
}

func (r *Registry) Lookup(connID string) (PresenceEntry, bool) {
	return r.entries.Load(connID)
}

// MembersOf returns a snapshot of the members of groupID. The order is not specified.
// An unknown group yields an empty, non-nil slice.
func (r *Registry) MembersOf(groupID string) []Member {
	return lo.FilterMap(r.entries.Values(), func(e PresenceEntry, _ int) (Member, bool) {
		return Member{UserName: e.ShownName(), IsAnon: e.IsAnonymous}, e.GroupID == groupID
	})
}

// ConnectionsOf returns the ids of the connections that joined groupID.
func (r *Registry) ConnectionsOf(groupID string) []string {
	return lo.FilterMap(r.entries.Values(), func(e PresenceEntry, _ int) (string, bool) {
		return e.ConnID, e.GroupID == groupID
	})
}

// Groups returns the distinct groups that currently have members.
func (r *Registry) Groups() []string {
	return lo.Uniq(lo.Map(r.entries.Values(), func(e PresenceEntry, _ int) string {
		return e.GroupID
	}))
}

func (r *Registry) Len() int {
	return r.entries.Len()
}
