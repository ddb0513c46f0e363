// Package keys builds namespaced cache keys. All callers go through these
// helpers so every key carries a known colon-delimited prefix, which is what
// the TTL configuration is keyed on.
package keys

import (
	"strconv"
	"strings"
)

// Namespace is the closed set of key prefixes the cache understands
type Namespace string

const (
	NamespaceUser        Namespace = "user"
	NamespaceGuild       Namespace = "guild"
	NamespaceRanking     Namespace = "ranking"
	NamespaceSession     Namespace = "session"
	NamespaceLeaderboard Namespace = "leaderboard"
	NamespaceStats       Namespace = "stats"
)

// namespaces lists every known namespace for prefix resolution
var namespaces = []Namespace{
	NamespaceUser,
	NamespaceGuild,
	NamespaceRanking,
	NamespaceSession,
	NamespaceLeaderboard,
	NamespaceStats,
}

// String returns the namespace tag
func (n Namespace) String() string {
	return string(n)
}

// Key joins the namespace with the given parts
func (n Namespace) Key(parts ...string) string {
	return string(n) + ":" + strings.Join(parts, ":")
}

// User builds the key for a user record
func User(userID string) string {
	return NamespaceUser.Key(userID)
}

// Guild builds the key for a guild record
func Guild(guildID string) string {
	return NamespaceGuild.Key(guildID)
}

// GuildMember builds the key for one member's per-guild record
func GuildMember(guildID, userID string) string {
	return NamespaceGuild.Key(guildID, "member", userID)
}

// Ranking builds the key for a ranking of the given kind and period. A guild
// ID scopes the ranking to one guild; without it the ranking is global.
func Ranking(kind, period string, guildID ...string) string {
	parts := []string{kind, period}
	parts = append(parts, guildID...)
	return NamespaceRanking.Key(parts...)
}

// Session builds the key for a session token
func Session(sessionID string) string {
	return NamespaceSession.Key(sessionID)
}

// Leaderboard builds the key for a leaderboard page
func Leaderboard(kind string, page int) string {
	return NamespaceLeaderboard.Key(kind, strconv.Itoa(page))
}

// Stats builds the key for an aggregate statistics snapshot
func Stats(name string) string {
	return NamespaceStats.Key(name)
}

// NamespaceOf resolves the namespace a key belongs to. The second return is
// false when the key carries no known prefix.
func NamespaceOf(key string) (Namespace, bool) {
	idx := strings.IndexByte(key, ':')
	if idx <= 0 {
		return "", false
	}
	prefix := Namespace(key[:idx])
	for _, n := range namespaces {
		if n == prefix {
			return n, true
		}
	}
	return "", false
}
