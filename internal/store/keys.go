package store

// Top-level collections.
const (
	CollectionUsers            = "users"
	CollectionFanMail          = "fan_mail"
	CollectionUserVotes        = "user_votes"
	CollectionZineSubmissions  = "zine_submissions"
	CollectionIssueSubmissions = "issue_submissions"
	CollectionAccounts         = "accounts"
	CollectionAccountEmails    = "account_emails"
	CollectionDeviceTokens     = "device_tokens"
)

// Per-user sub-collection names.
const (
	SubFollowedZines    = "followed_zines"
	SubBookmarkedIssues = "bookmarked_issues"
	SubReadIssues       = "read_issues"
	SubDevices          = "devices"
)

// UserCollection returns users/{uid}/{sub}.
func UserCollection(uid, sub string) string {
	return CollectionUsers + "/" + uid + "/" + sub
}

// FollowedZines returns the collection of a user's FollowRecords.
func FollowedZines(uid string) string { return UserCollection(uid, SubFollowedZines) }

// BookmarkedIssues returns the collection of a user's bookmarks.
func BookmarkedIssues(uid string) string { return UserCollection(uid, SubBookmarkedIssues) }

// ReadIssues returns the collection of a user's read records.
func ReadIssues(uid string) string { return UserCollection(uid, SubReadIssues) }

// Devices returns the collection of a user's push devices.
func Devices(uid string) string { return UserCollection(uid, SubDevices) }

// UserSubCollections lists every per-user collection, for account deletion.
func UserSubCollections(uid string) []string {
	return []string{FollowedZines(uid), BookmarkedIssues(uid), ReadIssues(uid), Devices(uid)}
}
