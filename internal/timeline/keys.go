package timeline

const keyPrefix = "feed:"

// HomeKey is the per-recipient home timeline.
func HomeKey(actorID string) string { return keyPrefix + "home:" + actorID }

// MentionsKey is the per-recipient mentions timeline.
func MentionsKey(actorID string) string { return keyPrefix + "mentions:" + actorID }

// ListKey is a list timeline.
func ListKey(listID string) string { return keyPrefix + "list:" + listID }

// PublicKey is one of the shared firehose streams.
func PublicKey(local, media bool) string {
	k := keyPrefix + "public"
	if local {
		k += ":local"
	}
	if media {
		k += ":media"
	}
	return k
}

// TagKey is a shared hashtag stream.
func TagKey(tag string, local bool) string {
	k := keyPrefix + "hashtag:" + tag
	if local {
		k += ":local"
	}
	return k
}
