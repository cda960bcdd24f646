package lastfm

// Tag is a user-applied Last.fm tag. Count is its weight relative to the
// artist's heaviest tag, 0-100.
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	URL   string `json:"url"`
}

// apiError is the body Last.fm sends instead of a result, often with a 200.
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// topTagsEnvelope decodes artist.getTopTags, or the error sent in its place.
type topTagsEnvelope struct {
	apiError
	TopTags struct {
		Tag []Tag `json:"tag"`
	} `json:"toptags"`
}
