package publication

import (
	"sort"
	"strings"
)

// Posts returns the posts of the list, newest first, narrowed by f.
func (l List) Posts(f Filter) []Post {
	var posts []Post
	for _, p := range l {
		if post, ok := p.(Post); ok && f.match(post) {
			posts = append(posts, post)
		}
	}
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].Dates.Published > posts[j].Dates.Published
	})
	return posts
}

func (f Filter) match(p Post) bool {
	switch {
	case f.Category != "":
		return p.Category == f.Category
	case f.Tag != "":
		return hasTag(p.Tags, f.Tag)
	case f.Search != "":
		if strings.Contains(p.Title, f.Search) ||
			strings.Contains(p.Short, f.Search) ||
			hasTag(p.Tags, f.Search) {
			return true
		}
		if in, ok := p.Content.(Inline); ok {
			return strings.Contains(in.Body.Text(), f.Search)
		}
		return false
	default:
		return true
	}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
