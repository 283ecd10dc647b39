package models

import "strings"

// Emoji is one entry of the user-managed emoji set. Tags are
// case-sensitive opaque identifiers; Meaning is the human-readable
// synonym the model may use instead of the tag.
type Emoji struct {
	Tag      string `json:"tag"`
	Meaning  string `json:"meaning"`
	ImageURL string `json:"image_url,omitempty"`
}

// EmojiIndex resolves emoji references by tag or meaning.
type EmojiIndex struct {
	byTag     map[string]*Emoji
	byMeaning map[string]*Emoji
	byImage   map[string]*Emoji
	all       []Emoji
}

// NewEmojiIndex builds an index over the given set. Later duplicates win,
// matching upsert semantics of the store.
func NewEmojiIndex(emojis []Emoji) *EmojiIndex {
	idx := &EmojiIndex{
		byTag:     make(map[string]*Emoji, len(emojis)),
		byMeaning: make(map[string]*Emoji, len(emojis)),
		byImage:   make(map[string]*Emoji, len(emojis)),
		all:       emojis,
	}
	for i := range idx.all {
		e := &idx.all[i]
		idx.byTag[e.Tag] = e
		if e.Meaning != "" {
			idx.byMeaning[e.Meaning] = e
		}
		if e.ImageURL != "" {
			idx.byImage[e.ImageURL] = e
		}
	}
	return idx
}

// Resolve looks up an emoji by tag first, then by meaning.
func (idx *EmojiIndex) Resolve(ref string) (*Emoji, bool) {
	ref = strings.TrimSpace(ref)
	if e, ok := idx.byTag[ref]; ok {
		return e, true
	}
	if e, ok := idx.byMeaning[ref]; ok {
		return e, true
	}
	return nil, false
}

// ResolveImage looks up an emoji by its image reference.
func (idx *EmojiIndex) ResolveImage(url string) (*Emoji, bool) {
	e, ok := idx.byImage[url]
	return e, ok
}
