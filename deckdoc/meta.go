package deckdoc

import "encoding/json"

// ManifestMeta is the searchable, projectable metadata record for a
// document. The document repository stores this struct byte-for-byte as
// doc:<id>:meta (see docstore), independent of the full manifest.
type ManifestMeta struct {
	ID                    string                 `json:"id"`
	Title                 string                 `json:"title"`
	Description           string                 `json:"description,omitempty"`
	Authors               []string               `json:"authors,omitempty"`
	Tags                  []string               `json:"tags,omitempty"`
	CreatedAt             string                 `json:"createdAt,omitempty"`
	UpdatedAt             string                 `json:"updatedAt,omitempty"`
	OwnerID               string                 `json:"ownerId,omitempty"`
	SharedWith            []string               `json:"sharedWith,omitempty"`
	Public                bool                   `json:"public,omitempty"`
	DeletedAt             string                 `json:"deletedAt,omitempty"`
	Slug                  string                 `json:"slug,omitempty"`
	PresenterPasswordHash string                 `json:"presenterPasswordHash,omitempty"`
	CoverImage            string                 `json:"coverImage,omitempty"`
	CustomProperties      map[string]interface{} `json:"customProperties,omitempty"`
}

// Brief is the projection returned by a deck listing: enough to render a
// library view without fetching the full manifest.
type Brief struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	UpdatedAt  string `json:"updatedAt"`
	Slug       string `json:"slug,omitempty"`
	OwnerID    string `json:"ownerId,omitempty"`
	SharedWith []string `json:"sharedWith,omitempty"`
	DeletedAt  string `json:"deletedAt,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

// ToBrief projects a ManifestMeta down to the list-view shape.
func (m ManifestMeta) ToBrief() Brief {
	return Brief{
		ID:         m.ID,
		Title:      m.Title,
		UpdatedAt:  m.UpdatedAt,
		Slug:       m.Slug,
		OwnerID:    m.OwnerID,
		SharedWith: m.SharedWith,
		DeletedAt:  m.DeletedAt,
		CreatedAt:  m.CreatedAt,
	}
}

// Equal reports whether two metadata records are byte-for-byte identical
// once serialized, used by repository property tests (P5).
func (m ManifestMeta) Equal(other ManifestMeta) bool {
	a, errA := json.Marshal(m)
	b, errB := json.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}
