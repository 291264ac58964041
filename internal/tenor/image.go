package tenor

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// MaxImageSize is the exclusive upper bound, in bytes, for a displayable variant.
const MaxImageSize = 2 << 20

// ErrNoSuitableMedia is returned when no GIF variant fits under MaxImageSize.
var ErrNoSuitableMedia = errors.New("no gif variant under size limit")

// Variant is one encoded rendition of an upstream object.
type Variant struct {
	Format string
	URL    string
	Size   int64
}

type mediaVariant struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

type object struct {
	ID                 string                    `json:"id"`
	ContentDescription string                    `json:"content_description"`
	Media              []map[string]mediaVariant `json:"media"`
	MediaFormats       map[string]mediaVariant   `json:"media_formats"`
}

// Image wraps one upstream result. The raw JSON is kept as received and never modified.
type Image struct {
	raw json.RawMessage
	obj object
}

// NewImage decodes a stored or freshly fetched upstream object.
func NewImage(raw []byte) (*Image, error) {
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode tenor object: %w", err)
	}

	stored := make(json.RawMessage, len(raw))
	copy(stored, raw)

	return &Image{raw: stored, obj: obj}, nil
}

// ID returns the upstream identifier used for share registration.
func (i *Image) ID() string {
	return i.obj.ID
}

// Description returns the upstream content description.
func (i *Image) Description() string {
	return i.obj.ContentDescription
}

// Title returns the description without its trailing "GIF" word.
func (i *Image) Title() string {
	desc := strings.TrimSpace(i.obj.ContentDescription)
	if len(desc) < 3 || !strings.EqualFold(desc[len(desc)-3:], "gif") {
		return desc
	}

	head := desc[:len(desc)-3]
	if head != "" && !strings.HasSuffix(head, " ") {
		// part of a longer word, e.g. "Magif"
		return desc
	}

	if title := strings.TrimSpace(head); title != "" {
		return title
	}

	return desc
}

// Raw returns a copy of the upstream JSON.
func (i *Image) Raw() []byte {
	out := make([]byte, len(i.raw))
	copy(out, i.raw)
	return out
}

// Variants lists every media rendition found in the object, ordered by format name.
// Both the v1 "media" list and the v2 "media_formats" map are understood.
func (i *Image) Variants() []Variant {
	merged := make(map[string]mediaVariant)
	if len(i.obj.Media) > 0 {
		for format, v := range i.obj.Media[0] {
			merged[format] = v
		}
	}
	for format, v := range i.obj.MediaFormats {
		merged[format] = v
	}

	variants := make([]Variant, 0, len(merged))
	for format, v := range merged {
		variants = append(variants, Variant{Format: format, URL: v.URL, Size: v.Size})
	}

	sort.Slice(variants, func(a, b int) bool {
		return variants[a].Format < variants[b].Format
	})

	return variants
}

// BestVariant picks the largest GIF-family variant strictly below MaxImageSize.
// There is no fallback to oversized or non-GIF renditions.
func (i *Image) BestVariant() (Variant, error) {
	var (
		best  Variant
		found bool
	)

	for _, v := range i.Variants() {
		if !strings.HasSuffix(strings.ToLower(v.Format), "gif") {
			continue
		}
		if v.URL == "" || v.Size <= 0 || v.Size >= MaxImageSize {
			continue
		}
		if !found || v.Size > best.Size {
			best = v
			found = true
		}
	}

	if !found {
		return Variant{}, fmt.Errorf("image %s: %w", i.obj.ID, ErrNoSuitableMedia)
	}

	return best, nil
}

// URL returns the display URL of BestVariant.
func (i *Image) URL() (string, error) {
	v, err := i.BestVariant()
	if err != nil {
		return "", err
	}

	return v.URL, nil
}
