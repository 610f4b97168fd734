package media

import (
	"github.com/utafrali/catalogcore/internal/domain"
)

// GroupName identifies an asset group.
type GroupName string

const (
	GroupImages GroupName = "images"
	GroupLogo   GroupName = "logo"
)

type group struct {
	name     GroupName
	folder   string
	state    State
	payloads []Payload
	uploaded []domain.ImageAsset
	retire   []string
}

func newGroup(name GroupName, folder string, payloads []Payload, retire []string) *group {
	return &group{
		name:     name,
		folder:   folder,
		state:    Pending,
		payloads: payloads,
		uploaded: make([]domain.ImageAsset, len(payloads)),
		retire:   retire,
	}
}

// Change is the pending image diff of one mutation: the assets staged for
// upload and the assets to retire once the new references are committed.
// It is never persisted.
type Change struct {
	ProductID string

	images *group
	logo   *group
}

func (c *Change) groups() []*group {
	var out []*group
	if c.images != nil {
		out = append(out, c.images)
	}
	if c.logo != nil {
		out = append(out, c.logo)
	}
	return out
}

// advance moves every group to next, or none of them.
func (c *Change) advance(next State) error {
	groups := c.groups()
	for _, g := range groups {
		if _, err := g.state.To(next); err != nil {
			return err
		}
	}
	for _, g := range groups {
		g.state = next
		if next.Terminal() {
			groupOutcomes.WithLabelValues(string(g.name), next.String()).Inc()
		}
	}
	return nil
}

// ImagesChanged reports whether the change replaces the image set.
func (c *Change) ImagesChanged() bool { return c.images != nil }

// LogoChanged reports whether the change replaces the brand logo.
func (c *Change) LogoChanged() bool { return c.logo != nil }

// Images returns the staged image set in payload order.
func (c *Change) Images() []domain.ImageAsset {
	if c.images == nil {
		return nil
	}
	out := make([]domain.ImageAsset, len(c.images.uploaded))
	copy(out, c.images.uploaded)
	return out
}

// Logo returns the staged brand logo.
func (c *Change) Logo() domain.ImageAsset {
	if c.logo == nil || len(c.logo.uploaded) == 0 {
		return domain.ImageAsset{}
	}
	return c.logo.uploaded[0]
}

// State returns the lifecycle state of a group, and false when the change
// does not touch that group.
func (c *Change) State(name GroupName) (State, bool) {
	for _, g := range c.groups() {
		if g.name == name {
			return g.state, true
		}
	}
	return Pending, false
}

// Uploaded returns the remote ids staged by this change.
func (c *Change) Uploaded() []string {
	var ids []string
	for _, g := range c.groups() {
		for _, a := range g.uploaded {
			if !a.IsZero() {
				ids = append(ids, a.RemoteID)
			}
		}
	}
	return ids
}

// Retired returns the remote ids this change replaces.
func (c *Change) Retired() []string {
	var ids []string
	for _, g := range c.groups() {
		ids = append(ids, g.retire...)
	}
	return ids
}

// ApplyTo writes the staged references into p. Groups the change does not
// touch keep their current references.
func (c *Change) ApplyTo(p *domain.Product) {
	if c.ImagesChanged() {
		p.Images = c.Images()
	}
	if c.LogoChanged() {
		p.Brand.Logo = c.Logo()
	}
}
