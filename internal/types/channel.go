package types

import (
	"sort"
	"strings"
	"time"

	"github.com/notadamking/elemental/internal/errs"
)

// ChannelType distinguishes a 1:1 direct channel from a multi-member group.
type ChannelType string

const (
	ChannelDirect ChannelType = "direct"
	ChannelGroup  ChannelType = "group"
)

func (c ChannelType) Valid() bool {
	switch c {
	case ChannelDirect, ChannelGroup:
		return true
	}
	return false
}

// ChannelVisibility controls discoverability of a group channel.
type ChannelVisibility string

const (
	VisibilityPrivate ChannelVisibility = "private"
	VisibilityPublic  ChannelVisibility = "public"
)

// ChannelPermissions holds the permission block for a Channel.
type ChannelPermissions struct {
	ModifyMembers []string          `json:"modifyMembers,omitempty"`
	Visibility    ChannelVisibility `json:"visibility"`
}

// CanModifyMembers reports whether actor is permitted to add/remove members.
func (p ChannelPermissions) CanModifyMembers(actor string) bool {
	for _, a := range p.ModifyMembers {
		if a == actor {
			return true
		}
	}
	return false
}

type Channel struct {
	Base

	Type        ChannelType        `json:"channelType"`
	Name        string             `json:"name"`
	Members     []string           `json:"members"`
	Permissions ChannelPermissions `json:"permissions"`
}

func (c *Channel) ElementBase() *Base { return &c.Base }

func NewChannel(id, creator string, now time.Time, typ ChannelType, name string) *Channel {
	return &Channel{
		Base: Base{
			ID:        id,
			Kind:      KindChannel,
			CreatedAt: now,
			UpdatedAt: now,
			CreatedBy: creator,
		},
		Type: typ,
		Name: name,
		Permissions: ChannelPermissions{
			Visibility: VisibilityPrivate,
		},
	}
}

func (c *Channel) Validate() error {
	if !c.Type.Valid() {
		return errs.Validation("types.Channel.Validate", errs.ReasonInvalidInput, "invalid channel type", nil)
	}
	if c.Name == "" {
		return errs.Validation("types.Channel.Validate", errs.ReasonMissingRequiredField, "name is required", nil)
	}
	return nil
}

// HasMember reports whether id is currently a member of the channel.
func (c *Channel) HasMember(id string) bool {
	for _, m := range c.Members {
		if m == id {
			return true
		}
	}
	return false
}

// CanonicalDirectChannelName computes the deterministic canonical name for a
// direct channel between the unordered pair {a, b}: stable regardless of
// argument order.
func CanonicalDirectChannelName(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return "dm:" + strings.Join(pair, ":")
}
